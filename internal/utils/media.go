package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// ErrMediaTooLarge 表示远程文件超过读取上限。
var ErrMediaTooLarge = errors.New("media payload exceeds size limit")

// Media is a decoded image or video payload.
type Media struct {
	Data     []byte
	MimeType string
	Ext      string
}

// LoadMedia resolves a generation payload to bytes. Data URLs are decoded in
// place; http(s) URLs are downloaded with at most limit bytes read.
func LoadMedia(ctx context.Context, client *http.Client, payload string, limit int64) (*Media, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, errors.New("media payload empty")
	}

	if strings.HasPrefix(trimmed, "data:") {
		data, ext, err := DecodeMediaPayload(trimmed)
		if err != nil {
			return nil, err
		}
		mimeType, _ := SplitDataURL(trimmed)
		if ExtensionFromMime(mimeType) == "" {
			mimeType = DetectMime(data)
		}
		return &Media{Data: data, MimeType: mimeType, Ext: ext}, nil
	}

	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return nil, fmt.Errorf("unsupported media source %q", Truncate(trimmed, 32))
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return nil, fmt.Errorf("create media request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download media http %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, ErrMediaTooLarge
	}
	if len(data) == 0 {
		return nil, errors.New("media payload empty")
	}

	mimeType := resp.Header.Get("Content-Type")
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}
	ext := ExtensionFromMime(mimeType)
	if ext == "" {
		mimeType = DetectMime(data)
		ext = ExtensionFromMime(mimeType)
	}
	if ext == "" {
		ext = "bin"
	}
	return &Media{Data: data, MimeType: mimeType, Ext: ext}, nil
}

// DetectMime sniffs the content type of data without parameters.
func DetectMime(data []byte) string {
	detected := http.DetectContentType(data)
	if parsed, _, err := mime.ParseMediaType(detected); err == nil {
		return parsed
	}
	return detected
}

// MediaSource labels a payload for logs without printing it.
func MediaSource(payload string) string {
	switch {
	case strings.HasPrefix(payload, "data:"):
		return "inline_data_url"
	case strings.TrimSpace(payload) != "":
		return "remote_url"
	default:
		return ""
	}
}

func ExtensionFromMime(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}

	switch strings.ToLower(mimeType) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	case "video/quicktime":
		return "mov"
	default:
		return ""
	}
}
