package entity

import "strings"

// ProviderID identifies one of the fixed image generation backends.
type ProviderID string

const (
	ProviderGoogleImagen ProviderID = "google-imagen"
	ProviderOpenAI       ProviderID = "openai-dalle"
	ProviderHuggingFace  ProviderID = "huggingface"
)

// ProviderPriority is the order in which image providers are attempted.
var ProviderPriority = []ProviderID{
	ProviderGoogleImagen,
	ProviderOpenAI,
	ProviderHuggingFace,
}

// DisplayName returns the label used in user-facing diagnostics.
func (p ProviderID) DisplayName() string {
	switch p {
	case ProviderGoogleImagen:
		return "Google Imagen"
	case ProviderOpenAI:
		return "OpenAI DALL-E"
	case ProviderHuggingFace:
		return "Hugging Face"
	default:
		return string(p)
	}
}

// CredentialLabel names the key a user has to add for this provider.
func (p ProviderID) CredentialLabel() string {
	switch p {
	case ProviderGoogleImagen:
		return "Google Gemini (for Imagen)"
	case ProviderOpenAI:
		return "OpenAI (for DALL-E)"
	case ProviderHuggingFace:
		return "Hugging Face (for Stable Diffusion)"
	default:
		return string(p)
	}
}

// ParseProviderID accepts provider ids as well as the credential type names
// used by the settings page (google_gemini, openai, huggingface).
func ParseProviderID(value string) (ProviderID, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ProviderGoogleImagen), "google_gemini", "google", "gemini", "imagen":
		return ProviderGoogleImagen, true
	case string(ProviderOpenAI), "openai", "dalle", "dall-e":
		return ProviderOpenAI, true
	case string(ProviderHuggingFace), "hugging_face", "hf":
		return ProviderHuggingFace, true
	default:
		return "", false
	}
}

// ProviderCredential holds one user's secret and model preference for a provider.
type ProviderCredential struct {
	APIKey string `gorm:"column:api_key;type:text" json:"-"`
	Model  string `gorm:"column:model;type:varchar(255)" json:"model,omitempty"`
}

// Present reports whether a non-blank secret is stored.
func (c ProviderCredential) Present() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// Credentials is the fixed per-account credential set, one slot per provider.
type Credentials struct {
	GoogleImagen ProviderCredential `gorm:"embedded;embeddedPrefix:google_" json:"google_imagen"`
	OpenAI       ProviderCredential `gorm:"embedded;embeddedPrefix:openai_" json:"openai"`
	HuggingFace  ProviderCredential `gorm:"embedded;embeddedPrefix:huggingface_" json:"huggingface"`
}

// For returns the credential slot for the provider.
func (c Credentials) For(p ProviderID) ProviderCredential {
	switch p {
	case ProviderGoogleImagen:
		return c.GoogleImagen
	case ProviderOpenAI:
		return c.OpenAI
	case ProviderHuggingFace:
		return c.HuggingFace
	default:
		return ProviderCredential{}
	}
}

// Any reports whether at least one provider has a secret.
func (c Credentials) Any() bool {
	for _, p := range ProviderPriority {
		if c.For(p).Present() {
			return true
		}
	}
	return false
}

// Missing lists providers without a secret, in priority order.
func (c Credentials) Missing() []ProviderID {
	var missing []ProviderID
	for _, p := range ProviderPriority {
		if !c.For(p).Present() {
			missing = append(missing, p)
		}
	}
	return missing
}

// credentialColumnPrefix maps a provider to its embedded column prefix.
func credentialColumnPrefix(p ProviderID) string {
	switch p {
	case ProviderGoogleImagen:
		return "google_"
	case ProviderOpenAI:
		return "openai_"
	case ProviderHuggingFace:
		return "huggingface_"
	default:
		return ""
	}
}

// MaskAPIKey shows the first and last four characters of a secret.
func MaskAPIKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}
