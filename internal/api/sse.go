package api

import "github.com/sirupsen/logrus"

type sseMessage struct {
	event string
	data  interface{}
}

func (h *HTTPHandler) registerSSEClient(userID uint, ch chan sseMessage) {
	if h == nil || ch == nil || userID == 0 {
		return
	}
	h.sseMu.Lock()
	defer h.sseMu.Unlock()

	if h.sseClients == nil {
		h.sseClients = make(map[uint][]chan sseMessage)
	}
	h.sseClients[userID] = append(h.sseClients[userID], ch)
}

func (h *HTTPHandler) unregisterSSEClient(userID uint, target chan sseMessage) {
	if h == nil || target == nil || userID == 0 {
		return
	}
	h.sseMu.Lock()
	defer h.sseMu.Unlock()

	current := h.sseClients[userID]
	if len(current) == 0 {
		return
	}

	remaining := current[:0]
	for _, ch := range current {
		if ch == target {
			continue
		}
		remaining = append(remaining, ch)
	}

	if len(remaining) == 0 {
		delete(h.sseClients, userID)
		return
	}

	h.sseClients[userID] = remaining
}

// publishSSEMessage 推送给该用户的所有连接，慢消费者直接丢弃
func (h *HTTPHandler) publishSSEMessage(userID uint, msg sseMessage) {
	if h == nil || userID == 0 {
		return
	}

	h.sseMu.Lock()
	channels := append([]chan sseMessage(nil), h.sseClients[userID]...)
	h.sseMu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- msg:
		default:
			logrus.WithFields(logrus.Fields{
				"user_id": userID,
				"event":   msg.event,
			}).Warn("dropping sse message due to slow consumer")
		}
	}
}
