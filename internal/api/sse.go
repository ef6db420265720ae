package api

import "github.com/sirupsen/logrus"

type sseMessage struct {
	event string
	data  interface{}
}

func (h *HTTPHandler) registerSSEClient(userID string, ch chan sseMessage) {
	if h == nil || ch == nil || userID == "" {
		return
	}
	h.sseMu.Lock()
	defer h.sseMu.Unlock()

	if h.sseClients == nil {
		h.sseClients = make(map[string][]chan sseMessage)
	}
	h.sseClients[userID] = append(h.sseClients[userID], ch)
}

func (h *HTTPHandler) unregisterSSEClient(userID string, target chan sseMessage) {
	if h == nil || target == nil || userID == "" {
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

func (h *HTTPHandler) connectedUserIDs() []string {
	h.sseMu.Lock()
	defer h.sseMu.Unlock()

	ids := make([]string, 0, len(h.sseClients))
	for id := range h.sseClients {
		ids = append(ids, id)
	}
	return ids
}

func (h *HTTPHandler) publishSSEMessage(userID string, msg sseMessage) {
	if h == nil || userID == "" {
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
