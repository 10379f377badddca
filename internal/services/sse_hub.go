package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

// SSEHub fans activity entries out to Server-Sent Events subscribers.
// Subscriptions are keyed "tenant:<id>" or "<entity_type>:<entity_id>".
type SSEHub struct {
	clients map[string]map[chan []byte]bool
	mu      sync.RWMutex
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]map[chan []byte]bool),
	}
}

func hubKey(scope, id string) string {
	return fmt.Sprintf("%s:%s", scope, id)
}

// RegisterClient subscribes a new client to a scope
func (h *SSEHub) RegisterClient(scope, id string) chan []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := hubKey(scope, id)
	clientChan := make(chan []byte, 10)
	if h.clients[key] == nil {
		h.clients[key] = make(map[chan []byte]bool)
	}
	h.clients[key][clientChan] = true

	logrus.Debugf("SSE client registered for %s (total clients: %d)", key, len(h.clients[key]))
	return clientChan
}

// UnregisterClient removes a client and closes its channel
func (h *SSEHub) UnregisterClient(scope, id string, clientChan chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := hubKey(scope, id)
	if h.clients[key] == nil {
		return
	}
	if _, ok := h.clients[key][clientChan]; !ok {
		return
	}
	delete(h.clients[key], clientChan)
	close(clientChan)
	if len(h.clients[key]) == 0 {
		delete(h.clients, key)
	}
	logrus.Debugf("SSE client unregistered for %s", key)
}

// BroadcastLog delivers an entry to its tenant and entity subscribers
func (h *SSEHub) BroadcastLog(log *models.ProcessLog) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	logJSON, err := json.Marshal(log)
	if err != nil {
		logrus.Errorf("Failed to marshal log for SSE: %v", err)
		return
	}
	message := []byte(fmt.Sprintf("event: activity\ndata: %s\n\n", string(logJSON)))

	h.sendLocked(hubKey("tenant", log.TenantID), message)
	h.sendLocked(hubKey(log.EntityType, log.EntityID), message)
}

func (h *SSEHub) sendLocked(key string, message []byte) {
	for clientChan := range h.clients[key] {
		select {
		case clientChan <- message:
		default:
			logrus.Warnf("SSE client channel full, skipping: %s", key)
		}
	}
}

// ClientCount returns the number of subscribers of a scope
func (h *SSEHub) ClientCount(scope, id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[hubKey(scope, id)])
}

// Heartbeat returns an SSE comment line that keeps idle connections open
func Heartbeat(now time.Time) []byte {
	return []byte(fmt.Sprintf(": heartbeat %s\n\n", now.Format(time.RFC3339)))
}
