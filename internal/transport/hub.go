package transport

import (
	"sync"

	"github.com/arashov/collabedit/internal/wire"
)

// Hub tracks connected clients and their per-document subscriptions, and
// fans out broadcasts with the backpressure policy spec.md §4.5 requires:
// edit messages never drop a subscriber's place in line — a subscriber
// whose buffer is full is disconnected instead — while presence messages
// are simply dropped for a saturated subscriber (head-of-line drop),
// since a stale cursor position is harmless and a fresher one will follow.
type Hub struct {
	mu sync.RWMutex

	clients   map[string]*Client
	documents map[string]map[string]struct{} // docID -> set of client IDs

	onDisconnect func(client *Client)
}

// NewHub creates an empty hub. onDisconnect, if non-nil, is invoked
// (outside the hub's lock) whenever Broadcast disconnects a slow
// subscriber, so the caller can release its session registry entry.
func NewHub(onDisconnect func(client *Client)) *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		documents:    make(map[string]map[string]struct{}),
		onDisconnect: onDisconnect,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
}

// Unregister removes a client from the hub and any document subscription.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromDocumentLocked(client)
	delete(h.clients, client.ID)
}

func (h *Hub) removeFromDocumentLocked(client *Client) {
	docID := client.DocID()
	if docID == "" {
		return
	}

	if clients, ok := h.documents[docID]; ok {
		delete(clients, client.ID)

		if len(clients) == 0 {
			delete(h.documents, docID)
		}
	}
}

// Subscribe moves client onto docID's broadcast list, leaving any previous
// document subscription.
func (h *Hub) Subscribe(client *Client, docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old := client.DocID(); old != "" && old != docID {
		h.removeFromDocumentLocked(client)
	}

	if h.documents[docID] == nil {
		h.documents[docID] = make(map[string]struct{})
	}

	h.documents[docID][client.ID] = struct{}{}
	client.SetDocID(docID)
}

// Unsubscribe removes client from docID's broadcast list.
func (h *Hub) Unsubscribe(client *Client, docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.documents[docID]; ok {
		delete(clients, client.ID)

		if len(clients) == 0 {
			delete(h.documents, docID)
		}
	}

	if client.DocID() == docID {
		client.SetDocID("")
	}
}

// Broadcast delivers env to every client subscribed to docID except
// excludeClientID. Edit-kind envelopes that cannot be enqueued (a
// saturated subscriber) cause that subscriber to be disconnected;
// presence-kind envelopes are silently dropped for that subscriber
// instead.
func (h *Hub) Broadcast(docID string, env wire.Envelope, excludeClientID string) {
	h.mu.RLock()
	clientIDs := make([]string, 0, len(h.documents[docID]))
	for id := range h.documents[docID] {
		clientIDs = append(clientIDs, id)
	}

	targets := make([]*Client, 0, len(clientIDs))

	for _, id := range clientIDs {
		if id == excludeClientID {
			continue
		}

		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var toDisconnect []*Client

	for _, c := range targets {
		if c.TrySend(env) {
			continue
		}

		if env.Type.IsPresence() {
			continue
		}

		toDisconnect = append(toDisconnect, c)
	}

	for _, c := range toDisconnect {
		h.Unregister(c)
		_ = c.Close()

		if h.onDisconnect != nil {
			h.onDisconnect(c)
		}
	}
}

// Send delivers env to a single client by id, regardless of document
// subscription (used for ACK/NACK/sync replies to the originator).
func (h *Hub) Send(clientID string, env wire.Envelope) bool {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()

	if !ok {
		return false
	}

	return c.TrySend(env)
}

// ClientCount returns how many clients currently subscribe to docID.
func (h *Hub) ClientCount(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.documents[docID])
}

// TotalClients returns the total number of registered clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
