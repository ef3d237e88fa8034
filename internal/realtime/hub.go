// Package realtime fans committed snapshots out to websocket subscribers.
// Each subscriber is a (document, user) pair; the hub delivers the view
// already projected for that user, so nothing private ever reaches the wire.
package realtime

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	// sendBuffer bounds per-subscriber backlog; a subscriber that cannot
	// keep up is dropped rather than blocking the broadcast.
	sendBuffer = 16
)

// SnapshotEvent is one committed change as delivered to a subscriber.
type SnapshotEvent struct {
	DocType string         `json:"docType"`
	DocID   string         `json:"docId"`
	Version int64          `json:"version"`
	View    map[string]any `json:"view"`
}

type subscriber struct {
	userID string
	send   chan SnapshotEvent
	// done is closed by remove, under the hub lock, exactly once. send is
	// never closed: Broadcast may be sending on it after it released the
	// lock, and a close in that window would panic the process.
	done chan struct{}
}

func newSubscriber(userID string, buffer int) *subscriber {
	return &subscriber{
		userID: userID,
		send:   make(chan SnapshotEvent, buffer),
		done:   make(chan struct{}),
	}
}

type docKey struct {
	docType string
	docID   string
}

// Hub tracks subscribers per document.
type Hub struct {
	mu   sync.Mutex
	subs map[docKey]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[docKey]map[*subscriber]struct{})}
}

// Broadcast delivers a committed snapshot. project renders the view for one
// subscriber's user id; it runs per subscriber so every client receives its
// own filtered rendering.
func (h *Hub) Broadcast(docType, docID string, version int64, project func(userID string) map[string]any) {
	key := docKey{docType, docID}

	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subs[key]))
	for sub := range h.subs[key] {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		event := SnapshotEvent{
			DocType: docType,
			DocID:   docID,
			Version: version,
			View:    project(sub.userID),
		}
		select {
		case sub.send <- event:
		case <-sub.done:
		default:
			log.Printf("realtime: dropping slow subscriber for %s/%s", docType, docID)
			h.remove(key, sub)
		}
	}
}

// SubscriberCount reports how many clients watch a document.
func (h *Hub) SubscriberCount(docType, docID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[docKey{docType, docID}])
}

func (h *Hub) add(key docKey, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*subscriber]struct{})
	}
	h.subs[key][sub] = struct{}{}
}

func (h *Hub) remove(key docKey, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[key]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			close(sub.done)
			if len(set) == 0 {
				delete(h.subs, key)
			}
		}
	}
}

// Serve pumps snapshot events for one websocket connection until the client
// disconnects. It owns the connection: all writes happen here, reads are
// drained only to detect disconnect.
func (h *Hub) Serve(conn *websocket.Conn, docType, docID, userID string) {
	key := docKey{docType, docID}
	sub := newSubscriber(userID, sendBuffer)
	h.add(key, sub)
	defer h.remove(key, sub)
	defer conn.Close()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case event := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				// a websocket deadline timeout cannot be recovered
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.done:
			return
		case <-readDone:
			return
		}
	}
}
