package realtime

import (
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"
)

func drain(sub *subscriber) []SnapshotEvent {
	var events []SnapshotEvent
	for {
		select {
		case event := <-sub.send:
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestBroadcastProjectsPerSubscriber(t *testing.T) {
	hub := NewHub()
	key := docKey{"talent", "talent_1"}

	owner := newSubscriber("user_owner", sendBuffer)
	guest := newSubscriber("user_guest", sendBuffer)
	hub.add(key, owner)
	hub.add(key, guest)

	hub.Broadcast("talent", "talent_1", 3, func(userID string) map[string]any {
		return map[string]any{"for": userID}
	})

	ownerEvents := drain(owner)
	assert.Equal(t, len(ownerEvents), 1)
	assert.Equal(t, ownerEvents[0].Version, int64(3))
	assert.Equal(t, ownerEvents[0].View["for"], "user_owner")

	guestEvents := drain(guest)
	assert.Equal(t, len(guestEvents), 1)
	assert.Equal(t, guestEvents[0].View["for"], "user_guest")
}

func TestBroadcastIgnoresOtherDocuments(t *testing.T) {
	hub := NewHub()
	sub := newSubscriber("user_a", sendBuffer)
	hub.add(docKey{"talent", "talent_1"}, sub)

	hub.Broadcast("talent", "talent_2", 1, func(string) map[string]any { return nil })
	hub.Broadcast("company", "talent_1", 1, func(string) map[string]any { return nil })

	assert.Equal(t, len(drain(sub)), 0)
}

func TestSlowSubscriberDropped(t *testing.T) {
	hub := NewHub()
	key := docKey{"talent", "talent_1"}
	sub := newSubscriber("user_a", 1)
	hub.add(key, sub)

	hub.Broadcast("talent", "talent_1", 1, func(string) map[string]any { return nil })
	assert.Equal(t, hub.SubscriberCount("talent", "talent_1"), 1)

	// buffer full now, next broadcast evicts
	hub.Broadcast("talent", "talent_1", 2, func(string) map[string]any { return nil })
	assert.Equal(t, hub.SubscriberCount("talent", "talent_1"), 0)
}

func TestRemoveSignalsDoneOnce(t *testing.T) {
	hub := NewHub()
	key := docKey{"talent", "talent_1"}
	sub := newSubscriber("user_a", 1)
	hub.add(key, sub)

	hub.remove(key, sub)
	hub.remove(key, sub)

	select {
	case <-sub.done:
	default:
		t.Fatal("done not signalled after remove")
	}
	assert.Equal(t, hub.SubscriberCount("talent", "talent_1"), 0)

	// a removed subscriber's send channel stays open, a racing broadcast
	// may still be sending on it
	select {
	case _, open := <-sub.send:
		if !open {
			t.Fatal("send channel closed")
		}
	default:
	}
}

func TestBroadcastSkipsRemovedSubscriber(t *testing.T) {
	hub := NewHub()
	key := docKey{"talent", "talent_1"}
	sub := newSubscriber("user_a", 1)
	hub.add(key, sub)
	// fill the buffer so a naive broadcast would block or evict
	sub.send <- SnapshotEvent{}
	hub.remove(key, sub)

	hub.Broadcast("talent", "talent_1", 1, func(string) map[string]any { return nil })
}

func TestConcurrentBroadcastAndDisconnect(t *testing.T) {
	hub := NewHub()
	key := docKey{"talent", "talent_1"}

	for i := 0; i < 500; i++ {
		sub := newSubscriber("user_a", 1)
		hub.add(key, sub)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			// two broadcasts: the second one hits a full buffer and
			// races the concurrent remove
			hub.Broadcast("talent", "talent_1", 1, func(string) map[string]any { return nil })
			hub.Broadcast("talent", "talent_1", 2, func(string) map[string]any { return nil })
		}()
		go func() {
			defer wg.Done()
			hub.remove(key, sub)
		}()
		wg.Wait()
	}
	assert.Equal(t, hub.SubscriberCount("talent", "talent_1"), 0)
}
