// Package broker holds the shared routing state of the pub/sub server: the
// subscriber registry partitioned by topic and session, the per-connection
// outbound queues registered in it, and the router that fans envelopes out.
package broker

import "sync"

// Subscription names one (topic, session) bucket.
type Subscription struct {
	Topic     string
	SessionID string
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Topics        int `json:"topics"`
	Buckets       int `json:"buckets"`
	Subscriptions int `json:"subscriptions"`
}

// Registry maps topic -> session -> ordered outboxes. It is safe for
// concurrent use; the lock is held only for map updates and slice copies,
// never while a frame is written to a socket.
//
// Empty session buckets and empty topics are deleted by the removal that
// empties them.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]map[string][]*Outbox
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[string]map[string][]*Outbox),
	}
}

// Subscribe adds the outbox to the (topic, sessionID) bucket. Subscribing an
// outbox that is already in the bucket is a no-op and reports false.
func (r *Registry) Subscribe(topic, sessionID string, o *Outbox) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.topics[topic]
	if sessions == nil {
		sessions = make(map[string][]*Outbox)
		r.topics[topic] = sessions
	}
	for _, existing := range sessions[sessionID] {
		if existing.ID() == o.ID() {
			return false
		}
	}
	sessions[sessionID] = append(sessions[sessionID], o)
	return true
}

// Unsubscribe removes the outbox from the (topic, sessionID) bucket and
// reports whether it was present. Removing an absent outbox is a no-op.
func (r *Registry) Unsubscribe(topic, sessionID string, o *Outbox) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(topic, sessionID, o)
}

// Release removes the outbox from every listed bucket under a single lock
// acquisition. It is used when a connection closes.
func (r *Registry) Release(o *Outbox, subs []Subscription) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, sub := range subs {
		if r.remove(sub.Topic, sub.SessionID, o) {
			removed++
		}
	}
	return removed
}

// remove must be called with r.mu held for writing.
func (r *Registry) remove(topic, sessionID string, o *Outbox) bool {
	sessions, ok := r.topics[topic]
	if !ok {
		return false
	}
	bucket, ok := sessions[sessionID]
	if !ok {
		return false
	}

	found := false
	kept := bucket[:0]
	for _, existing := range bucket {
		if existing.ID() == o.ID() {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	// Clear the tail so the backing array does not pin removed outboxes.
	for i := len(kept); i < len(bucket); i++ {
		bucket[i] = nil
	}

	if len(kept) == 0 {
		delete(sessions, sessionID)
	} else {
		sessions[sessionID] = kept
	}
	if len(sessions) == 0 {
		delete(r.topics, topic)
	}
	return found
}

// Route returns a copy of the outboxes subscribed to exactly (topic,
// sessionID). Subscribers of the same topic under other sessions are never
// included.
func (r *Registry) Route(topic, sessionID string) []*Outbox {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.topics[topic][sessionID]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]*Outbox, len(bucket))
	copy(out, bucket)
	return out
}

// Contains reports whether the outbox is in any bucket.
func (r *Registry) Contains(o *Outbox) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sessions := range r.topics {
		for _, bucket := range sessions {
			for _, existing := range bucket {
				if existing.ID() == o.ID() {
					return true
				}
			}
		}
	}
	return false
}

// Stats summarizes the registry.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s Stats
	s.Topics = len(r.topics)
	for _, sessions := range r.topics {
		s.Buckets += len(sessions)
		for _, bucket := range sessions {
			s.Subscriptions += len(bucket)
		}
	}
	return s
}
