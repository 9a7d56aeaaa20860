package capture

import (
	"encoding/json"
	"sync"
	"time"
)

type Entry struct {
	ID         string          `json:"id"`
	Time       time.Time       `json:"time"`
	Method     string          `json:"method"`
	Path       string          `json:"path"`
	Status     int             `json:"status"`
	Model      string          `json:"model,omitempty"`
	Stream     bool            `json:"stream"`
	DurationMS int64           `json:"duration_ms"`
	Normalized bool            `json:"normalized"`
	Source     string          `json:"source,omitempty"`
	Content    string          `json:"content,omitempty"`
	Request    json.RawMessage `json:"request,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
}

type Ring struct {
	entries     []*Entry
	capacity    int
	subscribers map[string]chan *Entry
	mu          sync.RWMutex
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring{
		capacity:    capacity,
		subscribers: make(map[string]chan *Entry),
	}
}

func (r *Ring) Add(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, e)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}

	for _, ch := range r.subscribers {
		// A stalled watcher must not hold up the proxy path.
		select {
		case ch <- e:
		default:
		}
	}
}

func (r *Ring) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns everything retained.
func (r *Ring) List(limit int) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.entries)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]*Entry, n)
	for i := 0; i < n; i++ {
		out[i] = r.entries[len(r.entries)-1-i]
	}
	return out
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Ring) Subscribe(id string) chan *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan *Entry, 100)
	r.subscribers[id] = ch
	return ch
}

func (r *Ring) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.subscribers[id]; ok {
		close(ch)
		delete(r.subscribers, id)
	}
}
