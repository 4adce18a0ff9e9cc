package occupancy

import (
	"sync"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// Hub fans occupancy states out to subscribers. Each subscriber holds at most
// the latest state, so a slow reader skips intermediate values instead of
// blocking writers.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	latest map[string]domain.OccupancyState
}

type subscriber struct {
	ch chan domain.OccupancyState
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		latest: make(map[string]domain.OccupancyState),
	}
}

// Publish delivers st to subscribers of its location. States not newer than
// the last published one are dropped.
func (h *Hub) Publish(st domain.OccupancyState) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.latest[st.LocationID]; ok && st.Version <= prev.Version {
		return false
	}
	h.latest[st.LocationID] = st

	for sub := range h.subs[st.LocationID] {
		// Replace any undelivered value with the newer one.
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- st
	}
	return true
}

// Subscribe registers a subscriber for locationID, primed with the latest
// known state. The returned cancel func unregisters it and closes the channel.
func (h *Hub) Subscribe(locationID string) (<-chan domain.OccupancyState, func()) {
	sub := &subscriber{ch: make(chan domain.OccupancyState, 1)}

	h.mu.Lock()
	if h.subs[locationID] == nil {
		h.subs[locationID] = make(map[*subscriber]struct{})
	}
	h.subs[locationID][sub] = struct{}{}
	if st, ok := h.latest[locationID]; ok {
		sub.ch <- st
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[locationID], sub)
			if len(h.subs[locationID]) == 0 {
				delete(h.subs, locationID)
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Subscribers returns the number of subscribers for locationID.
func (h *Hub) Subscribers(locationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[locationID])
}
