package core

import (
	"sync"

	"github.com/olyamironova/exchange-sim/internal/domain"
)

// Subscription receives depth snapshots published after every submission.
type Subscription struct {
	C chan *domain.DepthSnapshot
}

type hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*Subscription]struct{})}
}

func (h *hub) subscribe(buffer int) *Subscription {
	sub := &Subscription{C: make(chan *domain.DepthSnapshot, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.C)
}

// broadcast never blocks: slow subscribers miss updates.
func (h *hub) broadcast(snap *domain.DepthSnapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.C <- snap:
		default:
		}
	}
}
