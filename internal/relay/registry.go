package relay

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/1ureka/tunrelay/internal/util"
)

// RegistryError reports a lookup for a peer that is not registered.
type RegistryError struct {
	ID ID
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("peer %d not found", e.ID)
}

// Registry maintains the id → peer table. Every method holds the lock only
// for the map access; socket I/O never happens under it.
type Registry struct {
	mu    sync.Mutex
	peers map[ID]*Peer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[ID]*Peer),
	}
}

// Insert registers p under its id, replacing any previous entry.
func (r *Registry) Insert(p *Peer) {
	r.mu.Lock()
	r.peers[p.id] = p
	r.mu.Unlock()
}

// Remove deletes the peer and returns it if it was present.
func (r *Registry) Remove(id ID) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if ok {
		delete(r.peers, id)
	}
	return p, ok
}

// Get looks up a live peer.
func (r *Registry) Get(id ID) (*Peer, error) {
	r.mu.Lock()
	p, ok := r.peers[id]
	r.mu.Unlock()
	if !ok {
		return nil, &RegistryError{ID: id}
	}
	return p, nil
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Snapshot returns the registered peers ordered by id.
func (r *Registry) Snapshot() []*Peer {
	r.mu.Lock()
	peers := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.Unlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].id < peers[j].id })
	return peers
}

// LookupAddr finds the peer whose learned tunnel address is addr.
func (r *Registry) LookupAddr(addr netip.Addr) (ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.peers {
		if a, ok := p.Addr(); ok && a == addr {
			return id, true
		}
	}
	return NoPeer, false
}

// Broadcast queues frame on every peer except exclude and returns how many
// accepted it. A peer that refuses the frame is logged and skipped; it never
// holds up delivery to the others.
func (r *Registry) Broadcast(frame []byte, exclude ID) int {
	delivered := 0
	for _, p := range r.Snapshot() {
		if p.id == exclude {
			continue
		}
		if err := p.Send(frame); err != nil {
			util.Stats.AddDropped()
			if errors.Is(err, ErrOutboxFull) {
				util.LogDebug("[peer %d] outbox full, dropping packet", p.id)
			} else {
				util.LogDebug("[peer %d] send skipped: %v", p.id, err)
			}
			continue
		}
		delivered++
	}
	return delivered
}

// CloseAll drains every peer, waits for its goroutines and returns the
// combined socket close errors.
func (r *Registry) CloseAll() error {
	peers := r.Snapshot()
	for _, p := range peers {
		p.Shutdown()
	}

	var err error
	for _, p := range peers {
		p.Wait()
		err = multierr.Append(err, p.closeErr)
	}
	return err
}
