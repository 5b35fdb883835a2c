package relay

import (
	"math/rand"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idlePeer returns an Active peer with no goroutines running, so its outbox
// can be inspected directly.
func idlePeer(t *testing.T, id ID, outbox int) *Peer {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	p := newPeer(id, a, outbox, nil)
	p.state.Store(int32(StateActive))
	return p
}

func TestRegistryGetMissing(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get(7)

	var re *RegistryError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ID(7), re.ID)
	assert.Equal(t, "peer 7 not found", err.Error())
}

func TestRegistryInsertRemove(t *testing.T) {
	reg := NewRegistry()
	p := idlePeer(t, 1, 4)
	reg.Insert(p)

	got, err := reg.Get(1)
	require.NoError(t, err)
	assert.Same(t, p, got)

	removed, ok := reg.Remove(1)
	require.True(t, ok)
	assert.Same(t, p, removed)

	_, ok = reg.Remove(1)
	assert.False(t, ok, "second remove must report absence")
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryRandomInsertRemove(t *testing.T) {
	reg := NewRegistry()
	live := make(map[ID]bool)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		id := ID(rng.Intn(32) + 1)
		if rng.Intn(2) == 0 {
			reg.Insert(idlePeer(t, id, 1))
			live[id] = true
		} else {
			_, ok := reg.Remove(id)
			assert.Equal(t, live[id], ok)
			delete(live, id)
		}
		require.Equal(t, len(live), reg.Len())
	}

	snap := reg.Snapshot()
	require.Len(t, snap, len(live))
	for i, p := range snap {
		assert.True(t, live[p.ID()])
		if i > 0 {
			assert.Less(t, snap[i-1].ID(), p.ID(), "snapshot must be ordered by id")
		}
	}
}

func TestBroadcastExcludesOriginator(t *testing.T) {
	reg := NewRegistry()
	peers := []*Peer{idlePeer(t, 1, 4), idlePeer(t, 2, 4), idlePeer(t, 3, 4)}
	for _, p := range peers {
		reg.Insert(p)
	}

	frame := []byte("frame")
	assert.Equal(t, 2, reg.Broadcast(frame, 2))

	assert.Len(t, peers[0].outbox, 1)
	assert.Len(t, peers[1].outbox, 0)
	assert.Len(t, peers[2].outbox, 1)

	assert.Equal(t, 3, reg.Broadcast(frame, NoPeer))
}

func TestBroadcastSkipsFullAndClosedPeers(t *testing.T) {
	reg := NewRegistry()
	full := idlePeer(t, 1, 1)
	draining := idlePeer(t, 2, 4)
	healthy := idlePeer(t, 3, 4)
	for _, p := range []*Peer{full, draining, healthy} {
		reg.Insert(p)
	}

	require.NoError(t, full.Send([]byte("x")))
	draining.state.Store(int32(StateDraining))

	assert.ErrorIs(t, full.Send([]byte("y")), ErrOutboxFull)
	assert.ErrorIs(t, draining.Send([]byte("y")), ErrPeerClosed)

	assert.Equal(t, 1, reg.Broadcast([]byte("z"), NoPeer))
	assert.Len(t, healthy.outbox, 1)
}

func TestLookupAddr(t *testing.T) {
	reg := NewRegistry()
	p := idlePeer(t, 5, 1)
	reg.Insert(p)

	addr := netip.MustParseAddr("10.8.0.2")
	_, ok := reg.LookupAddr(addr)
	assert.False(t, ok)

	assert.True(t, p.learnAddr(addr))
	assert.False(t, p.learnAddr(netip.MustParseAddr("10.8.0.9")), "address is learned once")

	id, ok := reg.LookupAddr(addr)
	require.True(t, ok)
	assert.Equal(t, ID(5), id)
}

func TestIDGenMonotonic(t *testing.T) {
	var g idGen
	prev := NoPeer
	for i := 0; i < 100; i++ {
		id := g.next()
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
