package relay

import (
	"strconv"
	"sync/atomic"
)

// ID identifies a peer connection for its whole lifetime.
type ID uint64

// NoPeer never names a real peer. Broadcast with NoPeer excludes nobody.
const NoPeer ID = 0

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// idGen hands out peer ids in accept order. It is shared by every accept, so
// all operations are atomic.
type idGen struct {
	val atomic.Uint64
}

// next returns the next id (monotonically increasing from 1).
func (g *idGen) next() ID {
	return ID(g.val.Add(1))
}
