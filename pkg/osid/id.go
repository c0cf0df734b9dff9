// Package osid implements the operation identifier and rolling state hash
// described by the replication protocol: Id = (author UUID, index), and a
// BLAKE2b-256 commitment chained over every applied Id.
package osid

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Id names an operation within the global log: the peer that authored it
// plus a per-author monotonically increasing index.
type Id struct {
	Author uuid.UUID
	Index  uint64
}

// Zero is the sentinel root of the log: a nil-UUID author at index 0.
var Zero = Id{Author: uuid.UUID{}, Index: 0}

// New builds an Id.
func New(author uuid.UUID, index uint64) Id {
	return Id{Author: author, Index: index}
}

// Compare orders Ids by author first, then by index. It returns -1, 0, or 1.
func Compare(a, b Id) int {
	if c := bytes.Compare(a.Author[:], b.Author[:]); c != 0 {
		return c
	}
	switch {
	case a.Index < b.Index:
		return -1
	case a.Index > b.Index:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b.
func Less(a, b Id) bool { return Compare(a, b) < 0 }

// Equal reports whether a and b name the same operation.
func Equal(a, b Id) bool { return a.Author == b.Author && a.Index == b.Index }

func (id Id) String() string {
	return fmt.Sprintf("%s:%d", id.Author, id.Index)
}

// Hash is a BLAKE2b-256 rolling state-hash commitment.
type Hash [32]byte

// ZeroHash is the commitment before any operation has been applied.
var ZeroHash Hash

func (h Hash) String() string {
	return fmt.Sprintf("%x", [32]byte(h))
}

// NextHash advances the rolling state hash by one applied Id:
//
//	H_{n+1} = BLAKE2b-256(H_n ‖ author(16 bytes) ‖ index_u64_be(8 bytes))
//
// Two peers that applied the same multiset of ops in the same canonical
// (Id-sorted) order converge to the same Hash.
func NextHash(prev Hash, id Id) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only errors for an oversized key, and we pass nil.
		panic(fmt.Sprintf("osid: blake2b.New256: %v", err))
	}
	h.Write(prev[:])
	h.Write(id.Author[:])
	var idxBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], id.Index)
	h.Write(idxBuf[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// FoldHashes applies NextHash for each id in order, starting from start.
func FoldHashes(start Hash, ids []Id) Hash {
	cur := start
	for _, id := range ids {
		cur = NextHash(cur, id)
	}
	return cur
}

// LatestIndexes tracks, per author, the highest index seen.
type LatestIndexes map[uuid.UUID]uint64

// Clone returns a deep copy.
func (li LatestIndexes) Clone() LatestIndexes {
	out := make(LatestIndexes, len(li))
	for k, v := range li {
		out[k] = v
	}
	return out
}

// Observe records id, updating the author's latest index if id.Index is
// greater than what's currently recorded.
func (li LatestIndexes) Observe(id Id) {
	if cur, ok := li[id.Author]; !ok || id.Index > cur {
		li[id.Author] = id.Index
	}
}

// Max returns the maximum index across all authors, or 0 if li is empty.
func (li LatestIndexes) Max() uint64 {
	var max uint64
	for _, v := range li {
		if v > max {
			max = v
		}
	}
	return max
}
