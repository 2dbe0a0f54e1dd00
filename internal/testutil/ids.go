package testutil

import (
	"encoding/binary"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// SequentialIDs hands out predictable ObjectIDs for tests.
//
// The n-th call to Next returns the ObjectID whose 12 bytes are n in
// big-endian order, so the first id is 000000000000000000000001. Scenarios
// and golden files can name inserted documents without seeding them.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu  sync.Mutex
	seq uint64
}

// NewSequentialIDs creates a sequence starting at 0.
//
// The first call to Next() returns id 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// Next increments the sequence and returns its ObjectID.
func (s *SequentialIDs) Next() bson.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return SequenceID(s.seq)
}

// Current returns the number of ids handed out.
func (s *SequentialIDs) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset restarts the sequence. After Reset(), Next() returns id 1 again.
func (s *SequentialIDs) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
}

// SequenceID returns the ObjectID SequentialIDs yields for n.
func SequenceID(n uint64) bson.ObjectID {
	var id bson.ObjectID
	binary.BigEndian.PutUint64(id[4:], n)
	return id
}
