package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/restq/internal/ir"
)

// SequentialIDs generates predictable ids for tests.
//
// uuid fields get 00000000-0000-0000-0000-00000000000N and string fields
// get <prefix>-N, where N counts up from 1 across all fields. Integer ids
// are left to the database.
//
// This enables golden comparison of created records: the same scenario
// with a fresh SequentialIDs produces identical ids.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialIDs creates a generator. If prefix is empty, string ids use
// "test-id".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "test-id"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate implements store.IDGenerator.
func (g *SequentialIDs) Generate(f ir.FieldSpec) (any, error) {
	switch f.Type {
	case ir.TypeInt:
		return nil, nil
	case ir.TypeUUID:
		return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.next()), nil
	case ir.TypeString:
		return fmt.Sprintf("%s-%d", g.prefix, g.next()), nil
	default:
		return nil, fmt.Errorf("cannot generate ids of type %s for field %q", f.Type, f.Name)
	}
}

func (g *SequentialIDs) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return g.seq
}

// Current returns the last number handed out without advancing.
func (g *SequentialIDs) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset starts the sequence over. The next id is number 1 again.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
