package store

import (
	"fmt"

	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/roach88/restq/internal/ir"
)

// IDGenerator assigns ids to created records that arrive without one.
//
// Generate returns nil when the database assigns the id itself (integer
// ids are autoincremented).
type IDGenerator interface {
	Generate(f ir.FieldSpec) (any, error)
}

// NanoIDAlphabet is the character set used for string ids.
var NanoIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NanoIDLength is the number of characters in a string id.
var NanoIDLength = 16

// DefaultIDs generates time-sortable UUIDv7 strings for uuid ids and
// URL-safe nanoid strings for string ids.
//
// Thread-safety: DefaultIDs is stateless and safe for concurrent use.
type DefaultIDs struct{}

// Generate implements IDGenerator.
func (DefaultIDs) Generate(f ir.FieldSpec) (any, error) {
	switch f.Type {
	case ir.TypeInt:
		return nil, nil
	case ir.TypeUUID:
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate uuid: %w", err)
		}
		return id.String(), nil
	case ir.TypeString:
		id, err := nanoid.Generate(NanoIDAlphabet, NanoIDLength)
		if err != nil {
			return nil, fmt.Errorf("generate nanoid: %w", err)
		}
		return id, nil
	default:
		return nil, fmt.Errorf("cannot generate ids of type %s for field %q", f.Type, f.Name)
	}
}
