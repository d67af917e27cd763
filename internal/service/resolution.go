package service

import (
	"fmt"

	"github.com/roach88/restq/internal/errs"
	"github.com/roach88/restq/internal/query"
	"github.com/roach88/restq/internal/queryir"
)

// IdentityResolution is how a call locates the records it acts on.
type IdentityResolution int

const (
	// Bulk: no id; the call acts on every record matching the filter.
	Bulk IdentityResolution = iota

	// Direct: the filter is exactly "id equals x" and is used as is.
	Direct

	// ScanThenConfirm: the filter constrains more than a plain id. The
	// first match is located under the full filter and the call then acts
	// on that record by its exact id.
	ScanThenConfirm
)

func (r IdentityResolution) String() string {
	switch r {
	case Bulk:
		return "bulk"
	case Direct:
		return "direct"
	case ScanThenConfirm:
		return "scan-then-confirm"
	default:
		return fmt.Sprintf("IdentityResolution(%d)", int(r))
	}
}

// Resolve picks the resolution for a call from its id and the compiled
// filter's diagnostics.
func Resolve(id any, d query.Diagnostics) IdentityResolution {
	switch {
	case id == nil:
		return Bulk
	case d.IDConstraintIsComplex || d.HasNonIDConstraints:
		return ScanThenConfirm
	default:
		return Direct
	}
}

// checkIDInQuery rejects an id whose query names a different literal id.
// No record can satisfy both, so the call fails before touching the store.
func checkIDInQuery(idField string, id any, q query.Object) error {
	if id == nil {
		return nil
	}
	v, ok := q[idField]
	if !ok || v == nil {
		return nil
	}
	if _, isObj := v.(query.Object); isObj {
		return nil
	}
	if _, isMap := queryir.AsMap(v); isMap {
		return nil
	}
	if _, isList := queryir.AsList(v); isList {
		return nil
	}
	if fmt.Sprint(v) == fmt.Sprint(id) {
		return nil
	}
	return errs.NotFound("No record found for %s '%v' and query.%s '%v'", idField, id, idField, v).
		With("id", id)
}

func notFound(idField string, id any) error {
	return errs.NotFound("No record found for %s '%v'", idField, id).With("id", id)
}
