package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/querysql"
)

// scanRecords reads every row into a Record. The rows must carry the
// columns of querysql.Columns(m), in that order.
func scanRecords(rows *sql.Rows, m *ir.ModelSpec) ([]ir.Record, error) {
	names := querysql.Columns(m)
	raw := make([]any, len(names))
	dest := make([]any, len(names))
	for i := range raw {
		dest[i] = &raw[i]
	}

	records := []ir.Record{}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", m.Name, err)
		}
		rec := make(ir.Record, len(names))
		for i, name := range names {
			v, err := ir.FromStorage(m.Fields[name], raw[i])
			if err != nil {
				return nil, fmt.Errorf("scan %s: %w", m.Name, err)
			}
			rec[name] = v
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", m.Name, err)
	}
	return records, nil
}
