package ingest

import (
	"context"

	"github.com/agentic-research/tarim/api"
)

// Source yields the raw nomenclature records of one run. Records come back
// in feed order; the same id may appear more than once.
type Source interface {
	// Records reads the whole feed. A feed that exists but holds no records
	// returns an empty slice and no error.
	Records(ctx context.Context) ([]api.RawRecord, error)

	// String names the source in logs and reports.
	String() string
}
