package engine

import "github.com/cmu-db/peloton-sub028/internal/storage"

// ScanMode selects which side(s) of the hybrid scan executor run (spec
// §4.5).
type ScanMode int

const (
	ModeSeq ScanMode = iota
	ModeIndex
	ModeHybrid
)

func (m ScanMode) String() string {
	switch m {
	case ModeSeq:
		return "SEQ"
	case ModeIndex:
		return "INDEX"
	case ModeHybrid:
		return "HYBRID"
	default:
		return "UNKNOWN"
	}
}

// KeyDescriptor carries the index-side lookup bounds (spec §4.5 "Input")
// as two whole encoded keys. Nil Hi means a point lookup (ScanKey); both
// Lo and Hi set means an inclusive range scan in ascending key order. It
// carries no per-column comparators and no scan direction.
type KeyDescriptor struct {
	Lo, Hi storage.Key
}

// HybridScanPlan is the query-API plan node of spec §6: "construct a
// plan node HybridScanPlan{table, predicate?, index?, projection,
// key_desc?, mode}".
type HybridScanPlan struct {
	Table      *storage.Table
	Predicate  Predicate
	Index      storage.Index
	Projection []ColumnDescriptor
	KeyDesc    *KeyDescriptor
	Mode       ScanMode
}
