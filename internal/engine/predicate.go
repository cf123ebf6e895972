package engine

// TriState is the tri-valued result of evaluating a predicate against a
// row, per spec Design Notes §9: "the executor only needs an
// Evaluate(tuple) -> tri-valued capability".
type TriState uint8

const (
	Unknown TriState = iota
	True
	False
)

func (t TriState) Matches() bool { return t == True }

// Predicate is the capability the hybrid scan executor consumes to
// filter rows on both the index and sequential sides (spec §4.5.1,
// §4.5.2). A nil Predicate always matches.
type Predicate interface {
	Evaluate(row []any) TriState
}

// CompareOp enumerates the comparison operators a Comparison predicate
// supports.
type CompareOp int

const (
	OpEQ CompareOp = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
)

// Comparison evaluates one column of a row against a literal value.
type Comparison struct {
	Column int
	Op     CompareOp
	Value  any
	Less   func(a, b any) int // three-way compare, same convention as compareValue
}

func (c *Comparison) Evaluate(row []any) TriState {
	if c.Column < 0 || c.Column >= len(row) {
		return Unknown
	}
	if row[c.Column] == nil {
		return Unknown
	}
	cmp := c.Less(row[c.Column], c.Value)
	var ok bool
	switch c.Op {
	case OpEQ:
		ok = cmp == 0
	case OpNE:
		ok = cmp != 0
	case OpLT:
		ok = cmp < 0
	case OpLE:
		ok = cmp <= 0
	case OpGT:
		ok = cmp > 0
	case OpGE:
		ok = cmp >= 0
	}
	if ok {
		return True
	}
	return False
}

// Conjunction is the flattened AND-of-comparisons variant named in spec
// Design Notes §9. Unknown propagates the way SQL NULL does: an
// unresolved term can't prove the whole conjunction false, so the result
// is Unknown unless some other term is already definitively False.
type Conjunction struct {
	Terms []Predicate
}

func (c *Conjunction) Evaluate(row []any) TriState {
	sawUnknown := false
	for _, term := range c.Terms {
		switch term.Evaluate(row) {
		case False:
			return False
		case Unknown:
			sawUnknown = true
		}
	}
	if sawUnknown {
		return Unknown
	}
	return True
}

// evaluate treats a nil predicate as always matching, the convention the
// hybrid scan executor relies on throughout.
func evaluate(p Predicate, row []any) TriState {
	if p == nil {
		return True
	}
	return p.Evaluate(row)
}
