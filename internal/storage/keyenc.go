package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// KeySchema describes the ordered source columns (and their types) that
// make up an index key (spec §3 "Index" / §4.3).
type KeySchema struct {
	ColumnIndexes []int
	ColumnTypes   []ColType
}

// packedWords is the fixed word count of a PackedKey: 32 bytes / 8 bytes
// per word, matching spec §4.3's "columns ... totalling <= 32 bytes".
const packedWords = 4

// Key is the comparable, hashable representation an index stores. Two
// concrete variants exist (spec §4.3, Design Notes §9 "Polymorphism across
// key types"): PackedKey for small all-integer keys, and GenericKey for
// everything else. Both implement Key so index code can stay polymorphic.
type Key interface {
	// Less reports whether this key sorts before other. Only meaningful
	// when both keys share the same concrete type and schema.
	Less(other Key) bool
	// Equal reports key equality, used by hash indexes and duplicate
	// detection.
	Equal(other Key) bool
	// Bytes returns a canonical byte encoding, used as a map key for hash
	// indexes.
	Bytes() string
}

// PackedKey packs up to packedWords 64-bit words, each holding one
// byte-order-normalized column value, compared lexicographically over the
// words (spec §4.3). Chosen automatically whenever every key column is a
// small integer type and the total width fits.
type PackedKey struct {
	Words [packedWords]uint64
	Len   int // number of words actually in use
}

// CanPack reports whether every column type in schema is a small integer
// type eligible for packed encoding.
func CanPack(schema *KeySchema) bool {
	if len(schema.ColumnTypes) > packedWords {
		return false
	}
	for _, t := range schema.ColumnTypes {
		switch t {
		case IntType, Int32Type, Int64Type, BoolType:
		default:
			return false
		}
	}
	return true
}

// normalizeSigned biases a signed integer into an unsigned, order-preserving
// representation by flipping the sign bit, the standard trick for
// big-endian lexicographic comparison of signed integers.
func normalizeSigned(v int64) uint64 {
	return uint64(v) ^ (1 << 63)
}

// EncodePacked builds a PackedKey from already-typed column values, in
// schema column order.
func EncodePacked(schema *KeySchema, values []any) (PackedKey, error) {
	var pk PackedKey
	if len(values) != len(schema.ColumnTypes) {
		return pk, fmt.Errorf("keyenc: expected %d values, got %d", len(schema.ColumnTypes), len(values))
	}
	for i, v := range values {
		var word uint64
		switch schema.ColumnTypes[i] {
		case BoolType:
			b, _ := v.(bool)
			if b {
				word = 1
			}
		case IntType, Int32Type, Int64Type:
			word = normalizeSigned(toInt64(v))
		default:
			return pk, fmt.Errorf("keyenc: column type %v not packable", schema.ColumnTypes[i])
		}
		pk.Words[i] = word
	}
	pk.Len = len(values)
	return pk, nil
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	default:
		return 0
	}
}

func (k PackedKey) Less(other Key) bool {
	o, ok := other.(PackedKey)
	if !ok {
		return false
	}
	for i := 0; i < packedWords; i++ {
		if k.Words[i] != o.Words[i] {
			return k.Words[i] < o.Words[i]
		}
	}
	return false
}

func (k PackedKey) Equal(other Key) bool {
	o, ok := other.(PackedKey)
	return ok && k.Words == o.Words
}

func (k PackedKey) Bytes() string {
	buf := make([]byte, packedWords*8)
	for i, w := range k.Words {
		binary.BigEndian.PutUint64(buf[i*8:], w)
	}
	return string(buf)
}

// GenericKey holds the key's column values alongside a reference to the
// key schema; comparison dispatches per column through the schema (spec
// §4.3). Used whenever the key's columns don't all fit the packed
// integer representation (strings, floats, wide keys, …).
type GenericKey struct {
	Values []any
	Schema *KeySchema
}

func (k GenericKey) Less(other Key) bool {
	o, ok := other.(GenericKey)
	if !ok {
		return false
	}
	for i := range k.Schema.ColumnTypes {
		c := compareValue(k.Schema.ColumnTypes[i], k.Values[i], o.Values[i])
		if c != 0 {
			return c < 0
		}
	}
	return false
}

func (k GenericKey) Equal(other Key) bool {
	o, ok := other.(GenericKey)
	if !ok || len(k.Values) != len(o.Values) {
		return false
	}
	for i := range k.Schema.ColumnTypes {
		if compareValue(k.Schema.ColumnTypes[i], k.Values[i], o.Values[i]) != 0 {
			return false
		}
	}
	return true
}

func (k GenericKey) Bytes() string {
	var buf bytes.Buffer
	for i, t := range k.Schema.ColumnTypes {
		fmt.Fprintf(&buf, "%v:%v|", t, k.Values[i])
	}
	return buf.String()
}

// compareValue dispatches comparison per column type, per Design Notes §9
// "key comparison ... dispatch on the variant".
func compareValue(t ColType, a, b any) int {
	switch t {
	case IntType, Int32Type, Int64Type:
		av, bv := toInt64(a), toInt64(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case Float64Type:
		av, bv := toFloat64(a), toFloat64(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case BoolType:
		av, _ := a.(bool)
		bv, _ := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	default: // StringType, TimeType (stringified), etc.
		as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
		return bytes.Compare([]byte(as), []byte(bs))
	}
}

func toFloat64(v any) float64 {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return math.NaN()
	}
}

// BuildKey chooses the packed representation whenever the schema allows it,
// falling back to the generic one otherwise (spec §4.3: "This
// representation is chosen whenever applicable for speed").
func BuildKey(schema *KeySchema, values []any) (Key, error) {
	if CanPack(schema) {
		return EncodePacked(schema, values)
	}
	return GenericKey{Values: values, Schema: schema}, nil
}
