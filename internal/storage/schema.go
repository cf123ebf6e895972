package storage

// ColType enumerates the column data types a tile group column array can
// hold. Trimmed from the teacher's much larger SQL-value ColType
// enumeration (internal/storage/db.go) down to the primitive types the
// core's columnar storage actually needs to carry; the SQL-level type
// system (JSON, vectors, decimals, …) belongs to the query layer that is
// out of scope here (spec §1).
type ColType int

const (
	IntType ColType = iota
	Int32Type
	Int64Type
	Float64Type
	StringType
	BoolType
	TimeType
)

var colTypeToString = map[ColType]string{
	IntType:     "INT",
	Int32Type:   "INT32",
	Int64Type:   "INT64",
	Float64Type: "FLOAT64",
	StringType:  "STRING",
	BoolType:    "BOOL",
	TimeType:    "TIME",
}

func (t ColType) String() string {
	if s, ok := colTypeToString[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Column describes one column of a table's schema: its name, declared
// type, and position. Tile groups store one typed array per column.
type Column struct {
	Name string
	Type ColType
}

// Schema is an ordered list of columns shared by every tile group in a
// table.
type Schema struct {
	Columns []Column
}

// ColIndex returns the position of a column by name, or -1.
func (s *Schema) ColIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}
