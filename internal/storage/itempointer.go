package storage

import "fmt"

// TileGroupID uniquely and monotonically identifies a tile group (spec
// §3). IDs are never reused.
type TileGroupID uint64

// InvalidTileGroupID is the sentinel used by a null ItemPointer.
const InvalidTileGroupID TileGroupID = 0

// ItemPointer names a slot within a tile group: (block, offset). It is
// the currency of every inter-component reference in the core (spec §3).
// Equality and ordering are lexicographic on (Block, Offset).
type ItemPointer struct {
	Block  TileGroupID
	Offset uint32
}

// NullItemPointer is the distinguished "no pointer" value.
var NullItemPointer = ItemPointer{Block: InvalidTileGroupID, Offset: ^uint32(0)}

// IsNull reports whether ip is the null sentinel.
func (ip ItemPointer) IsNull() bool { return ip == NullItemPointer }

// Less implements the lexicographic ordering required by spec §3.
func (ip ItemPointer) Less(other ItemPointer) bool {
	if ip.Block != other.Block {
		return ip.Block < other.Block
	}
	return ip.Offset < other.Offset
}

func (ip ItemPointer) String() string {
	if ip.IsNull() {
		return "<nil>"
	}
	return fmt.Sprintf("(%d,%d)", ip.Block, ip.Offset)
}
