package engine

import "github.com/cmu-db/peloton-sub028/internal/storage"

// ColumnDescriptor names one projected column by its position in the
// table's schema.
type ColumnDescriptor struct {
	Name  string
	Index int
}

// LogicalTile is the hybrid scan executor's output unit (spec §6
// "Logical tile format (emitted)"): a shape
// {columns, position_lists, visibility_bitmap}. Consumers read by
// (column, row) where row indexes into one position list; here each
// position list groups the slots of one physical tile group, so
// PositionLists[i] and VisibilityBitmap[i] share the tile group at
// TileGroups[i].
type LogicalTile struct {
	Columns      []ColumnDescriptor
	TileGroups   []storage.TileGroupID
	PositionLists [][]int
	VisibilityBitmap [][]bool
	tables       map[storage.TileGroupID]*storage.TileGroup
}

// newLogicalTile builds an empty tile over the given projected columns.
func newLogicalTile(cols []ColumnDescriptor) *LogicalTile {
	return &LogicalTile{
		Columns: cols,
		tables:  make(map[storage.TileGroupID]*storage.TileGroup),
	}
}

// addGroup appends one tile group's worth of visible positions.
func (lt *LogicalTile) addGroup(tg *storage.TileGroup, positions []int) {
	if len(positions) == 0 {
		return
	}
	vis := make([]bool, len(positions))
	for i := range vis {
		vis[i] = true
	}
	lt.TileGroups = append(lt.TileGroups, tg.ID)
	lt.PositionLists = append(lt.PositionLists, positions)
	lt.VisibilityBitmap = append(lt.VisibilityBitmap, vis)
	lt.tables[tg.ID] = tg
}

// Empty reports whether this tile carries no rows at all, used by the
// executor to skip empty tiles while draining the index-side buffer
// (spec §4.5 execution loop step 2: "skipping empty tiles").
func (lt *LogicalTile) Empty() bool {
	for _, p := range lt.PositionLists {
		if len(p) > 0 {
			return false
		}
	}
	return true
}

// RowCount returns the total number of rows across every group in the
// tile.
func (lt *LogicalTile) RowCount() int {
	n := 0
	for _, p := range lt.PositionLists {
		n += len(p)
	}
	return n
}

// Value returns the value of the projected column at position col, for
// group index group and row index row within that group's position list.
func (lt *LogicalTile) Value(group, row, col int) any {
	tg := lt.tables[lt.TileGroups[group]]
	slot := lt.PositionLists[group][row]
	return tg.Value(slot, lt.Columns[col].Index)
}
