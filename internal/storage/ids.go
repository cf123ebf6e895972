package storage

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// TableID and DatabaseID are process-wide unique identifiers minted once
// at table-creation time (spec §3 "Table"). They are UUIDs rather than
// small integers because a single engine value may host many tables
// across many logical databases and callers should never have to worry
// about collisions across restarts-within-a-process, mirroring how the
// teacher's uuid_helpers.go uses google/uuid for externally-visible
// identifiers.
type TableID uuid.UUID

type DatabaseID uuid.UUID

func newTableID() TableID   { return TableID(uuid.New()) }
func newDatabaseID() DatabaseID { return DatabaseID(uuid.New()) }

func (id TableID) String() string    { return uuid.UUID(id).String() }
func (id DatabaseID) String() string { return uuid.UUID(id).String() }

// idGenerator holds the tile-group id allocator, one of the monotone
// counters named in spec §9 ("Design Notes: Global state"); next_txn_id
// and next_commit_cid live on MVCCManager. Both are atomically updated
// fields reached from the Engine value rather than package-level
// singletons, so multiple Engine instances never share counters.
type idGenerator struct {
	nextTileGroupID atomic.Uint64
}

func (g *idGenerator) allocateTileGroupID() TileGroupID {
	return TileGroupID(g.nextTileGroupID.Add(1))
}
