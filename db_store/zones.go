package db_store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx/types"
)

// Zone is a no-fly/advisory area. Geometry holds the GeoJSON as it was
// imported, usually a whole Feature.
type Zone struct {
	Id       int64          `db:"id"`
	Name     string         `db:"name"`
	ZoneType string         `db:"zone_type"`
	Geometry types.JSONText `db:"geometry"`
}

func (zone *Zone) String() string {
	return zone.Name
}

const (
	zoneColumns       = "id,name,zone_type,geometry"
	zoneInsertColumns = "name,zone_type,geometry"
)

func (st *SkylogDBStore) GetAllZones(ctx context.Context) ([]*Zone, error) {
	const query = "SELECT " + zoneColumns + " FROM zones ORDER BY id ASC"
	return queryAll[Zone](ctx, st.db, query)
}

// GetZoneByID returns nil, nil when the zone does not exist.
func (st *SkylogDBStore) GetZoneByID(ctx context.Context, zoneId int64) (*Zone, error) {
	const query = "SELECT " + zoneColumns + " FROM zones WHERE id=?"

	row := st.db.QueryRowxContext(ctx, query, zoneId)

	var zone Zone

	if err := row.StructScan(&zone); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &zone, nil
}

func (st *SkylogDBStore) InsertZone(ctx context.Context, zone *Zone) (int64, error) {
	const query = "INSERT INTO zones (" + zoneInsertColumns + ") VALUES (:name,:zone_type,:geometry)"

	res, err := st.db.NamedExecContext(ctx, query, zone)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	zone.Id = id
	return id, nil
}

func (st *SkylogDBStore) UpdateZone(ctx context.Context, zone *Zone) error {
	const query = "UPDATE zones SET name=:name,zone_type=:zone_type,geometry=:geometry WHERE id=:id"

	_, err := st.db.NamedExecContext(ctx, query, zone)
	return err
}

func (st *SkylogDBStore) DeleteZone(ctx context.Context, zoneId int64) (bool, error) {
	const query = "DELETE FROM zones WHERE id=?"

	res, err := st.db.ExecContext(ctx, query, zoneId)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteAllZones empties the zones table and returns how many were removed.
func (st *SkylogDBStore) DeleteAllZones(ctx context.Context) (int64, error) {
	res, err := st.db.ExecContext(ctx, "DELETE FROM zones")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (st *SkylogDBStore) CountZones(ctx context.Context) (int64, error) {
	var count int64
	err := st.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM zones")
	return count, err
}
