package db_store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx/types"
	"gopkg.in/guregu/null.v4"
)

type Flight struct {
	Id          int64              `db:"id"`
	Name        string             `db:"name"`
	DroneModel  string             `db:"drone_model"`
	Date        null.Time          `db:"date"`
	PathGeoJSON types.NullJSONText `db:"path_geojson"`
}

func (flight *Flight) String() string {
	return flight.Name
}

// HasPath is true when a path geometry is stored. NullJSONText keeps
// "{}" around when NULL, so Valid is what counts.
func (flight *Flight) HasPath() bool {
	return flight.PathGeoJSON.Valid && len(flight.PathGeoJSON.JSONText) > 0
}

const (
	flightColumns       = "id,name,drone_model,date,path_geojson"
	flightInsertColumns = "name,drone_model,date,path_geojson"
)

func (st *SkylogDBStore) GetAllFlights(ctx context.Context) ([]*Flight, error) {
	const query = "SELECT " + flightColumns + " FROM flights ORDER BY date DESC, id ASC"

	return queryAll[Flight](ctx, st.db, query)
}

// GetFlightByID returns nil, nil when the flight does not exist.
func (st *SkylogDBStore) GetFlightByID(ctx context.Context, flightId int64) (*Flight, error) {
	const query = "SELECT " + flightColumns + " FROM flights WHERE id=?"

	row := st.db.QueryRowxContext(ctx, query, flightId)

	var flight Flight

	if err := row.StructScan(&flight); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &flight, nil
}

// InsertFlight stores a new flight and sets its Id.
func (st *SkylogDBStore) InsertFlight(ctx context.Context, flight *Flight) (int64, error) {
	const query = "INSERT INTO flights (" + flightInsertColumns + ") VALUES (:name,:drone_model,:date,:path_geojson)"

	res, err := st.db.NamedExecContext(ctx, query, flight)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	flight.Id = id
	return id, nil
}

func (st *SkylogDBStore) UpdateFlight(ctx context.Context, flight *Flight) error {
	const query = "UPDATE flights SET name=:name,drone_model=:drone_model,date=:date,path_geojson=:path_geojson WHERE id=:id"

	_, err := st.db.NamedExecContext(ctx, query, flight)
	return err
}

// UpdateFlightPath replaces only the path. Returns false if the flight
// does not exist.
func (st *SkylogDBStore) UpdateFlightPath(ctx context.Context, flightId int64, path types.NullJSONText) (bool, error) {
	const query = "UPDATE flights SET path_geojson=? WHERE id=?"

	res, err := st.db.ExecContext(ctx, query, path, flightId)
	if err != nil {
		return false, err
	}

	// affected rows is 0 for an unchanged path, so check existence.
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	flight, err := st.GetFlightByID(ctx, flightId)
	return flight != nil, err
}

// DeleteFlight removes a flight. Its photos keep existing with a NULL
// flight_id (FK ON DELETE SET NULL).
func (st *SkylogDBStore) DeleteFlight(ctx context.Context, flightId int64) (bool, error) {
	const query = "DELETE FROM flights WHERE id=?"

	res, err := st.db.ExecContext(ctx, query, flightId)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

func (st *SkylogDBStore) CountFlights(ctx context.Context) (int64, error) {
	var count int64
	err := st.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM flights")
	return count, err
}
