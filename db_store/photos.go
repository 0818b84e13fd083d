package db_store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/paulmach/orb"
	"gopkg.in/guregu/null.v4"
)

type Photo struct {
	Id       int64     `db:"id"`
	FlightId null.Int  `db:"flight_id"`
	Image    string    `db:"image"`
	Lat      float64   `db:"lat"`
	Lon      float64   `db:"lon"`
	TakenAt  null.Time `db:"taken_at"`
	Notes    string    `db:"notes"`
}

func (photo *Photo) String() string {
	return fmt.Sprintf("Photo #%d", photo.Id)
}

func (photo *Photo) Point() orb.Point {
	return orb.Point{photo.Lon, photo.Lat}
}

const (
	photoColumns       = "id,flight_id,image,lat,lon,taken_at,notes"
	photoInsertColumns = "flight_id,image,lat,lon,taken_at,notes"
)

func (st *SkylogDBStore) GetAllPhotos(ctx context.Context) ([]*Photo, error) {
	const query = "SELECT " + photoColumns + " FROM photos ORDER BY taken_at DESC, id ASC"
	return queryAll[Photo](ctx, st.db, query)
}

func (st *SkylogDBStore) GetPhotosByFlight(ctx context.Context, flightId int64) ([]*Photo, error) {
	const query = "SELECT " + photoColumns + " FROM photos WHERE flight_id=? ORDER BY taken_at DESC, id ASC"
	return queryAll[Photo](ctx, st.db, query, flightId)
}

// GetPhotoByID returns nil, nil when the photo does not exist.
func (st *SkylogDBStore) GetPhotoByID(ctx context.Context, photoId int64) (*Photo, error) {
	const query = "SELECT " + photoColumns + " FROM photos WHERE id=?"

	row := st.db.QueryRowxContext(ctx, query, photoId)

	var photo Photo

	if err := row.StructScan(&photo); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &photo, nil
}

func (st *SkylogDBStore) InsertPhoto(ctx context.Context, photo *Photo) (int64, error) {
	const query = "INSERT INTO photos (" + photoInsertColumns + ") VALUES (:flight_id,:image,:lat,:lon,:taken_at,:notes)"

	res, err := st.db.NamedExecContext(ctx, query, photo)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	photo.Id = id
	return id, nil
}

func (st *SkylogDBStore) UpdatePhoto(ctx context.Context, photo *Photo) error {
	const query = "UPDATE photos SET flight_id=:flight_id,image=:image,lat=:lat,lon=:lon,taken_at=:taken_at,notes=:notes WHERE id=:id"

	_, err := st.db.NamedExecContext(ctx, query, photo)
	return err
}

func (st *SkylogDBStore) DeletePhoto(ctx context.Context, photoId int64) (bool, error) {
	const query = "DELETE FROM photos WHERE id=?"

	res, err := st.db.ExecContext(ctx, query, photoId)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

func (st *SkylogDBStore) CountPhotos(ctx context.Context) (int64, error) {
	var count int64
	err := st.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM photos")
	return count, err
}
