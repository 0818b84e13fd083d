package httpserver

import (
	"context"
	"io"
	"os"

	"github.com/jmoiron/sqlx/types"
	"github.com/paulmach/orb"

	"github.com/SkylogUAS/Skylog/db_store"
	"github.com/SkylogUAS/Skylog/media_store"
	"github.com/SkylogUAS/Skylog/webhook_sender"
	"github.com/SkylogUAS/Skylog/zone_index"
)

type FlightStore interface {
	GetAllFlights(ctx context.Context) ([]*db_store.Flight, error)
	GetFlightByID(ctx context.Context, flightId int64) (*db_store.Flight, error)
	InsertFlight(ctx context.Context, flight *db_store.Flight) (int64, error)
	UpdateFlight(ctx context.Context, flight *db_store.Flight) error
	UpdateFlightPath(ctx context.Context, flightId int64, path types.NullJSONText) (bool, error)
	DeleteFlight(ctx context.Context, flightId int64) (bool, error)
	CountFlights(ctx context.Context) (int64, error)
}

type PhotoStore interface {
	GetAllPhotos(ctx context.Context) ([]*db_store.Photo, error)
	GetPhotosByFlight(ctx context.Context, flightId int64) ([]*db_store.Photo, error)
	GetPhotoByID(ctx context.Context, photoId int64) (*db_store.Photo, error)
	InsertPhoto(ctx context.Context, photo *db_store.Photo) (int64, error)
	UpdatePhoto(ctx context.Context, photo *db_store.Photo) error
	DeletePhoto(ctx context.Context, photoId int64) (bool, error)
	CountPhotos(ctx context.Context) (int64, error)
}

type ZoneStore interface {
	GetAllZones(ctx context.Context) ([]*db_store.Zone, error)
	GetZoneByID(ctx context.Context, zoneId int64) (*db_store.Zone, error)
	InsertZone(ctx context.Context, zone *db_store.Zone) (int64, error)
	UpdateZone(ctx context.Context, zone *db_store.Zone) error
	DeleteZone(ctx context.Context, zoneId int64) (bool, error)
	CountZones(ctx context.Context) (int64, error)
}

// Store is everything the handlers need from the database.
type Store interface {
	FlightStore
	PhotoStore
	ZoneStore
}

type MediaStore interface {
	Dir() string
	BaseURL() string
	MaxUploadBytes() int64
	SavePhoto(filename string, r io.Reader) (string, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	URL(relPath string) string
}

type ZoneIndex interface {
	GetMatchingZones(ctx context.Context, lat, lon float64) []zone_index.ZoneRef
	GetZonesAlongPath(ctx context.Context, ls orb.LineString) []zone_index.ZoneRef
	Invalidate()
}

type ZoneAlertSender interface {
	AddZoneAlert(webhook_sender.ZoneAlert)
}

var (
	_ Store      = (*db_store.SkylogDBStore)(nil)
	_ MediaStore = (*media_store.MediaStore)(nil)
	_ ZoneIndex  = (*zone_index.ZoneIndex)(nil)
)
