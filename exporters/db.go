package exporters

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/SkylogUAS/Skylog/db_store"
	"github.com/SkylogUAS/Skylog/geo"
)

type FlightSource interface {
	GetAllFlights(ctx context.Context) ([]*db_store.Flight, error)
}

type PhotoSource interface {
	GetAllPhotos(ctx context.Context) ([]*db_store.Photo, error)
}

type ZoneSource interface {
	GetAllZones(ctx context.Context) ([]*db_store.Zone, error)
}

// MediaURLFunc maps a stored media path to the URL clients fetch it from.
type MediaURLFunc func(relPath string) string

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// FlightFeature builds the export Feature of a single flight. It fails
// when the flight has no usable path.
func FlightFeature(flight *db_store.Flight, photoCount int) (*geojson.Feature, error) {
	if !flight.HasPath() {
		return nil, geo.ErrNoPath
	}

	ls, err := geo.NormalizePath(flight.PathGeoJSON.JSONText)
	if err != nil {
		return nil, err
	}

	feature := geojson.NewFeature(ls)
	feature.Properties["id"] = flight.Id
	feature.Properties["name"] = flight.Name
	feature.Properties["drone_model"] = flight.DroneModel
	if flight.Date.Valid {
		feature.Properties["date"] = flight.Date.Time.Format(time.DateOnly)
	} else {
		feature.Properties["date"] = nil
	}
	feature.Properties["distance_km"] = roundTo(geo.PathLengthMeters(ls)/1000, 3)
	feature.Properties["photo_count"] = photoCount

	return feature, nil
}

func PhotoFeature(photo *db_store.Photo, mediaURL MediaURLFunc) *geojson.Feature {
	feature := geojson.NewFeature(photo.Point())
	feature.Properties["id"] = photo.Id
	feature.Properties["flight"] = photo.FlightId.Ptr()
	feature.Properties["image"] = mediaURL(photo.Image)
	if photo.TakenAt.Valid {
		feature.Properties["taken_at"] = photo.TakenAt.Time.Format(time.RFC3339)
	} else {
		feature.Properties["taken_at"] = nil
	}
	feature.Properties["notes"] = photo.Notes
	return feature
}

type FlightsExporter struct {
	logger  *logrus.Logger
	flights FlightSource
	photos  PhotoSource
}

func (*FlightsExporter) ExporterName() string {
	return "flights"
}

func (exporter *FlightsExporter) photoCounts(ctx context.Context) (map[int64]int, error) {
	photos, err := exporter.photos.GetAllPhotos(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]int)
	for _, photo := range photos {
		if photo.FlightId.Valid {
			counts[photo.FlightId.Int64]++
		}
	}
	return counts, nil
}

func (exporter *FlightsExporter) ExportFeatures(ctx context.Context) ([]*geojson.Feature, error) {
	flights, err := exporter.flights.GetAllFlights(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get flights: %w", err)
	}

	counts, err := exporter.photoCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count photos: %w", err)
	}

	features := make([]*geojson.Feature, 0, len(flights))

	for _, flight := range flights {
		feature, err := FlightFeature(flight, counts[flight.Id])
		if err != nil {
			if flight.HasPath() {
				exporter.logger.Warnf("FlightsExporter: skipping flight %d (%s): invalid path: %v", flight.Id, flight.Name, err)
			}
			continue
		}
		features = append(features, feature)
	}

	return features, nil
}

func NewFlightsExporter(logger *logrus.Logger, flights FlightSource, photos PhotoSource) *FlightsExporter {
	return &FlightsExporter{
		logger:  logger,
		flights: flights,
		photos:  photos,
	}
}

type PhotosExporter struct {
	photos   PhotoSource
	mediaURL MediaURLFunc
}

func (*PhotosExporter) ExporterName() string {
	return "photos"
}

func (exporter *PhotosExporter) ExportFeatures(ctx context.Context) ([]*geojson.Feature, error) {
	photos, err := exporter.photos.GetAllPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get photos: %w", err)
	}

	features := make([]*geojson.Feature, len(photos))
	for idx, photo := range photos {
		features[idx] = PhotoFeature(photo, exporter.mediaURL)
	}
	return features, nil
}

func NewPhotosExporter(photos PhotoSource, mediaURL MediaURLFunc) *PhotosExporter {
	return &PhotosExporter{
		photos:   photos,
		mediaURL: mediaURL,
	}
}

type ZonesExporter struct {
	logger *logrus.Logger
	zones  ZoneSource
}

func (*ZonesExporter) ExporterName() string {
	return "zones"
}

func (exporter *ZonesExporter) ExportFeatures(ctx context.Context) ([]*geojson.Feature, error) {
	zones, err := exporter.zones.GetAllZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get zones: %w", err)
	}

	features := make([]*geojson.Feature, 0, len(zones))

	for _, zone := range zones {
		geometries, err := geo.GeometriesFromGeoJSON(zone.Geometry)
		if err != nil || len(geometries) == 0 {
			exporter.logger.Warnf("ZonesExporter: skipping zone %d (%s): invalid geometry: %v", zone.Id, zone.Name, err)
			continue
		}

		for _, geometry := range geometries {
			feature := geojson.NewFeature(geometry)
			feature.Properties["id"] = zone.Id
			feature.Properties["name"] = zone.Name
			feature.Properties["zone_type"] = zone.ZoneType
			if geo.GeometrySupported(geometry) {
				label := geo.ZoneLabelPoint(geometry)
				feature.Properties["label_point"] = []float64{label.Lon(), label.Lat()}
				feature.Properties["area_km2"] = roundTo(geo.ZoneAreaKm2(geometry), 3)
			}
			features = append(features, feature)
		}
	}

	return features, nil
}

func NewZonesExporter(logger *logrus.Logger, zones ZoneSource) *ZonesExporter {
	return &ZonesExporter{
		logger: logger,
		zones:  zones,
	}
}
