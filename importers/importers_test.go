package importers

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/SkylogUAS/Skylog/db_store"
)

type fakeZoneWriter struct {
	zones  []*db_store.Zone
	failOn string
}

func (w *fakeZoneWriter) InsertZone(ctx context.Context, zone *db_store.Zone) (int64, error) {
	if zone.Name == w.failOn {
		return 0, errors.New("insert failed")
	}
	w.zones = append(w.zones, zone)
	zone.Id = int64(len(w.zones))
	return zone.Id, nil
}

func square() orb.Polygon {
	return orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
}

func featureWith(props geojson.Properties) *geojson.Feature {
	feature := geojson.NewFeature(square())
	for k, v := range props {
		feature.Properties[k] = v
	}
	return feature
}

func TestZoneFromFeatureFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		props        geojson.Properties
		wantName     string
		wantZoneType string
	}{
		{"explicit", geojson.Properties{"name": "CTR Madrid", "zone_type": "CTR"}, "CTR Madrid", "CTR"},
		{"type fallback", geojson.Properties{"name": "Demo", "type": "Aeropuerto"}, "Demo", "Aeropuerto"},
		{"zone_type wins over type", geojson.Properties{"zone_type": "P", "type": "Aeropuerto"}, DEFAULT_ZONE_NAME, "P"},
		{"defaults", geojson.Properties{}, DEFAULT_ZONE_NAME, DEFAULT_ZONE_TYPE},
		{"empty strings", geojson.Properties{"name": "", "zone_type": ""}, DEFAULT_ZONE_NAME, DEFAULT_ZONE_TYPE},
		{"non-string name", geojson.Properties{"name": 12}, DEFAULT_ZONE_NAME, DEFAULT_ZONE_TYPE},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			zone, err := ZoneFromFeature(featureWith(tt.props))
			if err != nil {
				t.Fatal(err)
			}
			if zone.Name != tt.wantName || zone.ZoneType != tt.wantZoneType {
				t.Errorf("got (%q, %q), want (%q, %q)", zone.Name, zone.ZoneType, tt.wantName, tt.wantZoneType)
			}
		})
	}
}

func TestZoneFromFeatureStoresWholeFeature(t *testing.T) {
	t.Parallel()

	zone, err := ZoneFromFeature(featureWith(geojson.Properties{"name": "A", "class": "Zona prohibida"}))
	if err != nil {
		t.Fatal(err)
	}

	var stored struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(zone.Geometry, &stored); err != nil {
		t.Fatal(err)
	}
	if stored.Type != "Feature" || stored.Properties["class"] != "Zona prohibida" {
		t.Errorf("stored geometry = %s", zone.Geometry)
	}
}

func TestDBZoneImporter(t *testing.T) {
	t.Parallel()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	writer := &fakeZoneWriter{}
	importer := NewDBZoneImporter(logger, writer)

	created, err := importer.ImportFeatures(context.Background(), []*geojson.Feature{
		featureWith(geojson.Properties{"name": "A"}),
		featureWith(geojson.Properties{"name": "B"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if created != 2 || len(writer.zones) != 2 {
		t.Errorf("created = %d, stored = %d, want 2", created, len(writer.zones))
	}

	writer.failOn = "C"
	created, err = importer.ImportFeatures(context.Background(), []*geojson.Feature{
		featureWith(geojson.Properties{"name": "C"}),
	})
	if err == nil || created != 0 {
		t.Errorf("ImportFeatures() = %d, %v, want an insert error", created, err)
	}
}

func TestZoneFromFeatureWithoutGeometry(t *testing.T) {
	t.Parallel()

	feature := &geojson.Feature{Type: "Feature", Properties: geojson.Properties{"name": "Aviso"}}

	zone, err := ZoneFromFeature(feature)
	if err != nil {
		t.Fatal(err)
	}

	var stored map[string]any
	if err := json.Unmarshal(zone.Geometry, &stored); err != nil {
		t.Fatal(err)
	}
	if geometry, ok := stored["geometry"]; !ok || geometry != nil {
		t.Errorf("geometry = %v, want null", stored["geometry"])
	}
	if stored["type"] != "Feature" || zone.Name != "Aviso" {
		t.Errorf("stored = %s", zone.Geometry)
	}
}
