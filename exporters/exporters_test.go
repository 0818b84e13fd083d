package exporters

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v4"

	"github.com/SkylogUAS/Skylog/db_store"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeStore struct {
	flights []*db_store.Flight
	photos  []*db_store.Photo
	zones   []*db_store.Zone
}

func (st *fakeStore) GetAllFlights(context.Context) ([]*db_store.Flight, error) {
	return st.flights, nil
}

func (st *fakeStore) GetAllPhotos(context.Context) ([]*db_store.Photo, error) {
	return st.photos, nil
}

func (st *fakeStore) GetAllZones(context.Context) ([]*db_store.Zone, error) {
	return st.zones, nil
}

func pathJSON(s string) types.NullJSONText {
	return types.NullJSONText{JSONText: types.JSONText(s), Valid: true}
}

func TestDemoExporter(t *testing.T) {
	t.Parallel()

	features, err := NewDemoExporter(0).ExportFeatures(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(features) != DEFAULT_DEMO_ZONE_COUNT {
		t.Fatalf("got %d features, want %d", len(features), DEFAULT_DEMO_ZONE_COUNT)
	}

	first := features[0]
	if name := first.Properties.MustString("name"); name != "Zona UAS DEMO #1" {
		t.Errorf("first name = %q", name)
	}
	if cls := first.Properties.MustString("class"); cls != "Zona de control CTR" {
		t.Errorf("first class = %q", cls)
	}
	if typ := first.Properties.MustString("type"); typ != "Aeropuerto" {
		t.Errorf("first type = %q", typ)
	}

	// the westernmost column is skipped as open sea
	poly := first.Geometry.(orb.Polygon)
	if math.Abs(poly[0][0][0]-(-8.8)) > 1e-9 || poly[0][0][1] != 36.0 {
		t.Errorf("first cell starts at %v, want [-8.8 36]", poly[0][0])
	}
	if len(poly[0]) != 5 || !poly[0].Closed() {
		t.Errorf("first cell ring = %v, want a closed square", poly[0])
	}

	if cls := features[8].Properties.MustString("class"); cls != demoZoneClasses[0] {
		t.Errorf("class of #9 = %q, should wrap around", cls)
	}

	more, _ := NewDemoExporter(200).ExportFeatures(context.Background())
	for _, f := range more {
		b := f.Geometry.Bound()
		if b.Min[0] < demoLonMin || b.Max[0] > demoLonMax || b.Min[1] < demoLatMin || b.Max[1] > demoLatMax {
			t.Fatalf("%s lies outside the grid: %v", f.Properties.MustString("name"), b)
		}
	}
}

func TestFileExporter(t *testing.T) {
	t.Parallel()

	filename := filepath.Join(t.TempDir(), "zones.geojson")
	data := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"A","zone_type":"CTR"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
		"not a feature",
		{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]}}
	]}`
	if err := os.WriteFile(filename, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	exporter, err := NewFileExporter(quietLogger(), filename)
	if err != nil {
		t.Fatal(err)
	}

	features, err := exporter.ExportFeatures(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(features) != 2 {
		t.Fatalf("got %d features, want 2", len(features))
	}
	if features[1].Properties == nil {
		t.Error("missing properties should become an empty map")
	}

	if _, err := NewFileExporter(quietLogger(), filepath.Join(t.TempDir(), "missing.geojson")); err == nil {
		t.Error("NewFileExporter() should fail for a missing file")
	}

	if _, err := DecodeFeatures(quietLogger(), []byte("{broken")); err == nil {
		t.Error("DecodeFeatures() should fail for bad JSON")
	}
}

const osmFixture = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="40.0" lon="-3.0"/>
  <node id="2" lat="40.0" lon="-2.9"/>
  <node id="3" lat="40.1" lon="-2.9"/>
  <node id="4" lat="40.1" lon="-3.0"/>
  <node id="5" lat="41.0" lon="-3.0"/>
  <node id="6" lat="41.0" lon="-2.9"/>
  <way id="10">
    <nd ref="1"/><nd ref="2"/><nd ref="3"/><nd ref="4"/><nd ref="1"/>
    <tag k="name" v="Aeródromo de prueba"/>
    <tag k="aeroway" v="aerodrome"/>
  </way>
  <way id="11">
    <nd ref="1"/><nd ref="2"/><nd ref="3"/><nd ref="4"/><nd ref="1"/>
    <tag k="landuse" v="military"/>
  </way>
  <way id="12">
    <nd ref="5"/><nd ref="6"/>
    <tag k="name" v="Calle"/>
    <tag k="highway" v="residential"/>
  </way>
</osm>`

func TestOSMExporter(t *testing.T) {
	t.Parallel()

	filename := filepath.Join(t.TempDir(), "extract.osm")
	if err := os.WriteFile(filename, []byte(osmFixture), 0644); err != nil {
		t.Fatal(err)
	}

	exporter, err := NewOSMExporter(quietLogger(), filename)
	if err != nil {
		t.Fatal(err)
	}

	features, err := exporter.ExportFeatures(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(features) != 1 {
		t.Fatalf("got %d features, want only the named polygon", len(features))
	}

	props := features[0].Properties
	if name := props.MustString("name"); name != "Aeródromo de prueba" {
		t.Errorf("name = %q", name)
	}
	if typ := props.MustString("zone_type"); typ != "aeroway=aerodrome" {
		t.Errorf("zone_type = %q", typ)
	}
}

type fakeOverpass struct {
	data  *osm.OSM
	err   error
	bound orb.Bound
}

func (cli *fakeOverpass) GetZoneAreas(ctx context.Context, bound orb.Bound) (*osm.OSM, error) {
	cli.bound = bound
	return cli.data, cli.err
}

func TestOverpassExporter(t *testing.T) {
	t.Parallel()

	var osmData osm.OSM
	if err := xml.Unmarshal([]byte(osmFixture), &osmData); err != nil {
		t.Fatal(err)
	}

	bound := orb.Bound{Min: orb.Point{-3.5, 39.5}, Max: orb.Point{-2.5, 41.5}}
	client := &fakeOverpass{data: &osmData}

	exporter, err := NewOverpassExporter(quietLogger(), client, bound)
	if err != nil {
		t.Fatal(err)
	}

	features, err := exporter.ExportFeatures(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if client.bound != bound {
		t.Errorf("queried %v, want %v", client.bound, bound)
	}
	if len(features) != 1 {
		t.Fatalf("got %d features, want 1", len(features))
	}
	if src := features[0].Properties.MustString("source"); src != "overpass" {
		t.Errorf("source = %q", src)
	}

	client.err = errors.New("boom")
	if _, err := exporter.ExportFeatures(context.Background()); err == nil {
		t.Error("ExportFeatures() should fail when the query does")
	}

	if _, err := NewOverpassExporter(quietLogger(), client, orb.Bound{}); err == nil {
		t.Error("NewOverpassExporter() should refuse an empty bbox")
	}
}

func TestFlightsExporter(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		flights: []*db_store.Flight{
			{Id: 1, Name: "Vuelo 1", DroneModel: "Mavic 3", Date: null.TimeFrom(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
				PathGeoJSON: pathJSON(`{"type":"LineString","coordinates":[[0,0],[1,0]]}`)},
			{Id: 2, Name: "sin ruta"},
			{Id: 3, Name: "ruta rota", PathGeoJSON: pathJSON(`{"type":"Point","coordinates":[0,0]}`)},
		},
		photos: []*db_store.Photo{
			{Id: 1, FlightId: null.IntFrom(1)},
			{Id: 2, FlightId: null.IntFrom(1)},
			{Id: 3, FlightId: null.IntFrom(2)},
			{Id: 4},
		},
	}

	features, err := NewFlightsExporter(quietLogger(), store, store).ExportFeatures(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(features) != 1 {
		t.Fatalf("got %d features, want 1", len(features))
	}

	props := features[0].Properties
	if props["id"] != int64(1) || props["name"] != "Vuelo 1" || props["drone_model"] != "Mavic 3" {
		t.Errorf("unexpected properties %v", props)
	}
	if props["date"] != "2024-05-01" {
		t.Errorf("date = %v", props["date"])
	}
	if props["photo_count"] != 2 {
		t.Errorf("photo_count = %v, want 2", props["photo_count"])
	}
	if km := props["distance_km"].(float64); math.Abs(km-111.319) > 0.001 {
		t.Errorf("distance_km = %v", km)
	}
}

func TestPhotosExporter(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		photos: []*db_store.Photo{
			{Id: 5, FlightId: null.IntFrom(3), Image: "photos/a.jpg", Lat: 40.4, Lon: -3.7,
				TakenAt: null.TimeFrom(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)), Notes: "torre"},
			{Id: 6, Image: "photos/b.jpg", Lat: 1, Lon: 2},
		},
	}

	exporter := NewPhotosExporter(store, func(relPath string) string {
		return "http://localhost/media/" + relPath
	})

	fc, err := FeatureCollection(context.Background(), exporter)
	if err != nil {
		t.Fatal(err)
	}

	if len(fc.Features) != 2 {
		t.Fatalf("got %d features", len(fc.Features))
	}

	first := fc.Features[0]
	if p := first.Geometry.(orb.Point); p != (orb.Point{-3.7, 40.4}) {
		t.Errorf("point = %v, want [lon lat]", p)
	}
	if first.Properties["image"] != "http://localhost/media/photos/a.jpg" {
		t.Errorf("image = %v", first.Properties["image"])
	}
	if first.Properties["taken_at"] != "2024-05-01T10:30:00Z" {
		t.Errorf("taken_at = %v", first.Properties["taken_at"])
	}
	if flight, ok := first.Properties["flight"].(*int64); !ok || *flight != 3 {
		t.Errorf("flight = %v", first.Properties["flight"])
	}

	second := fc.Features[1]
	if second.Properties["taken_at"] != nil {
		t.Errorf("taken_at = %v, want nil", second.Properties["taken_at"])
	}
	if flight := second.Properties["flight"].(*int64); flight != nil {
		t.Errorf("flight = %v, want nil", *flight)
	}
}

func TestZonesExporterAndMulti(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		zones: []*db_store.Zone{
			{Id: 1, Name: "A", ZoneType: "CTR", Geometry: types.JSONText(`{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,2],[0,2],[0,0]]]}}`)},
			{Id: 2, Name: "bad", Geometry: types.JSONText(`nope`)},
		},
	}

	var multi MultiExporter
	multi.Append(NewZonesExporter(quietLogger(), store))
	multi.Append(NewDemoExporter(3))

	features, err := multi.ExportFeatures(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(features) != 4 {
		t.Fatalf("got %d features, want 1 zone + 3 demo", len(features))
	}
	if name := multi.ExporterName(); name != "zones+demo" {
		t.Errorf("ExporterName() = %q", name)
	}

	zone := features[0]
	if zone.Properties["zone_type"] != "CTR" {
		t.Errorf("zone_type = %v", zone.Properties["zone_type"])
	}
	label, _ := zone.Properties["label_point"].([]float64)
	if len(label) != 2 || math.Abs(label[0]-1) > 1e-9 || math.Abs(label[1]-1) > 1e-9 {
		t.Errorf("label_point = %v", zone.Properties["label_point"])
	}
	// a 2x2 degree square at the equator is about 49,000 km2
	if area, _ := zone.Properties["area_km2"].(float64); area < 48000 || area > 50000 {
		t.Errorf("area_km2 = %v", zone.Properties["area_km2"])
	}
}
