package httpserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx/types"
	"github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v4"

	"github.com/SkylogUAS/Skylog/db_store"
	"github.com/SkylogUAS/Skylog/media_store"
	"github.com/SkylogUAS/Skylog/photo_exif/exiftest"
	"github.com/SkylogUAS/Skylog/stats_collector"
	"github.com/SkylogUAS/Skylog/webhook_sender"
	"github.com/SkylogUAS/Skylog/zone_index"
)

type memStore struct {
	mutex   sync.Mutex
	nextId  int64
	flights map[int64]db_store.Flight
	photos  map[int64]db_store.Photo
	zones   map[int64]db_store.Zone
	// returned by GetFlightByID when set
	flightErr error
}

func newMemStore() *memStore {
	return &memStore{
		flights: make(map[int64]db_store.Flight),
		photos:  make(map[int64]db_store.Photo),
		zones:   make(map[int64]db_store.Zone),
	}
}

func (st *memStore) id() int64 {
	st.nextId++
	return st.nextId
}

// newestFirst orders like "x DESC, id ASC" with NULLs last.
func newestFirst(a, b null.Time, idA, idB int64) bool {
	if a.Valid != b.Valid {
		return a.Valid
	}
	if a.Valid && !a.Time.Equal(b.Time) {
		return a.Time.After(b.Time)
	}
	return idA < idB
}

func (st *memStore) GetAllFlights(ctx context.Context) ([]*db_store.Flight, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	flights := make([]*db_store.Flight, 0, len(st.flights))
	for _, flight := range st.flights {
		flight := flight
		flights = append(flights, &flight)
	}
	sort.Slice(flights, func(i, j int) bool {
		return newestFirst(flights[i].Date, flights[j].Date, flights[i].Id, flights[j].Id)
	})
	return flights, nil
}

func (st *memStore) GetFlightByID(ctx context.Context, flightId int64) (*db_store.Flight, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if st.flightErr != nil {
		return nil, st.flightErr
	}

	flight, ok := st.flights[flightId]
	if !ok {
		return nil, nil
	}
	return &flight, nil
}

func (st *memStore) InsertFlight(ctx context.Context, flight *db_store.Flight) (int64, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	flight.Id = st.id()
	st.flights[flight.Id] = *flight
	return flight.Id, nil
}

func (st *memStore) UpdateFlight(ctx context.Context, flight *db_store.Flight) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	st.flights[flight.Id] = *flight
	return nil
}

func (st *memStore) UpdateFlightPath(ctx context.Context, flightId int64, path types.NullJSONText) (bool, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if st.flightErr != nil {
		return false, st.flightErr
	}

	flight, ok := st.flights[flightId]
	if !ok {
		return false, nil
	}
	flight.PathGeoJSON = path
	st.flights[flightId] = flight
	return true, nil
}

func (st *memStore) DeleteFlight(ctx context.Context, flightId int64) (bool, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if _, ok := st.flights[flightId]; !ok {
		return false, nil
	}
	delete(st.flights, flightId)

	for id, photo := range st.photos {
		if photo.FlightId.Valid && photo.FlightId.Int64 == flightId {
			photo.FlightId = null.Int{}
			st.photos[id] = photo
		}
	}
	return true, nil
}

func (st *memStore) CountFlights(ctx context.Context) (int64, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return int64(len(st.flights)), nil
}

func (st *memStore) GetAllPhotos(ctx context.Context) ([]*db_store.Photo, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	photos := make([]*db_store.Photo, 0, len(st.photos))
	for _, photo := range st.photos {
		photo := photo
		photos = append(photos, &photo)
	}
	sort.Slice(photos, func(i, j int) bool {
		return newestFirst(photos[i].TakenAt, photos[j].TakenAt, photos[i].Id, photos[j].Id)
	})
	return photos, nil
}

func (st *memStore) GetPhotosByFlight(ctx context.Context, flightId int64) ([]*db_store.Photo, error) {
	all, _ := st.GetAllPhotos(ctx)

	var photos []*db_store.Photo
	for _, photo := range all {
		if photo.FlightId.Valid && photo.FlightId.Int64 == flightId {
			photos = append(photos, photo)
		}
	}
	return photos, nil
}

func (st *memStore) GetPhotoByID(ctx context.Context, photoId int64) (*db_store.Photo, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	photo, ok := st.photos[photoId]
	if !ok {
		return nil, nil
	}
	return &photo, nil
}

func (st *memStore) InsertPhoto(ctx context.Context, photo *db_store.Photo) (int64, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	photo.Id = st.id()
	st.photos[photo.Id] = *photo
	return photo.Id, nil
}

func (st *memStore) UpdatePhoto(ctx context.Context, photo *db_store.Photo) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	st.photos[photo.Id] = *photo
	return nil
}

func (st *memStore) DeletePhoto(ctx context.Context, photoId int64) (bool, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if _, ok := st.photos[photoId]; !ok {
		return false, nil
	}
	delete(st.photos, photoId)
	return true, nil
}

func (st *memStore) CountPhotos(ctx context.Context) (int64, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return int64(len(st.photos)), nil
}

func (st *memStore) GetAllZones(ctx context.Context) ([]*db_store.Zone, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	zones := make([]*db_store.Zone, 0, len(st.zones))
	for _, zone := range st.zones {
		zone := zone
		zones = append(zones, &zone)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Id < zones[j].Id })
	return zones, nil
}

func (st *memStore) GetZoneByID(ctx context.Context, zoneId int64) (*db_store.Zone, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	zone, ok := st.zones[zoneId]
	if !ok {
		return nil, nil
	}
	return &zone, nil
}

func (st *memStore) InsertZone(ctx context.Context, zone *db_store.Zone) (int64, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	zone.Id = st.id()
	st.zones[zone.Id] = *zone
	return zone.Id, nil
}

func (st *memStore) UpdateZone(ctx context.Context, zone *db_store.Zone) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	st.zones[zone.Id] = *zone
	return nil
}

func (st *memStore) DeleteZone(ctx context.Context, zoneId int64) (bool, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if _, ok := st.zones[zoneId]; !ok {
		return false, nil
	}
	delete(st.zones, zoneId)
	return true, nil
}

func (st *memStore) CountZones(ctx context.Context) (int64, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return int64(len(st.zones)), nil
}

type alertRecorder struct {
	mutex  sync.Mutex
	alerts []webhook_sender.ZoneAlert
}

func (rec *alertRecorder) AddZoneAlert(alert webhook_sender.ZoneAlert) {
	rec.mutex.Lock()
	defer rec.mutex.Unlock()
	rec.alerts = append(rec.alerts, alert)
}

func (rec *alertRecorder) snapshot() []webhook_sender.ZoneAlert {
	rec.mutex.Lock()
	defer rec.mutex.Unlock()
	return append([]webhook_sender.ZoneAlert(nil), rec.alerts...)
}

type testEnv struct {
	srv    *HTTPServer
	store  *memStore
	media  *media_store.MediaStore
	alerts *alertRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	media, err := media_store.NewMediaStore(logger, media_store.Config{
		Dir:         filepath.Join(t.TempDir(), "media"),
		URL:         "/media/",
		MaxUploadMB: 5,
	})
	if err != nil {
		t.Fatalf("NewMediaStore() error = %v", err)
	}

	store := newMemStore()
	alerts := &alertRecorder{}

	srv, err := NewHTTPServer(
		logger,
		Config{Addr: "127.0.0.1:0"},
		store,
		media,
		zone_index.NewZoneIndex(logger, store),
		stats_collector.NewNoopStatsCollector(),
		alerts,
	)
	if err != nil {
		t.Fatalf("NewHTTPServer() error = %v", err)
	}

	return &testEnv{srv: srv, store: store, media: media, alerts: alerts}
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	return w
}

func (env *testEnv) doJSON(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return env.do(req)
}

type upload struct {
	field    string
	filename string
	data     []byte
}

func multipartRequest(t *testing.T, method, path string, values map[string]string, files ...upload) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("bad json body %q: %v", w.Body.String(), err)
	}
	return v
}

const madridBarcelona = `{"type":"LineString","coordinates":[[-3.7038,40.4168],[2.1734,41.3851]]}`

const squareZone = `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[-4,40],[-3,40],[-3,41],[-4,41],[-4,40]]]}}`

func TestFlightsAPI(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(http.MethodPost, "/api/flights", `{"name":"Vuelo A","drone_model":"Mavic 3","date":"2024-05-01","path_geojson":`+madridBarcelona+`}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body)
	}
	created := decodeBody[APIFlight](t, w)
	if created.Id == 0 || created.Date == nil || *created.Date != "2024-05-01" {
		t.Errorf("created flight = %+v", created)
	}

	w = env.doJSON(http.MethodPost, "/api/flights", `{"name":"Vuelo B"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body)
	}
	second := decodeBody[APIFlight](t, w)
	if p := string(second.PathGeoJSON); second.Date != nil || (p != "" && p != "null") {
		t.Errorf("second flight = %+v", second)
	}

	w = env.doJSON(http.MethodGet, "/api/flights", "")
	list := decodeBody[[]APIFlight](t, w)
	if len(list) != 2 || list[0].Id != created.Id || list[1].Id != second.Id {
		t.Errorf("list = %+v, want dated flight first", list)
	}

	w = env.doJSON(http.MethodPatch, "/api/flights/"+strconv.FormatInt(second.Id, 10), `{"drone_model":"Mini 4"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d %s", w.Code, w.Body)
	}
	if got := decodeBody[APIFlight](t, w); got.Name != "Vuelo B" || got.DroneModel != "Mini 4" {
		t.Errorf("patched = %+v", got)
	}

	w = env.doJSON(http.MethodPut, "/api/flights/"+strconv.FormatInt(second.Id, 10), `{"drone_model":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("put without name = %d", w.Code)
	}
	if errs := decodeBody[FieldErrors](t, w); errs.First("name") != msgRequired {
		t.Errorf("put errors = %v", errs)
	}

	w = env.doJSON(http.MethodDelete, "/api/flights/"+strconv.FormatInt(second.Id, 10), "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}

	w = env.doJSON(http.MethodGet, "/api/flights/"+strconv.FormatInt(second.Id, 10), "")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"detail":"Not found."`) {
		t.Errorf("get deleted = %d %s", w.Code, w.Body)
	}
}

func TestFlightValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"blank name", `{"name":""}`, "name"},
		{"long name", `{"name":"` + strings.Repeat("x", 121) + `"}`, "name"},
		{"bad date", `{"name":"a","date":"01/05/2024"}`, "date"},
		{"short path", `{"name":"a","path_geojson":{"type":"LineString","coordinates":[[0,0]]}}`, "path_geojson"},
		{"bad path", `{"name":"a","path_geojson":{"type":"Point","coordinates":[0,0]}}`, "path_geojson"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.doJSON(http.MethodPost, "/api/flights", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d %s", w.Code, w.Body)
			}
			if errs := decodeBody[FieldErrors](t, w); len(errs[tt.field]) == 0 {
				t.Errorf("errors = %v, want one for %q", errs, tt.field)
			}
		})
	}

	if w := env.doJSON(http.MethodPost, "/api/flights", `{"name":`); w.Code != http.StatusBadRequest {
		t.Errorf("broken json = %d", w.Code)
	}
}

func TestUnknownIds(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/flights/abc", "/api/flights/99", "/api/photos/99", "/api/zones/0"} {
		if w := env.doJSON(http.MethodGet, path, ""); w.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, w.Code)
		}
	}
	if w := env.doJSON(http.MethodDelete, "/api/zones/5", ""); w.Code != http.StatusNotFound {
		t.Errorf("DELETE unknown zone = %d", w.Code)
	}
}

func TestSaveFlightPath(t *testing.T) {
	env := newTestEnv(t)

	flight := db_store.Flight{Name: "Madrid"}
	env.store.InsertFlight(context.Background(), &flight)
	env.store.InsertZone(context.Background(), &db_store.Zone{Name: "CTR", ZoneType: "CTR", Geometry: types.JSONText(squareZone)})

	body := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[0,0]}},{"type":"Feature","properties":{},"geometry":` + madridBarcelona + `}]}`
	w := env.doJSON(http.MethodPost, "/api/flights/"+strconv.FormatInt(flight.Id, 10)+"/save_path", body)
	if w.Code != http.StatusOK {
		t.Fatalf("save_path = %d %s", w.Code, w.Body)
	}

	resp := decodeBody[APISavePathResponse](t, w)
	if resp.Status != "ok" || resp.FlightId != flight.Id || resp.Points != 2 {
		t.Errorf("response = %+v", resp)
	}
	if resp.DistanceKm < 480 || resp.DistanceKm > 510 {
		t.Errorf("distance_km = %v, want about 505", resp.DistanceKm)
	}

	stored, _ := env.store.GetFlightByID(context.Background(), flight.Id)
	if !stored.HasPath() || !strings.Contains(string(stored.PathGeoJSON.JSONText), `"LineString"`) {
		t.Errorf("stored path = %s", stored.PathGeoJSON.JSONText)
	}

	alerts := env.alerts.snapshot()
	if len(alerts) != 1 || alerts[0].Kind != webhook_sender.ALERT_KIND_FLIGHT || alerts[0].Zones[0].Name != "CTR" {
		t.Errorf("alerts = %+v", alerts)
	}

	w = env.doJSON(http.MethodGet, "/api/flights/"+strconv.FormatInt(flight.Id, 10)+"/zones", "")
	if zones := decodeBody[APIZonesResponse](t, w); len(zones.Zones) != 1 {
		t.Errorf("flight zones = %+v", zones)
	}

	w = env.doJSON(http.MethodPost, "/api/flights/"+strconv.FormatInt(flight.Id, 10)+"/save_path", `[[0,0]]`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"error"`) {
		t.Errorf("short path = %d %s", w.Code, w.Body)
	}

	w = env.doJSON(http.MethodPost, "/api/flights/404/save_path", madridBarcelona)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown flight = %d", w.Code)
	}
}

func TestPhotosAPI(t *testing.T) {
	env := newTestEnv(t)

	flight := db_store.Flight{Name: "F"}
	env.store.InsertFlight(context.Background(), &flight)

	req := multipartRequest(t, http.MethodPost, "/api/photos", map[string]string{
		"flight":   strconv.FormatInt(flight.Id, 10),
		"lat":      "40.5",
		"lon":      "-3.5",
		"taken_at": "2024-05-01T10:30:00Z",
		"notes":    "despegue",
	}, upload{"image", "IMG_1.JPG", []byte("not really a jpeg")})

	w := env.do(req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body)
	}

	photo := decodeBody[APIPhoto](t, w)
	if photo.Flight == nil || *photo.Flight != flight.Id || photo.Lat != 40.5 || photo.Lon != -3.5 {
		t.Errorf("photo = %+v", photo)
	}
	if !strings.HasPrefix(photo.Image, "http://example.com/media/photos/") || !strings.HasSuffix(photo.Image, ".jpg") {
		t.Errorf("image url = %q", photo.Image)
	}
	if photo.TakenAt == nil || *photo.TakenAt != "2024-05-01T10:30:00Z" {
		t.Errorf("taken_at = %v", photo.TakenAt)
	}

	stored, _ := env.store.GetPhotoByID(context.Background(), photo.Id)
	imagePath := filepath.Join(env.media.Dir(), filepath.FromSlash(stored.Image))
	if _, err := os.Stat(imagePath); err != nil {
		t.Fatalf("image not stored: %v", err)
	}

	// deleting the flight keeps the photo
	env.doJSON(http.MethodDelete, "/api/flights/"+strconv.FormatInt(flight.Id, 10), "")
	w = env.doJSON(http.MethodGet, "/api/photos/"+strconv.FormatInt(photo.Id, 10), "")
	if got := decodeBody[APIPhoto](t, w); got.Flight != nil {
		t.Errorf("flight after delete = %v, want null", *got.Flight)
	}

	w = env.doJSON(http.MethodPatch, "/api/photos/"+strconv.FormatInt(photo.Id, 10), `{"notes":"aterrizaje"}`)
	if got := decodeBody[APIPhoto](t, w); w.Code != http.StatusOK || got.Notes != "aterrizaje" || got.Lat != 40.5 {
		t.Errorf("patch = %d %+v", w.Code, got)
	}

	w = env.doJSON(http.MethodDelete, "/api/photos/"+strconv.FormatInt(photo.Id, 10), "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if _, err := os.Stat(imagePath); !os.IsNotExist(err) {
		t.Errorf("image still on disk after delete: %v", err)
	}
}

func TestPhotoValidation(t *testing.T) {
	env := newTestEnv(t)
	image := upload{"image", "a.jpg", []byte("x")}

	tests := []struct {
		name   string
		values map[string]string
		files  []upload
		field  string
	}{
		{"no image", map[string]string{"lat": "1", "lon": "1"}, nil, "image"},
		{"bad extension", map[string]string{"lat": "1", "lon": "1"}, []upload{{"image", "a.txt", []byte("x")}}, "image"},
		{"no coordinates", map[string]string{}, []upload{image}, NON_FIELD_ERRORS},
		{"only lat", map[string]string{"lat": "1"}, []upload{image}, NON_FIELD_ERRORS},
		{"unknown flight", map[string]string{"lat": "1", "lon": "1", "flight": "77"}, []upload{image}, "flight"},
		{"bad lat", map[string]string{"lat": "91", "lon": "1"}, []upload{image}, "lat"},
		{"bad taken_at", map[string]string{"lat": "1", "lon": "1", "taken_at": "yesterday"}, []upload{image}, "taken_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(multipartRequest(t, http.MethodPost, "/api/photos", tt.values, tt.files...))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d %s", w.Code, w.Body)
			}
			if errs := decodeBody[FieldErrors](t, w); len(errs[tt.field]) == 0 {
				t.Errorf("errors = %v, want one for %q", errs, tt.field)
			}
		})
	}

	if n, _ := env.store.CountPhotos(context.Background()); n != 0 {
		t.Errorf("%d photos stored by invalid requests", n)
	}
}

func TestPhotoCoordinatesFromExif(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(multipartRequest(t, http.MethodPost, "/api/photos",
		map[string]string{"notes": "sin coordenadas"},
		upload{"image", "DJI_0001.JPG", exiftest.Madrid().JPEG()},
	))
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body)
	}

	photo := decodeBody[APIPhoto](t, w)
	stored, _ := env.store.GetPhotoByID(context.Background(), photo.Id)
	if stored == nil {
		t.Fatal("photo not stored")
	}
	if diff := stored.Lat - 40.4168; diff > 1e-5 || diff < -1e-5 {
		t.Errorf("lat = %f, want 40.4168 from EXIF", stored.Lat)
	}
	if diff := stored.Lon + 3.7038; diff > 1e-5 || diff < -1e-5 {
		t.Errorf("lon = %f, want -3.7038 from EXIF", stored.Lon)
	}
	if want := time.Date(2024, 5, 1, 10, 30, 0, 0, time.Local); !stored.TakenAt.Valid || !stored.TakenAt.Time.Equal(want) {
		t.Errorf("taken_at = %v, want %v from EXIF", stored.TakenAt, want)
	}

	// sent values win over EXIF
	w = env.do(multipartRequest(t, http.MethodPost, "/api/photos",
		map[string]string{"lat": "41.5", "lon": "2.5", "taken_at": "2023-01-02T03:04:05Z"},
		upload{"image", "DJI_0002.JPG", exiftest.Madrid().JPEG()},
	))
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body)
	}
	photo = decodeBody[APIPhoto](t, w)
	if photo.Lat != 41.5 || photo.Lon != 2.5 || photo.TakenAt == nil || *photo.TakenAt != "2023-01-02T03:04:05Z" {
		t.Errorf("photo = %+v, want the sent values", photo)
	}
}

func TestPhotoFlightLookupFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.flightErr = errors.New("connection refused")

	w := env.do(multipartRequest(t, http.MethodPost, "/api/photos",
		map[string]string{"lat": "1", "lon": "1", "flight": "1"},
		upload{"image", "a.jpg", []byte("x")},
	))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d %s, want 500", w.Code, w.Body)
	}
	if n, _ := env.store.CountPhotos(context.Background()); n != 0 {
		t.Errorf("%d photos stored", n)
	}
}

func TestPhotoInsideZoneRaisesAlert(t *testing.T) {
	env := newTestEnv(t)
	env.store.InsertZone(context.Background(), &db_store.Zone{Name: "CTR", ZoneType: "CTR", Geometry: types.JSONText(squareZone)})

	w := env.do(multipartRequest(t, http.MethodPost, "/api/photos",
		map[string]string{"lat": "40.5", "lon": "-3.5"},
		upload{"image", "a.png", []byte("png")},
	))
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body)
	}

	alerts := env.alerts.snapshot()
	if len(alerts) != 1 || alerts[0].Kind != webhook_sender.ALERT_KIND_PHOTO || alerts[0].Lat != 40.5 {
		t.Errorf("alerts = %+v", alerts)
	}
}

func TestZonesAPI(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(http.MethodPost, "/api/zones", `{"name":"CTR Madrid","zone_type":"CTR","geometry":`+squareZone+`}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body)
	}
	zone := decodeBody[APIZone](t, w)

	w = env.doJSON(http.MethodGet, "/api/zones/_/match?lat=40.5&lon=-3.5", "")
	match := decodeBody[APIZonesResponse](t, w)
	if len(match.Zones) != 1 || match.Zones[0].Id != zone.Id {
		t.Errorf("match = %+v", match)
	}

	w = env.doJSON(http.MethodGet, "/api/zones/_/match?lat=10&lon=10", "")
	if !strings.Contains(w.Body.String(), `"zones":[]`) {
		t.Errorf("match outside = %s", w.Body)
	}

	if w := env.doJSON(http.MethodGet, "/api/zones/_/match?lat=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad match query = %d", w.Code)
	}

	// the index picks up deletes
	env.doJSON(http.MethodDelete, "/api/zones/"+strconv.FormatInt(zone.Id, 10), "")
	w = env.doJSON(http.MethodGet, "/api/zones/_/match?lat=40.5&lon=-3.5", "")
	if match := decodeBody[APIZonesResponse](t, w); len(match.Zones) != 0 {
		t.Errorf("match after delete = %+v", match)
	}

	for _, body := range []string{
		`{"name":"x","zone_type":"P"}`,
		`{"name":"x","zone_type":"P","geometry":[1,2]}`,
		`{"name":"x","zone_type":"P","geometry":{"type":"Circle"}}`,
	} {
		w := env.doJSON(http.MethodPost, "/api/zones", body)
		if errs := decodeBody[FieldErrors](t, w); w.Code != http.StatusBadRequest || len(errs["geometry"]) == 0 {
			t.Errorf("POST %s = %d %v", body, w.Code, errs)
		}
	}
}

func TestExports(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	withPath := db_store.Flight{Name: "A", PathGeoJSON: types.NullJSONText{JSONText: types.JSONText(madridBarcelona), Valid: true}}
	noPath := db_store.Flight{Name: "B"}
	env.store.InsertFlight(ctx, &withPath)
	env.store.InsertFlight(ctx, &noPath)

	w := env.doJSON(http.MethodGet, "/export/flights.geojson", "")
	if ct := w.Header().Get("Content-Type"); ct != GEOJSON_CONTENT_TYPE {
		t.Errorf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "flights.geojson") {
		t.Errorf("content disposition = %q", cd)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 || fc.Features[0].Properties["name"] != "A" {
		t.Errorf("flights export = %s", w.Body)
	}

	if w := env.doJSON(http.MethodGet, "/flight/"+strconv.FormatInt(withPath.Id, 10)+"/export/", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"distance_km"`) {
		t.Errorf("single export = %d %s", w.Code, w.Body)
	}
	if w := env.doJSON(http.MethodGet, "/flight/"+strconv.FormatInt(noPath.Id, 10)+"/export/", ""); w.Code != http.StatusNotFound {
		t.Errorf("pathless export = %d", w.Code)
	}

	w = env.doJSON(http.MethodGet, "/export/photos.geojson", "")
	if !strings.Contains(w.Body.String(), `"features":[]`) {
		t.Errorf("empty photos export = %s", w.Body)
	}
}

func TestHTMLViews(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/", "/map/", "/map3d/", "/photos/", "/flights/", "/flights/new/", "/upload/photo/"} {
		w := env.doJSON(http.MethodGet, path, "")
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<html") {
			t.Errorf("GET %s = %d", path, w.Code)
		}
	}

	if w := env.doJSON(http.MethodGet, "/photos/12/edit/", ""); w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "<html") {
		t.Errorf("missing photo page = %d", w.Code)
	}
}

func TestUploadPhotoView(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(multipartRequest(t, http.MethodPost, "/upload/photo/",
		map[string]string{"notes": "sin gps"},
		upload{"image", "a.jpg", []byte("no exif here")},
	))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), msgNoCoordinates) {
		t.Errorf("upload without coordinates = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "sin gps") {
		t.Error("form was not re-rendered with the submitted notes")
	}

	w = env.do(multipartRequest(t, http.MethodPost, "/upload/photo/",
		map[string]string{"lat": "40", "lon": "-3"},
		upload{"image", "a.jpg", []byte("jpeg")},
	))
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Errorf("upload = %d -> %q", w.Code, w.Header().Get("Location"))
	}
}

func TestFlightCreateView(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(multipartRequest(t, http.MethodPost, "/flights/new/",
		map[string]string{"name": "Desde fichero", "path_geojson": ""},
		upload{"path_file", "ruta.geojson", []byte(`{"type":"Feature","properties":{},"geometry":` + madridBarcelona + `}`)},
	))
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/flights/" {
		t.Fatalf("create = %d %s", w.Code, w.Body)
	}

	flights, _ := env.store.GetAllFlights(context.Background())
	if len(flights) != 1 || !flights[0].HasPath() {
		t.Fatalf("flights = %+v", flights)
	}

	w = env.doJSON(http.MethodGet, "/flights/", "")
	if !strings.Contains(w.Body.String(), "Desde fichero") || !strings.Contains(w.Body.String(), " km") {
		t.Errorf("flight list = %s", w.Body)
	}

	req := httptest.NewRequest(http.MethodPost, "/flights/"+strconv.FormatInt(flights[0].Id, 10)+"/delete/", nil)
	if w := env.do(req); w.Code != http.StatusFound {
		t.Errorf("delete = %d", w.Code)
	}
	if n, _ := env.store.CountFlights(context.Background()); n != 0 {
		t.Errorf("flights left = %d", n)
	}
}

func TestSetLanguage(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/set-language/", strings.NewReader("language=en&next=/flights/"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := env.do(req)

	if w.Code != http.StatusFound || w.Header().Get("Location") != "/flights/" {
		t.Errorf("set-language = %d -> %q", w.Code, w.Header().Get("Location"))
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), LANGUAGE_COOKIE+"=en") {
		t.Errorf("cookie = %q", w.Header().Get("Set-Cookie"))
	}

	req = httptest.NewRequest(http.MethodGet, "/flights/", nil)
	req.AddCookie(&http.Cookie{Name: LANGUAGE_COOKIE, Value: "en"})
	if w := env.do(req); !strings.Contains(w.Body.String(), "No flights yet.") {
		t.Error("page not rendered in english")
	}
}

func TestSafeRedirectTarget(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                     "/",
		"/photos/":             "/photos/",
		"/map/?x=1":            "/map/?x=1",
		"https://evil.example": "/",
		"//evil.example/":      "/",
		`/\evil.example`:       "/",
		"relative":             "/",
	}

	for next, want := range tests {
		if got := safeRedirectTarget(next); got != want {
			t.Errorf("safeRedirectTarget(%q) = %q, want %q", next, got, want)
		}
	}
}

func TestRequestLanguage(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		cookie string
		accept string
		want   string
	}{
		{"", "", "es"},
		{"", "en-GB,en;q=0.9", "en"},
		{"", "fr-FR", "es"},
		{"es", "en", "es"},
		{"de", "en", "en"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.cookie != "" {
			req.AddCookie(&http.Cookie{Name: LANGUAGE_COOKIE, Value: tt.cookie})
		}
		if tt.accept != "" {
			req.Header.Set("Accept-Language", tt.accept)
		}
		w := env.do(req)
		if !strings.Contains(w.Body.String(), `<html lang="`+tt.want+`">`) {
			t.Errorf("cookie=%q accept=%q: want lang %q", tt.cookie, tt.accept, tt.want)
		}
	}
}
