package zone_index

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/SkylogUAS/Skylog/db_store"
)

type fakeSource struct {
	zones []*db_store.Zone
	err   error
	calls int
}

func (src *fakeSource) GetAllZones(ctx context.Context) ([]*db_store.Zone, error) {
	src.calls++
	return src.zones, src.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestZoneIndexLookups(t *testing.T) {
	src := &fakeSource{
		zones: []*db_store.Zone{
			{Id: 1, Name: "CTR Madrid", ZoneType: "CTR", Geometry: []byte(`{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[-4,40],[-3,40],[-3,41],[-4,41],[-4,40]]]}}`)},
			{Id: 2, Name: "broken", ZoneType: "x", Geometry: []byte(`{"type":"Point","coordinates":[0,0]}`)},
		},
	}

	idx := NewZoneIndex(quietLogger(), src)
	ctx := context.Background()

	zones := idx.GetMatchingZones(ctx, 40.4, -3.7)
	if len(zones) != 1 || zones[0] != (ZoneRef{1, "CTR Madrid", "CTR"}) {
		t.Fatalf("GetMatchingZones() = %v", zones)
	}

	if zones := idx.GetMatchingZones(ctx, 0, 0); len(zones) != 0 {
		t.Errorf("GetMatchingZones(0, 0) = %v, want none", zones)
	}

	path := orb.LineString{{-5, 39}, {-3.5, 40.5}, {-3.4, 40.6}}
	if zones := idx.GetZonesAlongPath(ctx, path); len(zones) != 1 {
		t.Errorf("GetZonesAlongPath() = %v, want one zone", zones)
	}

	if src.calls != 1 {
		t.Errorf("source loaded %d times, want 1", src.calls)
	}
}

func TestZoneIndexInvalidate(t *testing.T) {
	src := &fakeSource{}
	idx := NewZoneIndex(quietLogger(), src)
	ctx := context.Background()

	if zones := idx.GetMatchingZones(ctx, 0.5, 0.5); len(zones) != 0 {
		t.Fatalf("GetMatchingZones() = %v, want none", zones)
	}

	src.zones = []*db_store.Zone{
		{Id: 7, Name: "new", ZoneType: "P", Geometry: []byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`)},
	}

	// still cached
	if zones := idx.GetMatchingZones(ctx, 0.5, 0.5); len(zones) != 0 {
		t.Fatalf("GetMatchingZones() before Invalidate = %v, want none", zones)
	}

	idx.Invalidate()

	if zones := idx.GetMatchingZones(ctx, 0.5, 0.5); len(zones) != 1 || zones[0].Id != 7 {
		t.Errorf("GetMatchingZones() after Invalidate = %v", zones)
	}
}

func TestZoneIndexSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	idx := NewZoneIndex(quietLogger(), src)

	if err := idx.Reload(context.Background()); err == nil {
		t.Error("Reload() should fail")
	}
	if zones := idx.GetMatchingZones(context.Background(), 1, 1); zones != nil {
		t.Errorf("GetMatchingZones() = %v, want nil", zones)
	}
}

// blocks its first load until released
type gatedSource struct {
	mutex   sync.Mutex
	zones   []*db_store.Zone
	gated   bool
	calls   int
	loading chan struct{}
	release chan struct{}
}

func (src *gatedSource) GetAllZones(ctx context.Context) ([]*db_store.Zone, error) {
	src.mutex.Lock()
	zones, gated := src.zones, src.gated
	src.calls++
	src.mutex.Unlock()

	if gated {
		src.loading <- struct{}{}
		<-src.release
	}
	return zones, nil
}

func (src *gatedSource) setZones(zones []*db_store.Zone) {
	src.mutex.Lock()
	src.zones = zones
	src.gated = false
	src.mutex.Unlock()
}

func (src *gatedSource) loads() int {
	src.mutex.Lock()
	defer src.mutex.Unlock()
	return src.calls
}

func TestZoneIndexInvalidateDuringReload(t *testing.T) {
	src := &gatedSource{
		gated:   true,
		loading: make(chan struct{}),
		release: make(chan struct{}),
	}
	idx := NewZoneIndex(quietLogger(), src)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- idx.Reload(ctx) }()

	select {
	case <-src.loading:
	case <-time.After(5 * time.Second):
		t.Fatal("Reload() never loaded zones")
	}

	// a zone is written while the old zone set is still being indexed
	src.setZones([]*db_store.Zone{
		{Id: 3, Name: "nueva", ZoneType: "P", Geometry: []byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`)},
	})
	idx.Invalidate()
	close(src.release)

	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if zones := idx.GetMatchingZones(ctx, 0.5, 0.5); len(zones) != 1 || zones[0].Id != 3 {
		t.Errorf("GetMatchingZones() after Invalidate during Reload = %v", zones)
	}
}

func TestZoneIndexConcurrentLookupsLoadOnce(t *testing.T) {
	src := &gatedSource{}
	src.setZones([]*db_store.Zone{
		{Id: 1, Name: "CTR", ZoneType: "CTR", Geometry: []byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`)},
	})
	idx := NewZoneIndex(quietLogger(), src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if zones := idx.GetMatchingZones(context.Background(), 0.5, 0.5); len(zones) != 1 {
				t.Errorf("GetMatchingZones() = %v", zones)
			}
		}()
	}
	wg.Wait()

	if n := src.loads(); n != 1 {
		t.Errorf("zones loaded %d times, want 1", n)
	}
}
