package exporters

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const DEFAULT_DEMO_ZONE_COUNT = 20

// grid over mainland Spain, in degrees
const (
	demoLonMin, demoLonMax = -9.5, 3.5
	demoLatMin, demoLatMax = 36.0, 43.9
	demoLonStep            = 0.7
	demoLatStep            = 0.6
	demoCellLon            = 0.20
	demoCellLat            = 0.18
)

var demoZoneClasses = []string{
	"Zona de control CTR",
	"Zona prohibida",
	"Zona restringida",
	"Zona militar restringida",
	"Zona militar prohibida",
	"Zona urbana sensible",
	"Espacio natural protegido",
	"Infraestructura crítica",
}

var demoZoneTypes = []string{
	"Aeropuerto",
	"Base militar",
	"Zona urbana sensible",
	"Zona histórica",
	"Campo de maniobras",
	"Zona industrial crítica",
	"Parque nacional",
	"Reserva natural",
	"Puerto comercial",
	"Instalación logística",
}

// DemoExporter generates small square zones on a fixed grid. The output
// only depends on Count.
type DemoExporter struct {
	Count int
}

func (*DemoExporter) ExporterName() string {
	return "demo"
}

func gridSteps(min, max, step float64) []float64 {
	n := int((max-min)/step) + 1
	values := make([]float64, n)
	for i := range values {
		values[i] = min + float64(i)*step
	}
	return values
}

func (exporter *DemoExporter) ExportFeatures(ctx context.Context) ([]*geojson.Feature, error) {
	count := exporter.Count
	if count <= 0 {
		count = DEFAULT_DEMO_ZONE_COUNT
	}

	features := make([]*geojson.Feature, 0, count)
	lons := gridSteps(demoLonMin, demoLonMax, demoLonStep)

	for _, lat := range gridSteps(demoLatMin, demoLatMax, demoLatStep) {
		for _, lon := range lons {
			if len(features) >= count {
				return features, nil
			}

			lon1 := max(lon, demoLonMin)
			lon2 := min(lon+demoCellLon, demoLonMax)
			lat1 := max(lat, demoLatMin)
			lat2 := min(lat+demoCellLat, demoLatMax)

			// mostly open sea
			if lon2 < -9.0 || lon1 > 3.0 {
				continue
			}
			if lat2 < 36.0 || lat1 > 43.8 {
				continue
			}

			n := len(features) + 1

			feature := geojson.NewFeature(orb.Polygon{orb.Ring{
				{lon1, lat1},
				{lon2, lat1},
				{lon2, lat2},
				{lon1, lat2},
				{lon1, lat1},
			}})
			feature.Properties["name"] = fmt.Sprintf("Zona UAS DEMO #%d", n)
			feature.Properties["class"] = demoZoneClasses[(n-1)%len(demoZoneClasses)]
			feature.Properties["type"] = demoZoneTypes[(n-1)%len(demoZoneTypes)]

			features = append(features, feature)
		}
	}

	return features, nil
}

func NewDemoExporter(count int) *DemoExporter {
	return &DemoExporter{Count: count}
}
