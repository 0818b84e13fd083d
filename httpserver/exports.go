package httpserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SkylogUAS/Skylog/exporters"
)

const GEOJSON_CONTENT_TYPE = "application/geo+json"

func (srv *HTTPServer) writeGeoJSON(c *gin.Context, filename string, v interface{ MarshalJSON() ([]byte, error) }) {
	data, err := v.MarshalJSON()
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to encode %s: %w", filename, err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, GEOJSON_CONTENT_TYPE, data)
}

func (srv *HTTPServer) exportCollection(c *gin.Context, filename string, exporter exporters.Exporter) {
	fc, err := exporters.FeatureCollection(c.Request.Context(), exporter)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to export %s: %w", exporter.ExporterName(), err))
		return
	}
	srv.writeGeoJSON(c, filename, fc)
}

func (srv *HTTPServer) mediaURLFunc(c *gin.Context) exporters.MediaURLFunc {
	return func(relPath string) string {
		return srv.absoluteURL(c, srv.mediaStore.URL(relPath))
	}
}

func (srv *HTTPServer) handleExportPhotos(c *gin.Context) {
	srv.exportCollection(c, "photos.geojson", exporters.NewPhotosExporter(srv.store, srv.mediaURLFunc(c)))
}

func (srv *HTTPServer) handleExportFlights(c *gin.Context) {
	srv.exportCollection(c, "flights.geojson", exporters.NewFlightsExporter(srv.logger, srv.store, srv.store))
}

func (srv *HTTPServer) handleExportZones(c *gin.Context) {
	srv.exportCollection(c, "zones.geojson", exporters.NewZonesExporter(srv.logger, srv.store))
}

func (srv *HTTPServer) handleExportFlight(c *gin.Context) {
	flight := srv.getFlightOr404(c)
	if flight == nil {
		return
	}

	photos, err := srv.store.GetPhotosByFlight(c.Request.Context(), flight.Id)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get photos of flight %d: %w", flight.Id, err))
		return
	}

	feature, err := exporters.FlightFeature(flight, len(photos))
	if err != nil {
		srv.notFound(c)
		return
	}

	srv.writeGeoJSON(c, fmt.Sprintf("flight_%d.geojson", flight.Id), feature)
}
