package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx/types"

	"github.com/SkylogUAS/Skylog/db_store"
	"github.com/SkylogUAS/Skylog/zone_index"
)

var geoJSONTypes = map[string]struct{}{
	"Feature":            {},
	"FeatureCollection":  {},
	"Point":              {},
	"MultiPoint":         {},
	"LineString":         {},
	"MultiLineString":    {},
	"Polygon":            {},
	"MultiPolygon":       {},
	"GeometryCollection": {},
}

var errNotGeoJSON = errors.New(`Value must be a GeoJSON object with a "type".`)

type APIZone struct {
	Id       int64           `json:"id"`
	Name     string          `json:"name"`
	ZoneType string          `json:"zone_type"`
	Geometry json.RawMessage `json:"geometry"`
}

func apiZoneFromZone(zone *db_store.Zone) APIZone {
	return APIZone{
		Id:       zone.Id,
		Name:     zone.Name,
		ZoneType: zone.ZoneType,
		Geometry: json.RawMessage(zone.Geometry),
	}
}

type zoneForm struct {
	Name     string `json:"name" binding:"required,max=120"`
	ZoneType string `json:"zone_type" binding:"required,max=80"`
}

func checkGeoJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if !json.Valid(raw) {
		return errors.New(msgInvalidJSON)
	}

	if len(raw) == 0 || raw[0] != '{' {
		return errNotGeoJSON
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return errNotGeoJSON
	}

	if _, ok := geoJSONTypes[head.Type]; !ok {
		return errNotGeoJSON
	}
	return nil
}

func applyZoneFields(fields *requestFields, zone *db_store.Zone, partial bool) FieldErrors {
	errs := make(FieldErrors)

	if !partial {
		fields.requireFields(errs, "name", "zone_type", "geometry")
	}

	form := zoneForm{
		Name:     zone.Name,
		ZoneType: zone.ZoneType,
	}

	fields.readStrings(errs, map[string]*string{
		"name":      &form.Name,
		"zone_type": &form.ZoneType,
	})

	errs.Merge(validateForm(&form, fields))

	geometry := zone.Geometry
	if fields.Has("geometry") {
		raw := fields.Raw("geometry")
		if raw == nil {
			errs.Add("geometry", "This field may not be null.")
		} else if err := checkGeoJSON(raw); err != nil {
			errs.Add("geometry", err.Error())
		} else {
			geometry = types.JSONText(bytes.TrimSpace(raw))
		}
	}

	if len(errs) > 0 {
		return errs
	}

	zone.Name = form.Name
	zone.ZoneType = form.ZoneType
	zone.Geometry = geometry

	return nil
}

func (srv *HTTPServer) handleListZones(c *gin.Context) {
	zones, err := srv.store.GetAllZones(c.Request.Context())
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get zones: %w", err))
		return
	}

	apiZones := make([]APIZone, len(zones))
	for idx, zone := range zones {
		apiZones[idx] = apiZoneFromZone(zone)
	}

	c.JSON(http.StatusOK, apiZones)
}

func (srv *HTTPServer) getZoneOr404(c *gin.Context) *db_store.Zone {
	zoneId, ok := srv.idParam(c)
	if !ok {
		return nil
	}

	zone, err := srv.store.GetZoneByID(c.Request.Context(), zoneId)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get zone %d: %w", zoneId, err))
		return nil
	}

	if zone == nil {
		srv.notFound(c)
	}

	return zone
}

func (srv *HTTPServer) handleGetZone(c *gin.Context) {
	zone := srv.getZoneOr404(c)
	if zone == nil {
		return
	}
	c.JSON(http.StatusOK, apiZoneFromZone(zone))
}

func (srv *HTTPServer) handleCreateZone(c *gin.Context) {
	fields, err := readRequestFields(c, MAX_PATH_BODY_BYTES)
	if err != nil {
		srv.badRequestBody(c, err)
		return
	}

	var zone db_store.Zone

	if errs := applyZoneFields(fields, &zone, false); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errs)
		return
	}

	if _, err := srv.store.InsertZone(c.Request.Context(), &zone); err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to insert zone: %w", err))
		return
	}

	srv.zoneIndex.Invalidate()
	srv.statsCollector.AddZonesCreated(1)
	srv.logger.Infof("HTTP: created zone %d (%s)", zone.Id, zone.Name)

	c.JSON(http.StatusCreated, apiZoneFromZone(&zone))
}

func (srv *HTTPServer) handleUpdateZone(c *gin.Context) {
	zone := srv.getZoneOr404(c)
	if zone == nil {
		return
	}

	fields, err := readRequestFields(c, MAX_PATH_BODY_BYTES)
	if err != nil {
		srv.badRequestBody(c, err)
		return
	}

	if errs := applyZoneFields(fields, zone, c.Request.Method == http.MethodPatch); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errs)
		return
	}

	if err := srv.store.UpdateZone(c.Request.Context(), zone); err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to update zone %d: %w", zone.Id, err))
		return
	}

	srv.zoneIndex.Invalidate()

	c.JSON(http.StatusOK, apiZoneFromZone(zone))
}

func (srv *HTTPServer) handleDeleteZone(c *gin.Context) {
	zoneId, ok := srv.idParam(c)
	if !ok {
		return
	}

	deleted, err := srv.store.DeleteZone(c.Request.Context(), zoneId)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to delete zone %d: %w", zoneId, err))
		return
	}

	if !deleted {
		srv.notFound(c)
		return
	}

	srv.zoneIndex.Invalidate()
	srv.logger.Infof("HTTP: deleted zone %d", zoneId)

	c.Status(http.StatusNoContent)
}

func (srv *HTTPServer) handleMatchZones(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		c.JSON(http.StatusBadRequest, APIErrorResponse{Error: "lat and lon query parameters must be valid coordinates"})
		return
	}

	resp := APIZonesResponse{Zones: []zone_index.ZoneRef{}}
	if zones := srv.zoneIndex.GetMatchingZones(c.Request.Context(), lat, lon); zones != nil {
		resp.Zones = zones
	}

	c.JSON(http.StatusOK, resp)
}
