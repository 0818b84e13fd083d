package httpserver

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx/types"
	"github.com/paulmach/orb"
	"gopkg.in/guregu/null.v4"

	"github.com/SkylogUAS/Skylog/db_store"
	"github.com/SkylogUAS/Skylog/geo"
	"github.com/SkylogUAS/Skylog/zone_index"
)

const MAX_PATH_BODY_BYTES = 8 << 20

type APIFlight struct {
	Id          int64           `json:"id"`
	Name        string          `json:"name"`
	DroneModel  string          `json:"drone_model"`
	Date        *string         `json:"date"`
	PathGeoJSON json.RawMessage `json:"path_geojson"`
}

func apiFlightFromFlight(flight *db_store.Flight) APIFlight {
	apiFlight := APIFlight{
		Id:         flight.Id,
		Name:       flight.Name,
		DroneModel: flight.DroneModel,
	}
	if flight.Date.Valid {
		date := flight.Date.Time.Format(time.DateOnly)
		apiFlight.Date = &date
	}
	if flight.HasPath() {
		apiFlight.PathGeoJSON = json.RawMessage(flight.PathGeoJSON.JSONText)
	} else {
		apiFlight.PathGeoJSON = json.RawMessage(jsonNull)
	}
	return apiFlight
}

type flightForm struct {
	Name       string `json:"name" binding:"required,max=120"`
	DroneModel string `json:"drone_model" binding:"max=120"`
	Date       string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

type APISavePathResponse struct {
	Status     string  `json:"status"`
	FlightId   int64   `json:"flight_id"`
	Points     int     `json:"points"`
	DistanceKm float64 `json:"distance_km"`
}

type APIZonesResponse struct {
	Zones []zone_index.ZoneRef `json:"zones"`
}

func roundKm(meters float64) float64 {
	return math.Round(meters) / 1000
}

// idParam parses the ":id" route param, replying 404 when it isn't one.
func (srv *HTTPServer) idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		srv.notFound(c)
		return 0, false
	}
	return id, true
}

func storedPath(ls orb.LineString) (types.NullJSONText, error) {
	data, err := geo.PathGeometryJSON(ls)
	if err != nil {
		return types.NullJSONText{}, err
	}
	return types.NullJSONText{JSONText: data, Valid: true}, nil
}

// applyFlightFields copies the request onto 'flight'. Fields missing from
// the request keep their current value. Unless 'partial', "name" must be sent.
// The returned path is set when a new path was stored.
func applyFlightFields(fields *requestFields, flight *db_store.Flight, partial bool) (orb.LineString, FieldErrors) {
	errs := make(FieldErrors)

	if !partial {
		fields.requireFields(errs, "name")
	}

	form := flightForm{
		Name:       flight.Name,
		DroneModel: flight.DroneModel,
	}
	if flight.Date.Valid {
		form.Date = flight.Date.Time.Format(time.DateOnly)
	}

	fields.readStrings(errs, map[string]*string{
		"name":        &form.Name,
		"drone_model": &form.DroneModel,
		"date":        &form.Date,
	})

	errs.Merge(validateForm(&form, fields))

	var path orb.LineString

	if fields.Has("path_geojson") {
		if raw := fields.Raw("path_geojson"); raw == nil {
			flight.PathGeoJSON = types.NullJSONText{}
		} else {
			ls, err := geo.NormalizePath(raw)
			if err != nil {
				errs.Add("path_geojson", err.Error())
			} else if stored, err := storedPath(ls); err != nil {
				errs.Add("path_geojson", err.Error())
			} else {
				flight.PathGeoJSON = stored
				path = ls
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	flight.Name = form.Name
	flight.DroneModel = form.DroneModel
	if form.Date == "" {
		flight.Date = null.Time{}
	} else {
		date, _ := time.Parse(time.DateOnly, form.Date)
		flight.Date = null.TimeFrom(date)
	}

	return path, nil
}

func (srv *HTTPServer) flightPathAlert(c *gin.Context, flight *db_store.Flight, ls orb.LineString) {
	if len(ls) == 0 {
		return
	}
	zones := srv.zoneIndex.GetZonesAlongPath(c.Request.Context(), ls)
	srv.raiseFlightAlert(c, flight.Id, flight.Name, zones, ls[0].Lat(), ls[0].Lon())
}

func (srv *HTTPServer) handleListFlights(c *gin.Context) {
	flights, err := srv.store.GetAllFlights(c.Request.Context())
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get flights: %w", err))
		return
	}

	apiFlights := make([]APIFlight, len(flights))
	for idx, flight := range flights {
		apiFlights[idx] = apiFlightFromFlight(flight)
	}

	c.JSON(http.StatusOK, apiFlights)
}

func (srv *HTTPServer) getFlightOr404(c *gin.Context) *db_store.Flight {
	flightId, ok := srv.idParam(c)
	if !ok {
		return nil
	}

	flight, err := srv.store.GetFlightByID(c.Request.Context(), flightId)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get flight %d: %w", flightId, err))
		return nil
	}

	if flight == nil {
		srv.notFound(c)
	}

	return flight
}

func (srv *HTTPServer) handleGetFlight(c *gin.Context) {
	flight := srv.getFlightOr404(c)
	if flight == nil {
		return
	}
	c.JSON(http.StatusOK, apiFlightFromFlight(flight))
}

func (srv *HTTPServer) badRequestBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, APIDetailResponse{Detail: err.Error()})
}

func (srv *HTTPServer) handleCreateFlight(c *gin.Context) {
	fields, err := readRequestFields(c, MAX_PATH_BODY_BYTES)
	if err != nil {
		srv.badRequestBody(c, err)
		return
	}

	var flight db_store.Flight

	path, errs := applyFlightFields(fields, &flight, false)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errs)
		return
	}

	if _, err := srv.store.InsertFlight(c.Request.Context(), &flight); err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to insert flight: %w", err))
		return
	}

	srv.statsCollector.AddFlightCreated()
	srv.logger.Infof("HTTP: created flight %d (%s)", flight.Id, flight.Name)
	srv.flightPathAlert(c, &flight, path)

	c.JSON(http.StatusCreated, apiFlightFromFlight(&flight))
}

// handleUpdateFlight serves PUT and PATCH.
func (srv *HTTPServer) handleUpdateFlight(c *gin.Context) {
	flight := srv.getFlightOr404(c)
	if flight == nil {
		return
	}

	fields, err := readRequestFields(c, MAX_PATH_BODY_BYTES)
	if err != nil {
		srv.badRequestBody(c, err)
		return
	}

	path, errs := applyFlightFields(fields, flight, c.Request.Method == http.MethodPatch)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errs)
		return
	}

	if err := srv.store.UpdateFlight(c.Request.Context(), flight); err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to update flight %d: %w", flight.Id, err))
		return
	}

	srv.flightPathAlert(c, flight, path)

	c.JSON(http.StatusOK, apiFlightFromFlight(flight))
}

func (srv *HTTPServer) handleDeleteFlightAPI(c *gin.Context) {
	flightId, ok := srv.idParam(c)
	if !ok {
		return
	}

	deleted, err := srv.store.DeleteFlight(c.Request.Context(), flightId)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to delete flight %d: %w", flightId, err))
		return
	}

	if !deleted {
		srv.notFound(c)
		return
	}

	srv.logger.Infof("HTTP: deleted flight %d", flightId)
	c.Status(http.StatusNoContent)
}

func (srv *HTTPServer) handleGetFlightZones(c *gin.Context) {
	flight := srv.getFlightOr404(c)
	if flight == nil {
		return
	}

	resp := APIZonesResponse{Zones: []zone_index.ZoneRef{}}

	if flight.HasPath() {
		ls, err := geo.NormalizePath(flight.PathGeoJSON.JSONText)
		if err == nil {
			if zones := srv.zoneIndex.GetZonesAlongPath(c.Request.Context(), ls); zones != nil {
				resp.Zones = zones
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (srv *HTTPServer) handleSaveFlightPath(c *gin.Context) {
	flight := srv.getFlightOr404(c)
	if flight == nil {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MAX_PATH_BODY_BYTES))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIErrorResponse{Error: err.Error()})
		return
	}

	ls, err := geo.NormalizePath(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, APIErrorResponse{Error: err.Error()})
		return
	}

	stored, err := storedPath(ls)
	if err != nil {
		c.JSON(http.StatusBadRequest, APIErrorResponse{Error: err.Error()})
		return
	}

	found, err := srv.store.UpdateFlightPath(c.Request.Context(), flight.Id, stored)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to save path of flight %d: %w", flight.Id, err))
		return
	}

	if !found {
		srv.notFound(c)
		return
	}

	srv.logger.Infof("HTTP: saved path of flight %d (%d points)", flight.Id, len(ls))
	srv.flightPathAlert(c, flight, ls)

	c.JSON(http.StatusOK, APISavePathResponse{
		Status:     "ok",
		FlightId:   flight.Id,
		Points:     len(ls),
		DistanceKm: roundKm(geo.PathLengthMeters(ls)),
	})
}
