package httpserver

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"gopkg.in/guregu/null.v4"

	"github.com/SkylogUAS/Skylog/db_store"
	"github.com/SkylogUAS/Skylog/geo"
)

const (
	HOME_LATEST_COUNT = 5
	htmlViewKey       = "skylog_html_view"
)

//go:embed templates/*.html
var templatesFS embed.FS

func templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"tr":  translate,
		"add": func(a, b int) int { return a + b },
		"formatDate": func(t null.Time) string {
			if !t.Valid {
				return ""
			}
			return t.Time.Format(time.DateOnly)
		},
		"formatDatetime": func(t null.Time) string {
			if !t.Valid {
				return ""
			}
			return t.Time.Format("2006-01-02 15:04")
		},
		"km": func(v float64) string {
			return fmt.Sprintf("%.2f km", v)
		},
	}
}

func loadTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncMap()).ParseFS(templatesFS, "templates/*.html")
}

// htmlView marks a route as a page so errors are rendered as html.
func (srv *HTTPServer) htmlView(c *gin.Context) {
	c.Set(htmlViewKey, true)
	c.Next()
}

func (srv *HTTPServer) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Lang"] = requestLanguage(c)
	data["Path"] = c.Request.URL.RequestURI()
	c.HTML(status, name, data)
}

type flightRow struct {
	*db_store.Flight
	DistanceKm float64
}

type photoRow struct {
	*db_store.Photo
	ImageURL   string
	FlightName string
}

func (srv *HTTPServer) flightRows(flights []*db_store.Flight) []flightRow {
	rows := make([]flightRow, len(flights))
	for idx, flight := range flights {
		rows[idx] = flightRow{Flight: flight}
		if flight.HasPath() {
			rows[idx].DistanceKm = geo.PathLengthKm(flight.PathGeoJSON.JSONText)
		}
	}
	return rows
}

func (srv *HTTPServer) photoRows(photos []*db_store.Photo, flights []*db_store.Flight) []photoRow {
	names := make(map[int64]string, len(flights))
	for _, flight := range flights {
		names[flight.Id] = flight.Name
	}

	rows := make([]photoRow, len(photos))
	for idx, photo := range photos {
		rows[idx] = photoRow{
			Photo:    photo,
			ImageURL: srv.mediaStore.URL(photo.Image),
		}
		if photo.FlightId.Valid {
			rows[idx].FlightName = names[photo.FlightId.Int64]
		}
	}
	return rows
}

func (srv *HTTPServer) handleHome(c *gin.Context) {
	ctx := c.Request.Context()

	flights, err := srv.store.GetAllFlights(ctx)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get flights: %w", err))
		return
	}

	photos, err := srv.store.GetAllPhotos(ctx)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get photos: %w", err))
		return
	}

	numZones, err := srv.store.CountZones(ctx)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to count zones: %w", err))
		return
	}

	srv.render(c, http.StatusOK, "home.html", gin.H{
		"NumFlights": len(flights),
		"NumPhotos":  len(photos),
		"NumZones":   numZones,
		"Flights":    srv.flightRows(flights[:min(len(flights), HOME_LATEST_COUNT)]),
		"Photos":     srv.photoRows(photos[:min(len(photos), HOME_LATEST_COUNT)], flights),
	})
}

func (srv *HTTPServer) handleMap(c *gin.Context) {
	srv.render(c, http.StatusOK, "map.html", nil)
}

func (srv *HTTPServer) handleMap3D(c *gin.Context) {
	srv.render(c, http.StatusOK, "map3d.html", nil)
}

// formValues keeps what was submitted so a form can be shown again.
func formValues(fields *requestFields, names ...string) map[string]string {
	values := make(map[string]string, len(names))
	if fields == nil {
		return values
	}
	for _, name := range names {
		values[name], _ = fields.String(name)
	}
	return values
}

var photoFormFields = []string{"flight", "lat", "lon", "taken_at", "notes"}

func (srv *HTTPServer) renderPhotoForm(c *gin.Context, status int, name string, photo *db_store.Photo, values map[string]string, errs FieldErrors) {
	flights, err := srv.store.GetAllFlights(c.Request.Context())
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get flights: %w", err))
		return
	}

	data := gin.H{
		"Flights": flights,
		"Values":  values,
		"Errors":  errs,
	}
	if photo != nil {
		data["Photo"] = photo
		data["ImageURL"] = srv.mediaStore.URL(photo.Image)
	}

	srv.render(c, status, name, data)
}

func (srv *HTTPServer) handleUploadPhotoForm(c *gin.Context) {
	srv.renderPhotoForm(c, http.StatusOK, "upload_photo.html", nil, map[string]string{}, nil)
}

func (srv *HTTPServer) handleUploadPhoto(c *gin.Context) {
	fields, err := readRequestFields(c, srv.mediaStore.MaxUploadBytes())
	if err != nil {
		errs := FieldErrors{NON_FIELD_ERRORS: {err.Error()}}
		srv.renderPhotoForm(c, http.StatusBadRequest, "upload_photo.html", nil, map[string]string{}, errs)
		return
	}

	var photo db_store.Photo

	errs, ok := srv.savePhoto(c, fields, &photo, true)
	if !ok {
		if errs != nil {
			srv.renderPhotoForm(c, http.StatusBadRequest, "upload_photo.html", nil, formValues(fields, photoFormFields...), errs)
		}
		return
	}

	c.Redirect(http.StatusFound, "/")
}

func (srv *HTTPServer) handlePhotoList(c *gin.Context) {
	ctx := c.Request.Context()

	photos, err := srv.store.GetAllPhotos(ctx)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get photos: %w", err))
		return
	}

	flights, err := srv.store.GetAllFlights(ctx)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get flights: %w", err))
		return
	}

	srv.render(c, http.StatusOK, "photo_list.html", gin.H{
		"Photos": srv.photoRows(photos, flights),
	})
}

func (srv *HTTPServer) handleEditPhotoForm(c *gin.Context) {
	photo := srv.getPhotoOr404(c)
	if photo == nil {
		return
	}

	form := photoFormFromPhoto(photo)
	values := map[string]string{
		"flight":   form.Flight,
		"lat":      form.Lat,
		"lon":      form.Lon,
		"taken_at": "",
		"notes":    form.Notes,
	}
	if photo.TakenAt.Valid {
		values["taken_at"] = photo.TakenAt.Time.Format("2006-01-02T15:04")
	}

	srv.renderPhotoForm(c, http.StatusOK, "photo_edit.html", photo, values, nil)
}

func (srv *HTTPServer) handleEditPhoto(c *gin.Context) {
	photo := srv.getPhotoOr404(c)
	if photo == nil {
		return
	}

	fields, err := readRequestFields(c, srv.mediaStore.MaxUploadBytes())
	if err != nil {
		errs := FieldErrors{NON_FIELD_ERRORS: {err.Error()}}
		srv.renderPhotoForm(c, http.StatusBadRequest, "photo_edit.html", photo, map[string]string{}, errs)
		return
	}

	original := *photo

	errs, ok := srv.savePhoto(c, fields, photo, false)
	if !ok {
		if errs != nil {
			srv.renderPhotoForm(c, http.StatusBadRequest, "photo_edit.html", &original, formValues(fields, photoFormFields...), errs)
		}
		return
	}

	c.Redirect(http.StatusFound, "/photos/")
}

func (srv *HTTPServer) handleDeletePhotoConfirm(c *gin.Context) {
	photo := srv.getPhotoOr404(c)
	if photo == nil {
		return
	}
	srv.render(c, http.StatusOK, "confirm_delete.html", gin.H{
		"Object": photo.String(),
		"Cancel": "/photos/",
	})
}

func (srv *HTTPServer) handleDeletePhoto(c *gin.Context) {
	photo := srv.getPhotoOr404(c)
	if photo == nil {
		return
	}

	if _, err := srv.removePhoto(c, photo); err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to delete photo %d: %w", photo.Id, err))
		return
	}

	c.Redirect(http.StatusFound, "/photos/")
}

func (srv *HTTPServer) handleFlightList(c *gin.Context) {
	flights, err := srv.store.GetAllFlights(c.Request.Context())
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get flights: %w", err))
		return
	}

	srv.render(c, http.StatusOK, "flight_list.html", gin.H{
		"Flights": srv.flightRows(flights),
	})
}

var flightFormFields = []string{"name", "drone_model", "date", "path_geojson"}

func (srv *HTTPServer) handleFlightCreateForm(c *gin.Context) {
	srv.render(c, http.StatusOK, "flight_form.html", gin.H{
		"Values": map[string]string{},
		"Errors": FieldErrors(nil),
	})
}

func (srv *HTTPServer) handleFlightCreate(c *gin.Context) {
	fields, err := readRequestFields(c, MAX_PATH_BODY_BYTES)
	if err != nil {
		srv.render(c, http.StatusBadRequest, "flight_form.html", gin.H{
			"Values": map[string]string{},
			"Errors": FieldErrors{NON_FIELD_ERRORS: {err.Error()}},
		})
		return
	}

	errs := make(FieldErrors)

	// an uploaded file wins over a pasted path
	if upload := fields.File("path_file"); upload != nil {
		data, err := readUpload(upload)
		if err != nil {
			errs.Add("path_file", err.Error())
		} else {
			fields.SetRaw("path_geojson", data)
		}
	}

	var flight db_store.Flight

	path, flightErrs := applyFlightFields(fields, &flight, false)
	errs.Merge(flightErrs)

	if len(errs) > 0 {
		srv.render(c, http.StatusBadRequest, "flight_form.html", gin.H{
			"Values": formValues(fields, flightFormFields...),
			"Errors": errs,
		})
		return
	}

	if _, err := srv.store.InsertFlight(c.Request.Context(), &flight); err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to insert flight: %w", err))
		return
	}

	srv.statsCollector.AddFlightCreated()
	srv.logger.Infof("HTTP: created flight %d (%s)", flight.Id, flight.Name)
	srv.flightPathAlert(c, &flight, path)

	c.Redirect(http.StatusFound, "/flights/")
}

func readUpload(upload *multipart.FileHeader) ([]byte, error) {
	f, err := upload.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, MAX_PATH_BODY_BYTES))
}

func (srv *HTTPServer) handleDeleteFlightConfirm(c *gin.Context) {
	flight := srv.getFlightOr404(c)
	if flight == nil {
		return
	}
	srv.render(c, http.StatusOK, "confirm_delete.html", gin.H{
		"Object": flight.String(),
		"Cancel": "/flights/",
	})
}

func (srv *HTTPServer) handleDeleteFlight(c *gin.Context) {
	flight := srv.getFlightOr404(c)
	if flight == nil {
		return
	}

	if _, err := srv.store.DeleteFlight(c.Request.Context(), flight.Id); err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to delete flight %d: %w", flight.Id, err))
		return
	}

	srv.logger.Infof("HTTP: deleted flight %d (%s)", flight.Id, flight.Name)
	c.Redirect(http.StatusFound, "/flights/")
}

func (srv *HTTPServer) handleEditFlightPath(c *gin.Context) {
	flight := srv.getFlightOr404(c)
	if flight == nil {
		return
	}

	path := json.RawMessage(jsonNull)
	if flight.HasPath() {
		if ls, err := geo.NormalizePath(flight.PathGeoJSON.JSONText); err == nil {
			if data, err := geo.PathGeometryJSON(ls); err == nil {
				path = data
			}
		}
	}

	srv.render(c, http.StatusOK, "flight_edit_path.html", gin.H{
		"Flight":   flight,
		"PathJSON": path,
		"SaveURL":  fmt.Sprintf("/api/flights/%d/save_path", flight.Id),
	})
}

// safeRedirectTarget accepts only paths on this site.
func safeRedirectTarget(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return next
}

func (srv *HTTPServer) handleSetLanguage(c *gin.Context) {
	next := safeRedirectTarget(c.PostForm("next"))

	if lang := c.PostForm("language"); isSupportedLanguage(lang) {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(LANGUAGE_COOKIE, lang, 365*24*3600, "/", "", false, false)
	}

	c.Redirect(http.StatusFound, next)
}
