package httpserver

import (
	"context"
	"fmt"
	"mime/multipart"
	"strconv"
	"time"

	"gopkg.in/guregu/null.v4"

	"github.com/SkylogUAS/Skylog/db_store"
	"github.com/SkylogUAS/Skylog/media_store"
	"github.com/SkylogUAS/Skylog/photo_exif"
)

const msgBadImage = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."

var takenAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
}

func parseTakenAt(s string) (time.Time, bool) {
	for _, layout := range takenAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type photoForm struct {
	Flight  string `json:"flight" binding:"omitempty,number"`
	Lat     string `json:"lat" binding:"omitempty,latitude"`
	Lon     string `json:"lon" binding:"omitempty,longitude"`
	TakenAt string `json:"taken_at"`
	Notes   string `json:"notes"`
}

func photoFormFromPhoto(photo *db_store.Photo) photoForm {
	var form photoForm

	if photo.Id == 0 {
		return form
	}

	if photo.FlightId.Valid {
		form.Flight = strconv.FormatInt(photo.FlightId.Int64, 10)
	}
	form.Lat = strconv.FormatFloat(photo.Lat, 'f', -1, 64)
	form.Lon = strconv.FormatFloat(photo.Lon, 'f', -1, 64)
	if photo.TakenAt.Valid {
		form.TakenAt = photo.TakenAt.Time.Format(time.RFC3339)
	}
	form.Notes = photo.Notes

	return form
}

// photoUpdate is a validated photo change, ready to be stored.
type photoUpdate struct {
	upload   *multipart.FileHeader
	file     multipart.File
	oldImage string
}

func (update *photoUpdate) Close() {
	if update.file != nil {
		update.file.Close()
	}
}

// readPhotoMetadata tries the EXIF block of an uploaded image.
func (srv *HTTPServer) readPhotoMetadata(file multipart.File) *photo_exif.Metadata {
	md, err := photo_exif.ExtractMetadata(file)
	if err != nil {
		srv.logger.Debugf("HTTP: no EXIF in upload: %v", err)
		srv.statsCollector.AddExifGPSResult(false)
		return nil
	}
	srv.statsCollector.AddExifGPSResult(md.Coordinates != nil)
	return md
}

// applyPhotoFields validates the request against 'photo' and copies it
// over. When coordinates are not sent, they are read from the EXIF data
// of a newly uploaded image. The caller must Close() the returned update
// and then storePhotoUpload() it. A non-nil error is a store failure.
func (srv *HTTPServer) applyPhotoFields(ctx context.Context, fields *requestFields, photo *db_store.Photo, requireImage bool) (*photoUpdate, FieldErrors, error) {
	errs := make(FieldErrors)
	update := &photoUpdate{}

	form := photoFormFromPhoto(photo)
	fields.readStrings(errs, map[string]*string{
		"flight":   &form.Flight,
		"lat":      &form.Lat,
		"lon":      &form.Lon,
		"taken_at": &form.TakenAt,
		"notes":    &form.Notes,
	})

	errs.Merge(validateForm(&form, fields))

	var flightId null.Int
	if _, failed := errs["flight"]; !failed && form.Flight != "" {
		id, err := strconv.ParseInt(form.Flight, 10, 64)
		if err != nil {
			errs.Add("flight", "Incorrect type. Expected pk value.")
		} else {
			flight, err := srv.store.GetFlightByID(ctx, id)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to look up flight %d: %w", id, err)
			} else if flight == nil {
				errs.Add("flight", fmt.Sprintf(`Invalid pk "%d" - object does not exist.`, id))
			} else {
				flightId = null.IntFrom(id)
			}
		}
	}

	var takenAt null.Time
	if form.TakenAt != "" {
		if t, ok := parseTakenAt(form.TakenAt); ok {
			takenAt = null.TimeFrom(t)
		} else {
			errs.Add("taken_at", msgBadDatetime)
		}
	}

	if upload := fields.File("image"); upload != nil {
		if !media_store.AllowedPhotoExtension(upload.Filename) {
			errs.Add("image", msgBadImage)
		} else if file, err := upload.Open(); err != nil {
			errs.Add("image", msgBadImage)
		} else {
			update.upload = upload
			update.file = file
		}
	} else if requireImage {
		errs.Add("image", msgNoFile)
	}

	var lat, lon *float64
	if _, failed := errs["lat"]; !failed && form.Lat != "" {
		if v, err := strconv.ParseFloat(form.Lat, 64); err == nil {
			lat = &v
		}
	}
	if _, failed := errs["lon"]; !failed && form.Lon != "" {
		if v, err := strconv.ParseFloat(form.Lon, 64); err == nil {
			lon = &v
		}
	}

	sent := func(name string) bool {
		value, _ := fields.String(name)
		return fields.Has(name) && value != ""
	}

	if update.file != nil && (!sent("lat") || !sent("lon") || !takenAt.Valid) {
		if md := srv.readPhotoMetadata(update.file); md != nil {
			if md.Coordinates != nil && (!sent("lat") || !sent("lon")) {
				lat, lon = &md.Coordinates.Lat, &md.Coordinates.Lon
			}
			if !takenAt.Valid && !md.TakenAt.IsZero() && !sent("taken_at") {
				takenAt = null.TimeFrom(md.TakenAt)
			}
		}
	}

	if len(errs) == 0 && (lat == nil || lon == nil) {
		errs.Add(NON_FIELD_ERRORS, msgNoCoordinates)
	}

	if len(errs) > 0 {
		update.Close()
		return nil, errs, nil
	}

	photo.FlightId = flightId
	photo.Lat = *lat
	photo.Lon = *lon
	photo.TakenAt = takenAt
	photo.Notes = form.Notes

	return update, nil, nil
}

// storePhotoUpload writes a new image to the media store and points
// 'photo' at it. The replaced image is remembered for removal.
func (srv *HTTPServer) storePhotoUpload(update *photoUpdate, photo *db_store.Photo) error {
	if update.file == nil {
		return nil
	}

	relPath, err := srv.mediaStore.SavePhoto(update.upload.Filename, update.file)
	if err != nil {
		return err
	}

	update.oldImage = photo.Image
	photo.Image = relPath
	return nil
}

func (srv *HTTPServer) deleteImage(relPath string) {
	if relPath == "" {
		return
	}
	if err := srv.mediaStore.Delete(relPath); err != nil {
		srv.logger.Warnf("HTTP: failed to delete image '%s': %v", relPath, err)
	}
}
