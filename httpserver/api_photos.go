package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SkylogUAS/Skylog/db_store"
)

type APIPhoto struct {
	Id      int64   `json:"id"`
	Flight  *int64  `json:"flight"`
	Image   string  `json:"image"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	TakenAt *string `json:"taken_at"`
	Notes   string  `json:"notes"`
}

func (srv *HTTPServer) apiPhotoFromPhoto(c *gin.Context, photo *db_store.Photo) APIPhoto {
	apiPhoto := APIPhoto{
		Id:     photo.Id,
		Flight: photo.FlightId.Ptr(),
		Image:  srv.absoluteURL(c, srv.mediaStore.URL(photo.Image)),
		Lat:    photo.Lat,
		Lon:    photo.Lon,
		Notes:  photo.Notes,
	}
	if photo.TakenAt.Valid {
		takenAt := photo.TakenAt.Time.Format(time.RFC3339)
		apiPhoto.TakenAt = &takenAt
	}
	return apiPhoto
}

func (srv *HTTPServer) handleListPhotos(c *gin.Context) {
	photos, err := srv.store.GetAllPhotos(c.Request.Context())
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get photos: %w", err))
		return
	}

	apiPhotos := make([]APIPhoto, len(photos))
	for idx, photo := range photos {
		apiPhotos[idx] = srv.apiPhotoFromPhoto(c, photo)
	}

	c.JSON(http.StatusOK, apiPhotos)
}

func (srv *HTTPServer) getPhotoOr404(c *gin.Context) *db_store.Photo {
	photoId, ok := srv.idParam(c)
	if !ok {
		return nil
	}

	photo, err := srv.store.GetPhotoByID(c.Request.Context(), photoId)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to get photo %d: %w", photoId, err))
		return nil
	}

	if photo == nil {
		srv.notFound(c)
	}

	return photo
}

func (srv *HTTPServer) handleGetPhoto(c *gin.Context) {
	photo := srv.getPhotoOr404(c)
	if photo == nil {
		return
	}
	c.JSON(http.StatusOK, srv.apiPhotoFromPhoto(c, photo))
}

// savePhoto validates and stores a new or changed photo. It replies with
// the errors and returns false when that fails.
func (srv *HTTPServer) savePhoto(c *gin.Context, fields *requestFields, photo *db_store.Photo, requireImage bool) (FieldErrors, bool) {
	ctx := c.Request.Context()

	update, errs, err := srv.applyPhotoFields(ctx, fields, photo, requireImage)
	if err != nil {
		srv.internalError(c, "HTTP", err)
		return nil, false
	}
	if len(errs) > 0 {
		return errs, false
	}
	defer update.Close()

	if err := srv.storePhotoUpload(update, photo); err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to store image: %w", err))
		return nil, false
	}

	if photo.Id == 0 {
		_, err = srv.store.InsertPhoto(ctx, photo)
	} else {
		err = srv.store.UpdatePhoto(ctx, photo)
	}

	if err != nil {
		if update.file != nil {
			srv.deleteImage(photo.Image)
		}
		srv.internalError(c, "HTTP", fmt.Errorf("failed to save photo: %w", err))
		return nil, false
	}

	if update.file != nil {
		srv.statsCollector.AddPhotoUploaded()
		srv.deleteImage(update.oldImage)
	}

	srv.logger.Infof("HTTP: saved %s (%s)", photo, photo.Image)
	srv.raisePhotoAlert(c, photo.Id, photo.Lat, photo.Lon)

	return nil, true
}

func (srv *HTTPServer) handleCreatePhoto(c *gin.Context) {
	fields, err := readRequestFields(c, srv.mediaStore.MaxUploadBytes())
	if err != nil {
		srv.badRequestBody(c, err)
		return
	}

	var photo db_store.Photo

	errs, ok := srv.savePhoto(c, fields, &photo, true)
	if !ok {
		if errs != nil {
			c.JSON(http.StatusBadRequest, errs)
		}
		return
	}

	c.JSON(http.StatusCreated, srv.apiPhotoFromPhoto(c, &photo))
}

// handleUpdatePhoto serves PUT and PATCH. PUT needs a new image.
func (srv *HTTPServer) handleUpdatePhoto(c *gin.Context) {
	photo := srv.getPhotoOr404(c)
	if photo == nil {
		return
	}

	fields, err := readRequestFields(c, srv.mediaStore.MaxUploadBytes())
	if err != nil {
		srv.badRequestBody(c, err)
		return
	}

	errs, ok := srv.savePhoto(c, fields, photo, c.Request.Method == http.MethodPut)
	if !ok {
		if errs != nil {
			c.JSON(http.StatusBadRequest, errs)
		}
		return
	}

	c.JSON(http.StatusOK, srv.apiPhotoFromPhoto(c, photo))
}

// removePhoto deletes the row and its image file. Returns false if there
// was no such photo.
func (srv *HTTPServer) removePhoto(c *gin.Context, photo *db_store.Photo) (bool, error) {
	deleted, err := srv.store.DeletePhoto(c.Request.Context(), photo.Id)
	if err != nil || !deleted {
		return deleted, err
	}

	srv.deleteImage(photo.Image)
	srv.logger.Infof("HTTP: deleted %s", photo)

	return true, nil
}

func (srv *HTTPServer) handleDeletePhotoAPI(c *gin.Context) {
	photo := srv.getPhotoOr404(c)
	if photo == nil {
		return
	}

	deleted, err := srv.removePhoto(c, photo)
	if err != nil {
		srv.internalError(c, "HTTP", fmt.Errorf("failed to delete photo %d: %w", photo.Id, err))
		return
	}

	if !deleted {
		srv.notFound(c)
		return
	}

	c.Status(http.StatusNoContent)
}
