package httpserver

import (
	"net/http/pprof"
	"strings"

	"github.com/gin-gonic/gin"
)

func (srv *HTTPServer) authorizeAPI(c *gin.Context) {
	// anything goes for now.
	c.Next()
}

func (srv *HTTPServer) setupRoutes() {
	r := srv.ginRouter

	views := r.Group("", srv.htmlView)
	views.GET("/", srv.handleHome)
	views.GET("/map/", srv.handleMap)
	views.GET("/map3d/", srv.handleMap3D)

	views.GET("/upload/photo/", srv.handleUploadPhotoForm)
	views.POST("/upload/photo/", srv.handleUploadPhoto)
	views.GET("/photos/", srv.handlePhotoList)
	views.GET("/photos/:id/edit/", srv.handleEditPhotoForm)
	views.POST("/photos/:id/edit/", srv.handleEditPhoto)
	views.GET("/photos/:id/delete/", srv.handleDeletePhotoConfirm)
	views.POST("/photos/:id/delete/", srv.handleDeletePhoto)

	views.GET("/flights/", srv.handleFlightList)
	views.GET("/flights/new/", srv.handleFlightCreateForm)
	views.POST("/flights/new/", srv.handleFlightCreate)
	views.GET("/flights/:id/delete/", srv.handleDeleteFlightConfirm)
	views.POST("/flights/:id/delete/", srv.handleDeleteFlight)
	views.GET("/flights/:id/edit_path/", srv.handleEditFlightPath)

	r.GET("/export/photos.geojson", srv.handleExportPhotos)
	r.GET("/export/flights.geojson", srv.handleExportFlights)
	r.GET("/export/zones.geojson", srv.handleExportZones)
	r.GET("/flight/:id/export/", srv.handleExportFlight)

	r.POST("/set-language/", srv.handleSetLanguage)

	if mediaURL := srv.mediaStore.BaseURL(); strings.HasPrefix(mediaURL, "/") {
		r.Static(strings.TrimRight(mediaURL, "/"), srv.mediaStore.Dir())
	}

	apiGroup := r.Group("/api", srv.authorizeAPI)

	flightsGroup := apiGroup.Group("/flights")
	flightsGroup.GET("", srv.handleListFlights)
	flightsGroup.POST("", srv.handleCreateFlight)
	flightsGroup.GET("/:id", srv.handleGetFlight)
	flightsGroup.PUT("/:id", srv.handleUpdateFlight)
	flightsGroup.PATCH("/:id", srv.handleUpdateFlight)
	flightsGroup.DELETE("/:id", srv.handleDeleteFlightAPI)
	flightsGroup.GET("/:id/zones", srv.handleGetFlightZones)
	flightsGroup.POST("/:id/save_path", srv.handleSaveFlightPath)

	photosGroup := apiGroup.Group("/photos")
	photosGroup.GET("", srv.handleListPhotos)
	photosGroup.POST("", srv.handleCreatePhoto)
	photosGroup.GET("/:id", srv.handleGetPhoto)
	photosGroup.PUT("/:id", srv.handleUpdatePhoto)
	photosGroup.PATCH("/:id", srv.handleUpdatePhoto)
	photosGroup.DELETE("/:id", srv.handleDeletePhotoAPI)

	zonesGroup := apiGroup.Group("/zones")
	zonesGroup.GET("", srv.handleListZones)
	zonesGroup.POST("", srv.handleCreateZone)
	zonesGroup.GET("/_/match", srv.handleMatchZones)
	zonesGroup.GET("/:id", srv.handleGetZone)
	zonesGroup.PUT("/:id", srv.handleUpdateZone)
	zonesGroup.PATCH("/:id", srv.handleUpdateZone)
	zonesGroup.DELETE("/:id", srv.handleDeleteZone)

	debugGroup := r.Group("/debug/pprof")
	debugGroup.GET("/cmdline", func(c *gin.Context) {
		pprof.Cmdline(c.Writer, c.Request)
	})
	debugGroup.GET("/heap", func(c *gin.Context) {
		pprof.Index(c.Writer, c.Request)
	})
	debugGroup.GET("/block", func(c *gin.Context) {
		pprof.Index(c.Writer, c.Request)
	})
	debugGroup.GET("/mutex", func(c *gin.Context) {
		pprof.Index(c.Writer, c.Request)
	})
	debugGroup.GET("/trace", func(c *gin.Context) {
		pprof.Trace(c.Writer, c.Request)
	})
	debugGroup.GET("/profile", func(c *gin.Context) {
		pprof.Profile(c.Writer, c.Request)
	})
	debugGroup.GET("/symbol", func(c *gin.Context) {
		pprof.Symbol(c.Writer, c.Request)
	})
}
