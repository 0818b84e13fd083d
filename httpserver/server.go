package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/SkylogUAS/Skylog/stats_collector"
	"github.com/SkylogUAS/Skylog/webhook_sender"
	"github.com/SkylogUAS/Skylog/zone_index"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

type HTTPServer struct {
	logger         *logrus.Logger
	config         Config
	ginRouter      *gin.Engine
	store          Store
	mediaStore     MediaStore
	zoneIndex      ZoneIndex
	statsCollector stats_collector.StatsCollector
	alertSender    ZoneAlertSender
}

// Run starts and runs the HTTP server until 'ctx' is cancelled or the server fails to start.
func (srv *HTTPServer) Run(ctx context.Context, address string, shutdownWaitTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:    address,
		Handler: srv.ginRouter,
	}

	doneCh := make(chan error, 1)

	go func() {
		var err error
		defer func() {
			doneCh <- err
		}()
		err = httpServer.ListenAndServe()
		if err != nil {
			if err == http.ErrServerClosed {
				err = nil
			} else {
				err = fmt.Errorf("Failed to listen and start http server: %w", err)
			}
		}
	}()

	select {
	case <-ctx.Done():
		sdCtx, sdCancelFn := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer sdCancelFn()
		err := httpServer.Shutdown(sdCtx)
		if err != nil {
			if err == context.DeadlineExceeded {
				return errors.New("Graceful HTTP server shutdown timed out.")
			}
			return fmt.Errorf("Error during http server shutdown: %w", err)
		}
		return <-doneCh
	case err := <-doneCh:
		return err
	}
}

// Handler exposes the router, mostly for tests.
func (srv *HTTPServer) Handler() http.Handler {
	return srv.ginRouter
}

// absoluteURL makes a media url absolute using the configured base url
// or the host the request came in on.
func (srv *HTTPServer) absoluteURL(c *gin.Context, u string) string {
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}

	base := strings.TrimRight(srv.config.BaseURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}

	return base + "/" + strings.TrimLeft(u, "/")
}

func (srv *HTTPServer) raisePhotoAlert(c *gin.Context, photoId int64, lat, lon float64) {
	zones := srv.zoneIndex.GetMatchingZones(c.Request.Context(), lat, lon)
	if len(zones) == 0 {
		return
	}

	srv.logger.Infof("HTTP: photo %d is inside %d zone(s)", photoId, len(zones))

	srv.alertSender.AddZoneAlert(webhook_sender.ZoneAlert{
		Kind:  webhook_sender.ALERT_KIND_PHOTO,
		Id:    photoId,
		Name:  fmt.Sprintf("Photo #%d", photoId),
		Zones: zones,
		Lat:   lat,
		Lon:   lon,
	})
}

func (srv *HTTPServer) raiseFlightAlert(c *gin.Context, flightId int64, name string, zones []zone_index.ZoneRef, lat, lon float64) {
	if len(zones) == 0 {
		return
	}

	srv.logger.Infof("HTTP: flight %d (%s) crosses %d zone(s)", flightId, name, len(zones))

	srv.alertSender.AddZoneAlert(webhook_sender.ZoneAlert{
		Kind:  webhook_sender.ALERT_KIND_FLIGHT,
		Id:    flightId,
		Name:  name,
		Zones: zones,
		Lat:   lat,
		Lon:   lon,
	})
}

func NewHTTPServer(logger *logrus.Logger, config Config, store Store, mediaStore MediaStore, zoneIndex ZoneIndex, statsCollector stats_collector.StatsCollector, alertSender ZoneAlertSender) (*HTTPServer, error) {
	if alertSender == nil {
		alertSender = webhook_sender.NewNoopSender()
	}

	// Create the web server.
	r := gin.New()
	r.Use(gin.RecoveryWithWriter(logger.Writer()))
	statsCollector.RegisterGinEngine(r)

	tmpl, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	r.SetHTMLTemplate(tmpl)

	srv := &HTTPServer{
		logger:         logger,
		config:         config,
		ginRouter:      r,
		store:          store,
		mediaStore:     mediaStore,
		zoneIndex:      zoneIndex,
		statsCollector: statsCollector,
		alertSender:    alertSender,
	}

	srv.setupRoutes()
	return srv, nil
}
