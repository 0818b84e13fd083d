package stats_collector

import (
	"errors"

	"github.com/Depado/ginprom"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	DEFAULT_PROMETHEUS_NAMESPACE = "skylog"
)

type PrometheusConfig struct {
	Enabled    bool      `koanf:"enabled"`
	Token      string    `koanf:"token"`
	BucketSize []float64 `koanf:"bucket_size"`
	Namespace  string    `koanf:"namespace"`
}

func (cfg *PrometheusConfig) Validate() error {
	if !cfg.Enabled {
		return nil
	}
	for i := 1; i < len(cfg.BucketSize); i++ {
		if cfg.BucketSize[i] <= cfg.BucketSize[i-1] {
			return errors.New("prometheus.bucket_size must be sorted in increasing order")
		}
	}
	return nil
}

func GetDefaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		BucketSize: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		Namespace:  DEFAULT_PROMETHEUS_NAMESPACE,
	}
}

var _ StatsCollector = (*PrometheusCollector)(nil)

type PrometheusCollector struct {
	config   PrometheusConfig
	registry *prometheus.Registry

	flightsCreated prometheus.Counter
	photosUploaded prometheus.Counter
	exifGPS        *prometheus.CounterVec
	zonesCreated   prometheus.Counter
	zoneAlerts     prometheus.Counter
}

func (col *PrometheusCollector) Name() string {
	return "prometheus"
}

func (col *PrometheusCollector) Registry() *prometheus.Registry {
	return col.registry
}

func (col *PrometheusCollector) RegisterGinEngine(engine *gin.Engine) {
	p := ginprom.New(
		ginprom.Engine(engine),
		ginprom.Registry(col.registry),
		ginprom.Subsystem("gin"),
		ginprom.Path("/metrics"),
		ginprom.Token(col.config.Token),
		ginprom.BucketSize(col.config.BucketSize),
	)
	engine.Use(p.Instrument())
}

func (col *PrometheusCollector) AddFlightCreated() {
	col.flightsCreated.Inc()
}

func (col *PrometheusCollector) AddPhotoUploaded() {
	col.photosUploaded.Inc()
}

func (col *PrometheusCollector) AddExifGPSResult(found bool) {
	result := "miss"
	if found {
		result = "hit"
	}
	col.exifGPS.WithLabelValues(result).Inc()
}

func (col *PrometheusCollector) AddZonesCreated(num uint64) {
	col.zonesCreated.Add(float64(num))
}

func (col *PrometheusCollector) AddZoneAlerts(num uint64) {
	col.zoneAlerts.Add(float64(num))
}

func NewPrometheusCollector(config PrometheusConfig) *PrometheusCollector {
	ns := config.Namespace
	if ns == "" {
		ns = DEFAULT_PROMETHEUS_NAMESPACE
	}

	registry := prometheus.NewRegistry()
	collector := &PrometheusCollector{
		config:   config,
		registry: registry,
		flightsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "flights_created",
				Help:      "Total number of flights created",
			},
		),
		photosUploaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "photos_uploaded",
				Help:      "Total number of photos uploaded",
			},
		),
		exifGPS: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "exif_gps_lookups",
				Help:      "EXIF GPS lookups on uploaded photos by result",
			},
			[]string{"result"},
		),
		zonesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "zones_created",
				Help:      "Total number of zones created through the API",
			},
		),
		zoneAlerts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "zone_alerts",
				Help:      "Total number of zone alerts queued",
			},
		),
	}

	processOpts := collectors.ProcessCollectorOpts{
		Namespace: ns,
	}

	registry.MustRegister(
		collectors.NewProcessCollector(processOpts),
		collectors.NewGoCollector(
			collectors.WithGoCollectorRuntimeMetrics(
				collectors.MetricsGC,
				collectors.MetricsMemory,
			),
		),
		collector.flightsCreated,
		collector.photosUploaded,
		collector.exifGPS,
		collector.zonesCreated,
		collector.zoneAlerts,
	)

	return collector
}
