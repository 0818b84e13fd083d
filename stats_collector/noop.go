package stats_collector

import "github.com/gin-gonic/gin"

var _ StatsCollector = (*noopCollector)(nil)

type noopCollector struct {
}

func (col *noopCollector) Name() string                  { return "no-op" }
func (col *noopCollector) RegisterGinEngine(*gin.Engine) {}
func (col *noopCollector) AddFlightCreated()             {}
func (col *noopCollector) AddPhotoUploaded()             {}
func (col *noopCollector) AddExifGPSResult(bool)         {}
func (col *noopCollector) AddZonesCreated(uint64)        {}
func (col *noopCollector) AddZoneAlerts(uint64)          {}

func NewNoopStatsCollector() StatsCollector {
	return &noopCollector{}
}
