package webhook_sender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/SkylogUAS/Skylog/zone_index"
)

const (
	ALERT_KIND_FLIGHT = "flight"
	ALERT_KIND_PHOTO  = "photo"

	DEFAULT_TIMEOUT = 10 * time.Second
)

type ZoneAlertSender interface {
	AddZoneAlert(ZoneAlert)
	Run(ctx context.Context) error
}

var (
	_ ZoneAlertSender = (*WebhookSender)(nil)
	_ ZoneAlertSender = (*NoopSender)(nil)
)

// ZoneAlert is raised when a flight path or a photo falls inside zones.
type ZoneAlert struct {
	Kind  string               `json:"kind"`
	Id    int64                `json:"id"`
	Name  string               `json:"name"`
	Zones []zone_index.ZoneRef `json:"zones"`
	Lat   float64              `json:"lat"`
	Lon   float64              `json:"lon"`
}

type ZoneAlertMessage struct {
	Type    string    `json:"type"`
	Message ZoneAlert `json:"message"`
}

type webhookDestination struct {
	logger     *logrus.Logger
	config     WebhookConfig
	headers    map[string]string
	zoneTypes  map[string]struct{}
	httpClient *http.Client
}

func (dest *webhookDestination) wantsAlert(alert *ZoneAlert) bool {
	if len(dest.zoneTypes) == 0 {
		return true
	}
	for _, zone := range alert.Zones {
		if _, ok := dest.zoneTypes[zone.ZoneType]; ok {
			return true
		}
	}
	return false
}

func (dest *webhookDestination) filterMessages(messages []ZoneAlertMessage) []ZoneAlertMessage {
	if len(dest.zoneTypes) == 0 {
		return messages
	}
	filteredMessages := make([]ZoneAlertMessage, 0, len(messages))
	for _, message := range messages {
		if dest.wantsAlert(&message.Message) {
			filteredMessages = append(filteredMessages, message)
		}
	}
	return filteredMessages
}

func (dest *webhookDestination) sendMessages(ctx context.Context, messages []ZoneAlertMessage) error {
	messages = dest.filterMessages(messages)
	if len(messages) == 0 {
		return nil
	}

	dest.logger.Infof("WebhookSender: sending %d zone alert(s) to '%s'", len(messages), dest.config.Url)

	body, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("couldn't json encode webhook: %w", err)
	}

	url := dest.config.Url

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("couldn't create request for webhook to '%s': %w", url, err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range dest.headers {
		req.Header.Set(k, v)
	}

	resp, err := dest.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make webhook request to '%s': %w", url, err)
	}

	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook '%s' answered with http status %d", url, resp.StatusCode)
	}

	return nil
}

type WebhookSender struct {
	logger *logrus.Logger

	flushInterval time.Duration
	onQueued      func(num uint64)

	mutex        sync.Mutex
	queue        []ZoneAlertMessage
	destinations []*webhookDestination
}

func (sender *WebhookSender) popMessagesFromQueue() []ZoneAlertMessage {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()

	messages := sender.queue
	sender.queue = nil
	return messages
}

func (sender *WebhookSender) AddZoneAlert(alert ZoneAlert) {
	if len(alert.Zones) == 0 {
		return
	}

	sender.mutex.Lock()
	sender.queue = append(sender.queue, ZoneAlertMessage{
		Type:    "zone_alert",
		Message: alert,
	})
	sender.mutex.Unlock()

	if sender.onQueued != nil {
		sender.onQueued(1)
	}
}

// Flush sends everything queued so far to every destination.
func (sender *WebhookSender) Flush(ctx context.Context) {
	messages := sender.popMessagesFromQueue()
	if len(messages) == 0 {
		return
	}

	sender.mutex.Lock()
	destinations := sender.destinations
	sender.mutex.Unlock()

	var wg sync.WaitGroup

	for _, destination := range destinations {
		wg.Add(1)
		go func(destination *webhookDestination) {
			defer wg.Done()
			if err := destination.sendMessages(ctx, messages); err != nil {
				sender.logger.Warnf("WebhookSender: %v", err)
			}
		}(destination)
	}
	wg.Wait()
}

// Run sends queued alerts every flush interval until ctx is cancelled,
// then waits for sends in flight and flushes what is left. Sends are not
// tied to ctx; the http client timeout bounds them.
func (sender *WebhookSender) Run(ctx context.Context) error {
	ticker := time.NewTicker(sender.flushInterval)
	defer ticker.Stop()

	var flushWg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			sender.logger.Infof("WebhookSender: asked to shut down. Flushing zone alerts...")
			flushWg.Wait()
			sender.Flush(context.Background())
			sender.logger.Infof("WebhookSender: done flushing zone alerts")
			return nil
		case <-ticker.C:
			flushWg.Add(1)
			go func() {
				defer flushWg.Done()
				sender.Flush(context.Background())
			}()
		}
	}
}

func buildDestinations(logger *logrus.Logger, webhooks WebhooksConfig, timeout time.Duration) []*webhookDestination {
	destinations := make([]*webhookDestination, len(webhooks))
	for idx, webhookCfg := range webhooks {
		zoneTypes := make(map[string]struct{}, len(webhookCfg.ZoneTypes))
		for _, zoneType := range webhookCfg.ZoneTypes {
			zoneTypes[zoneType] = struct{}{}
		}
		destinations[idx] = &webhookDestination{
			logger:     logger,
			config:     webhookCfg,
			headers:    webhookCfg.HeadersAsMap(),
			zoneTypes:  zoneTypes,
			httpClient: &http.Client{Timeout: timeout},
		}
	}
	return destinations
}

func timeoutFromSettings(settings SettingsConfig) time.Duration {
	timeout := settings.Timeout()
	if timeout <= 0 {
		timeout = DEFAULT_TIMEOUT
	}
	return timeout
}

// Reconfigure replaces the destinations. Queued alerts are kept and go
// to the new destinations. The flush interval can't be changed.
func (sender *WebhookSender) Reconfigure(webhooks WebhooksConfig, settings SettingsConfig) error {
	if err := webhooks.Validate(); err != nil {
		return err
	}

	destinations := buildDestinations(sender.logger, webhooks, timeoutFromSettings(settings))

	sender.mutex.Lock()
	sender.destinations = destinations
	sender.mutex.Unlock()

	sender.logger.Infof("WebhookSender: reconfigured with %d zone alert webhook destination(s)", len(destinations))

	return nil
}

// NewWebhookSender creates the sender. 'onQueued' is called for every queued
// alert and may be nil.
func NewWebhookSender(logger *logrus.Logger, webhooks WebhooksConfig, settings SettingsConfig, onQueued func(uint64)) (*WebhookSender, error) {
	if err := webhooks.Validate(); err != nil {
		return nil, err
	}

	flushInterval := settings.FlushInterval()
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	destinations := buildDestinations(logger, webhooks, timeoutFromSettings(settings))

	logger.Infof("WebhookSender: Added %d zone alert webhook destination(s)", len(destinations))

	sender := &WebhookSender{
		logger:        logger,
		flushInterval: flushInterval,
		onQueued:      onQueued,
		destinations:  destinations,
	}

	return sender, nil
}

// GetSender returns a WebhookSender, or a no-op sender when no webhooks
// are configured.
func GetSender(logger *logrus.Logger, webhooks WebhooksConfig, settings SettingsConfig, onQueued func(uint64)) (ZoneAlertSender, error) {
	if len(webhooks) == 0 {
		return NewNoopSender(), nil
	}
	return NewWebhookSender(logger, webhooks, settings, onQueued)
}
