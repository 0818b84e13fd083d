package webhook_sender

import "context"

type NoopSender struct{}

func (sender *NoopSender) AddZoneAlert(ZoneAlert) {}

func (sender *NoopSender) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}
