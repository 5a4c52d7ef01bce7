package reports

import (
	"context"

	"github.com/google/uuid"

	"github.com/linkshelf/linkshelf/pkg/webhook"
)

// Delivery is the JSON body posted to a schedule's webhook URL.
type Delivery struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	Name       string    `json:"name"`
	Type       Type      `json:"type"`
	Metrics    Metrics   `json:"metrics"`
	Summary    *Summary  `json:"summary"`
}

// WebhookGenerator forwards summaries of schedules that configure a
// webhook URL. Schedules without one are skipped.
type WebhookGenerator struct {
	sender *webhook.Sender
}

func NewWebhookGenerator(sender *webhook.Sender) *WebhookGenerator {
	if sender == nil {
		panic("reports: webhook sender is required")
	}
	return &WebhookGenerator{sender: sender}
}

func (g *WebhookGenerator) Generate(ctx context.Context, s Schedule, sum *Summary) error {
	if s.Config.WebhookURL == "" {
		return nil
	}
	return g.sender.Send(ctx, s.Config.WebhookURL, Delivery{
		ScheduleID: s.ID,
		Name:       s.Name,
		Type:       s.Type,
		Metrics:    s.Config.Metrics,
		Summary:    sum,
	})
}
