package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ukydev/vehicle-recon/internal/models"
)

// Channel names, matching the per-user channel toggles.
const (
	ChannelEmail   = "email"
	ChannelSound   = "sound"
	ChannelDesktop = "desktop"
)

// Publisher is the transport the outbound channels publish through. The
// MQTT client implements it; tests use a recording stub.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// delivery is the wire shape pushed to downstream delivery workers.
type delivery struct {
	UserID    string                      `json:"user_id"`
	Email     string                      `json:"email,omitempty"`
	Category  models.NotificationCategory `json:"category"`
	Severity  models.AlertSeverity        `json:"severity,omitempty"`
	Title     string                      `json:"title"`
	Message   string                      `json:"message"`
	Timestamp time.Time                   `json:"timestamp"`
}

// publisherChannel pushes deliveries onto a per-user topic. The actual
// transport (SMTP relay, desktop push daemon, kiosk sound player) is an
// external consumer of the topic.
type publisherChannel struct {
	name      string
	topicRoot string
	pub       Publisher
}

// NewEmailChannel queues email deliveries for the external mailer.
func NewEmailChannel(pub Publisher) Channel {
	return &publisherChannel{name: ChannelEmail, topicRoot: "recon/email", pub: pub}
}

// NewSoundChannel signals audible alerts to connected clients.
func NewSoundChannel(pub Publisher) Channel {
	return &publisherChannel{name: ChannelSound, topicRoot: "recon/sound", pub: pub}
}

// NewDesktopChannel pushes desktop notifications to connected clients.
func NewDesktopChannel(pub Publisher) Channel {
	return &publisherChannel{name: ChannelDesktop, topicRoot: "recon/push", pub: pub}
}

func (c *publisherChannel) Name() string {
	return c.name
}

func (c *publisherChannel) Deliver(_ context.Context, ev models.Event, user models.User) error {
	payload, err := json.Marshal(delivery{
		UserID:    user.ID.Hex(),
		Email:     user.Email,
		Category:  ev.Category,
		Severity:  ev.Severity,
		Title:     ev.Title,
		Message:   ev.Message,
		Timestamp: ev.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	topic := fmt.Sprintf("%s/%s", c.topicRoot, user.ID.Hex())
	if err := c.pub.Publish(topic, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
