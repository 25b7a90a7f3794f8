package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/dcm-project/vmrequest-service/internal/service/model"
)

const (
	// SubmittedSubject is the NATS subject accepted requests are announced on
	SubmittedSubject = "vmrequest.submitted"

	submittedType = "vmrequest.submitted"
	eventSource   = "vmrequest-service"
)

// RequestEvent is the payload of a submitted VM request announcement
type RequestEvent struct {
	Hostname      string    `json:"hostname"`
	OS            string    `json:"os"`
	Cores         int       `json:"cores"`
	RAMGiB        int       `json:"ramGiB"`
	DiskGB        int       `json:"diskGB"`
	EthzEmail     string    `json:"ethzEmail"`
	ExternalEmail string    `json:"externalEmail"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher handles NATS event publishing with CloudEvents formatting
type Publisher struct {
	natsConn     *nats.Conn
	natsURL      string
	timeout      time.Duration
	maxReconnect int
}

// PublisherConfig contains configuration for the event publisher
type PublisherConfig struct {
	NATSURL      string
	Timeout      time.Duration
	MaxReconnect int
}

// NewPublisher creates a new NATS publisher
func NewPublisher(config PublisherConfig) (*Publisher, error) {
	p := &Publisher{
		natsURL:      config.NATSURL,
		timeout:      config.Timeout,
		maxReconnect: config.MaxReconnect,
	}

	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}

	return p, nil
}

func (p *Publisher) connect() error {
	logger := zap.S().Named("events:nats")
	opts := []nats.Option{
		nats.Name(eventSource),
		nats.Timeout(p.timeout),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(p.maxReconnect),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warnw("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infow("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(p.natsURL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p.natsConn = nc
	return nil
}

// NewRequestEvent builds the CloudEvent announcing req. The CAPTCHA token,
// SSH keys and free-text wishes are not part of the payload.
func NewRequestEvent(req *model.VMRequest, now time.Time) (cloudevents.Event, error) {
	payload := RequestEvent{
		Hostname:      req.Hostname,
		OS:            req.OS,
		Cores:         req.Cores,
		RAMGiB:        req.RAMGiB,
		DiskGB:        req.DiskGB,
		EthzEmail:     req.EthzEmail,
		ExternalEmail: req.ExternalEmail,
		Timestamp:     now.UTC(),
	}

	event := cloudevents.NewEvent()
	event.SetID(uuid.New().String())
	event.SetType(submittedType)
	event.SetSource(eventSource)
	event.SetSubject(req.Hostname)
	event.SetTime(payload.Timestamp)

	if err := event.SetData(cloudevents.ApplicationJSON, payload); err != nil {
		return event, fmt.Errorf("failed to set CloudEvent data: %w", err)
	}
	return event, nil
}

// PublishRequestSubmitted announces an accepted VM request on NATS
func (p *Publisher) PublishRequestSubmitted(ctx context.Context, req *model.VMRequest) error {
	if p.natsConn == nil || !p.natsConn.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	event, err := NewRequestEvent(req, time.Now())
	if err != nil {
		return err
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal CloudEvent: %w", err)
	}

	if err := p.natsConn.Publish(SubmittedSubject, eventData); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	timeout := p.timeout
	if d, ok := ctx.Deadline(); ok && time.Until(d) < timeout {
		timeout = time.Until(d)
	}
	if err := p.natsConn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("failed to flush NATS message: %w", err)
	}

	zap.S().Named("events:publish").Infow("Published VM request event", "subject", SubmittedSubject, "id", event.ID())
	return nil
}

// Close gracefully closes the NATS connection
func (p *Publisher) Close() error {
	if p.natsConn != nil {
		p.natsConn.Close()
	}
	return nil
}

// IsConnected returns whether NATS connection is active
func (p *Publisher) IsConnected() bool {
	return p.natsConn != nil && p.natsConn.IsConnected()
}
