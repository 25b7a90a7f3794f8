package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"go.uber.org/zap"

	"github.com/dcm-project/vmrequest-service/internal/config"
	"github.com/dcm-project/vmrequest-service/internal/constants"
	"github.com/dcm-project/vmrequest-service/internal/metrics"
	"github.com/dcm-project/vmrequest-service/internal/service/model"
)

// ErrNotificationFailed wraps every delivery failure reported by Notify.
var ErrNotificationFailed = errors.New("notification failed")

// Mailer is the transport used to hand a rendered message to the relay.
type Mailer interface {
	Send(ctx context.Context, from string, recipients []string, msg []byte) error
}

// Sender formats and sends the operator notification for a VM request
type Sender struct {
	mailer     Mailer
	noreply    mail.Address
	responder  mail.Address
	deployment config.Deployment
	now        func() time.Time
}

// NewSender validates the configured mailboxes and builds a Sender
func NewSender(cfg *config.MailConfig, deployment config.Deployment, mailer Mailer) (*Sender, error) {
	sender, err := mail.ParseAddress(cfg.Sender)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid MAIL_SENDER %q: %w", config.ErrConfigurationMissing, cfg.Sender, err)
	}
	responder, err := mail.ParseAddress(cfg.HumanResponder)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid MAIL_HUMAN_RESPONDER %q: %w", config.ErrConfigurationMissing, cfg.HumanResponder, err)
	}

	return &Sender{
		mailer:     mailer,
		noreply:    mail.Address{Name: constants.NoreplyName, Address: sender.Address},
		responder:  mail.Address{Address: responder.Address},
		deployment: deployment,
		now:        time.Now,
	}, nil
}

// Compose builds the notification for req. Both requester mailboxes must be
// syntactically valid.
func (s *Sender) Compose(req *model.VMRequest) (*Message, error) {
	applicant, err := mail.ParseAddress(req.EthzEmail)
	if err != nil {
		return nil, fmt.Errorf("invalid institutional e-mail %q: %w", req.EthzEmail, err)
	}
	if _, err := mail.ParseAddress(req.ExternalEmail); err != nil {
		return nil, fmt.Errorf("invalid external e-mail %q: %w", req.ExternalEmail, err)
	}
	applicantBox := mail.Address{Address: applicant.Address}

	subject := constants.SubjectTest
	if s.deployment.IsProd() {
		subject = constants.SubjectProd
	}

	return &Message{
		From:    s.noreply,
		ReplyTo: []mail.Address{s.responder, applicantBox},
		To:      []mail.Address{s.responder},
		Cc:      []mail.Address{applicantBox},
		Subject: subject,
		Body:    FormatBody(req),
	}, nil
}

// Notify composes and delivers the notification. Any failure, including an
// invalid mailbox detected before the relay is contacted, is reported as
// ErrNotificationFailed.
func (s *Sender) Notify(ctx context.Context, req *model.VMRequest) error {
	logger := zap.S().Named("notifier:notify")

	msg, err := s.Compose(req)
	if err != nil {
		metrics.RecordNotification("failed")
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}

	if err := s.mailer.Send(ctx, s.noreply.Address, msg.Recipients(), msg.Bytes(s.now())); err != nil {
		metrics.RecordNotification("failed")
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}

	metrics.RecordNotification("sent")
	logger.Infow("Sent VM request notification", "hostname", req.Hostname, "to", s.responder.Address)
	return nil
}

// RelayChecker is implemented by mailers that can test the relay without sending.
type RelayChecker interface {
	CheckRelay(ctx context.Context) error
}

// Check verifies that the relay accepts a STARTTLS session with the
// configured credentials.
func (s *Sender) Check(ctx context.Context) error {
	p, ok := s.mailer.(RelayChecker)
	if !ok {
		return nil
	}
	if err := p.CheckRelay(ctx); err != nil {
		return fmt.Errorf("smtp relay check: %w", err)
	}
	return nil
}
