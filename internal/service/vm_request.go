package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dcm-project/vmrequest-service/internal/captcha"
	"github.com/dcm-project/vmrequest-service/internal/service/model"
)

var (
	// ErrCaptchaRejected is the only client-attributable failure.
	ErrCaptchaRejected           = errors.New("captcha rejected")
	ErrCaptchaVerificationFailed = errors.New("captcha verification failed")
	ErrNotificationFailed        = errors.New("notification failed")
)

type CaptchaVerifier interface {
	Verify(ctx context.Context, token string) (captcha.Outcome, error)
}

type NotificationSender interface {
	Notify(ctx context.Context, req *model.VMRequest) error
}

type EventPublisher interface {
	PublishRequestSubmitted(ctx context.Context, req *model.VMRequest) error
}

// VMRequestService runs a submission through CAPTCHA verification and
// operator notification. It holds no per-request state.
type VMRequestService struct {
	verifier  CaptchaVerifier
	sender    NotificationSender
	publisher EventPublisher
}

type Option func(*VMRequestService)

// WithEventPublisher announces every notified request. Publishing errors are
// logged and never change the outcome.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *VMRequestService) {
		s.publisher = p
	}
}

func NewVMRequestService(verifier CaptchaVerifier, sender NotificationSender, opts ...Option) *VMRequestService {
	s := &VMRequestService{
		verifier: verifier,
		sender:   sender,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates req, verifies its CAPTCHA token and notifies the operator.
// A nil error means the caller should redirect to the confirmation page.
// Nothing is retried.
func (s *VMRequestService) Submit(ctx context.Context, req *model.VMRequest) error {
	logger := zap.S().Named("vm_request_service:submit")

	if err := req.Validate(); err != nil {
		return err
	}

	outcome, err := s.verifier.Verify(ctx, req.CaptchaResponse)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCaptchaVerificationFailed, err)
	}
	if outcome != captcha.Accepted {
		logger.Infow("CAPTCHA rejected, not notifying", "hostname", req.Hostname)
		return ErrCaptchaRejected
	}

	if err := s.sender.Notify(ctx, req); err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}
	logger.Infow("VM request forwarded to operator", "hostname", req.Hostname, "os", req.OS)

	if s.publisher != nil {
		if err := s.publisher.PublishRequestSubmitted(ctx, req); err != nil {
			logger.Warnw("Failed to publish VM request event", "hostname", req.Hostname, "error", err)
		}
	}
	return nil
}
