package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/dcm-project/vmrequest-service/internal/config"
	"github.com/dcm-project/vmrequest-service/internal/metrics"
)

// Outcome is the classification of a completed verification call.
type Outcome int

const (
	Rejected Outcome = iota
	Accepted
)

func (o Outcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "rejected"
}

// ErrVerificationFailed means the provider could not be asked at all. It is
// distinct from Rejected, which is a well-formed "not verified" answer.
var ErrVerificationFailed = errors.New("captcha verification failed")

// Verifier checks hCaptcha response tokens against the siteverify endpoint
type Verifier struct {
	httpClient *http.Client
	verifyURL  string
	secret     string
}

type Option func(*Verifier)

// WithHTTPClient replaces the client built from the configured timeout
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) {
		v.httpClient = c
	}
}

// NewVerifier creates a Verifier with the given configuration
func NewVerifier(cfg *config.HCaptchaConfig, opts ...Option) *Verifier {
	v := &Verifier{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		verifyURL:  cfg.VerifyURL,
		secret:     cfg.Secret,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// siteverifyResponse is only decoded for logging, the outcome depends on the
// HTTP status alone.
type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify posts the secret and the user supplied token to the provider.
// A non-2xx status is Rejected, a transport error is ErrVerificationFailed.
// There are no retries and no caching: every call reaches the provider.
func (v *Verifier) Verify(ctx context.Context, token string) (Outcome, error) {
	logger := zap.S().Named("captcha:verify")

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		metrics.RecordCaptchaVerification("failed")
		return Rejected, fmt.Errorf("%w: building request: %w", ErrVerificationFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		metrics.RecordCaptchaVerification("failed")
		return Rejected, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		logger.Debugw("failed to read siteverify response body", "status", resp.StatusCode, "error", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warnw("captcha response failed verification", "status", resp.StatusCode, "body", string(body))
		metrics.RecordCaptchaVerification(Rejected.String())
		return Rejected, nil
	}

	var parsed siteverifyResponse
	if err := json.Unmarshal(body, &parsed); err == nil && !parsed.Success {
		// TODO: decide on the body's success field once the status-only check is retired
		logger.Warnw("provider returned success status but reported the token as invalid",
			"status", resp.StatusCode, "errorCodes", parsed.ErrorCodes)
	}

	metrics.RecordCaptchaVerification(Accepted.String())
	return Accepted, nil
}
