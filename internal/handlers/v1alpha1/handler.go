package v1alpha1

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/dcm-project/vmrequest-service/internal/constants"
	"github.com/dcm-project/vmrequest-service/internal/metrics"
	"github.com/dcm-project/vmrequest-service/internal/service"
	"github.com/dcm-project/vmrequest-service/internal/service/model"
)

// Submitter runs one form submission to completion.
type Submitter interface {
	Submit(ctx context.Context, req *model.VMRequest) error
}

type FormHandler struct {
	submitter Submitter
	siteKey   string
}

func NewFormHandler(siteKey string, submitter Submitter) *FormHandler {
	return &FormHandler{
		submitter: submitter,
		siteKey:   siteKey,
	}
}

// Root (GET /)
func (h *FormHandler) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/apply", http.StatusSeeOther)
}

// Health (GET /health)
func (h *FormHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// Apply (GET /apply)
func (h *FormHandler) Apply(w http.ResponseWriter, r *http.Request) {
	render(w, http.StatusOK, pageApply, struct{ SiteKey string }{h.siteKey})
}

// Success (GET /success)
func (h *FormHandler) Success(w http.ResponseWriter, r *http.Request) {
	render(w, http.StatusOK, pageSuccess, nil)
}

// Submit (POST /apply)
func (h *FormHandler) Submit(w http.ResponseWriter, r *http.Request) {
	logger := zap.S().Named("handler:submit")

	if err := r.ParseForm(); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	var req model.VMRequest
	if err := runtime.BindForm(&req, r.PostForm, nil, nil); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if req.Wishes != nil && strings.TrimSpace(*req.Wishes) == "" {
		req.Wishes = nil
	}
	if req.Bot {
		logger.Warnw("Honeypot field set on submission", "hostname", req.Hostname, "remote", r.RemoteAddr)
	}

	err := h.submitter.Submit(r.Context(), &req)
	switch {
	case err == nil:
		metrics.RecordSubmission("accepted")
		http.Redirect(w, r, constants.SuccessPath, http.StatusSeeOther)
	case errors.Is(err, model.ErrInvalidRequest):
		h.badRequest(w, err.Error())
	case errors.Is(err, service.ErrCaptchaRejected):
		metrics.RecordSubmission("forbidden")
		render(w, http.StatusForbidden, pageError, errorPage{
			Title:   "Verification failed",
			Message: "The CAPTCHA could not be verified. Please go back and try again.",
		})
	default:
		metrics.RecordSubmission("error")
		internalError(w, r, err)
	}
}

// RequestValidationError renders failures reported by the OpenAPI request
// validator in front of Submit.
func (h *FormHandler) RequestValidationError(w http.ResponseWriter, message string, statusCode int) {
	if statusCode == http.StatusBadRequest {
		h.badRequest(w, message)
		return
	}
	zap.S().Named("handler:validation").Warnw("Request validator failed", "status", statusCode, "message", message)
	render(w, statusCode, pageError, errorPage{
		Title:   http.StatusText(statusCode),
		Message: "The request could not be processed.",
	})
}

func (h *FormHandler) badRequest(w http.ResponseWriter, message string) {
	metrics.RecordSubmission("invalid")
	render(w, http.StatusBadRequest, pageError, errorPage{
		Title:   "Invalid request",
		Message: message,
	})
}
