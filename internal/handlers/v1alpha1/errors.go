package v1alpha1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReferenceError is an internal failure tagged with the opaque reference
// shown to the user. Only the reference leaves the process.
type ReferenceError struct {
	Reference uuid.UUID
	Err       error
}

func NewReferenceError(err error) *ReferenceError {
	return &ReferenceError{Reference: uuid.New(), Err: err}
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("internal error (reference %s): %v", e.Reference, e.Err)
}

func (e *ReferenceError) Unwrap() error { return e.Err }

// internalError logs err under a fresh reference and renders the generic
// error page with a 500 status.
func internalError(w http.ResponseWriter, r *http.Request, err error) *ReferenceError {
	refErr := NewReferenceError(err)
	zap.S().Named("handler:internal-error").Errorw("Request failed",
		"reference", refErr.Reference.String(),
		"requestID", middleware.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	render(w, http.StatusInternalServerError, pageError, errorPage{
		Title:     "Something went wrong",
		Message:   "Your request could not be processed.",
		Reference: refErr.Reference.String(),
	})
	return refErr
}
