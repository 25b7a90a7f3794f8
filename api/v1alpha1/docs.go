package v1alpha1

import (
	"sync"

	"github.com/swaggo/swag"
	"go.uber.org/zap"
)

type swaggerDoc struct{}

// ReadDoc renders the embedded document as JSON for the swagger UI.
func (swaggerDoc) ReadDoc() string {
	doc, err := GetSwagger()
	if err != nil {
		zap.S().Named("api:docs").Errorw("Failed to load OpenAPI document", "error", err)
		return "{}"
	}
	b, err := doc.MarshalJSON()
	if err != nil {
		zap.S().Named("api:docs").Errorw("Failed to render OpenAPI document", "error", err)
		return "{}"
	}
	return string(b)
}

var registerOnce sync.Once

// RegisterDocs makes the document available to swag under its default
// instance name. swag panics on duplicate registration, so repeated calls
// are no-ops.
func RegisterDocs() {
	registerOnce.Do(func() {
		swag.Register(swag.Name, swaggerDoc{})
	})
}
