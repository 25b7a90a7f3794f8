package v1alpha1

import (
	"context"
	"errors"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	apiv1alpha1 "github.com/dcm-project/vmrequest-service/api/v1alpha1"
	"github.com/dcm-project/vmrequest-service/internal/config"
	"github.com/dcm-project/vmrequest-service/internal/netcenter"
)

// ErrAdminInProduction stops the process when the admin surface would be
// mounted in a production deployment.
var ErrAdminInProduction = errors.New("admin surface must not be enabled in production")

type FreeIPv4Lister interface {
	FreeIPv4(ctx context.Context, subnet string) ([]netip.Addr, error)
}

type AdminHandler struct {
	ipam   FreeIPv4Lister
	subnet string
}

func NewAdminHandler(cfg *config.AdminConfig, deployment config.Deployment, ipam FreeIPv4Lister) (*AdminHandler, error) {
	if deployment.IsProd() {
		return nil, ErrAdminInProduction
	}
	return &AdminHandler{
		ipam:   ipam,
		subnet: cfg.Subnet,
	}, nil
}

// Routes returns the admin router, meant to be mounted under /admin.
func (h *AdminHandler) Routes() http.Handler {
	apiv1alpha1.RegisterDocs()

	r := chi.NewRouter()
	r.Get("/free-ips", h.FreeIPs)
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/admin/docs/doc.json")))
	return r
}

// FreeIPs (GET /admin/free-ips)
func (h *AdminHandler) FreeIPs(w http.ResponseWriter, r *http.Request) {
	logger := zap.S().Named("handler:free-ips")

	subnet := r.URL.Query().Get("subnet")
	if subnet == "" {
		subnet = h.subnet
	}

	ips, err := h.ipam.FreeIPv4(r.Context(), subnet)
	if err != nil {
		if errors.Is(err, netcenter.ErrInvalidSubnet) {
			render(w, http.StatusBadRequest, pageError, errorPage{
				Title:   "Invalid subnet",
				Message: err.Error(),
			})
			return
		}
		internalError(w, r, err)
		return
	}

	logger.Infow("Listed free addresses", "subnet", subnet, "count", len(ips))
	render(w, http.StatusOK, pageFreeIPs, struct {
		Subnet string
		IPs    []netip.Addr
	}{subnet, ips})
}
