package netcenter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dcm-project/vmrequest-service/internal/config"
	"github.com/dcm-project/vmrequest-service/internal/constants"
	"github.com/dcm-project/vmrequest-service/internal/metrics"
)

var (
	// ErrUpstreamQueryFailed is matched by every QueryError.
	ErrUpstreamQueryFailed = errors.New("upstream query failed")

	ErrInvalidSubnet = errors.New("invalid subnet")
	ErrHTTPSOnly     = errors.New("netcenter requires https")
)

// FailureKind tells a transport failure apart from an unparseable answer.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureParse     FailureKind = "parse"
)

// QueryError reports a failed netcenter query.
type QueryError struct {
	Kind   FailureKind
	Subnet string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("netcenter free IPv4 query for %s failed (%s): %v", e.Subnet, e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrUpstreamQueryFailed }

// Client talks to the netcenter REST API with basic auth over HTTPS
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	user       string
	pass       string
}

type Option func(*Client)

// WithHTTPClient uses a copy of c; redirects are still restricted to https.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		copied := *c
		cl.httpClient = &copied
	}
}

// NewClient creates a netcenter client. The configured host must be an https URL.
func NewClient(cfg *config.NetcenterConfig, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.Host, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid netcenter host %q: %w", cfg.Host, err)
	}
	if base.Scheme != "https" {
		return nil, fmt.Errorf("%w: host %q", ErrHTTPSOnly, cfg.Host)
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		user:       cfg.User,
		pass:       cfg.Pass,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.CheckRedirect = httpsOnlyRedirect
	return c, nil
}

func httpsOnlyRedirect(req *http.Request, via []*http.Request) error {
	if req.URL.Scheme != "https" {
		return fmt.Errorf("%w: refusing redirect to %s", ErrHTTPSOnly, req.URL)
	}
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	return nil
}

// FreeIPv4Records returns every free address record netcenter reports for
// the subnet, in document order. An empty result is not an error.
func (c *Client) FreeIPv4Records(ctx context.Context, subnet string) ([]FreeIPv4, error) {
	logger := zap.S().Named("netcenter:free-ipv4")
	start := time.Now()

	addr, err := netip.ParseAddr(subnet)
	if err != nil || !addr.Is4() {
		return nil, fmt.Errorf("%w: %q is not a dotted-quad network address", ErrInvalidSubnet, subnet)
	}

	body, err := c.get(ctx, fmt.Sprintf(constants.FreeIPv4Path, addr.String()))
	if err != nil {
		metrics.RecordIPAMQuery("transport_error", time.Since(start).Seconds())
		return nil, &QueryError{Kind: FailureTransport, Subnet: subnet, Err: err}
	}

	records, err := parseFreeIPv4List(body)
	if err != nil {
		metrics.RecordIPAMQuery("parse_error", time.Since(start).Seconds())
		return nil, &QueryError{Kind: FailureParse, Subnet: subnet, Err: err}
	}

	metrics.RecordIPAMQuery("success", time.Since(start).Seconds())
	logger.Debugw("Fetched free IPv4 addresses", "subnet", subnet, "count", len(records))
	return records, nil
}

// FreeIPv4 returns only the bare addresses of FreeIPv4Records.
func (c *Client) FreeIPv4(ctx context.Context, subnet string) ([]netip.Addr, error) {
	records, err := c.FreeIPv4Records(ctx, subnet)
	if err != nil {
		return nil, err
	}
	ips := make([]netip.Addr, 0, len(records))
	for _, r := range records {
		ips = append(ips, r.IP)
	}
	return ips, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	target := c.baseURL.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request GET %s: %w", target, err)
	}
	req.SetBasicAuth(c.user, c.pass)
	req.Header.Set("User-Agent", constants.UserAgent)
	req.Header.Set("Accept", "application/xml, text/xml")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: reading body: %w", target, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected response status: %d", target, res.StatusCode)
	}
	return body, nil
}
