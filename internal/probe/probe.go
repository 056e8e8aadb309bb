package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	userAgent    = "feedctl/1.0"
	maxBodyBytes = 4 << 20
	probeTimeout = 30 * time.Second
)

// Client probes feed URLs directly or through the configured proxy. Probes
// are synchronous and strictly sequential from the caller's perspective.
type Client struct {
	direct  *http.Client
	proxied *http.Client
	parser  *gofeed.Parser
}

// NewClient builds a probe client. proxyURL may be empty, in which case
// proxied probes report StatusConnectionError.
func NewClient(proxyURL string) (*Client, error) {
	c := &Client{
		direct: &http.Client{Timeout: probeTimeout},
		parser: gofeed.NewParser(),
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", proxyURL, err)
		}
		c.proxied = &http.Client{
			Timeout:   probeTimeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		}
	}
	return c, nil
}

// HasProxy reports whether a proxy is configured.
func (c *Client) HasProxy() bool {
	return c.proxied != nil
}

// Probe fetches the URL and classifies the outcome. Transport failures are
// absorbed into synthetic statuses; a 200 response must also parse as a
// feed to count as a definitive success, otherwise it classifies as
// StatusNotFeed.
func (c *Client) Probe(ctx context.Context, rawURL string, useProxy bool) Status {
	client := c.direct
	if useProxy {
		if c.proxied == nil {
			return StatusConnectionError
		}
		client = c.proxied
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return StatusUnknownError
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return classifyTransportError(err)
	}
	if _, err := c.parser.ParseString(string(body)); err != nil {
		return StatusNotFeed
	}
	return Status(http.StatusOK)
}

func classifyTransportError(err error) Status {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return StatusDNSError
	}
	var certErr *tls.CertificateVerificationError
	var hostErr x509.HostnameError
	var authErr x509.UnknownAuthorityError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) || errors.As(err, &authErr) {
		return StatusTLSError
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return StatusConnectionError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	return StatusUnknownError
}
