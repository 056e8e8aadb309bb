package probe

import (
	"fmt"
	"net/http"
	"strings"
)

// Status classifies the outcome of a probe. Non-negative values are HTTP
// status codes; negative values are synthetic codes for failures that never
// produced a response.
type Status int

const (
	StatusUnknownError    Status = -1
	StatusConnectionError Status = -2
	StatusTimeout         Status = -3
	StatusDNSError        Status = -4
	StatusTLSError        Status = -5
	StatusNotFeed         Status = -6
)

var syntheticNames = map[Status]string{
	StatusUnknownError:    "UNKNOWN_ERROR",
	StatusConnectionError: "CONNECTION_ERROR",
	StatusTimeout:         "TIMEOUT",
	StatusDNSError:        "DNS_ERROR",
	StatusTLSError:        "TLS_ERROR",
	StatusNotFeed:         "NOT_FEED",
}

// Name returns a human-readable name for the status, used as the key of
// per-feed error histograms.
func (s Status) Name() string {
	if name, ok := syntheticNames[s]; ok {
		return name
	}
	if text := http.StatusText(int(s)); text != "" {
		return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
	}
	return fmt.Sprintf("HTTP_%d", int(s))
}

// IsOK reports a definitive success: the probe returned HTTP 200 with a
// parseable feed body.
func (s Status) IsOK() bool {
	return s == http.StatusOK
}

// IsError reports any non-success outcome, synthetic or HTTP.
func (s Status) IsError() bool {
	return int(s) < 200 || int(s) >= 400
}

// NeedsProxy reports a failure class that routing through a proxy may
// remedy: network-level failures and access blocks.
func (s Status) NeedsProxy() bool {
	switch s {
	case StatusConnectionError, StatusTimeout, StatusDNSError, StatusTLSError:
		return true
	}
	switch int(s) {
	case http.StatusForbidden, http.StatusUnavailableForLegalReasons, http.StatusTooManyRequests:
		return true
	}
	return false
}

// StatusName is a convenience for raw status codes from the fetch log.
func StatusName(code int) string {
	return Status(code).Name()
}
