package probe

import "testing"

func TestStatusName(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Status(200), "OK"},
		{Status(404), "NOT_FOUND"},
		{Status(503), "SERVICE_UNAVAILABLE"},
		{Status(599), "HTTP_599"},
		{StatusTimeout, "TIMEOUT"},
		{StatusDNSError, "DNS_ERROR"},
		{StatusNotFeed, "NOT_FEED"},
	}
	for _, tt := range tests {
		if got := tt.status.Name(); got != tt.want {
			t.Errorf("Status(%d).Name(): got %q, want %q", int(tt.status), got, tt.want)
		}
	}
}

func TestStatusIsOK(t *testing.T) {
	if !Status(200).IsOK() {
		t.Error("200 should be OK")
	}
	for _, s := range []Status{Status(201), Status(301), Status(404), StatusTimeout, StatusNotFeed} {
		if s.IsOK() {
			t.Errorf("Status(%d) should not be a definitive success", int(s))
		}
	}
}

func TestStatusIsError(t *testing.T) {
	for _, s := range []Status{Status(500), Status(404), StatusConnectionError, StatusNotFeed} {
		if !s.IsError() {
			t.Errorf("Status(%d) should be an error", int(s))
		}
	}
	for _, s := range []Status{Status(200), Status(301)} {
		if s.IsError() {
			t.Errorf("Status(%d) should not be an error", int(s))
		}
	}
}

func TestStatusNeedsProxy(t *testing.T) {
	needs := []Status{StatusConnectionError, StatusTimeout, StatusDNSError, StatusTLSError,
		Status(403), Status(429), Status(451)}
	for _, s := range needs {
		if !s.NeedsProxy() {
			t.Errorf("Status(%d) should be proxy-remediable", int(s))
		}
	}
	doesNot := []Status{Status(200), Status(404), Status(500), StatusNotFeed, StatusUnknownError}
	for _, s := range doesNot {
		if s.NeedsProxy() {
			t.Errorf("Status(%d) should not be proxy-remediable", int(s))
		}
	}
}
