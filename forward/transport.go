package forward

import (
	"net"
	"net/http"
	"time"
)

// UserAgent identifies the relay to the admin API.
const UserAgent = "formrelay/1.0"

// relayRoundTripper stamps outbound requests with the relay's User-Agent before handing
// them to the base RoundTripper.
type relayRoundTripper struct {
	userAgent string
	base      http.RoundTripper
}

// newRelayTransport creates the transport used for admin API calls.
// Connections are kept alive between attempts and dialing is bounded separately from the
// per-attempt timeout, so a black-holed host fails fast.
func newRelayTransport() http.RoundTripper {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &relayRoundTripper{
		userAgent: UserAgent,
		base:      transport,
	}
}

// RoundTrip satisfies http.RoundTripper. The request is cloned when the header is added,
// callers keep ownership of theirs.
func (rt *relayRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", rt.userAgent)
	}
	return rt.base.RoundTrip(req)
}
