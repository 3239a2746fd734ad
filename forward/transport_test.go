package forward

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type testBaseRoundTripper struct {
	wasCalled bool
	response  *http.Response
	request   *http.Request
}

func (tR *testBaseRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	tR.wasCalled = true
	tR.request = req
	if tR.response == nil {
		tR.response = &http.Response{
			StatusCode: http.StatusNoContent,
			Body:       io.NopCloser(bytes.NewBufferString("")),
			Header:     make(http.Header),
		}
	}
	return tR.response, nil
}

func TestRelayRoundTripper(t *testing.T) {
	t.Run("should stamp the user agent and delegate", func(t *testing.T) {
		base := &testBaseRoundTripper{}
		roundTripper := &relayRoundTripper{userAgent: UserAgent, base: base}

		req := httptest.NewRequest(http.MethodPost, "http://admin.local/api", nil)
		req.Header.Del("User-Agent")
		resp, err := roundTripper.RoundTrip(req)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer resp.Body.Close()

		if !base.wasCalled {
			t.Fatal("expected base RoundTrip to be called")
		}
		if got := base.request.Header.Get("User-Agent"); got != UserAgent {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", UserAgent, got)
		}
		if req.Header.Get("User-Agent") != "" {
			t.Fatalf("\nwanted:\ncaller request untouched\ngot:\n%s", req.Header.Get("User-Agent"))
		}
	})

	t.Run("should keep a user agent set by the caller", func(t *testing.T) {
		base := &testBaseRoundTripper{}
		roundTripper := &relayRoundTripper{userAgent: UserAgent, base: base}

		req := httptest.NewRequest(http.MethodPost, "http://admin.local/api", nil)
		req.Header.Set("User-Agent", "custom")
		if _, err := roundTripper.RoundTrip(req); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got := base.request.Header.Get("User-Agent"); got != "custom" {
			t.Fatalf("\nwanted:\ncustom\ngot:\n%s", got)
		}
	})

	t.Run("should reach a real server through the default client", func(t *testing.T) {
		var got string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get("User-Agent")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		resp, err := (&http.Client{Transport: newRelayTransport()}).Get(srv.URL)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		resp.Body.Close()

		if got != UserAgent {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", UserAgent, got)
		}
	})
}
