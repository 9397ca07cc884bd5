package shim

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// TrackerEndpoints are hosts answered with a synthetic empty response instead
// of being dropped. Subdomains match.
var TrackerEndpoints = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"google-analytics.com",
	"googletagmanager.com",
	"googletagservices.com",
	"adservice.google.com",
	"amazon-adsystem.com",
	"scorecardresearch.com",
	"adnxs.com",
	"taboola.com",
	"outbrain.com",
	"criteo.com",
}

// FakedHeader marks synthetic responses.
const FakedHeader = "X-Hydrablock-Faked"

// IsTrackerEndpoint reports whether u points at a TrackerEndpoints host.
func IsTrackerEndpoint(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	for _, h := range TrackerEndpoints {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// FakeResponse builds the synthetic 200 returned for req. The content type
// follows the request path so script and image loaders accept it.
func FakeResponse(req *http.Request) *http.Response {
	h := make(http.Header)
	ct := "text/plain; charset=utf-8"
	if req != nil && req.URL != nil {
		if t := mime.TypeByExtension(path.Ext(req.URL.Path)); t != "" {
			ct = t
		}
	}
	h.Set("Content-Type", ct)
	h.Set(FakedHeader, "1")
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          http.NoBody,
		ContentLength: 0,
		Request:       req,
	}
}

// NetworkFaker answers requests to TrackerEndpoints with FakeResponse.
type NetworkFaker struct{}

// Name implements Interceptor.
func (NetworkFaker) Name() string { return "network" }

// Install implements Interceptor.
func (NetworkFaker) Install(env *Env, hit func()) {
	env.Transport = &FakeTransport{Next: env.Transport, OnFake: hit}
}

// FakeTransport is an http.RoundTripper that fakes tracker endpoints and
// passes everything else to Next.
type FakeTransport struct {
	// Next defaults to http.DefaultTransport.
	Next   http.RoundTripper
	OnFake func()
}

// RoundTrip implements http.RoundTripper.
func (t *FakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if check(func() bool { return IsTrackerEndpoint(req.URL) }) {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		if t.OnFake != nil {
			t.OnFake()
		}
		return FakeResponse(req), nil
	}
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}
