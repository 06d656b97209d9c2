package obs

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/login/":                   "/login/",
		"requests/":                 "/requests/",
		"/requests/12/":             "/requests/:id/",
		"/requests/?status=Pending": "/requests/",
		"/offers/7/":                "/offers/:id/",
		"/offers/abc/":              "/offers/abc/",
		"/profile/me/":              "/profile/me/",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestGatewayCallCountsOutcome(t *testing.T) {
	Init()
	before := testutil.ToFloat64(gatewayRequestsTotal.WithLabelValues("GET", "/offers/:id/", "not_found"))
	done := GatewayCall("GET", "/offers/99/")
	if got := testutil.ToFloat64(gatewayInFlight); got < 1 {
		t.Fatalf("in-flight gauge = %v, want >= 1", got)
	}
	done("not_found")
	after := testutil.ToFloat64(gatewayRequestsTotal.WithLabelValues("GET", "/offers/:id/", "not_found"))
	if after != before+1 {
		t.Fatalf("counter = %v, want %v", after, before+1)
	}
}

func TestConfigureLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	ConfigureLogger("debug", "json", &buf)
	Logger().WithField("op", "test").Debug("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v (%q)", err, buf.String())
	}
	for _, key := range []string{"ts", "level", "msg", "op"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in %v", key, entry)
		}
	}
}
