package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/healthz", "/healthz"},
		{"/v1/auth/login", "/v1/auth/login"},
		{"/v1/auth/login?next=home", "/v1/auth/login"},
		{"/metrics", "/metrics"},
		{"/v1/auth/unknown", "/unmatched"},
		{"/wp-admin/setup.php", "/unmatched"},
	}
	for _, tc := range cases {
		if got := CanonicalPath(tc.in); got != tc.want {
			t.Fatalf("CanonicalPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestInstrumentPreservesResponse(t *testing.T) {
	handler := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if rr.Body.String() != "short and stout" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}
