package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		fallback string
		country  string
		want     string
	}{
		{name: "x-locale beats country", headers: map[string]string{"X-Locale": "ID"}, country: "US", want: "id"},
		{name: "x-locale beats accept-language", headers: map[string]string{"X-Locale": "en", "Accept-Language": "id-ID"}, want: "en"},
		{name: "accept-language quality order", headers: map[string]string{"Accept-Language": "fr-FR,id;q=0.9,en;q=0.5"}, want: "id"},
		{name: "unsupported language", headers: map[string]string{"Accept-Language": "ja-JP"}, want: "en"},
		{name: "indonesian visitor", country: "ID", want: "id"},
		{name: "other country", country: "SG", fallback: "id", want: "en"},
		{name: "configured fallback", fallback: "id", want: "id"},
		{name: "nothing known", want: "en"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/captions", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tc.want, detectLocale(req, tc.fallback, tc.country))
		})
	}
}

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		lookup  CountryLookup
		want    string
	}{
		{name: "cloudflare header first", headers: map[string]string{"CF-IPCountry": "id", "X-Country-Code": "us"}, want: "ID"},
		{name: "placeholder edge country skipped", headers: map[string]string{"CF-IPCountry": "XX", "X-Locale": "en-AU"}, want: "AU"},
		{name: "accept-language region", headers: map[string]string{"Accept-Language": "en-GB,en;q=0.9"}, want: "GB"},
		{
			name:    "forwarded ip goes to lookup",
			headers: map[string]string{"X-Forwarded-For": "bogus, 198.51.100.7"},
			lookup: func(ip string) (string, error) {
				require.Equal(t, "198.51.100.7", ip)
				return "my", nil
			},
			want: "MY",
		},
		{
			name:   "remote addr goes to lookup",
			lookup: func(ip string) (string, error) { return map[string]string{"203.0.113.4": "sg"}[ip], nil },
			want:   "SG",
		},
		{name: "lookup failure", lookup: func(string) (string, error) { return "", errors.New("db closed") }, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "203.0.113.4:443"
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tc.want, ResolveCountry(req, tc.lookup))
		})
	}
}

func TestMatchLocale(t *testing.T) {
	cases := map[string]string{
		"id-ID,en;q=0.8": "id",
		"en-GB":          "en",
		"fr-FR":          "en",
		"":               "en",
		"ID":             "id",
	}
	for input, want := range cases {
		if got := MatchLocale(input); got != want {
			t.Fatalf("MatchLocale(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestI18NSetsContentLanguage(t *testing.T) {
	var seen string
	h := I18N("en", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = LocaleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "id-ID")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "id" || rec.Header().Get("Content-Language") != "id" {
		t.Fatalf("locale = %q, header = %q", seen, rec.Header().Get("Content-Language"))
	}
}

func TestLocaleFromContext(t *testing.T) {
	ctx := context.Background()
	if got := LocaleFromContext(ctx); got != "en" {
		t.Fatalf("LocaleFromContext() default = %q, want %q", got, "en")
	}
	ctx = context.WithValue(ctx, LocaleKey, "id")
	if got := LocaleFromContext(ctx); got != "id" {
		t.Fatalf("LocaleFromContext() with value = %q, want %q", got, "id")
	}
}
