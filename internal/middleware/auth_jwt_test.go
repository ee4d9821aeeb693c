package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifyJWT(t *testing.T) {
	token, err := SignJWT("secret", "user-1", "ana@example.com", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	claims, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "ana@example.com" {
		t.Fatalf("unexpected claims %#v", claims)
	}
	if _, err := VerifyJWT("other", token); err == nil {
		t.Fatalf("expected signature error")
	}
	noExpiry, _ := SignJWT("secret", "user-1", "", -time.Minute)
	if _, err := VerifyJWT("secret", noExpiry); err != nil {
		t.Fatalf("non-positive ttl issues a token without expiry: %v", err)
	}
}

func TestAuthJWTMiddleware(t *testing.T) {
	var gotUser string
	h := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ok := AuthFromContext(r.Context())
		if !ok {
			t.Fatalf("auth missing from context")
		}
		gotUser = auth.UserID
	}))

	token, _ := SignJWT("secret", "user-9", "", time.Hour)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer abc.def.ghi", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + token, want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
	if gotUser != "user-9" {
		t.Fatalf("user = %q", gotUser)
	}
}
