package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const secret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	tok, err := CreateAccessToken(secret, "u1", RoleBooker, "u1@example.com", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	c, err := ParseValidate(secret, tok)
	if err != nil {
		t.Fatal(err)
	}
	if c.Sub != "u1" || c.Role != RoleBooker {
		t.Fatalf("claims = %+v", c)
	}
	if _, err := ParseValidate("other", tok); err == nil {
		t.Fatal("wrong secret must fail")
	}
	expired, _ := CreateAccessToken(secret, "u1", RoleBooker, "", -time.Minute)
	if _, err := ParseValidate(secret, expired); err == nil {
		t.Fatal("expired token must fail")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", JWTAuth(secret), RequireRole(RoleAdmin), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxSub))
	})

	admin, _ := CreateAccessToken(secret, "a1", RoleAdmin, "", time.Minute)
	booker, _ := CreateAccessToken(secret, "b1", RoleBooker, "", time.Minute)
	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer junk", http.StatusUnauthorized},
		{"Bearer " + booker, http.StatusForbidden},
		{"Bearer " + admin, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("header %q: status %d, want %d", tc.header, w.Code, tc.want)
		}
	}
}
