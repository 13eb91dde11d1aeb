package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"season_pass/internal/access"
	"season_pass/internal/auth"
	"season_pass/internal/model"
	rdb "season_pass/pkg/redis"
)

func init() { gin.SetMode(gin.TestMode) }

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()), RequestLogger(zap.NewNop()))
	chain := append(handlers, func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID})
	})
	r.GET("/x", chain...)
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestAuth(t *testing.T) {
	issuer := auth.NewIssuer("secret", time.Hour)
	r := newEngine(Auth(issuer, zap.NewNop()))

	if rr := do(r, "/x", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: got %d", rr.Code)
	}
	if rr := do(r, "/x", "garbage"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: got %d", rr.Code)
	}

	token, err := issuer.Issue(5, model.RolePlayer)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rr := do(r, "/x", token)
	if rr.Code != http.StatusOK || rr.Body.String() != `{"user_id":5}` {
		t.Fatalf("valid token: %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id header missing")
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]bool{
		"Bearer abc":  true,
		"bearer abc":  true,
		"Basic abc":   false,
		"Bearer ":     false,
		"abc":         false,
		"  Bearer x ": true,
	}
	for in, want := range cases {
		if _, ok := extractBearerToken(in); ok != want {
			t.Fatalf("%q: got %v want %v", in, ok, want)
		}
	}
}

func TestRateLimitPerUser(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	issuer := auth.NewIssuer("secret", time.Hour)
	r := newEngine(Auth(issuer, nil), RateLimit(rdb.NewSlidingWindow(client), "test", 2, time.Minute, zap.NewNop()))

	alice, _ := issuer.Issue(1, model.RolePlayer)
	bob, _ := issuer.Issue(2, model.RolePlayer)

	for i := 0; i < 2; i++ {
		if rr := do(r, "/x", alice); rr.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, rr.Code)
		}
	}
	if rr := do(r, "/x", alice); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("3rd request: got %d", rr.Code)
	}
	if rr := do(r, "/x", bob); rr.Code != http.StatusOK {
		t.Fatalf("other user: got %d", rr.Code)
	}
	if !mr.Exists(rdb.RateLimitKey("test", "user:1")) {
		t.Fatal("rate limit key must be keyed by user id")
	}
}

func TestRateLimitFallsBackToIPAndFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := newEngine(RateLimit(rdb.NewSlidingWindow(client), "anon", 1, time.Minute, nil))
	if rr := do(r, "/x", ""); rr.Code != http.StatusOK {
		t.Fatalf("first: got %d", rr.Code)
	}
	if rr := do(r, "/x", ""); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second: got %d", rr.Code)
	}

	open := newEngine(RateLimit(failingStore{}, "anon", 1, time.Minute, zap.NewNop()))
	for i := 0; i < 3; i++ {
		if rr := do(open, "/x", ""); rr.Code != http.StatusOK {
			t.Fatalf("store down must fail open, got %d", rr.Code)
		}
	}
}

func TestRecovery(t *testing.T) {
	r := newEngine()
	rr := do(r, "/panic", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d", rr.Code)
	}
}

func TestActorFromMissing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := ActorFrom(c); ok {
		t.Fatal("expected no actor")
	}
	c.Set(actorKey, access.Actor{UserID: 3, Role: model.RoleAdmin})
	if a, ok := ActorFrom(c); !ok || a.UserID != 3 {
		t.Fatalf("got %+v %v", a, ok)
	}
}
