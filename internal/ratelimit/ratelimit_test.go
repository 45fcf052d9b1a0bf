package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		method, path string
		want         Class
	}{
		{http.MethodPost, "/api/v1/auth/login", ClassAuthLogin},
		{http.MethodPost, "/api/v1/auth/google", ClassAuthOAuth},
		{http.MethodPost, "/api/v1/auth/refresh", ClassAuthRefresh},
		{http.MethodPost, "/api/v1/trucks", ClassTrucksCreate},
		{http.MethodPut, "/api/v1/trucks/42", ClassTrucksUpdate},
		{http.MethodGet, "/api/v1/trucks", ClassDefault},
		{http.MethodGet, "/api/v1/auth/me", ClassDefault},
		{http.MethodPost, "/api/v1/auth/register", ClassDefault},
	}
	for _, c := range cases {
		if got := Classify(c.method, c.path); got != c.want {
			t.Errorf("Classify(%s %s) = %s, want %s", c.method, c.path, got, c.want)
		}
	}
}

func TestBypass(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/openapi.yaml"} {
		if !Bypass(path) {
			t.Errorf("Bypass(%s) = false", path)
		}
	}
	if Bypass("/api/v1/auth/login") {
		t.Error("login must not bypass")
	}
}

func TestAllowExhaustsBudget(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(Limits{Login: 3, Window: time.Minute}, WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		d := l.Allow(ClassAuthLogin, "1.2.3.4")
		if !d.OK {
			t.Fatalf("request %d rejected", i+1)
		}
		if d.Remaining != 3-(i+1) {
			t.Fatalf("remaining after %d = %d", i+1, d.Remaining)
		}
	}

	d := l.Allow(ClassAuthLogin, "1.2.3.4")
	if d.OK {
		t.Fatal("request over budget admitted")
	}
	if d.Limit != 3 || d.Remaining != 0 {
		t.Fatalf("decision = %+v", d)
	}
	if d.RetryAfter != time.Minute {
		t.Fatalf("retry after = %v", d.RetryAfter)
	}
	if want := now.Add(time.Minute); !d.Reset.Equal(want) {
		t.Fatalf("reset = %v, want %v", d.Reset, want)
	}
}

func TestWindowRefillsInFull(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(Limits{Login: 2, Window: time.Minute}, WithClock(func() time.Time { return now }))

	l.Allow(ClassAuthLogin, "c")
	l.Allow(ClassAuthLogin, "c")
	if d := l.Allow(ClassAuthLogin, "c"); d.OK {
		t.Fatal("budget should be exhausted")
	}

	// Half a window later: still exhausted, no gradual drip.
	now = now.Add(30 * time.Second)
	if d := l.Allow(ClassAuthLogin, "c"); d.OK {
		t.Fatal("mid-window request admitted")
	}

	// One full window after the first request: full budget again.
	now = now.Add(30 * time.Second)
	d := l.Allow(ClassAuthLogin, "c")
	if !d.OK {
		t.Fatal("post-window request rejected")
	}
	if d.Remaining != 1 {
		t.Fatalf("remaining = %d, want full refill minus one", d.Remaining)
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	l := NewLimiter(Limits{Login: 1, Default: 5, Window: time.Minute})

	if d := l.Allow(ClassAuthLogin, "a"); !d.OK {
		t.Fatal("first request for a rejected")
	}
	if d := l.Allow(ClassAuthLogin, "a"); d.OK {
		t.Fatal("a exhausted its login budget")
	}
	if d := l.Allow(ClassAuthLogin, "b"); !d.OK {
		t.Fatal("b must have its own bucket")
	}
	if d := l.Allow(ClassDefault, "a"); !d.OK {
		t.Fatal("a's default-class bucket must be separate")
	}
}

func TestRejectedRequestConsumesNothing(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(Limits{Login: 1, Window: time.Minute}, WithClock(func() time.Time { return now }))

	l.Allow(ClassAuthLogin, "c")
	for i := 0; i < 10; i++ {
		l.Allow(ClassAuthLogin, "c")
	}
	now = now.Add(time.Minute)
	if d := l.Allow(ClassAuthLogin, "c"); !d.OK {
		t.Fatal("rejections must not extend the window")
	}
}

func TestPrune(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(Limits{Default: 5, Window: time.Minute}, WithClock(func() time.Time { return now }))

	l.Allow(ClassDefault, "old")
	now = now.Add(10 * time.Minute)
	l.Allow(ClassDefault, "fresh")

	if removed := l.Prune(5 * time.Minute); removed != 1 {
		t.Fatalf("pruned %d buckets, want 1", removed)
	}
}

func TestReset(t *testing.T) {
	l := NewLimiter(Limits{Login: 1, Window: time.Minute})
	l.Allow(ClassAuthLogin, "c")
	l.Reset()
	if d := l.Allow(ClassAuthLogin, "c"); !d.OK {
		t.Fatal("reset must restore the budget")
	}
}
