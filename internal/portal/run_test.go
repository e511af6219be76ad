package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	results []string
}

func (s *fakeSink) RecordResult(ctx context.Context, userID int64, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func (s *fakeSink) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.results...)
}

// fakePortal simulates the appointment portal's web surface.
type fakePortal struct {
	mu sync.Mutex

	entryFailures   int
	loginDisabled   bool
	rejectLogin     bool
	statusText      string
	hasConsent      bool
	hasCategories   bool
	continueEnabled bool
	hideContinue    bool

	entryHits      int
	applicantPosts int
	categoryPicks  []string
}

func (p *fakePortal) server() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.entryHits++
		if p.entryFailures > 0 {
			p.entryFailures--
			http.Error(w, "gateway error", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `<html><body><iframe src="/challenge"></iframe></body></html>`)
	})
	mux.HandleFunc("GET /challenge", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><input name="challenge-token" value="tok-1"></body></html>`)
	})
	mux.HandleFunc("POST /challenge/verify", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("token") != "tok-1" {
			http.Error(w, "bad token", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, "<html><body>verified</body></html>")
	})

	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		disabled := ""
		if p.loginDisabled {
			disabled = " disabled"
		}
		p.mu.Unlock()
		fmt.Fprintf(w, `<html><body><form>
			<input name="csrf" value="csrf-1">
			<input id="email"><input id="password">
			<button class="submit"%s>Sign In</button>
		</form></body></html>`, disabled)
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		reject := p.rejectLogin
		p.mu.Unlock()
		if reject || r.FormValue("csrf") != "csrf-1" {
			fmt.Fprint(w, `<html><body>invalid credentials</body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body><a href="/logout">Sign out</a></body></html>`)
	})

	mux.HandleFunc("GET /appointment", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		consent := ""
		if p.hasConsent {
			consent = `<div id="consent-accept">Accept cookies</div>`
		}
		p.mu.Unlock()
		fmt.Fprintf(w, `<html><body>%s</body></html>`, consent)
	})
	mux.HandleFunc("POST /consent", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>ok</body></html>")
	})

	checkPage := func(w http.ResponseWriter) {
		p.mu.Lock()
		defer p.mu.Unlock()
		page := "<html><body>"
		if p.hasCategories {
			page += `<select name="category"><option value="short-stay">Short stay</option></select>`
		}
		if p.statusText != "" {
			page += fmt.Sprintf(`<div class="alert alert-info">%s</div>`, p.statusText)
		}
		if !p.hideContinue {
			disabled := " disabled"
			if p.continueEnabled {
				disabled = ""
			}
			page += fmt.Sprintf(`<button class="continue"%s>Continue</button>`, disabled)
		}
		page += "</body></html>"
		fmt.Fprint(w, page)
	}
	mux.HandleFunc("POST /appointment/check", func(w http.ResponseWriter, r *http.Request) { checkPage(w) })
	mux.HandleFunc("GET /appointment/check", func(w http.ResponseWriter, r *http.Request) { checkPage(w) })
	mux.HandleFunc("POST /appointment/category", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.categoryPicks = append(p.categoryPicks, r.FormValue("category"))
		p.mu.Unlock()
		fmt.Fprint(w, "<html><body>ok</body></html>")
	})
	mux.HandleFunc("POST /appointment/applicant", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.applicantPosts++
		p.mu.Unlock()
		fmt.Fprint(w, "<html><body>submitted</body></html>")
	})

	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, baseURL string, sink Sink) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:     baseURL,
		Email:       "user@example.com",
		Password:    "secret",
		SnapshotDir: t.TempDir(),
		ElementWait: 200 * time.Millisecond,
		ConsentWait: 100 * time.Millisecond,
		RunTimeout:  10 * time.Second,
		PollStep:    20 * time.Millisecond,
	}, sink, nil)
	require.NoError(t, err)
	return c
}

func TestRunReportsNoSlot(t *testing.T) {
	fake := &fakePortal{
		statusText:    "No appointment slots are currently available.",
		hasConsent:    true,
		hasCategories: true,
	}
	srv := fake.server()
	defer srv.Close()

	sink := &fakeSink{}
	c := newTestClient(t, srv.URL, sink)

	out := c.Run(context.Background(), 42)
	assert.Equal(t, KindNoSlot, out.Kind)
	assert.Equal(t, "No appointment slots are currently available.", out.Message)
	require.Len(t, sink.recorded(), 1)
	assert.Equal(t, out.Message, sink.recorded()[0])
	assert.NotEmpty(t, fake.categoryPicks)
}

func TestRunSlotSubmitsApplicant(t *testing.T) {
	fake := &fakePortal{
		statusText:      "Appointment slots are available!",
		continueEnabled: true,
	}
	srv := fake.server()
	defer srv.Close()

	sink := &fakeSink{}
	c := newTestClient(t, srv.URL, sink)

	out := c.Run(context.Background(), 42)
	assert.Equal(t, KindSlot, out.Kind)
	assert.Equal(t, 1, fake.applicantPosts)
	require.Len(t, sink.recorded(), 1)
}

func TestRunRetriesChallengeOnce(t *testing.T) {
	fake := &fakePortal{
		entryFailures: 1,
		statusText:    "No slots.",
	}
	srv := fake.server()
	defer srv.Close()

	sink := &fakeSink{}
	c := newTestClient(t, srv.URL, sink)

	out := c.Run(context.Background(), 42)
	assert.Equal(t, KindNoSlot, out.Kind)
	assert.Equal(t, 2, fake.entryHits)
}

func TestRunChallengeExhaustionYieldsFailure(t *testing.T) {
	fake := &fakePortal{entryFailures: 2}
	srv := fake.server()
	defer srv.Close()

	sink := &fakeSink{}
	c := newTestClient(t, srv.URL, sink)

	out := c.Run(context.Background(), 42)
	assert.Equal(t, KindFailure, out.Kind)
	assert.Equal(t, FailureText, out.Message)
	// The failure is still recorded.
	require.Equal(t, []string{FailureText}, sink.recorded())
}

func TestRunLoginExhaustionYieldsFailure(t *testing.T) {
	fake := &fakePortal{loginDisabled: true, statusText: "irrelevant"}
	srv := fake.server()
	defer srv.Close()

	sink := &fakeSink{}
	c := newTestClient(t, srv.URL, sink)

	out := c.Run(context.Background(), 42)
	assert.Equal(t, KindFailure, out.Kind)
	assert.Equal(t, FailureText, out.Message)
	require.Equal(t, []string{FailureText}, sink.recorded())
	assert.Equal(t, 0, fake.applicantPosts)
}

func TestRunRejectedLoginRetriesThenFails(t *testing.T) {
	fake := &fakePortal{rejectLogin: true, statusText: "irrelevant"}
	srv := fake.server()
	defer srv.Close()

	sink := &fakeSink{}
	c := newTestClient(t, srv.URL, sink)

	out := c.Run(context.Background(), 42)
	assert.Equal(t, KindFailure, out.Kind)
	require.Len(t, sink.recorded(), 1)
}

func TestRunMissingStatusDegradesToErrorText(t *testing.T) {
	fake := &fakePortal{hideContinue: true}
	srv := fake.server()
	defer srv.Close()

	sink := &fakeSink{}
	c := newTestClient(t, srv.URL, sink)

	out := c.Run(context.Background(), 42)
	assert.Equal(t, KindNoSlot, out.Kind)
	assert.Contains(t, out.Message, "status unavailable")
	require.Len(t, sink.recorded(), 1)
}

func TestRunToleratesAbsentConsentBanner(t *testing.T) {
	fake := &fakePortal{statusText: "No slots."}
	srv := fake.server()
	defer srv.Close()

	sink := &fakeSink{}
	c := newTestClient(t, srv.URL, sink)

	out := c.Run(context.Background(), 42)
	assert.Equal(t, KindNoSlot, out.Kind)
	assert.Equal(t, "No slots.", out.Message)
}
