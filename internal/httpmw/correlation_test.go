package httpmw

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/keithlinneman/linnemanlabs-api/internal/reqctx"
)

func serveCorrelation(t *testing.T, r *http.Request) (*httptest.ResponseRecorder, reqctx.Info) {
	t.Helper()
	var info reqctx.Info
	h := Correlation(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		if info, ok = reqctx.From(r.Context()); !ok {
			t.Fatal("request context missing")
		}
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w, info
}

func TestCorrelation_GeneratesUUID(t *testing.T) {
	w, info := serveCorrelation(t, httptest.NewRequest(http.MethodGet, "/", nil))

	got := w.Header().Get(CorrelationHeader)
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("generated id %q is not a uuid: %v", got, err)
	}
	if info.CorrelationID != got {
		t.Fatalf("context id %q != header %q", info.CorrelationID, got)
	}
	if info.Start.IsZero() {
		t.Fatal("start time not recorded")
	}
}

func TestCorrelation_EchoesInbound(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(CorrelationHeader, "client-trace-42")

	w, info := serveCorrelation(t, r)

	if got := w.Header().Get(CorrelationHeader); got != "client-trace-42" {
		t.Fatalf("header = %q", got)
	}
	if info.CorrelationID != "client-trace-42" {
		t.Fatalf("ctx id = %q", info.CorrelationID)
	}
}

func TestCorrelation_RejectsMalformedInbound(t *testing.T) {
	bad := []string{
		strings.Repeat("a", 129),
		"line\nbreak",
		"tab\tinside",
		"café",
	}
	for _, in := range bad {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(CorrelationHeader, in)
		w, _ := serveCorrelation(t, r)

		got := w.Header().Get(CorrelationHeader)
		if got == in || got == "" {
			t.Errorf("inbound %q should be replaced, got %q", in, got)
		}
	}
}

func TestCorrelation_AcceptsMaxLength(t *testing.T) {
	id := strings.Repeat("x", 128)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(CorrelationHeader, id)
	w, _ := serveCorrelation(t, r)
	if w.Header().Get(CorrelationHeader) != id {
		t.Fatal("128 byte id should be accepted")
	}
}

func TestCorrelation_EchoesInteriorSpaces(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(CorrelationHeader, "batch 7 item 3")
	w, info := serveCorrelation(t, r)
	if got := w.Header().Get(CorrelationHeader); got != "batch 7 item 3" {
		t.Fatalf("header = %q", got)
	}
	if info.CorrelationID != "batch 7 item 3" {
		t.Fatalf("ctx id = %q", info.CorrelationID)
	}
}

func TestCorrelation_CarriesClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(WithClientIP(r.Context(), "198.51.100.7"))
	_, info := serveCorrelation(t, r)
	if info.ClientIP != "198.51.100.7" {
		t.Fatalf("client ip = %q", info.ClientIP)
	}
}

func failCorrelationIDs(t *testing.T) {
	t.Helper()
	orig := newCorrelationID
	newCorrelationID = func() (string, error) { return "", errors.New("entropy exhausted") }
	t.Cleanup(func() { newCorrelationID = orig })
}

func TestCorrelation_FallbackWhenGenerationFails(t *testing.T) {
	failCorrelationIDs(t)

	spy := newSpyLogger()
	var info reqctx.Info
	h := Correlation(spy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, _ = reqctx.From(r.Context())
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := w.Header().Get(CorrelationHeader); got != FallbackCorrelationID {
		t.Fatalf("header = %q", got)
	}
	if info.CorrelationID != FallbackCorrelationID {
		t.Fatalf("ctx id = %q", info.CorrelationID)
	}
	if e, ok := spy.find("correlation id generation failed, using fallback"); !ok || e.level != "warn" {
		t.Fatal("expected fallback warning")
	}
}

// The request logger is bound after Correlation, so the fallback warning
// must not depend on a logger in the incoming context.
func TestCorrelation_FallbackLoggedInServerOrder(t *testing.T) {
	failCorrelationIDs(t)

	spy := newSpyLogger()
	w := httptest.NewRecorder()
	pipeline(spy, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users", nil))

	if got := w.Header().Get(CorrelationHeader); got != FallbackCorrelationID {
		t.Fatalf("header = %q", got)
	}
	e, ok := spy.find("correlation id generation failed, using fallback")
	if !ok {
		t.Fatalf("fallback warning not logged; entries = %d", len(spy.all()))
	}
	if e.level != "warn" || e.err != nil {
		t.Fatalf("entry = %+v", e)
	}
	if _, ok := kvGet(e.kv, "err"); !ok {
		t.Fatal("generation error not attached")
	}
}

func TestCorrelation_HeaderSetBeforeHandlerWrites(t *testing.T) {
	h := Correlation(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get(CorrelationHeader) == "" {
		t.Fatal("header missing on early-written response")
	}
}

func TestCorrelation_ConcurrentRequestsIsolated(t *testing.T) {
	h := Correlation(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got, want := reqctx.CorrelationID(r.Context()), r.Header.Get(CorrelationHeader); got != want {
			t.Errorf("ctx id %q, want %q", got, want)
		}
	}))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set(CorrelationHeader, "req-"+strings.Repeat("z", i%10)+string(rune('a'+i%26)))
			h.ServeHTTP(httptest.NewRecorder(), r)
		}(i)
	}
	wg.Wait()
}
