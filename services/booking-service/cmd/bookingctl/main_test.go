package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"bookingctl"}, args...))
	return out.String(), err
}

func TestNormalizeCommand(t *testing.T) {
	out, err := run(t, "normalize", "--date", "2025-03-03", "--time", "10", "--tz", "America/New_York")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got["startUtcISO"] != "2025-03-03T15:00:00Z" || got["ambiguousTime"] != true {
		t.Fatalf("unexpected output: %v", got)
	}

	if _, err := run(t, "normalize", "--strict", "--date", "2025-03-03", "--time", "10", "--tz", "America/New_York"); err == nil {
		t.Fatalf("expected strict policy to reject a bare hour")
	}
}

func TestBookCommandSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/bookings" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"ok":false,"reason":"CONFLICT"}`))
	}))
	defer srv.Close()

	out, err := run(t, "--base-url", srv.URL, "book",
		"--subject", "detailer-1", "--date", "tomorrow", "--time", "2pm", "--duration", "90", "--key", "k-1")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if gotKey != "k-1" {
		t.Fatalf("expected key k-1, got %q", gotKey)
	}
	if gotBody["subjectId"] != "detailer-1" || gotBody["durationMinutes"] != float64(90) || gotBody["source"] != "bookingctl" {
		t.Fatalf("unexpected body: %v", gotBody)
	}
	if !strings.Contains(out, "CONFLICT") {
		t.Fatalf("expected response to be printed, got %q", out)
	}
}

func TestBookCommandGeneratesKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	if _, err := run(t, "--base-url", srv.URL, "book", "--subject", "s", "--date", "today", "--time", "9am"); err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(gotKey) != 36 {
		t.Fatalf("expected a generated uuid key, got %q", gotKey)
	}
}

func TestSlotsCommand(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"slots":[]}`))
	}))
	defer srv.Close()

	if _, err := run(t, "--base-url", srv.URL+"/", "slots", "--subject", "detailer-1", "--date", "2025-03-03", "--buffer", "15"); err != nil {
		t.Fatalf("slots: %v", err)
	}
	if gotPath != "/api/v1/subjects/detailer-1/slots" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotQuery != "buffer_minutes=15&date=2025-03-03&duration_minutes=60" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}

func TestSlotsCommandFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"reason":"SUBJECT_NOT_FOUND"}`))
	}))
	defer srv.Close()

	if _, err := run(t, "--base-url", srv.URL, "slots", "--subject", "missing"); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestAdminCommandsRequireDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := run(t, "migrate"); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
	if _, err := run(t, "subject", "upsert", "--id", "s", "--tz", "UTC", "--hours", "mon=09:00-17:00"); err == nil {
		t.Fatalf("expected DATABASE_URL error")
	}
	if _, err := run(t, "subject", "upsert", "--id", "s", "--tz", "UTC", "--hours", "funday=09:00-17:00"); err == nil {
		t.Fatalf("expected invalid hours error")
	}
}

func TestEventsTopics(t *testing.T) {
	out, err := run(t, "events", "topics")
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if !strings.Contains(out, "booking.reservation.cancelled.v1") {
		t.Fatalf("unexpected topics %q", out)
	}
}

func TestReadyCommandListsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/readyz" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable","failures":{"redis":"dial timeout","db":"refused"}}`))
	}))
	defer srv.Close()

	out, err := run(t, "--base-url", srv.URL, "ready")
	if err == nil {
		t.Fatalf("expected failure")
	}
	if out != "db\trefused\nredis\tdial timeout\n" {
		t.Fatalf("unexpected output %q", out)
	}
}
