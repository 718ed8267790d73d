package dashboard

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/council/internal/archive"
	"github.com/zulandar/council/internal/council"
	"github.com/zulandar/council/internal/db"
	"github.com/zulandar/council/internal/generate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// quickGen concludes investigation as soon as it is allowed to.
func quickGen() generate.Generator {
	return generate.Func(func(_ context.Context, system string, _ []generate.Turn, _ float64) (string, error) {
		if strings.Contains(system, council.CompletionToken) {
			return council.CompletionToken, nil
		}
		return "reply", nil
	})
}

func newTestRegistry(t *testing.T) *council.Registry {
	t.Helper()
	r, err := council.NewRegistry(council.RegistryOpts{
		New: func(string) (*council.Controller, error) {
			return council.NewController(council.Options{Generator: quickGen(), Profile: "INFP", MinRounds: 1})
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

// sequentialIDs returns predictable session ids.
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("s%d", n)
	}
}

func newTestServer(t *testing.T, opts Opts) *Server {
	t.Helper()
	if opts.Registry == nil {
		opts.Registry = newTestRegistry(t)
	}
	if opts.NewID == nil {
		opts.NewID = sequentialIDs()
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// fakeRecorder counts attach and detach calls per key.
type fakeRecorder struct {
	mu       sync.Mutex
	attached map[string]int
	detached map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{attached: make(map[string]int), detached: make(map[string]int)}
}

func (f *fakeRecorder) Attach(_ *council.Controller, surface, key string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[surface+"/"+key]++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.detached[surface+"/"+key]++
	}, nil
}

func (f *fakeRecorder) counts(key string) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached[key], f.detached[key]
}

// --- New ---

func TestNew_NilRegistry(t *testing.T) {
	_, err := New(Opts{})
	if err == nil || !strings.Contains(err.Error(), "registry is required") {
		t.Fatalf("err = %v", err)
	}
}

// --- Routes ---

func TestHealthz(t *testing.T) {
	s := newTestServer(t, Opts{})
	w := do(t, s, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("healthz = %d %s", w.Code, w.Body.String())
	}
}

func TestCreateSession(t *testing.T) {
	s := newTestServer(t, Opts{})

	w := do(t, s, http.MethodPost, "/api/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[createResponse](t, w)
	if resp.ID != "s1" || resp.Stage != council.StageInit || resp.Profile != "INFP" {
		t.Errorf("resp = %+v", resp)
	}

	w = do(t, s, http.MethodPost, "/api/sessions", `{"profile":"ENTJ"}`)
	resp = decode[createResponse](t, w)
	if resp.ID != "s2" || resp.Profile != "ENTJ" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCreateSession_DefaultIDsAreUUIDs(t *testing.T) {
	s, _ := New(Opts{Registry: newTestRegistry(t)})
	resp := decode[createResponse](t, do(t, s, http.MethodPost, "/api/sessions", ""))
	if len(resp.ID) != 36 || strings.Count(resp.ID, "-") != 4 {
		t.Errorf("id = %q, want a uuid", resp.ID)
	}
}

func TestCreateSession_BadJSON(t *testing.T) {
	s := newTestServer(t, Opts{})
	if w := do(t, s, http.MethodPost, "/api/sessions", `{"profile":`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateSession_BlankProfile400(t *testing.T) {
	rec := newFakeRecorder()
	s := newTestServer(t, Opts{Recorder: rec})
	w := do(t, s, http.MethodPost, "/api/sessions", `{"profile":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
	}
	if n := s.registry.Len(); n != 0 {
		t.Errorf("registry len = %d, rejected create must not leave a session", n)
	}
	if attached, _ := rec.counts("http/s1"); attached != 0 {
		t.Errorf("rejected session was recorded %d times", attached)
	}
}

func TestCreateSession_FreeTextProfile(t *testing.T) {
	s := newTestServer(t, Opts{})
	w := do(t, s, http.MethodPost, "/api/sessions", `{"profile":"anxious introvert, 34"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp := decode[createResponse](t, w); resp.Profile != "anxious introvert, 34" {
		t.Errorf("profile = %q", resp.Profile)
	}
}

func TestListSessions(t *testing.T) {
	s := newTestServer(t, Opts{})
	do(t, s, http.MethodPost, "/api/sessions", "")
	do(t, s, http.MethodPost, "/api/sessions", "")

	var resp struct {
		Sessions []council.SessionInfo `json:"sessions"`
	}
	w := do(t, s, http.MethodGet, "/api/sessions", "")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sessions) != 2 || resp.Sessions[0].Key != "s1" || resp.Sessions[1].Key != "s2" {
		t.Errorf("sessions = %+v", resp.Sessions)
	}
}

func TestUnknownSession404(t *testing.T) {
	s := newTestServer(t, Opts{})
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/sessions/nope", ""},
		{http.MethodPost, "/api/sessions/nope/messages", `{"text":"hi"}`},
		{http.MethodPost, "/api/sessions/nope/reset", ""},
		{http.MethodPut, "/api/sessions/nope/profile", `{"profile":"INTJ"}`},
		{http.MethodDelete, "/api/sessions/nope", ""},
		{http.MethodGet, "/api/sessions/nope/events", ""},
	} {
		if w := do(t, s, tc.method, tc.path, tc.body); w.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.path, w.Code)
		}
	}
}

func TestMessageFlow(t *testing.T) {
	s := newTestServer(t, Opts{})
	do(t, s, http.MethodPost, "/api/sessions", "")

	w := do(t, s, http.MethodPost, "/api/sessions/s1/messages", `{"text":"my partner wants to move abroad"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	snap := decode[council.Snapshot](t, w)
	if snap.Stage != council.StageInvestigate || len(snap.Transcript) != 2 {
		t.Fatalf("after complaint: stage=%s transcript=%d", snap.Stage, len(snap.Transcript))
	}

	w = do(t, s, http.MethodPost, "/api/sessions/s1/messages", `{"text":"we have two kids"}`)
	snap = decode[council.Snapshot](t, w)
	if snap.Stage != council.StageFollowUp {
		t.Fatalf("stage = %s, want FOLLOWUP", snap.Stage)
	}
	if len(snap.Opinions) != 4 {
		t.Errorf("opinions = %d, want 4", len(snap.Opinions))
	}
	if snap.Summary == "" {
		t.Error("summary should be set")
	}
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Role != council.RoleSynthesizer {
		t.Errorf("last role = %s, want synthesizer", last.Role)
	}

	w = do(t, s, http.MethodGet, "/api/sessions/s1", "")
	if got := decode[council.Snapshot](t, w); got.Stage != council.StageFollowUp {
		t.Errorf("GET stage = %s", got.Stage)
	}
}

func TestMessage_EmptyText400(t *testing.T) {
	s := newTestServer(t, Opts{})
	do(t, s, http.MethodPost, "/api/sessions", "")
	w := do(t, s, http.MethodPost, "/api/sessions/s1/messages", `{"text":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if snap := decode[council.Snapshot](t, do(t, s, http.MethodGet, "/api/sessions/s1", "")); len(snap.Transcript) != 0 {
		t.Error("empty input must not change the session")
	}
}

func TestMessage_Busy409(t *testing.T) {
	reg := newTestRegistry(t)
	s := newTestServer(t, Opts{Registry: reg})
	do(t, s, http.MethodPost, "/api/sessions", "")

	// Reach COUNCIL without driving it.
	ctrl, _ := reg.Get("s1")
	ctx := context.Background()
	ctrl.Submit(ctx, "complaint")
	ctrl.Submit(ctx, "answer")
	if ctrl.Stage() != council.StageCouncil {
		t.Fatalf("stage = %s, want COUNCIL", ctrl.Stage())
	}

	w := do(t, s, http.MethodPost, "/api/sessions/s1/messages", `{"text":"hello?"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestResetAndProfile(t *testing.T) {
	s := newTestServer(t, Opts{})
	do(t, s, http.MethodPost, "/api/sessions", "")
	do(t, s, http.MethodPost, "/api/sessions/s1/messages", `{"text":"trouble"}`)

	w := do(t, s, http.MethodPost, "/api/sessions/s1/reset", "")
	snap := decode[council.Snapshot](t, w)
	if snap.Stage != council.StageInit || len(snap.Transcript) != 0 {
		t.Errorf("after reset: %+v", snap)
	}

	w = do(t, s, http.MethodPut, "/api/sessions/s1/profile", `{"profile":"ISTJ"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ISTJ") {
		t.Errorf("profile = %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodPut, "/api/sessions/s1/profile", `{"profile":""}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty profile status = %d, want 400", w.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	rec := newFakeRecorder()
	s := newTestServer(t, Opts{Recorder: rec})
	do(t, s, http.MethodPost, "/api/sessions", "")

	if a, _ := rec.counts("http/s1"); a != 1 {
		t.Errorf("attached = %d, want 1", a)
	}
	if w := do(t, s, http.MethodDelete, "/api/sessions/s1", ""); w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if _, d := rec.counts("http/s1"); d != 1 {
		t.Errorf("detached = %d, want 1", d)
	}
	if w := do(t, s, http.MethodGet, "/api/sessions/s1", ""); w.Code != http.StatusNotFound {
		t.Errorf("deleted session status = %d, want 404", w.Code)
	}
}

func TestSweepStopsRecording(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	reg, _ := council.NewRegistry(council.RegistryOpts{
		New: func(string) (*council.Controller, error) {
			return council.NewController(council.Options{Generator: quickGen()})
		},
		Now: clock,
	})
	rec := newFakeRecorder()
	s := newTestServer(t, Opts{Registry: reg, Recorder: rec, IdleTimeout: time.Hour})
	do(t, s, http.MethodPost, "/api/sessions", "")

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	if removed := s.sweep(); len(removed) != 1 || removed[0] != "s1" {
		t.Fatalf("removed = %v", removed)
	}
	if _, d := rec.counts("http/s1"); d != 1 {
		t.Errorf("detached = %d, want 1", d)
	}
}

// --- SSE ---

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read sse: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestEvents_StreamsSessionEvents(t *testing.T) {
	s := newTestServer(t, Opts{Heartbeat: time.Hour})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/sessions/s1/events", nil)
	stream, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer stream.Body.Close()
	if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	r := bufio.NewReader(stream.Body)
	if ev, _ := readEvent(t, r); ev != "snapshot" {
		t.Fatalf("first event = %q, want snapshot", ev)
	}

	post, err := http.Post(ts.URL+"/api/sessions/s1/messages", "application/json", strings.NewReader(`{"text":"I lost my job"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	post.Body.Close()

	ev, data := readEvent(t, r)
	if ev != "message" {
		t.Fatalf("event = %q, want message", ev)
	}
	var got council.Event
	if err := json.Unmarshal([]byte(data), &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.Message.Role != council.RoleUser || got.Message.Content != "I lost my job" || got.Sequence != 1 {
		t.Errorf("event = %+v", got)
	}
}

func TestEvents_Heartbeat(t *testing.T) {
	s := newTestServer(t, Opts{Heartbeat: 10 * time.Millisecond})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	do(t, s, http.MethodPost, "/api/sessions", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/sessions/s1/events", nil)
	stream, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer stream.Body.Close()

	r := bufio.NewReader(stream.Body)
	readEvent(t, r) // snapshot
	if ev, _ := readEvent(t, r); ev != "heartbeat" {
		t.Errorf("event = %q, want heartbeat", ev)
	}
}

func TestWriteSSE(t *testing.T) {
	var buf strings.Builder
	writeSSE(&buf, "stage", map[string]string{"stage": "COUNCIL"})
	if got := buf.String(); got != "event: stage\ndata: {\"stage\":\"COUNCIL\"}\n\n" {
		t.Errorf("writeSSE = %q", got)
	}
}

// --- Archive ---

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, _ := gormDB.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gormDB
}

func TestArchiveRoutes(t *testing.T) {
	arc, err := archive.New(archive.Opts{DB: openTestDB(t)})
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	s := newTestServer(t, Opts{Archive: arc})
	do(t, s, http.MethodPost, "/api/sessions", "")
	do(t, s, http.MethodPost, "/api/sessions/s1/messages", `{"text":"should I sell the house"}`)

	w := do(t, s, http.MethodGet, "/api/archive?surface=http", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", w.Code, w.Body.String())
	}
	var list struct {
		Sessions []archive.SessionRow `json:"sessions"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Sessions) != 1 || list.Sessions[0].Key != "s1" || list.Sessions[0].MessageCount != 2 {
		t.Fatalf("list = %+v", list.Sessions)
	}

	w = do(t, s, http.MethodGet, fmt.Sprintf("/api/archive/%d", list.Sessions[0].ID), "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "should I sell the house") {
		t.Errorf("show = %d %s", w.Code, w.Body.String())
	}

	if w := do(t, s, http.MethodGet, "/api/archive/999", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/archive/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

func TestArchiveRoutes_DisabledWithoutArchive(t *testing.T) {
	s := newTestServer(t, Opts{})
	if w := do(t, s, http.MethodGet, "/api/archive", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
