package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, d *Dashboard) *httptest.Server {
	t.Helper()
	h, err := d.Handler()
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatsCounters(t *testing.T) {
	d := NewDashboard("bridge-01", "https://aihorde.net", 2)
	d.LoadHistoricalStats(4, 1, 4, 40, 2)

	d.CycleStarted("job-1")
	d.RecordCycleCompleted(1, 10)
	d.CycleStarted("job-2")
	d.RecordCycleFailed(errors.New("generation timed out"), true, false)
	d.RecordEmptyPop()
	d.RecordPopError(errors.New("pop: http 503"))

	s := d.GetStats()
	if s.CyclesCompleted != 5 || s.CyclesFailed != 2 || s.TodayCyclesCompleted != 3 {
		t.Errorf("cycle counts = %+v", s)
	}
	if s.TotalKudos != 50 || s.AvgKudosPerJob != 10 || s.TotalImages != 5 {
		t.Errorf("output stats = %+v", s)
	}
	if s.ActiveCycles != 0 || s.Timeouts != 1 || s.EmptyPops != 1 || s.PopErrors != 1 {
		t.Errorf("loop stats = %+v", s)
	}
	if s.LastJobID != "job-2" || s.LastError != "pop: http 503" {
		t.Errorf("last = %q / %q", s.LastJobID, s.LastError)
	}
}

func TestHandleStats(t *testing.T) {
	d := NewDashboard("bridge-01", "https://aihorde.net", 1)
	srv := newTestServer(t, d)

	resp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var s Stats
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.WorkerName != "bridge-01" || s.Threads != 1 {
		t.Fatalf("stats = %+v", s)
	}

	post, err := http.Post(srv.URL+"/api/stats", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", post.StatusCode)
	}
}

func TestHandleControl(t *testing.T) {
	d := NewDashboard("bridge-01", "", 1)
	srv := newTestServer(t, d)

	resp, err := http.Post(srv.URL+"/api/pause", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("unconfigured pause status = %d", resp.StatusCode)
	}

	paused := false
	d.SetPauseFunc(func() error { paused = true; return nil })

	resp, err = http.Post(srv.URL+"/api/pause", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !paused {
		t.Errorf("pause status = %d, paused = %v", resp.StatusCode, paused)
	}
}

func TestHandleIndex(t *testing.T) {
	srv := newTestServer(t, NewDashboard("bridge-01", "", 1))

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("index = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(srv.URL + "/missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing page = %d", resp.StatusCode)
	}
}

func TestLiveFeed(t *testing.T) {
	d := NewDashboard("bridge-01", "https://aihorde.net", 3)
	d.RecordEmptyPop()
	srv := newTestServer(t, d)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var s Stats
	if err := conn.ReadJSON(&s); err != nil {
		t.Fatalf("read: %v", err)
	}
	if s.Threads != 3 || s.EmptyPops != 1 {
		t.Fatalf("live stats = %+v", s)
	}
}
