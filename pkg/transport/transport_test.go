package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sudorandom/ropt-live/pkg/model"
	"github.com/sudorandom/ropt-live/pkg/utils"
)

const (
	zonesBody = `{"zones":[{"zone_id":"dock","polygon":[[0,0],[4,0],[4,2]]}]}`
	graphBody = `{"graph":{"nodes":[{"id":"A","x":0,"y":0},{"id":"B","x":3,"y":4}]}}`
	stateBody = `{"ts_ms":1700,"actors":{"r1":{"zones":{"dock":true},"last_seen_ms":1690}},` +
		`"recent_events":[{"_id":"e1","actor_id":"r1","zone_id":"dock","event_type":"ENTER","ts_ms":1690}],` +
		`"blocked_zones":["dock"]}`
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/zones", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(zonesBody)) })
	mux.HandleFunc("/planning/graph", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(graphBody)) })
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(stateBody)) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientFetches(t *testing.T) {
	srv := newBackend(t)
	c := NewClient(srv.URL, nil)
	ctx := context.Background()

	zones, err := c.LoadZones(ctx)
	if err != nil || len(zones) != 1 || zones[0].ID != "dock" {
		t.Fatalf("LoadZones() = %+v, %v; want one dock zone", zones, err)
	}
	nodes, err := c.LoadGraph(ctx)
	if err != nil || nodes["B"] != (model.Point{X: 3, Y: 4}) {
		t.Fatalf("LoadGraph() = %+v, %v", nodes, err)
	}
	snap, err := c.FetchSnapshot(ctx)
	if err != nil {
		t.Fatalf("FetchSnapshot failed: %v", err)
	}
	if !snap.IsBlocked("dock") || len(snap.RecentEvents) != 1 || snap.TsMs != 1700 {
		t.Errorf("FetchSnapshot() = %+v", snap)
	}
}

func TestClientServesStaleCache(t *testing.T) {
	cache, err := utils.OpenResponseCache(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("OpenResponseCache failed: %v", err)
	}
	defer cache.Close()

	srv := newBackend(t)
	c := NewClient(srv.URL, cache)
	if _, err := c.LoadZones(context.Background()); err != nil {
		t.Fatalf("LoadZones failed: %v", err)
	}
	srv.Close()

	zones, err := c.LoadZones(context.Background())
	var stale *StaleError
	if !errors.As(err, &stale) {
		t.Fatalf("LoadZones() error = %v; want *StaleError", err)
	}
	if len(zones) != 1 || zones[0].ID != "dock" {
		t.Errorf("LoadZones() = %+v; want cached dock zone", zones)
	}

	if _, err := c.LoadGraph(context.Background()); err == nil || errors.As(err, &stale) {
		t.Errorf("LoadGraph() error = %v; want plain fetch error with empty cache", err)
	}
}

func TestClientNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := NewClient(srv.URL, nil).FetchSnapshot(context.Background())
	if !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("FetchSnapshot() error = %v; want ErrNotFound", err)
	}
}

type recorder struct {
	mu       sync.Mutex
	states   []model.ConnState
	messages []model.Message
	errs     []error
}

func (r *recorder) handler() Handler {
	return Handler{
		OnState: func(s model.ConnState) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
		OnMessage: func(m model.Message) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, m)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestLiveChannelDispatch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		frames := []string{
			`{"type":"snapshot","data":` + stateBody + `}`,
			`{"type":"heartbeat","data":{}}`,
			`{not json`,
			`{"type":"route_update","data":{"optimal_path":["A","B"],"candidates":[["A"]]}}`,
		}
		for _, f := range frames {
			c.WriteMessage(websocket.TextMessage, []byte(f))
		}
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	rec := &recorder{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := NewLiveChannel(wsURL(srv)).Run(ctx, rec.handler())
	if !IsClosed(err) {
		t.Errorf("Run() error = %v; want normal close", err)
	}

	if len(rec.messages) != 2 {
		t.Fatalf("got %d messages; want 2 (unknown ignored, malformed dropped)", len(rec.messages))
	}
	if _, ok := rec.messages[0].(model.SnapshotMessage); !ok {
		t.Errorf("messages[0] = %T; want SnapshotMessage", rec.messages[0])
	}
	if _, ok := rec.messages[1].(model.RouteUpdateMessage); !ok {
		t.Errorf("messages[1] = %T; want RouteUpdateMessage", rec.messages[1])
	}
	if len(rec.errs) != 1 || !errors.Is(rec.errs[0], model.ErrMalformedMessage) {
		t.Errorf("errs = %v; want one malformed message error", rec.errs)
	}
	want := []model.ConnState{model.ConnConnecting, model.ConnLive, model.ConnOffline}
	if !equalStates(rec.states, want) {
		t.Errorf("states = %v; want %v", rec.states, want)
	}
}

func TestLiveChannelDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	rec := &recorder{}
	err := NewLiveChannel(url).Run(context.Background(), rec.handler())
	if err == nil {
		t.Fatal("Run() against a closed server should fail")
	}
	want := []model.ConnState{model.ConnConnecting, model.ConnError, model.ConnOffline}
	if !equalStates(rec.states, want) {
		t.Errorf("states = %v; want %v", rec.states, want)
	}
}

func TestLiveChannelReconnects(t *testing.T) {
	var mu sync.Mutex
	accepted := 0
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		accepted++
		mu.Unlock()
		c.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	l := NewLiveChannel(wsURL(srv))
	l.Reconnect = true
	l.MinBackoff = 5 * time.Millisecond
	l.MaxBackoff = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, Handler{}) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := accepted
		mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d connections accepted; want reconnects", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v; want context.Canceled", err)
	}
}

func equalStates(got, want []model.ConnState) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
