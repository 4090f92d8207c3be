package session

import (
	"errors"
	"testing"
	"time"

	"github.com/sudorandom/ropt-live/pkg/flash"
	"github.com/sudorandom/ropt-live/pkg/model"
	"github.com/sudorandom/ropt-live/pkg/view"
)

// fakeClock fires timers only from Advance.
type fakeClock struct {
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	at   time.Duration
	f    func()
	done bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.done
	t.done = true
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) flash.Timer {
	t := &fakeTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now += d
	for _, t := range c.timers {
		if !t.done && t.at <= c.now {
			t.done = true
			t.f()
		}
	}
}

func newTestStore(lock bool) (*Store, *fakeClock) {
	clock := &fakeClock{}
	var st *Store
	eng := flash.New(flash.Options{}, clock, func(zone string, token uint64) {
		st.Apply(FlashExpired{Zone: zone, Token: token})
	})
	st = NewStore(StoreOptions{LockAspect: lock}, eng)
	return st, clock
}

var wideZones = []model.Zone{
	{ID: "dock", Polygon: []model.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 2}, {X: 0, Y: 2}}},
	{ID: "yard", Polygon: []model.Point{{X: 20, Y: 0}, {X: 40, Y: 0}, {X: 40, Y: 5}}},
}

func snapshotWith(events ...model.Event) *model.Snapshot {
	return &model.Snapshot{
		Actors: map[string]model.ActorState{
			"r1": {Zones: map[string]bool{"dock": true, "yard": false}, LastSeenMs: 10},
		},
		RecentEvents: events,
	}
}

func enterEvent(id, zone string) model.Event {
	return model.Event{ID: model.EventID(id), ActorID: "r1", ZoneID: zone, EventType: "ENTER", TsMs: 1}
}

func zoneByID(m view.Model, id string) view.Zone {
	for _, z := range m.Zones {
		if z.ID == id {
			return z
		}
	}
	return view.Zone{}
}

func TestStoreFlashLifecycle(t *testing.T) {
	st, clock := newTestStore(true)
	st.Apply(ZonesLoaded{Zones: wideZones})
	st.Apply(ConnectionChanged{State: model.ConnLive})

	st.Apply(SnapshotReceived{Snapshot: snapshotWith(enterEvent("e1", "dock")), Source: SourceLive})
	if !zoneByID(st.View(), "dock").Flashing {
		t.Fatal("dock should flash after an ENTER event")
	}

	clock.Advance(1000 * time.Millisecond)
	// Same event again: deduped, window not extended.
	st.Apply(SnapshotReceived{Snapshot: snapshotWith(enterEvent("e1", "dock")), Source: SourceLive})
	clock.Advance(200 * time.Millisecond)
	if zoneByID(st.View(), "dock").Flashing {
		t.Error("dock should stop flashing 1200ms after the only distinct event")
	}
}

func TestStoreDropsPollWhileLive(t *testing.T) {
	st, _ := newTestStore(true)
	live := snapshotWith()
	live.TsMs = 1
	polled := snapshotWith()
	polled.TsMs = 2

	st.Apply(ConnectionChanged{State: model.ConnLive})
	st.Apply(SnapshotReceived{Snapshot: live, Source: SourceLive})
	st.Apply(SnapshotReceived{Snapshot: polled, Source: SourcePoll})
	if got := st.Snapshot().TsMs; got != 1 {
		t.Errorf("Snapshot().TsMs = %d; want live snapshot (1)", got)
	}
	if st.Polling() {
		t.Error("Polling() = true while live")
	}

	st.Apply(ConnectionChanged{State: model.ConnOffline})
	st.Apply(SnapshotReceived{Snapshot: polled, Source: SourcePoll})
	if got := st.Snapshot().TsMs; got != 2 {
		t.Errorf("Snapshot().TsMs = %d; want polled snapshot (2) once offline", got)
	}
}

func TestStoreAspectToggle(t *testing.T) {
	st, _ := newTestStore(true)
	st.Apply(ZonesLoaded{Zones: wideZones})
	locked := st.Transform()
	if locked.ScaleX != locked.ScaleY {
		t.Errorf("locked transform scales = %v, %v; want equal", locked.ScaleX, locked.ScaleY)
	}

	st.Apply(SnapshotReceived{Snapshot: snapshotWith(), Source: SourcePoll})
	if st.Transform() != locked {
		t.Error("snapshot must not change the transform")
	}

	st.Apply(AspectToggled{})
	stretched := st.Transform()
	if stretched.ScaleX == stretched.ScaleY {
		t.Errorf("unlocked transform scales = %v, %v; want different for a wide layout", stretched.ScaleX, stretched.ScaleY)
	}
	if st.View().Status.LockAspect {
		t.Error("Status.LockAspect should be false after toggle")
	}
}

func TestStoreViewComposition(t *testing.T) {
	st, _ := newTestStore(true)
	st.Apply(ZonesLoaded{Zones: wideZones})
	st.Apply(GraphLoaded{Nodes: model.NodeIndex{"A": {X: 0, Y: 0}, "B": {X: 3, Y: 4}}})
	st.Apply(RouteUpdated{Update: model.RouteUpdate{OptimalPath: []string{"A", "B"}, Candidates: [][]string{{"A", "X", "B"}}}})

	snap := snapshotWith()
	snap.BlockedZones = []string{"yard"}
	st.Apply(SnapshotReceived{Snapshot: snap, Source: SourcePoll})

	m := st.View()
	if len(m.Paths) != 2 || !m.Paths[0].Best || m.Paths[0].Cost != 5 {
		t.Fatalf("Paths = %+v; want optimal first with cost 5", m.Paths)
	}
	if m.Paths[0].Risk != view.RiskHigh {
		t.Errorf("Risk = %q; want %q with a blocked zone", m.Paths[0].Risk, view.RiskHigh)
	}
	if !zoneByID(m, "yard").Blocked || zoneByID(m, "dock").Blocked {
		t.Error("only yard should be blocked")
	}
	if len(m.Actors) != 1 || len(m.Actors[0].ActiveZones) != 1 || m.Actors[0].ActiveZones[0] != "dock" {
		t.Errorf("Actors = %+v; want r1 in dock only", m.Actors)
	}
	if m.Status.ZoneSummary != "2 zones loaded" {
		t.Errorf("ZoneSummary = %q", m.Status.ZoneSummary)
	}
}

func TestStoreRetainsLastError(t *testing.T) {
	st, _ := newTestStore(true)
	st.Apply(TransportFailed{Err: errors.New("first")})
	st.Apply(TransportFailed{Err: errors.New("second")})
	st.Apply(SnapshotReceived{Snapshot: snapshotWith(), Source: SourcePoll})
	if got := st.View().Status.Error; got != "second" {
		t.Errorf("Status.Error = %q; want %q", got, "second")
	}
}
