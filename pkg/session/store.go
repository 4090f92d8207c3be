package session

import (
	"errors"
	"log"
	"time"

	"github.com/sudorandom/ropt-live/pkg/flash"
	"github.com/sudorandom/ropt-live/pkg/model"
	"github.com/sudorandom/ropt-live/pkg/projection"
	"github.com/sudorandom/ropt-live/pkg/routes"
	"github.com/sudorandom/ropt-live/pkg/view"
)

const (
	SourcePoll = "poll"
	SourceLive = "live"
)

// Action is one discrete state transition. Every external trigger (a fetch
// completing, a channel frame, a timer) becomes exactly one Action.
type Action interface {
	apply(s *Store)
}

type ZonesLoaded struct {
	Zones []model.Zone
}

type GraphLoaded struct {
	Nodes model.NodeIndex
}

type SnapshotReceived struct {
	Snapshot *model.Snapshot
	Source   string
	At       time.Time
}

type RouteUpdated struct {
	Update model.RouteUpdate
}

type ConnectionChanged struct {
	State model.ConnState
}

type TransportFailed struct {
	Err error
}

// FlashExpired carries a flash timer firing back onto the owner goroutine.
type FlashExpired struct {
	Zone  string
	Token uint64
}

type AspectToggled struct{}

type StoreOptions struct {
	Frame       projection.Frame
	FixedBounds *projection.Bounds
	LockAspect  bool
}

// Store is the single owner of session state. It is not safe for concurrent
// use; Session serialises every Apply onto one goroutine.
type Store struct {
	frame      projection.Frame
	fixed      *projection.Bounds
	lockAspect bool

	zones     []model.Zone
	geometry  []view.ZoneGeometry
	transform projection.Transform
	layout    uint64

	nodes    model.NodeIndex
	snapshot *model.Snapshot
	paths    []routes.Path

	conn       model.ConnState
	lastUpdate time.Time
	lastErr    string

	flash *flash.Engine
}

func NewStore(opts StoreOptions, engine *flash.Engine) *Store {
	if opts.Frame == (projection.Frame{}) {
		opts.Frame = projection.DefaultFrame
	}
	s := &Store{
		frame:      opts.Frame,
		fixed:      opts.FixedBounds,
		lockAspect: opts.LockAspect,
		conn:       model.ConnConnecting,
		flash:      engine,
	}
	s.reproject()
	return s
}

func (s *Store) Apply(a Action) {
	if a != nil {
		a.apply(s)
	}
}

// Polling reports whether the poll fallback should be running.
func (s *Store) Polling() bool {
	return s.conn != model.ConnLive
}

func (s *Store) Connection() model.ConnState { return s.conn }

func (s *Store) Snapshot() *model.Snapshot { return s.snapshot }

func (s *Store) Transform() projection.Transform { return s.transform }

// View derives the render model from the current state.
func (s *Store) View() view.Model {
	return view.Compose(view.Input{
		Geometry:   s.geometry,
		Transform:  s.transform,
		Snapshot:   s.snapshot,
		Flashing:   s.flash.ActiveZones(),
		Paths:      s.paths,
		Nodes:      s.nodes,
		Connection: s.conn,
		LastUpdate: s.lastUpdate,
		Error:      s.lastErr,
		LockAspect: s.lockAspect,
		Layout:     s.layout,
	})
}

// reproject recomputes the transform and zone geometry. It depends only on
// the zone set, the fixed frame and the aspect lock.
func (s *Store) reproject() {
	var b projection.Bounds
	if s.fixed != nil {
		b = *s.fixed
	} else {
		b = projection.ComputeBounds(s.zones)
	}
	s.transform = projection.Fit(b, s.frame, s.lockAspect)
	s.geometry = view.ProjectZones(s.zones, s.transform)
	s.layout++
}

func (a ZonesLoaded) apply(s *Store) {
	s.zones = a.Zones
	s.reproject()
	log.Printf("[session] %s", view.ZoneSummary(len(s.zones)))
}

func (a GraphLoaded) apply(s *Store) {
	s.nodes = a.Nodes
}

func (a SnapshotReceived) apply(s *Store) {
	if a.Snapshot == nil {
		return
	}
	if a.Source == SourcePoll && s.conn == model.ConnLive {
		snapshotsDroppedTotal.Inc()
		return
	}
	s.snapshot = a.Snapshot
	s.lastUpdate = a.At
	if s.lastUpdate.IsZero() {
		s.lastUpdate = time.Now()
	}
	snapshotsAppliedTotal.WithLabelValues(a.Source).Inc()

	triggered := s.flash.Ingest(a.Snapshot.RecentEvents)
	flashesTriggeredTotal.Add(float64(len(triggered)))
	activeFlashesGauge.Set(float64(len(s.flash.ActiveZones())))
}

func (a RouteUpdated) apply(s *Store) {
	u := a.Update
	s.paths = routes.BuildPaths(&u)
	routeUpdatesTotal.Inc()
}

func (a ConnectionChanged) apply(s *Store) {
	if s.conn == a.State {
		return
	}
	log.Printf("[session] Connection %s -> %s", s.conn, a.State)
	s.conn = a.State
	recordConnState(a.State)
}

func (a TransportFailed) apply(s *Store) {
	if a.Err == nil {
		return
	}
	s.lastErr = a.Err.Error()
	transportErrorsTotal.Inc()
	if errors.Is(a.Err, model.ErrMalformedMessage) {
		log.Printf("[live] %v", a.Err)
		return
	}
	log.Printf("[session] Transport error: %v", a.Err)
}

func (a FlashExpired) apply(s *Store) {
	if s.flash.Expire(a.Zone, a.Token) {
		activeFlashesGauge.Set(float64(len(s.flash.ActiveZones())))
	}
}

func (AspectToggled) apply(s *Store) {
	s.lockAspect = !s.lockAspect
	s.reproject()
}
