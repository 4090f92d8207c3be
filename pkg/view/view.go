// Package view derives render-ready zones, actors and path overlays from the
// session state. Nothing here performs I/O or keeps state between calls.
package view

import (
	"fmt"
	"sort"
	"time"

	"github.com/sudorandom/ropt-live/pkg/model"
	"github.com/sudorandom/ropt-live/pkg/projection"
	"github.com/sudorandom/ropt-live/pkg/routes"
)

// RecentEventLimit is how many events the side panel shows, newest first.
const RecentEventLimit = 8

const (
	RiskHigh = "High"
	RiskLow  = "Low"
)

// ZoneGeometry is a zone projected into view space. It depends only on the
// zone set and the transform, so callers cache it across state changes.
type ZoneGeometry struct {
	ID         string
	Points     []model.Point
	PointsAttr string
	Center     model.Point
}

// ProjectZones maps every zone through t. The label anchor is the world
// centroid projected through t.
func ProjectZones(zones []model.Zone, t projection.Transform) []ZoneGeometry {
	out := make([]ZoneGeometry, 0, len(zones))
	for _, z := range zones {
		pts := t.ApplyAll(z.Polygon)
		out = append(out, ZoneGeometry{
			ID:         z.ID,
			Points:     pts,
			PointsAttr: projection.FormatPoints(pts),
			Center:     t.Apply(projection.Centroid(z.Polygon)),
		})
	}
	return out
}

type Zone struct {
	ZoneGeometry
	Flashing bool
	Blocked  bool
}

type Actor struct {
	ID          string
	LastSeenMs  int64
	ActiveZones []string
}

// Marker places an actor on the label anchor of a zone it occupies.
type Marker struct {
	ActorID string
	ZoneID  string
	At      model.Point
}

type Path struct {
	ID         string
	Best       bool
	Points     []model.Point
	PointsAttr string
	Cost       float64
	Risk       string
	Title      string
}

type Status struct {
	Connection   model.ConnState
	LastUpdate   time.Time
	ActorCount   int
	ZoneCount    int
	ZoneSummary  string
	Error        string
	LockAspect   bool
	RunID        string
	SnapshotTsMs int64
}

type Model struct {
	// Layout changes whenever zone geometry is reprojected.
	Layout       uint64
	Zones        []Zone
	Actors       []Actor
	Markers      []Marker
	Paths        []Path
	RecentEvents []model.Event
	Status       Status
}

type Input struct {
	Geometry   []ZoneGeometry
	Transform  projection.Transform
	Snapshot   *model.Snapshot
	Flashing   map[string]bool
	Paths      []routes.Path
	Nodes      model.NodeIndex
	Connection model.ConnState
	LastUpdate time.Time
	Error      string
	LockAspect bool
	Layout     uint64
}

// Risk is a global signal: High while any zone is blocked.
func Risk(snap *model.Snapshot) string {
	if snap != nil && len(snap.BlockedZones) > 0 {
		return RiskHigh
	}
	return RiskLow
}

func ZoneSummary(n int) string {
	if n == 0 {
		return "No zones yet"
	}
	return fmt.Sprintf("%d zones loaded", n)
}

func Compose(in Input) Model {
	m := Model{
		Layout: in.Layout,
		Zones:  make([]Zone, 0, len(in.Geometry)),
	}
	for _, g := range in.Geometry {
		m.Zones = append(m.Zones, Zone{
			ZoneGeometry: g,
			Flashing:     in.Flashing[g.ID],
			Blocked:      in.Snapshot.IsBlocked(g.ID),
		})
	}

	m.Actors = actors(in.Snapshot)
	m.Markers = markers(m.Actors, in.Geometry)
	m.Paths = paths(in)
	m.RecentEvents = recentEvents(in.Snapshot)

	m.Status = Status{
		Connection:  in.Connection,
		LastUpdate:  in.LastUpdate,
		ActorCount:  len(m.Actors),
		ZoneCount:   len(in.Geometry),
		ZoneSummary: ZoneSummary(len(in.Geometry)),
		Error:       in.Error,
		LockAspect:  in.LockAspect,
	}
	if in.Snapshot != nil {
		m.Status.RunID = in.Snapshot.ActiveRunID
		m.Status.SnapshotTsMs = in.Snapshot.TsMs
	}
	return m
}

func actors(snap *model.Snapshot) []Actor {
	if snap == nil || len(snap.Actors) == 0 {
		return nil
	}
	out := make([]Actor, 0, len(snap.Actors))
	for id, st := range snap.Actors {
		var active []string
		for z, inside := range st.Zones {
			if inside {
				active = append(active, z)
			}
		}
		sort.Strings(active)
		out = append(out, Actor{ID: id, LastSeenMs: st.LastSeenMs, ActiveZones: active})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func markers(actors []Actor, geometry []ZoneGeometry) []Marker {
	if len(actors) == 0 {
		return nil
	}
	byID := make(map[string]model.Point, len(geometry))
	for _, g := range geometry {
		byID[g.ID] = g.Center
	}
	var out []Marker
	for _, a := range actors {
		for _, z := range a.ActiveZones {
			at, ok := byID[z]
			if !ok {
				continue
			}
			out = append(out, Marker{ActorID: a.ID, ZoneID: z, At: at})
		}
	}
	return out
}

func paths(in Input) []Path {
	if len(in.Paths) == 0 {
		return nil
	}
	risk := Risk(in.Snapshot)
	out := make([]Path, 0, len(in.Paths))
	for _, p := range in.Paths {
		pts := in.Transform.ApplyAll(routes.Resolve(p.Nodes, in.Nodes))
		cost := routes.Cost(p.Nodes, in.Nodes)
		out = append(out, Path{
			ID:         p.ID,
			Best:       p.Best,
			Points:     pts,
			PointsAttr: projection.FormatPoints(pts),
			Cost:       cost,
			Risk:       risk,
			Title:      fmt.Sprintf("Cost: %.1f | Risk: %s", cost, risk),
		})
	}
	return out
}

func recentEvents(snap *model.Snapshot) []model.Event {
	if snap == nil || len(snap.RecentEvents) == 0 {
		return nil
	}
	evts := snap.RecentEvents
	if len(evts) > RecentEventLimit {
		evts = evts[len(evts)-RecentEventLimit:]
	}
	out := make([]model.Event, len(evts))
	for i, e := range evts {
		out[len(evts)-1-i] = e
	}
	return out
}
