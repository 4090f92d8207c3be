// Package model defines the wire and in-memory shapes shared by the live viewer:
// zones, graph nodes, state snapshots, occupancy events and route updates.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type Point struct {
	X, Y float64
}

// UnmarshalJSON accepts either an [x, y] pair or an {"x": .., "y": ..} object.
func (p *Point) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var pair []float64
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		if len(pair) < 2 {
			return fmt.Errorf("point needs 2 coordinates, got %d", len(pair))
		}
		p.X, p.Y = pair[0], pair[1]
		return nil
	}
	var obj struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.X, p.Y = obj.X, obj.Y
	return nil
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

type Zone struct {
	ID      string  `json:"zone_id"`
	Polygon []Point `json:"polygon"`
}

type ZonesPayload struct {
	Zones []Zone `json:"zones"`
}

type GraphNode struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type GraphPayload struct {
	Graph struct {
		Nodes []GraphNode `json:"nodes"`
	} `json:"graph"`
}

// NodeIndex maps node id to its world position. It is built once and never mutated.
type NodeIndex map[string]Point

// NewNodeIndex indexes nodes by id, skipping nodes without one.
func NewNodeIndex(nodes []GraphNode) NodeIndex {
	idx := make(NodeIndex, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		idx[n.ID] = Point{X: n.X, Y: n.Y}
	}
	return idx
}

type ActorState struct {
	Zones      map[string]bool `json:"zones"`
	LastSeenMs int64           `json:"last_seen_ms"`
}

// EventID is the backend document id. Depending on the store it arrives as a
// string, a number or a Mongo {"$oid": "..."} object.
type EventID string

func (id *EventID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EventID(s)
	case data[0] == '{':
		var oid struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(data, &oid); err != nil {
			return err
		}
		*id = EventID(oid.OID)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*id = EventID(n.String())
	}
	return nil
}

type Event struct {
	ID         EventID `json:"_id,omitempty"`
	ActorID    string  `json:"actor_id"`
	ZoneID     string  `json:"zone_id"`
	EventType  string  `json:"event_type"`
	TsMs       int64   `json:"ts_ms"`
	ReceivedMs int64   `json:"received_ms,omitempty"`
}

// Key is the dedup identity of the event: id|actor|zone|type, with ts_ms
// standing in for a missing id.
func (e Event) Key() string {
	id := string(e.ID)
	if id == "" {
		id = strconv.FormatInt(e.TsMs, 10)
	}
	return id + "|" + e.ActorID + "|" + e.ZoneID + "|" + e.EventType
}

// Snapshot is the authoritative state document. A new snapshot replaces the
// previous one wholesale.
type Snapshot struct {
	TsMs         int64                 `json:"ts_ms,omitempty"`
	ActiveRunID  string                `json:"active_run_id,omitempty"`
	Actors       map[string]ActorState `json:"actors"`
	RecentEvents []Event               `json:"recent_events"`
	BlockedZones []string              `json:"blocked_zones"`
}

func (s *Snapshot) IsBlocked(zoneID string) bool {
	if s == nil {
		return false
	}
	for _, z := range s.BlockedZones {
		if z == zoneID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so readers on other goroutines never observe the
// owner's maps.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		TsMs:         s.TsMs,
		ActiveRunID:  s.ActiveRunID,
		RecentEvents: append([]Event(nil), s.RecentEvents...),
		BlockedZones: append([]string(nil), s.BlockedZones...),
	}
	if s.Actors != nil {
		out.Actors = make(map[string]ActorState, len(s.Actors))
		for id, a := range s.Actors {
			zones := make(map[string]bool, len(a.Zones))
			for z, in := range a.Zones {
				zones[z] = in
			}
			out.Actors[id] = ActorState{Zones: zones, LastSeenMs: a.LastSeenMs}
		}
	}
	return out
}

// ConnState is the lifecycle of the live channel as seen by the viewer.
type ConnState string

const (
	ConnConnecting ConnState = "connecting"
	ConnLive       ConnState = "live"
	ConnError      ConnState = "error"
	ConnOffline    ConnState = "offline"
)

type RouteUpdate struct {
	OptimalPath []string   `json:"optimal_path"`
	Candidates  [][]string `json:"candidates"`
}
