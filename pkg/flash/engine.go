// Package flash turns zone entry events into short-lived zone highlights,
// suppressing events it has already seen.
package flash

import (
	"time"

	"github.com/sudorandom/ropt-live/pkg/model"
)

const (
	DefaultDwell      = 1200 * time.Millisecond
	DefaultDedupLimit = 2000
)

// Timer is a pending delayed call that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The callback runs on an arbitrary goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler is backed by time.AfterFunc.
var RealScheduler Scheduler = realScheduler{}

// ExpireFunc is invoked from the timer goroutine when a flash window ends. The
// owner must hand (zoneID, token) back to Engine.Expire on its own goroutine.
type ExpireFunc func(zoneID string, token uint64)

type Options struct {
	Dwell      time.Duration
	DedupLimit int
	Patterns   []string
}

type activeFlash struct {
	token uint64
	timer Timer
}

// Engine owns the dedup set and the per-zone flash state. All methods must be
// called from a single goroutine.
type Engine struct {
	dwell      time.Duration
	dedupLimit int
	matcher    *Matcher
	sched      Scheduler
	onExpire   ExpireFunc

	seen   map[string]struct{}
	active map[string]*activeFlash
	nextID uint64
}

func New(opts Options, sched Scheduler, onExpire ExpireFunc) *Engine {
	if opts.Dwell <= 0 {
		opts.Dwell = DefaultDwell
	}
	if opts.DedupLimit <= 0 {
		opts.DedupLimit = DefaultDedupLimit
	}
	if sched == nil {
		sched = RealScheduler
	}
	return &Engine{
		dwell:      opts.Dwell,
		dedupLimit: opts.DedupLimit,
		matcher:    NewMatcher(opts.Patterns),
		sched:      sched,
		onExpire:   onExpire,
		seen:       make(map[string]struct{}),
		active:     make(map[string]*activeFlash),
	}
}

// Ingest processes the full recent event list of a snapshot and returns the
// zones whose flash was (re)armed, in event order.
func (e *Engine) Ingest(events []model.Event) []string {
	var triggered []string
	for _, evt := range events {
		if !e.matcher.Qualifies(evt.EventType) {
			continue
		}
		key := evt.Key()
		if _, ok := e.seen[key]; ok {
			continue
		}
		e.seen[key] = struct{}{}
		if len(e.seen) > e.dedupLimit {
			// Amnesty: forget everything rather than track recency.
			e.seen = make(map[string]struct{})
		}
		if evt.ZoneID == "" {
			continue
		}
		e.Trigger(evt.ZoneID)
		triggered = append(triggered, evt.ZoneID)
	}
	return triggered
}

// Trigger marks zoneID as flashing for a fresh dwell window. A pending window
// for the same zone is cancelled and replaced, never stacked.
func (e *Engine) Trigger(zoneID string) {
	if prev, ok := e.active[zoneID]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	e.nextID++
	token := e.nextID
	f := &activeFlash{token: token}
	e.active[zoneID] = f
	if e.onExpire != nil {
		f.timer = e.sched.AfterFunc(e.dwell, func() { e.onExpire(zoneID, token) })
	}
}

// Expire ends the flash for zoneID if token still identifies the current
// window. Stale tokens from replaced windows are ignored.
func (e *Engine) Expire(zoneID string, token uint64) bool {
	f, ok := e.active[zoneID]
	if !ok || f.token != token {
		return false
	}
	delete(e.active, zoneID)
	return true
}

func (e *Engine) Active(zoneID string) bool {
	_, ok := e.active[zoneID]
	return ok
}

// ActiveZones returns a copy of the flashing set.
func (e *Engine) ActiveZones() map[string]bool {
	out := make(map[string]bool, len(e.active))
	for z := range e.active {
		out[z] = true
	}
	return out
}

func (e *Engine) SeenCount() int { return len(e.seen) }

// Close cancels every pending expiry timer and clears the flashing set.
func (e *Engine) Close() {
	for z, f := range e.active {
		if f.timer != nil {
			f.timer.Stop()
		}
		delete(e.active, z)
	}
}
