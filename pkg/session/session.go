// Package session keeps the live view of the backend current. It owns the
// poll fallback, the live channel and the flash timers, and applies every
// resulting change through a single goroutine.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sudorandom/ropt-live/pkg/flash"
	"github.com/sudorandom/ropt-live/pkg/model"
	"github.com/sudorandom/ropt-live/pkg/projection"
	"github.com/sudorandom/ropt-live/pkg/transport"
	"github.com/sudorandom/ropt-live/pkg/view"
)

const DefaultPollInterval = 2000 * time.Millisecond

// Fetcher is the one-shot HTTP side of the backend.
type Fetcher interface {
	LoadZones(ctx context.Context) ([]model.Zone, error)
	LoadGraph(ctx context.Context) (model.NodeIndex, error)
	FetchSnapshot(ctx context.Context) (*model.Snapshot, error)
}

// Channel is the live push side of the backend.
type Channel interface {
	Run(ctx context.Context, h transport.Handler) error
}

type Options struct {
	Frame        projection.Frame
	FixedBounds  *projection.Bounds
	LockAspect   bool
	PollInterval time.Duration
	Flash        flash.Options
	// Scheduler drives flash expiry. Defaults to flash.RealScheduler.
	Scheduler flash.Scheduler
	// OnChange, if set, is called on the owner goroutine after each applied
	// action with the freshly published model.
	OnChange func(*view.Model)
}

type Session struct {
	fetcher   Fetcher
	channel   Channel
	store     *Store
	engine    *flash.Engine
	pollEvery time.Duration
	onChange  func(*view.Model)

	actions  chan Action
	stopping chan struct{}
	stopOnce sync.Once
	model    atomic.Pointer[view.Model]
}

// New builds a session. channel may be nil, in which case the session only
// polls.
func New(fetcher Fetcher, channel Channel, opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	s := &Session{
		fetcher:   fetcher,
		channel:   channel,
		pollEvery: opts.PollInterval,
		onChange:  opts.OnChange,
		actions:   make(chan Action, 64),
		stopping:  make(chan struct{}),
	}
	s.engine = flash.New(opts.Flash, opts.Scheduler, func(zone string, token uint64) {
		s.Dispatch(FlashExpired{Zone: zone, Token: token})
	})
	s.store = NewStore(StoreOptions{
		Frame:       opts.Frame,
		FixedBounds: opts.FixedBounds,
		LockAspect:  opts.LockAspect,
	}, s.engine)
	s.publish()
	return s
}

// Model returns the most recently published view model. It is safe to call
// from any goroutine.
func (s *Session) Model() *view.Model {
	return s.model.Load()
}

// Dispatch queues a for the owner goroutine. It returns immediately once the
// session is shutting down.
func (s *Session) Dispatch(a Action) {
	select {
	case s.actions <- a:
	case <-s.stopping:
	}
}

func (s *Session) publish() {
	m := s.store.View()
	s.model.Store(&m)
	if s.onChange != nil {
		s.onChange(&m)
	}
}

// Run performs the startup fetches, opens the live channel and applies
// actions until ctx is cancelled. Every timer, poll and the channel are
// released before Run returns. A Session runs at most once.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	var ticker *time.Ticker
	defer func() {
		s.stopOnce.Do(func() { close(s.stopping) })
		cancel()
		if ticker != nil {
			ticker.Stop()
		}
		wg.Wait()
		s.engine.Close()
		activeFlashesGauge.Set(0)
	}()

	spawn := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	var inflight atomic.Bool
	poll := func() {
		if !inflight.CompareAndSwap(false, true) {
			return
		}
		spawn(func() {
			defer inflight.Store(false)
			s.fetchSnapshot(ctx)
		})
	}

	spawn(func() { s.bootstrap(ctx) })
	poll()

	if s.channel != nil {
		spawn(func() {
			err := s.channel.Run(ctx, transport.Handler{
				OnState: func(st model.ConnState) { s.dispatch(ctx, ConnectionChanged{State: st}) },
				OnMessage: func(m model.Message) {
					switch msg := m.(type) {
					case model.SnapshotMessage:
						snap := msg.Snapshot
						s.dispatch(ctx, SnapshotReceived{Snapshot: &snap, Source: SourceLive, At: time.Now()})
					case model.RouteUpdateMessage:
						s.dispatch(ctx, RouteUpdated{Update: msg.Update})
					}
				},
				OnError: func(err error) { s.dispatch(ctx, TransportFailed{Err: err}) },
			})
			if err != nil && !transport.IsClosed(err) {
				log.Printf("[live] Channel ended: %v", err)
			}
		})
	} else {
		s.store.Apply(ConnectionChanged{State: model.ConnOffline})
		s.publish()
	}

	var tick <-chan time.Time
	for {
		if s.store.Polling() && ticker == nil {
			log.Printf("[poll] Channel %s, polling every %v", s.store.Connection(), s.pollEvery)
			ticker = time.NewTicker(s.pollEvery)
			tick = ticker.C
		} else if !s.store.Polling() && ticker != nil {
			log.Printf("[poll] Channel live, polling stopped")
			ticker.Stop()
			ticker, tick = nil, nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-s.actions:
			s.store.Apply(a)
			s.publish()
		case <-tick:
			poll()
		}
	}
}

func (s *Session) dispatch(ctx context.Context, a Action) {
	select {
	case s.actions <- a:
	case <-ctx.Done():
	}
}

func (s *Session) bootstrap(ctx context.Context) {
	zones, err := s.fetcher.LoadZones(ctx)
	if zones != nil || err == nil {
		s.dispatch(ctx, ZonesLoaded{Zones: zones})
	}
	s.fail(ctx, err)

	nodes, err := s.fetcher.LoadGraph(ctx)
	if nodes != nil || err == nil {
		s.dispatch(ctx, GraphLoaded{Nodes: nodes})
	}
	s.fail(ctx, err)
}

func (s *Session) fetchSnapshot(ctx context.Context) {
	timer := prometheus.NewTimer(pollDuration)
	snap, err := s.fetcher.FetchSnapshot(ctx)
	timer.ObserveDuration()
	if err != nil {
		s.fail(ctx, err)
		return
	}
	s.dispatch(ctx, SnapshotReceived{Snapshot: snap, Source: SourcePoll, At: time.Now()})
}

func (s *Session) fail(ctx context.Context, err error) {
	if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}
	s.dispatch(ctx, TransportFailed{Err: err})
}
