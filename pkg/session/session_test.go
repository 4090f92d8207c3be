package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sudorandom/ropt-live/pkg/model"
	"github.com/sudorandom/ropt-live/pkg/transport"
	"github.com/sudorandom/ropt-live/pkg/view"
)

type fakeFetcher struct {
	polls atomic.Int32
}

func (f *fakeFetcher) LoadZones(ctx context.Context) ([]model.Zone, error) {
	return wideZones, nil
}

func (f *fakeFetcher) LoadGraph(ctx context.Context) (model.NodeIndex, error) {
	return nil, errors.New("graph unavailable")
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context) (*model.Snapshot, error) {
	f.polls.Add(1)
	return snapshotWith(), nil
}

// fakeChannel goes live, pushes one snapshot, then closes when told to.
type fakeChannel struct {
	close chan struct{}
}

func (c *fakeChannel) Run(ctx context.Context, h transport.Handler) error {
	h.OnState(model.ConnConnecting)
	h.OnState(model.ConnLive)
	h.OnMessage(model.SnapshotMessage{Snapshot: *snapshotWith(enterEvent("e1", "dock"))})
	select {
	case <-c.close:
	case <-ctx.Done():
	}
	h.OnState(model.ConnOffline)
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionPollingFollowsConnection(t *testing.T) {
	fetcher := &fakeFetcher{}
	channel := &fakeChannel{close: make(chan struct{})}
	s := New(fetcher, channel, Options{LockAspect: true, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, "live", func() bool { return s.Model().Status.Connection == model.ConnLive })
	waitFor(t, "zones", func() bool { return s.Model().Status.ZoneCount == 2 })
	waitFor(t, "graph error", func() bool { return s.Model().Status.Error != "" })

	// Give any poll started before the transition time to land.
	time.Sleep(30 * time.Millisecond)
	before := fetcher.polls.Load()
	time.Sleep(60 * time.Millisecond)
	if got := fetcher.polls.Load(); got != before {
		t.Errorf("polled %d times while live; want 0", got-before)
	}

	close(channel.close)
	waitFor(t, "offline", func() bool { return s.Model().Status.Connection == model.ConnOffline })
	waitFor(t, "polling to resume", func() bool { return fetcher.polls.Load() >= before+2 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v; want context.Canceled", err)
	}
}

func TestSessionWithoutChannelPolls(t *testing.T) {
	fetcher := &fakeFetcher{}
	var changes atomic.Int32
	s := New(fetcher, nil, Options{
		PollInterval: 10 * time.Millisecond,
		OnChange:     func(*view.Model) { changes.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, "polls", func() bool { return fetcher.polls.Load() >= 3 })
	if got := s.Model().Status.Connection; got != model.ConnOffline {
		t.Errorf("Connection = %q; want offline without a channel", got)
	}
	if s.Model().Status.LastUpdate.IsZero() {
		t.Error("LastUpdate should be set after a polled snapshot")
	}
	if changes.Load() == 0 {
		t.Error("OnChange was never called")
	}

	cancel()
	<-done
	// Dispatch after shutdown must not block.
	s.Dispatch(AspectToggled{})
}
