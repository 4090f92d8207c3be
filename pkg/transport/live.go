package transport

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sudorandom/ropt-live/pkg/model"
)

// Handler receives live channel callbacks. All callbacks run on the
// goroutine that called Run. Nil fields are skipped.
type Handler struct {
	OnState   func(model.ConnState)
	OnMessage func(model.Message)
	OnError   func(error)
}

func (h Handler) state(s model.ConnState) {
	if h.OnState != nil {
		h.OnState(s)
	}
}

func (h Handler) message(m model.Message) {
	if h.OnMessage != nil {
		h.OnMessage(m)
	}
}

func (h Handler) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// LiveChannel is the duplex connection that pushes snapshots and route
// updates. By default it is opened once; a close ends Run and the caller
// falls back to polling. With Reconnect set, it redials with exponential
// backoff between MinBackoff and MaxBackoff.
type LiveChannel struct {
	URL        string
	Dialer     *websocket.Dialer
	Reconnect  bool
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewLiveChannel(url string) *LiveChannel {
	return &LiveChannel{
		URL:        url,
		Dialer:     websocket.DefaultDialer,
		MinBackoff: 1 * time.Second,
		MaxBackoff: 60 * time.Second,
	}
}

// Run connects and dispatches frames until the channel closes or ctx is
// cancelled. It always reports ConnOffline before returning.
func (l *LiveChannel) Run(ctx context.Context, h Handler) error {
	backoff := l.MinBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		err := l.session(ctx, h, &backoff)
		h.state(model.ConnOffline)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !l.Reconnect {
			return err
		}
		log.Printf("[live] Channel closed: %v. Reconnecting in %v...", err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if l.MaxBackoff > 0 && backoff > l.MaxBackoff {
			backoff = l.MaxBackoff
		}
	}
}

func (l *LiveChannel) session(ctx context.Context, h Handler, backoff *time.Duration) error {
	dialer := l.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	h.state(model.ConnConnecting)
	log.Printf("[live] Connecting to %s", l.URL)
	c, _, err := dialer.DialContext(ctx, l.URL, nil)
	if err != nil {
		if ctx.Err() == nil {
			h.fail(err)
			h.state(model.ConnError)
		}
		return err
	}
	defer c.Close()

	if l.MinBackoff > 0 {
		*backoff = l.MinBackoff
	}
	h.state(model.ConnLive)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			c.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.fail(err)
				h.state(model.ConnError)
			}
			return err
		}
		msg, err := model.DecodeMessage(data)
		if err != nil {
			h.fail(err)
			continue
		}
		if u, ok := msg.(model.UnknownMessage); ok {
			log.Printf("[live] Ignoring message type %q", u.Type)
			continue
		}
		h.message(msg)
	}
}

// IsClosed reports whether err is the normal end of a live channel.
func IsClosed(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
