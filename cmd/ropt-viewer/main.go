package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sudorandom/ropt-live/pkg/config"
	"github.com/sudorandom/ropt-live/pkg/flash"
	"github.com/sudorandom/ropt-live/pkg/projection"
	"github.com/sudorandom/ropt-live/pkg/session"
	"github.com/sudorandom/ropt-live/pkg/transport"
	"github.com/sudorandom/ropt-live/pkg/utils"
	"github.com/sudorandom/ropt-live/pkg/viewer"
)

var cli struct {
	Headless     bool     `help:"Run without a local window (Xvfb rendering active)."`
	Scale        float64  `default:"1" help:"Render scale applied to the 960x560 map."`
	WindowWidth  int      `default:"1280" help:"Initial window width (non-headless only)."`
	WindowHeight int      `default:"560" help:"Initial window height (non-headless only)."`
	TPS          int      `name:"tps" default:"30" help:"Ticks per second (engine updates)."`
	Reconnect    bool     `help:"Redial the live channel with exponential backoff instead of falling back to polling for good."`
	NoLockAspect bool     `help:"Start with independent X/Y scaling."`
	MetricsAddr  string   `help:"Serve Prometheus metrics on this address, e.g. :9090."`
	CaptureDir   string   `default:"captures" help:"Directory for frames captured with the C key."`
	AlertSound   string   `help:"MP3 played when a blocked zone flashes."`
	FlashOn      []string `default:"ENTER" help:"Event type substrings that flash a zone."`
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	kong.Parse(&cli,
		kong.Name("ropt-viewer"),
		kong.Description("Live zone, actor and route view for the roPT safety router."),
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var cache *utils.ResponseCache
	if cfg.CacheDir != "" {
		cache, err = utils.OpenResponseCache(cfg.CacheDir)
		if err != nil {
			log.Printf("[cache] Disabled, failed to open %s: %v", cfg.CacheDir, err)
			cache = nil
		} else {
			defer cache.Close()
			if keys, err := cache.Keys(); err == nil {
				log.Printf("[cache] %d cached responses in %s", len(keys), cfg.CacheDir)
			}
		}
	}

	client := transport.NewClient(cfg.APIBase, cache)
	client.ZonesFile = cfg.ZonesFile
	live := transport.NewLiveChannel(cfg.StreamURL())
	live.Reconnect = cli.Reconnect

	opts := session.Options{
		Frame:      projection.DefaultFrame,
		LockAspect: !cli.NoLockAspect,
		Flash:      flash.Options{Patterns: cli.FlashOn},
	}
	if b, ok := cfg.FixedBounds(); ok {
		opts.FixedBounds = &b
	}
	sess := session.New(client, live, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cli.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("Serving metrics on %s/metrics", cli.MetricsAddr)
			if err := http.ListenAndServe(cli.MetricsAddr, mux); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[session] Stopped: %v", err)
		}
	}()

	engine := viewer.NewEngine(cli.Scale, sess.Model)
	engine.FrameCaptureDir = cli.CaptureDir
	engine.OnToggleAspect = func() { sess.Dispatch(session.AspectToggled{}) }
	if cli.AlertSound != "" {
		alert, err := viewer.LoadAlert(cli.AlertSound)
		if err != nil {
			log.Printf("Alert sound disabled: %v", err)
		} else {
			engine.Alert = alert
		}
	}

	log.Printf("API base %s, live channel %s", cfg.APIBase, cfg.StreamURL())
	ebiten.SetTPS(cli.TPS)
	if cli.Headless {
		log.Println("Running in HEADLESS mode (Rendering active).")
	} else {
		ebiten.SetWindowSize(cli.WindowWidth, cli.WindowHeight)
		ebiten.SetWindowTitle("roPT Safety Routing Live View")
	}
	if err := ebiten.RunGame(&gameWithContext{Engine: engine, ctx: ctx}); err != nil && !errors.Is(err, ebiten.Termination) {
		log.Printf("Viewer stopped: %v", err)
	}
	stop()
	<-done
}

// gameWithContext ends the ebiten loop once ctx is cancelled.
type gameWithContext struct {
	*viewer.Engine
	ctx context.Context
}

func (g *gameWithContext) Update() error {
	if g.ctx.Err() != nil {
		return ebiten.Termination
	}
	return g.Engine.Update()
}
