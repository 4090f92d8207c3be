package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gorilla/websocket"
	"github.com/sudorandom/ropt-live/pkg/config"
	"github.com/sudorandom/ropt-live/pkg/flash"
	"github.com/sudorandom/ropt-live/pkg/model"
	"github.com/sudorandom/ropt-live/pkg/sources"
	"github.com/sudorandom/ropt-live/pkg/transport"
)

// Stats summarises the live channel for the terminal report.
type Stats struct {
	mu           sync.Mutex
	Snapshots    int
	RouteUpdates int
	Unknown      int
	Malformed    int
	EntryEvents  int
	ZoneEntries  map[string]int
	Blocked      []string
	Actors       int
	LastRunID    string
	StartTime    time.Time

	flash *flash.Engine
}

func NewStats(patterns []string) *Stats {
	return &Stats{
		ZoneEntries: make(map[string]int),
		StartTime:   time.Now(),
		flash:       flash.New(flash.Options{Patterns: patterns}, nil, nil),
	}
}

func (s *Stats) Record(frame []byte, showJSON bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if showJSON {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, frame, "", "  "); err != nil {
			fmt.Printf("%s\n\n", frame)
		} else {
			fmt.Printf("%s\n\n", pretty.String())
		}
	}

	msg, err := model.DecodeMessage(frame)
	if err != nil {
		s.Malformed++
		return
	}
	switch m := msg.(type) {
	case model.SnapshotMessage:
		s.Snapshots++
		s.Actors = len(m.Snapshot.Actors)
		s.Blocked = append(s.Blocked[:0], m.Snapshot.BlockedZones...)
		s.LastRunID = m.Snapshot.ActiveRunID
		for _, z := range s.flash.Ingest(m.Snapshot.RecentEvents) {
			s.EntryEvents++
			s.ZoneEntries[z]++
		}
	case model.RouteUpdateMessage:
		s.RouteUpdates++
	default:
		s.Unknown++
	}
}

func (s *Stats) Report() {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	fmt.Printf("\033[H\033[2J") // Clear screen
	fmt.Printf("roPT Live Channel Stats (Running for %.1fs)\n", elapsed)
	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Snapshots:     %d (%.2f/s)\n", s.Snapshots, float64(s.Snapshots)/elapsed)
	fmt.Printf("Route updates: %d (%.2f/s)\n", s.RouteUpdates, float64(s.RouteUpdates)/elapsed)
	fmt.Printf("Entry events:  %d\n", s.EntryEvents)
	fmt.Printf("Unknown/bad:   %d/%d\n", s.Unknown, s.Malformed)
	fmt.Printf("Actors:        %d\n", s.Actors)
	if s.LastRunID != "" {
		fmt.Printf("Active run:    %s\n", s.LastRunID)
	}
	fmt.Printf("Blocked zones: %v\n", s.Blocked)
	fmt.Printf("--------------------------------------------------\n")

	for i, z := range s.topZones(5) {
		if i == 0 {
			fmt.Printf("Busiest zones:\n")
		}
		fmt.Printf("  %s: %d entries\n", z, s.ZoneEntries[z])
	}
}

func (s *Stats) topZones(n int) []string {
	zones := make([]string, 0, len(s.ZoneEntries))
	for z := range s.ZoneEntries {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool {
		if s.ZoneEntries[zones[i]] != s.ZoneEntries[zones[j]] {
			return s.ZoneEntries[zones[i]] > s.ZoneEntries[zones[j]]
		}
		return zones[i] < zones[j]
	})
	if len(zones) > n {
		zones = zones[:n]
	}
	return zones
}

var cli struct {
	Timeout   time.Duration `help:"How long to run before exiting (0 for infinite)."`
	JSON      bool          `name:"json" help:"Dump raw JSON frames instead of showing stats."`
	DumpZones string        `help:"Write the zone layout as GeoJSON to this path ('-' for stdout) and exit."`
	FlashOn   []string      `default:"ENTER" help:"Event type substrings counted as zone entries."`
}

func dumpZones(ctx context.Context, cfg *config.Config, path string) error {
	client := transport.NewClient(cfg.APIBase, nil)
	client.ZonesFile = cfg.ZonesFile
	zones, err := client.LoadZones(ctx)
	if err != nil {
		return err
	}
	data, err := sources.ZonesToGeoJSON(zones)
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Printf("Wrote %d zones to %s", len(zones), path)
	return nil
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	kong.Parse(&cli, kong.Name("ropt-tail"), kong.Description("Watch the roPT live channel from a terminal."))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cli.DumpZones != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := dumpZones(ctx, cfg, cli.DumpZones); err != nil {
			log.Printf("dump zones: %v", err)
			os.Exit(1)
		}
		return
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	if cli.Timeout > 0 {
		go func() {
			time.Sleep(cli.Timeout)
			log.Printf("Timeout of %v reached, exiting...", cli.Timeout)
			interrupt <- os.Interrupt
		}()
	}

	u := cfg.StreamURL()
	log.Printf("Connecting to %s", u)
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		log.Printf("dial: %v", err)
		return
	}
	defer func() {
		_ = c.Close()
	}()

	stats := NewStats(cli.FlashOn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, frame, err := c.ReadMessage()
			if err != nil {
				if !transport.IsClosed(err) && !errors.Is(err, websocket.ErrCloseSent) {
					log.Printf("read: %v", err)
				}
				return
			}
			stats.Record(frame, cli.JSON)
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !cli.JSON {
				stats.Report()
			}
		case <-interrupt:
			log.Println("Exiting...")
			if !cli.JSON {
				stats.Report()
			}
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
