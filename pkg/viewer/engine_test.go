package viewer

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sudorandom/ropt-live/pkg/model"
	"github.com/sudorandom/ropt-live/pkg/view"
)

func TestRasterizeZone(t *testing.T) {
	square := []model.Point{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}, {X: 10, Y: 20}}
	img, origin := rasterizeZone(square, 1)
	if img == nil {
		t.Fatal("rasterizeZone(square) = nil")
	}
	if origin != image.Pt(10, 10) {
		t.Errorf("origin = %v; want (10,10)", origin)
	}
	inside := img.RGBAAt(5, 5)
	if inside.A != 255 {
		t.Errorf("pixel inside square alpha = %d; want 255", inside.A)
	}
	filled := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] == 255 {
			filled++
		}
	}
	if filled < 90 || filled > 110 {
		t.Errorf("filled %d pixels; want about 100", filled)
	}

	img2, origin2 := rasterizeZone(square, 2)
	if origin2 != image.Pt(20, 20) || img2.Bounds().Dx() < 20 {
		t.Errorf("scaled mask origin %v size %v; want (20,20) and at least 20 wide", origin2, img2.Bounds())
	}

	if img, _ := rasterizeZone(square[:2], 1); img != nil {
		t.Error("rasterizeZone with two points should be nil")
	}
	flat := []model.Point{{X: 0, Y: 5}, {X: 10, Y: 5}, {X: 20, Y: 5}}
	if img, _ := rasterizeZone(flat, 1); img != nil {
		t.Error("rasterizeZone of a zero-height polygon should be nil")
	}
}

func TestRasterizeConcave(t *testing.T) {
	// U shape: the notch between the arms must stay empty.
	u := []model.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 30}, {X: 20, Y: 30}, {X: 20, Y: 0}, {X: 30, Y: 0}, {X: 30, Y: 40}, {X: 0, Y: 40}}
	img, _ := rasterizeZone(u, 1)
	if got := img.RGBAAt(15, 10).A; got != 0 {
		t.Errorf("notch pixel alpha = %d; want 0", got)
	}
	if got := img.RGBAAt(5, 10).A; got != 255 {
		t.Errorf("arm pixel alpha = %d; want 255", got)
	}
}

func TestSegmentDistance(t *testing.T) {
	a, b := model.Point{X: 0, Y: 0}, model.Point{X: 10, Y: 0}
	tests := []struct {
		p    model.Point
		want float64
	}{
		{model.Point{X: 5, Y: 3}, 3},
		{model.Point{X: -4, Y: 3}, 5},
		{model.Point{X: 13, Y: 4}, 5},
	}
	for _, tt := range tests {
		if got := segmentDistance(tt.p, a, b); got != tt.want {
			t.Errorf("segmentDistance(%v) = %v; want %v", tt.p, got, tt.want)
		}
	}
	if got := segmentDistance(model.Point{X: 3, Y: 4}, a, a); got != 5 {
		t.Errorf("segmentDistance to a point = %v; want 5", got)
	}
}

func TestHoveredPathPrefersBest(t *testing.T) {
	line := []model.Point{{X: 0, Y: 0}, {X: 100, Y: 0}}
	paths := []view.Path{
		{ID: "cand-0", Points: line},
		{ID: "optimal", Best: true, Points: line},
	}
	if got := hoveredPath(paths, model.Point{X: 50, Y: 3}); got != "optimal" {
		t.Errorf("hoveredPath() = %q; want optimal", got)
	}
	if got := hoveredPath(paths[:1], model.Point{X: 50, Y: 3}); got != "cand-0" {
		t.Errorf("hoveredPath() = %q; want cand-0", got)
	}
	if got := hoveredPath(paths, model.Point{X: 50, Y: 30}); got != "" {
		t.Errorf("hoveredPath() far away = %q; want none", got)
	}
}

func TestRisingAlerts(t *testing.T) {
	zone := func(id string, flashing, blocked bool) view.Zone {
		z := view.Zone{Flashing: flashing, Blocked: blocked}
		z.ID = id
		return z
	}
	prev, fired := risingAlerts(nil, []view.Zone{zone("dock", true, true), zone("yard", true, false)})
	if len(fired) != 1 || fired[0] != "dock" {
		t.Fatalf("fired = %v; want [dock]", fired)
	}
	prev, fired = risingAlerts(prev, []view.Zone{zone("dock", true, true)})
	if len(fired) != 0 {
		t.Errorf("fired = %v; want none while dock keeps flashing", fired)
	}
	prev, _ = risingAlerts(prev, []view.Zone{zone("dock", false, true)})
	_, fired = risingAlerts(prev, []view.Zone{zone("dock", true, true)})
	if len(fired) != 1 {
		t.Errorf("fired = %v; want dock again after the flash ended", fired)
	}
}

func TestAlertRateLimit(t *testing.T) {
	a := &AlertPlayer{MinGap: time.Second}
	now := time.Now()
	if !a.allow(now) {
		t.Error("first chime should be allowed")
	}
	if a.allow(now.Add(500 * time.Millisecond)) {
		t.Error("chime within MinGap should be suppressed")
	}
	if !a.allow(now.Add(1500 * time.Millisecond)) {
		t.Error("chime after MinGap should be allowed")
	}
	var nilPlayer *AlertPlayer
	nilPlayer.Play()
}

func TestPanelFormatting(t *testing.T) {
	if got := formatTime(time.Time{}); got != "n/a" {
		t.Errorf("formatTime(zero) = %q; want n/a", got)
	}
	if got := formatMillis(0); got != "n/a" {
		t.Errorf("formatMillis(0) = %q; want n/a", got)
	}
	if got := actorZones(view.Actor{ID: "r1"}); got != "clear" {
		t.Errorf("actorZones(no zones) = %q; want clear", got)
	}
	if got := actorZones(view.Actor{ActiveZones: []string{"a", "b"}}); got != "a, b" {
		t.Errorf("actorZones() = %q", got)
	}
	if got := pcmDuration(44100*4, 44100); got != time.Second {
		t.Errorf("pcmDuration() = %v; want 1s", got)
	}
}

func TestWritePNG(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	name := captureName(ts, "manual")
	if name != "ropt-20240301-123000-manual.png" {
		t.Errorf("captureName() = %q", name)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := writePNG(path, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("writePNG failed: %v", err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Errorf("capture file missing or empty: %v", err)
	}
}
