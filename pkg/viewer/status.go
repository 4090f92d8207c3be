package viewer

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/sudorandom/ropt-live/pkg/model"
	"github.com/sudorandom/ropt-live/pkg/projection"
	"github.com/sudorandom/ropt-live/pkg/view"
)

var (
	ColorLive       = color.RGBA{173, 255, 47, 255}
	ColorConnecting = color.RGBA{255, 200, 0, 255}
	ColorOffline    = color.RGBA{140, 140, 150, 255}
	ColorMuted      = color.RGBA{150, 158, 170, 255}
)

func connectionColor(s model.ConnState) color.RGBA {
	switch s {
	case model.ConnLive:
		return ColorLive
	case model.ConnConnecting:
		return ColorConnecting
	case model.ConnError:
		return ColorDanger
	default:
		return ColorOffline
	}
}

// formatTime renders a wall-clock time for the panel, or "n/a" when unset.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.Local().Format("15:04:05")
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "n/a"
	}
	return formatTime(time.UnixMilli(ms))
}

func actorZones(a view.Actor) string {
	if len(a.ActiveZones) == 0 {
		return "clear"
	}
	return strings.Join(a.ActiveZones, ", ")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// panelWriter lays out text lines top to bottom inside the side panel.
type panelWriter struct {
	screen *ebiten.Image
	x, y   float64
	width  float64
	scale  float64
	source *text.GoTextFaceSource
}

func (w *panelWriter) line(s string, size float64, c color.RGBA, alpha float32) {
	face := &text.GoTextFace{Source: w.source, Size: size * w.scale}
	top := &text.DrawOptions{}
	top.GeoM.Translate(w.x, w.y)
	r, g, b := float32(c.R)/255, float32(c.G)/255, float32(c.B)/255
	top.ColorScale.Scale(r*alpha, g*alpha, b*alpha, alpha)
	text.Draw(w.screen, s, face, top)
	w.y += size * 1.5 * w.scale
}

func (w *panelWriter) heading(s string) {
	w.y += 8 * w.scale
	vector.DrawFilledRect(w.screen, float32(w.x-10*w.scale), float32(w.y), float32(4*w.scale), float32(16*w.scale), ColorBestPath, false)
	w.line(strings.ToUpper(s), 12, color.RGBA{255, 255, 255, 255}, 0.6)
}

func (w *panelWriter) truncate(s string, size float64) string {
	face := &text.GoTextFace{Source: w.source, Size: size * w.scale}
	r := []rune(s)
	for len(r) > 4 {
		tw, _ := text.Measure(string(r), face, 0)
		if tw <= w.width {
			break
		}
		r = append(r[:len(r)-4], []rune("...")...)
	}
	return string(r)
}

func (e *Engine) drawPanel(screen *ebiten.Image, m *view.Model) {
	if e.fontSource == nil {
		return
	}
	x0 := projection.DefaultFrame.Width * e.Scale
	vector.DrawFilledRect(screen, float32(x0), 0, float32(PanelWidth*e.Scale), float32(e.Height), color.RGBA{0, 0, 0, 100}, false)
	vector.StrokeRect(screen, float32(x0), 0, float32(PanelWidth*e.Scale), float32(e.Height), 1, ColorMapFrame, false)

	w := &panelWriter{
		screen: screen,
		x:      x0 + 20*e.Scale,
		y:      16 * e.Scale,
		width:  (PanelWidth - 40) * e.Scale,
		scale:  e.Scale,
		source: e.fontSource,
	}
	w.line("Safety routing live view", 18, color.RGBA{255, 255, 255, 255}, 0.9)
	if m == nil {
		w.line("Starting...", 13, ColorMuted, 1)
		return
	}
	st := m.Status

	w.heading("Status")
	vector.DrawFilledCircle(screen, float32(w.x-4*e.Scale), float32(w.y+7*e.Scale), float32(4*e.Scale), connectionColor(st.Connection), true)
	w.x += 6 * e.Scale
	w.line(string(st.Connection), 13, connectionColor(st.Connection), 1)
	w.x -= 6 * e.Scale
	w.line("Last update "+formatTime(st.LastUpdate), 13, ColorMuted, 1)
	w.line(fmt.Sprintf("Active actors %d", st.ActorCount), 13, ColorMuted, 1)
	w.line(st.ZoneSummary, 13, ColorMuted, 1)
	w.line("Lock aspect ratio "+onOff(st.LockAspect)+" [L]", 13, ColorMuted, 1)
	if st.RunID != "" {
		w.line(w.truncate("Run "+st.RunID, 13), 13, ColorMuted, 1)
	}

	w.heading("Actors")
	if len(m.Actors) == 0 {
		w.line("No actors yet.", 13, ColorMuted, 1)
	}
	for _, a := range m.Actors {
		w.line(w.truncate(a.ID+"  "+actorZones(a), 13), 13, color.RGBA{255, 255, 255, 255}, 0.85)
		w.line("Last seen "+formatMillis(a.LastSeenMs), 11, ColorMuted, 1)
	}

	w.heading("Recent events")
	if len(m.RecentEvents) == 0 {
		w.line("No events yet.", 13, ColorMuted, 1)
	}
	mono := &panelWriter{screen: screen, x: w.x, y: w.y, width: w.width, scale: e.Scale, source: e.monoSource}
	for _, evt := range m.RecentEvents {
		mono.line(mono.truncate(fmt.Sprintf("%-12s %-8s %s", evt.EventType, evt.ActorID, formatMillis(evt.TsMs)), 11), 11, color.RGBA{255, 255, 255, 255}, 0.8)
	}
	w.y = mono.y

	if st.Error != "" {
		w.heading("Error")
		w.line(w.truncate("API error: "+st.Error, 12), 12, ColorDanger, 1)
	}
}
