// Package viewer renders the live zone map, route overlays and status panel
// with ebiten.
package viewer

import (
	"bytes"
	"image/color"
	"log"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/sudorandom/ropt-live/pkg/model"
	"github.com/sudorandom/ropt-live/pkg/projection"
	"github.com/sudorandom/ropt-live/pkg/view"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

const PanelWidth = 320

var (
	ColorBackground  = color.RGBA{8, 10, 15, 255}
	ColorMapFrame    = color.RGBA{36, 42, 53, 255}
	ColorZone        = color.RGBA{248, 199, 119, 255}
	ColorZoneOutline = color.RGBA{240, 138, 93, 255}
	ColorFlash       = color.RGBA{255, 230, 140, 255}
	ColorDanger      = color.RGBA{255, 50, 50, 255}
	ColorBestPath    = color.RGBA{0, 191, 255, 255}
	ColorCandidate   = color.RGBA{120, 130, 150, 255}
	ColorActor       = color.RGBA{173, 255, 47, 255}
)

type zoneMask struct {
	img  *ebiten.Image
	x, y float64
}

// Engine is the ebiten.Game for the live view. Source is polled once per
// Update; the engine never mutates session state directly.
type Engine struct {
	Width, Height int
	Scale         float64

	Source          func() *view.Model
	OnToggleAspect  func()
	FrameCaptureDir string
	Alert           *AlertPlayer

	fontSource *text.GoTextFaceSource
	monoSource *text.GoTextFaceSource

	current     *view.Model
	masks       map[string]zoneMask
	maskLayout  uint64
	alerting    map[string]bool
	captureNext bool
	hoverPath   string
}

func NewEngine(scale float64, source func() *view.Model) *Engine {
	if scale <= 0 {
		scale = 1
	}
	s, err := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	if err != nil {
		log.Printf("Failed to load regular font: %v", err)
	}
	m, err := text.NewGoTextFaceSource(bytes.NewReader(gomono.TTF))
	if err != nil {
		log.Printf("Failed to load mono font: %v", err)
	}
	return &Engine{
		Width:      int((projection.DefaultFrame.Width + PanelWidth) * scale),
		Height:     int(projection.DefaultFrame.Height * scale),
		Scale:      scale,
		Source:     source,
		fontSource: s,
		monoSource: m,
		alerting:   make(map[string]bool),
	}
}

func (e *Engine) Update() error {
	if e.Source != nil {
		e.current = e.Source()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyL) && e.OnToggleAspect != nil {
		e.OnToggleAspect()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyC) {
		e.captureNext = true
	}
	if e.current == nil {
		return nil
	}

	var fired []string
	e.alerting, fired = risingAlerts(e.alerting, e.current.Zones)
	if len(fired) > 0 {
		log.Printf("Flash in blocked zone(s): %v", fired)
		e.Alert.Play()
	}

	cx, cy := ebiten.CursorPosition()
	e.hoverPath = hoveredPath(e.current.Paths, model.Point{X: float64(cx) / e.Scale, Y: float64(cy) / e.Scale})
	return nil
}

// risingAlerts returns the set of zones that are both flashing and blocked,
// plus those that were not in prev.
func risingAlerts(prev map[string]bool, zones []view.Zone) (map[string]bool, []string) {
	next := make(map[string]bool)
	var fired []string
	for _, z := range zones {
		if z.Flashing && z.Blocked {
			next[z.ID] = true
			if !prev[z.ID] {
				fired = append(fired, z.ID)
			}
		}
	}
	return next, fired
}

// hoveredPath picks the path under the cursor, preferring the optimal one.
func hoveredPath(paths []view.Path, cursor model.Point) string {
	hit := ""
	for _, p := range paths {
		if nearPolyline(cursor, p.Points, 6) {
			if p.Best {
				return p.ID
			}
			if hit == "" {
				hit = p.ID
			}
		}
	}
	return hit
}

func (e *Engine) Draw(screen *ebiten.Image) {
	screen.Fill(ColorBackground)
	m := e.current
	if m != nil {
		e.drawZones(screen, m)
		e.drawPaths(screen, m)
		e.drawActors(screen, m)
	}
	e.drawFrame(screen)
	e.drawPanel(screen, m)

	if e.captureNext {
		e.captureNext = false
		e.captureFrame(screen, "manual", time.Now())
	}
}

func (e *Engine) Layout(w, h int) (int, int) { return e.Width, e.Height }

func (e *Engine) ensureMasks(m *view.Model) {
	if e.masks != nil && e.maskLayout == m.Layout {
		return
	}
	e.masks = make(map[string]zoneMask, len(m.Zones))
	for _, z := range m.Zones {
		img, origin := rasterizeZone(z.Points, e.Scale)
		if img == nil {
			continue
		}
		e.masks[z.ID] = zoneMask{img: ebiten.NewImageFromImage(img), x: float64(origin.X), y: float64(origin.Y)}
	}
	e.maskLayout = m.Layout
}

func zoneStyle(z view.Zone) (fill color.RGBA, alpha float64, outline color.RGBA) {
	switch {
	case z.Blocked && z.Flashing:
		return ColorDanger, 0.65, ColorFlash
	case z.Blocked:
		return ColorDanger, 0.35, ColorDanger
	case z.Flashing:
		return ColorFlash, 0.6, ColorFlash
	default:
		return ColorZone, 0.18, ColorZoneOutline
	}
}

func (e *Engine) drawZones(screen *ebiten.Image, m *view.Model) {
	e.ensureMasks(m)
	op := &ebiten.DrawImageOptions{}
	for _, z := range m.Zones {
		fill, alpha, outline := zoneStyle(z)
		if mask, ok := e.masks[z.ID]; ok {
			op.GeoM.Reset()
			op.GeoM.Translate(mask.x, mask.y)
			op.ColorScale.Reset()
			r, g, b := float64(fill.R)/255.0, float64(fill.G)/255.0, float64(fill.B)/255.0
			op.ColorScale.Scale(float32(r*alpha), float32(g*alpha), float32(b*alpha), float32(alpha))
			screen.DrawImage(mask.img, op)
		}
		width := float32(1.5 * e.Scale)
		if z.Flashing {
			width *= 2
		}
		e.strokeRing(screen, z.Points, width, outline)
	}

	if e.fontSource == nil {
		return
	}
	face := &text.GoTextFace{Source: e.fontSource, Size: 13 * e.Scale}
	for _, z := range m.Zones {
		top := &text.DrawOptions{}
		top.PrimaryAlign = text.AlignCenter
		top.SecondaryAlign = text.AlignCenter
		top.GeoM.Translate(z.Center.X*e.Scale, z.Center.Y*e.Scale)
		top.ColorScale.Scale(1, 1, 1, 0.8)
		text.Draw(screen, z.ID, face, top)
	}
}

func (e *Engine) strokeRing(screen *ebiten.Image, pts []model.Point, width float32, c color.RGBA) {
	n := len(pts)
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%n]
		vector.StrokeLine(screen, float32(a.X*e.Scale), float32(a.Y*e.Scale), float32(b.X*e.Scale), float32(b.Y*e.Scale), width, c, true)
	}
}

func (e *Engine) drawPaths(screen *ebiten.Image, m *view.Model) {
	// Candidates first so the optimal path stays on top.
	for pass := 0; pass < 2; pass++ {
		for _, p := range m.Paths {
			if p.Best != (pass == 1) {
				continue
			}
			c, width := ColorCandidate, float32(1.5)
			c.A = 140
			if p.Best {
				c, width = ColorBestPath, 3
			}
			if p.ID == e.hoverPath {
				width += 1.5
			}
			for i := 1; i < len(p.Points); i++ {
				a, b := p.Points[i-1], p.Points[i]
				vector.StrokeLine(screen, float32(a.X*e.Scale), float32(a.Y*e.Scale), float32(b.X*e.Scale), float32(b.Y*e.Scale), width*float32(e.Scale), c, true)
			}
		}
	}

	if e.hoverPath == "" || e.fontSource == nil {
		return
	}
	for _, p := range m.Paths {
		if p.ID != e.hoverPath {
			continue
		}
		cx, cy := ebiten.CursorPosition()
		e.drawTooltip(screen, p.Title, float64(cx)+12, float64(cy)+12)
	}
}

func (e *Engine) drawTooltip(screen *ebiten.Image, label string, x, y float64) {
	fontSize := 12 * e.Scale
	face := &text.GoTextFace{Source: e.monoSource, Size: fontSize}
	tw, th := text.Measure(label, face, 0)
	pad := 6 * e.Scale
	vector.DrawFilledRect(screen, float32(x), float32(y), float32(tw+2*pad), float32(th+2*pad), color.RGBA{0, 0, 0, 200}, false)
	vector.StrokeRect(screen, float32(x), float32(y), float32(tw+2*pad), float32(th+2*pad), 1, ColorMapFrame, false)
	top := &text.DrawOptions{}
	top.GeoM.Translate(x+pad, y+pad)
	text.Draw(screen, label, face, top)
}

func (e *Engine) drawActors(screen *ebiten.Image, m *view.Model) {
	var face *text.GoTextFace
	if e.fontSource != nil {
		face = &text.GoTextFace{Source: e.fontSource, Size: 12 * e.Scale}
	}
	for _, mk := range m.Markers {
		x, y := float32(mk.At.X*e.Scale), float32(mk.At.Y*e.Scale)
		vector.DrawFilledCircle(screen, x, y, float32(9*e.Scale), ColorActor, true)
		vector.StrokeCircle(screen, x, y, float32(9*e.Scale), float32(e.Scale), ColorBackground, true)
		if face == nil {
			continue
		}
		top := &text.DrawOptions{}
		top.PrimaryAlign = text.AlignCenter
		top.SecondaryAlign = text.AlignEnd
		top.GeoM.Translate(mk.At.X*e.Scale, (mk.At.Y-14)*e.Scale)
		text.Draw(screen, mk.ActorID, face, top)
	}
}

func (e *Engine) drawFrame(screen *ebiten.Image) {
	f := projection.DefaultFrame
	vector.StrokeRect(screen, 0.5, 0.5, float32(f.Width*e.Scale)-1, float32(f.Height*e.Scale)-1, 1, ColorMapFrame, false)
}
