package viewer

import (
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// captureFrame writes img to FrameCaptureDir as a PNG. Pixels are read on the
// render goroutine and encoded in the background.
func (e *Engine) captureFrame(img *ebiten.Image, suffix string, timestamp time.Time) {
	if e.FrameCaptureDir == "" {
		log.Printf("[capture] No capture directory configured")
		return
	}
	if err := os.MkdirAll(e.FrameCaptureDir, 0o755); err != nil {
		log.Printf("[capture] Error creating capture directory: %v", err)
		return
	}

	path := filepath.Join(e.FrameCaptureDir, captureName(timestamp, suffix))
	rgba := image.NewRGBA(img.Bounds())
	img.ReadPixels(rgba.Pix)

	go func() {
		if err := writePNG(path, rgba); err != nil {
			log.Printf("[capture] %v", err)
			return
		}
		log.Printf("[capture] Captured frame: %s", path)
	}()
}

func captureName(ts time.Time, suffix string) string {
	return fmt.Sprintf("ropt-%s-%s.png", ts.Format("20060102-150405"), suffix)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create capture file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode capture: %w", err)
	}
	return f.Close()
}
