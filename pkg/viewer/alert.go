package viewer

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/go-mp3"
)

// AlertPlayer plays a short chime when a blocked zone starts flashing. The
// mp3 is decoded once at load time.
type AlertPlayer struct {
	Title  string
	MinGap time.Duration

	audioContext *audio.Context
	pcm          []byte

	mu     sync.Mutex
	last   time.Time
	player *audio.Player
}

func LoadAlert(path string) (*AlertPlayer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	title := ""
	if m, err := tag.ReadFrom(f); err == nil {
		title = m.Title()
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	d, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(d.SampleRate())
	}
	log.Printf("Loaded alert sound %q (%v)", title, pcmDuration(len(pcm), d.SampleRate()))
	return &AlertPlayer{
		Title:        title,
		MinGap:       time.Second,
		audioContext: ctx,
		pcm:          pcm,
	}, nil
}

// pcmDuration converts a 16-bit stereo byte count to playback time.
func pcmDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate*4)
}

// allow reports whether a chime may start at now, and records it if so.
func (a *AlertPlayer) allow(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.last.IsZero() && now.Sub(a.last) < a.MinGap {
		return false
	}
	a.last = now
	return true
}

func (a *AlertPlayer) Play() {
	if a == nil || a.audioContext == nil || !a.allow(time.Now()) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.player != nil {
		if a.player.IsPlaying() {
			return
		}
		_ = a.player.Close()
	}
	a.player = a.audioContext.NewPlayerFromBytes(a.pcm)
	a.player.Play()
}
