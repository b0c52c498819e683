package main

import (
	"log"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
)

// chime plays a short two-tone cue when a tower is built. It is silent when
// sound is disabled or the audio device is unavailable.
type chime struct {
	ok bool
	sr beep.SampleRate
}

func newChime(enabled bool, logger *log.Logger) *chime {
	if !enabled {
		return &chime{}
	}
	sr := beep.SampleRate(44100)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		// Non-fatal, the viewer runs without sound.
		logger.Printf("audio init failed: %v", err)
		return &chime{}
	}
	return &chime{ok: true, sr: sr}
}

func (c *chime) built() {
	if c == nil || !c.ok {
		return
	}
	low, err := generators.SineTone(c.sr, 660)
	if err != nil {
		return
	}
	high, err := generators.SineTone(c.sr, 990)
	if err != nil {
		return
	}
	n := c.sr.N(70 * time.Millisecond)
	speaker.Play(beep.Seq(beep.Take(n, low), beep.Take(n, high)))
}
