// Package segment turns a per-frame stream of best detected text into closed text runs.
package segment

import (
	"math"
	"strings"
)

const (
	// DefaultMinTextDuration is the minimum gap, in seconds, between a run closing and a new run
	// opening from an empty state.
	DefaultMinTextDuration = 0.5
	// DefaultFPS is assumed when the video does not report a usable frame rate.
	DefaultFPS = 30.0
)

// Event is one sampled frame with its best detection. An empty Text means no detection.
type Event struct {
	Frame      int64
	Timestamp  float64
	Text       string
	Confidence float64
	Lang       string
}

// Run is a closed interval of sampled frames that shared the same text.
type Run struct {
	Text           string
	StartFrame     int64
	StartTimestamp float64
	EndFrame       int64
	EndTimestamp   float64
	Confidence     float64
	Lang           string
}

// Config controls the engine.
type Config struct {
	// MinTextDuration in seconds; negative values disable the gate.
	MinTextDuration float64
	// FPS converts MinTextDuration into a frame count.
	FPS float64
}

// Snapshot is the engine state that must survive a restart for a resumed job to reproduce the
// runs of an uninterrupted one.
type Snapshot struct {
	LastCloseFrame *int64
}

type openRun struct {
	text           string
	startFrame     int64
	startTimestamp float64
	confidence     float64
	lang           string
}

// Engine is the run state machine: either no run is open, or exactly one run is open.
// It is not safe for concurrent use; the extraction worker owns it.
type Engine struct {
	minFrames int64
	open      *openRun

	lastCloseFrame *int64
	lastFrame      int64
	lastTimestamp  float64
	seen           bool
}

// NewEngine creates an engine with no open run.
func NewEngine(cfg Config) *Engine {
	fps := cfg.FPS
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = DefaultFPS
	}
	minFrames := int64(0)
	if cfg.MinTextDuration > 0 {
		minFrames = int64(math.Round(cfg.MinTextDuration * fps))
	}
	return &Engine{minFrames: minFrames}
}

// MinFrames returns the minimum-duration gate expressed in frames.
func (e *Engine) MinFrames() int64 {
	return e.minFrames
}

// Observe feeds one sampled frame into the engine and returns the run it closed, if any.
// Frames must be observed in increasing frame order.
func (e *Engine) Observe(ev Event) *Run {
	text := strings.TrimSpace(ev.Text)
	e.lastFrame = ev.Frame
	e.lastTimestamp = ev.Timestamp
	e.seen = true

	if e.open == nil {
		if text != "" && e.gateOpen(ev.Frame) {
			e.open = newOpenRun(text, ev)
		}
		return nil
	}

	if text == e.open.text {
		if ev.Confidence > e.open.confidence {
			e.open.confidence = ev.Confidence
		}
		return nil
	}

	closed := e.closeAt(ev.Frame, ev.Timestamp)
	if text != "" {
		e.open = newOpenRun(text, ev)
	}
	return closed
}

// Finish closes the open run, if any, at the last observed frame.
func (e *Engine) Finish() *Run {
	if e.open == nil || !e.seen {
		return nil
	}
	return e.closeAt(e.lastFrame, e.lastTimestamp)
}

// OpenStart returns the start frame of the open run.
func (e *Engine) OpenStart() (int64, bool) {
	if e.open == nil {
		return 0, false
	}
	return e.open.startFrame, true
}

// OpenText returns the text of the open run, or "" when none is open.
func (e *Engine) OpenText() string {
	if e.open == nil {
		return ""
	}
	return e.open.text
}

// State captures the gate state.
func (e *Engine) State() Snapshot {
	if e.lastCloseFrame == nil {
		return Snapshot{}
	}
	v := *e.lastCloseFrame
	return Snapshot{LastCloseFrame: &v}
}

// Restore seeds the gate state of a fresh engine before a resumed walk.
func (e *Engine) Restore(s Snapshot) {
	if s.LastCloseFrame == nil {
		e.lastCloseFrame = nil
		return
	}
	v := *s.LastCloseFrame
	e.lastCloseFrame = &v
}

// gateOpen reports whether enough frames have passed since the previous run closed.
func (e *Engine) gateOpen(frame int64) bool {
	if e.lastCloseFrame == nil {
		return true
	}
	// Only a resumed walk observes the closing frame again: the run it reopens started on
	// the same frame its predecessor closed, which never passes through the gate.
	if frame == *e.lastCloseFrame {
		return true
	}
	return frame-*e.lastCloseFrame > e.minFrames
}

func (e *Engine) closeAt(frame int64, timestamp float64) *Run {
	o := e.open
	e.open = nil
	f := frame
	e.lastCloseFrame = &f
	return &Run{
		Text:           o.text,
		StartFrame:     o.startFrame,
		StartTimestamp: o.startTimestamp,
		EndFrame:       frame,
		EndTimestamp:   timestamp,
		Confidence:     o.confidence,
		Lang:           o.lang,
	}
}

func newOpenRun(text string, ev Event) *openRun {
	return &openRun{
		text:           text,
		startFrame:     ev.Frame,
		startTimestamp: ev.Timestamp,
		confidence:     ev.Confidence,
		lang:           ev.Lang,
	}
}
