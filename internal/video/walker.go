package video

import (
	"context"
	"image"

	"github.com/timmy/textrun/internal/pipeline"
)

// Frame is one sampled frame.
type Frame struct {
	Index     int64
	Timestamp float64
	Image     image.Image
}

// SkipFunc is called for every sampled index whose frame could not be decoded.
type SkipFunc func(index int64, err error)

// Walker yields every stride-th frame of a source, starting at the first multiple of stride that
// is not below the requested start. A walker is not restartable.
type Walker struct {
	src    Source
	stride int64
	next   int64
	fps    float64
	ctl    *pipeline.Control
	onSkip SkipFunc
	err    error
	done   bool
}

// NewWalker creates a walker. A stride below 1 is treated as 1; a negative start as 0.
// ctl may be nil when the walk needs no pause or cancel support.
func NewWalker(src Source, stride int, start int64, ctl *pipeline.Control) *Walker {
	k := int64(stride)
	if k < 1 {
		k = 1
	}
	if start < 0 {
		start = 0
	}
	first := AlignUp(start, k)

	fps := src.FPS()
	if fps <= 0 {
		fps = 30
	}
	return &Walker{src: src, stride: k, next: first, fps: fps, ctl: ctl}
}

// OnSkip registers a callback for undecodable frames.
func (w *Walker) OnSkip(fn SkipFunc) *Walker {
	w.onSkip = fn
	return w
}

// AlignUp rounds start up to the nearest multiple of stride.
func AlignUp(start, stride int64) int64 {
	if stride <= 1 {
		return start
	}
	if r := start % stride; r != 0 {
		return start + stride - r
	}
	return start
}

// Next blocks on the pause gate and returns the next decodable sampled frame.
// It returns false when the video is exhausted, cancellation was requested, or ctx ended;
// Err tells these apart.
func (w *Walker) Next(ctx context.Context) (Frame, bool) {
	for !w.done {
		if w.ctl != nil {
			if err := w.ctl.Wait(ctx); err != nil {
				w.stop(err)
				break
			}
		} else if err := ctx.Err(); err != nil {
			w.stop(err)
			break
		}

		total := w.src.FrameCount()
		if total > 0 && w.next >= total {
			w.stop(nil)
			break
		}

		index := w.next
		w.next += w.stride

		img, err := w.src.FrameAt(ctx, index)
		if err != nil {
			if ctx.Err() != nil {
				w.stop(ctx.Err())
				break
			}
			if w.onSkip != nil {
				w.onSkip(index, err)
			}
			if total <= 0 {
				// Without a known length, the first undecodable frame ends the walk.
				w.stop(nil)
				break
			}
			continue
		}

		return Frame{
			Index:     index,
			Timestamp: float64(index) / w.fps,
			Image:     img,
		}, true
	}
	return Frame{}, false
}

// NextIndex returns the index the next call to Next will try first.
func (w *Walker) NextIndex() int64 {
	return w.next
}

// Err returns the reason the walk stopped early, or nil when it ran to the end.
func (w *Walker) Err() error {
	return w.err
}

func (w *Walker) stop(err error) {
	w.done = true
	w.err = err
}
