package video

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/timmy/textrun/internal/pipeline"
)

type fakeSource struct {
	mu     sync.Mutex
	frames int64
	fps    float64
	bad    map[int64]bool
	reads  []int64
}

func (s *fakeSource) FrameCount() int64 { return s.frames }
func (s *fakeSource) FPS() float64      { return s.fps }

func (s *fakeSource) FrameAt(_ context.Context, index int64) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, index)
	if s.bad[index] {
		return nil, errors.New("corrupt frame")
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func collect(t *testing.T, w *Walker) []int64 {
	t.Helper()
	var got []int64
	for {
		f, ok := w.Next(context.Background())
		if !ok {
			break
		}
		got = append(got, f.Index)
	}
	return got
}

func equalIndices(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWalkerStrideAndStart(t *testing.T) {
	tests := []struct {
		name   string
		frames int64
		stride int
		start  int64
		want   []int64
	}{
		{name: "stride one", frames: 4, stride: 1, start: 0, want: []int64{0, 1, 2, 3}},
		{name: "stride three", frames: 10, stride: 3, start: 0, want: []int64{0, 3, 6, 9}},
		{name: "start aligned up", frames: 10, stride: 3, start: 4, want: []int64{6, 9}},
		{name: "start on multiple", frames: 10, stride: 3, start: 6, want: []int64{6, 9}},
		{name: "start past end", frames: 10, stride: 3, start: 12, want: nil},
		{name: "zero stride treated as one", frames: 3, stride: 0, start: 1, want: []int64{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{frames: tt.frames, fps: 10}
			got := collect(t, NewWalker(src, tt.stride, tt.start, nil))
			if !equalIndices(got, tt.want) {
				t.Errorf("indices = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWalkerTimestamp(t *testing.T) {
	src := &fakeSource{frames: 50, fps: 25}
	w := NewWalker(src, 25, 25, nil)
	f, ok := w.Next(context.Background())
	if !ok {
		t.Fatal("expected a frame")
	}
	if f.Index != 25 || f.Timestamp != 1.0 {
		t.Errorf("frame = (%d, %v), want (25, 1)", f.Index, f.Timestamp)
	}
}

func TestWalkerSkipsUndecodableFrames(t *testing.T) {
	src := &fakeSource{frames: 6, fps: 10, bad: map[int64]bool{2: true}}
	var skipped []int64
	w := NewWalker(src, 1, 0, nil).OnSkip(func(index int64, _ error) {
		skipped = append(skipped, index)
	})

	got := collect(t, w)
	if !equalIndices(got, []int64{0, 1, 3, 4, 5}) {
		t.Errorf("indices = %v", got)
	}
	if !equalIndices(skipped, []int64{2}) {
		t.Errorf("skipped = %v, want [2]", skipped)
	}
	if w.Err() != nil {
		t.Errorf("Err() = %v, want nil", w.Err())
	}
}

func TestWalkerStopsOnCancel(t *testing.T) {
	src := &fakeSource{frames: 100, fps: 10}
	ctl := pipeline.NewControl()
	w := NewWalker(src, 1, 0, ctl)

	for i := 0; i < 3; i++ {
		if _, ok := w.Next(context.Background()); !ok {
			t.Fatalf("frame %d: walk ended early", i)
		}
	}
	ctl.Cancel()

	if _, ok := w.Next(context.Background()); ok {
		t.Fatal("walker yielded a frame after cancel")
	}
	if !errors.Is(w.Err(), pipeline.ErrCancelled) {
		t.Errorf("Err() = %v, want ErrCancelled", w.Err())
	}
	if len(src.reads) != 3 {
		t.Errorf("decoded %d frames, want 3", len(src.reads))
	}
}

func TestWalkerBlocksWhilePaused(t *testing.T) {
	src := &fakeSource{frames: 2, fps: 10}
	ctl := pipeline.NewControl()
	ctl.Pause()
	w := NewWalker(src, 1, 0, ctl)

	result := make(chan int64, 1)
	go func() {
		f, ok := w.Next(context.Background())
		if ok {
			result <- f.Index
		}
		close(result)
	}()

	select {
	case <-result:
		t.Fatal("walker yielded while paused")
	case <-time.After(50 * time.Millisecond):
	}

	ctl.Resume()
	select {
	case idx := <-result:
		if idx != 0 {
			t.Errorf("first frame after resume = %d, want 0", idx)
		}
	case <-time.After(time.Second):
		t.Fatal("walker did not resume")
	}
}

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantFPS    float64
		wantFrames int64
		wantErr    bool
	}{
		{
			name:       "nb_frames present",
			input:      `{"streams":[{"width":1920,"height":1080,"avg_frame_rate":"30/1","nb_frames":"900"}],"format":{"duration":"30.0"}}`,
			wantFPS:    30,
			wantFrames: 900,
		},
		{
			name:       "derived from duration",
			input:      `{"streams":[{"width":640,"height":360,"avg_frame_rate":"0/0","r_frame_rate":"25/1"}],"format":{"duration":"4.0"}}`,
			wantFPS:    25,
			wantFrames: 100,
		},
		{
			name:    "no streams",
			input:   `{"streams":[],"format":{}}`,
			wantErr: true,
		},
		{
			name:    "no rate",
			input:   `{"streams":[{"avg_frame_rate":"0/0"}],"format":{"duration":"1"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseProbe([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProbe: %v", err)
			}
			if info.FPS != tt.wantFPS || info.FrameCount != tt.wantFrames {
				t.Errorf("got fps=%v frames=%d, want fps=%v frames=%d", info.FPS, info.FrameCount, tt.wantFPS, tt.wantFrames)
			}
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(context.Background(), "/nonexistent/video.mp4")
	if !errors.Is(err, ErrVideoUnavailable) {
		t.Errorf("err = %v, want ErrVideoUnavailable", err)
	}
}
