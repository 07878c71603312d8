package capture

import (
	"context"
	"image"
	"image/color"
	"sync"
)

// Step is one scripted iteration of a ScriptedBackend.
type Step struct {
	Window  Window
	Image   image.Image
	Err     error // returned by ActiveWindow
	GrabErr error
}

// ScriptedBackend replays a fixed list of steps, one per ActiveWindow
// call, and repeats the last step once the script is exhausted. It backs
// the stub demo mode and the runtime tests.
type ScriptedBackend struct {
	mu    sync.Mutex
	steps []Step
	pos   int
	grabs int
}

func NewScriptedBackend(steps ...Step) *ScriptedBackend {
	return &ScriptedBackend{steps: steps}
}

func (s *ScriptedBackend) ActiveWindow(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return Window{}, ErrNoActiveWindow
	}
	if s.pos < len(s.steps) {
		s.pos++
	}
	st := s.steps[s.pos-1]
	if st.Err != nil {
		return Window{}, st.Err
	}
	return st.Window, nil
}

func (s *ScriptedBackend) Grab(ctx context.Context, r Rect) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grabs++
	if s.pos == 0 {
		return nil, ErrNoActiveWindow
	}
	st := s.steps[s.pos-1]
	if st.GrabErr != nil {
		return nil, st.GrabErr
	}
	return st.Image, nil
}

// Grabs reports how many regions were grabbed.
func (s *ScriptedBackend) Grabs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grabs
}

// Solid returns a step showing a window of one uniform color.
func Solid(title string, c color.Color) Step {
	const w, h = 32, 24
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return Step{Window: Window{Rect: Rect{Width: w, Height: h}, Title: title}, Image: img}
}
