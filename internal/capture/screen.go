package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strconv"
	"strings"
)

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// ScreenBackend captures the real desktop by shelling out to the
// platform tools: xdotool and ImageMagick import on Linux, osascript and
// screencapture on macOS.
type ScreenBackend struct {
	goos string
	run  runFunc
}

func NewScreenBackend() (*ScreenBackend, error) {
	switch goruntime.GOOS {
	case "linux", "darwin":
	default:
		return nil, fmt.Errorf("screen capture is not supported on %s", goruntime.GOOS)
	}
	return &ScreenBackend{goos: goruntime.GOOS, run: execRun}, nil
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

const frontWindowScript = `tell application "System Events"
	set p to first application process whose frontmost is true
	set w to front window of p
	set {x, y} to position of w
	set {ww, hh} to size of w
	return (x as text) & "," & (y as text) & "," & (ww as text) & "," & (hh as text) & "," & (name of p)
end tell`

func (s *ScreenBackend) ActiveWindow(ctx context.Context) (Window, error) {
	if s.goos == "darwin" {
		out, err := s.run(ctx, "osascript", "-e", frontWindowScript)
		if err != nil {
			return Window{}, fmt.Errorf("%w: %v", ErrNoActiveWindow, err)
		}
		return parseAppleScriptWindow(string(out))
	}

	out, err := s.run(ctx, "xdotool", "getactivewindow", "getwindowgeometry", "--shell")
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrNoActiveWindow, err)
	}
	w, err := parseXdotoolGeometry(string(out))
	if err != nil {
		return Window{}, err
	}
	if title, err := s.run(ctx, "xdotool", "getactivewindow", "getwindowname"); err == nil {
		w.Title = strings.TrimSpace(string(title))
	}
	return w, nil
}

func (s *ScreenBackend) Grab(ctx context.Context, r Rect) (image.Image, error) {
	var raw []byte
	if s.goos == "darwin" {
		dir, err := os.MkdirTemp("", "recall-grab-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)
		path := filepath.Join(dir, "grab.png")
		region := fmt.Sprintf("%d,%d,%d,%d", r.Left, r.Top, r.Width, r.Height)
		if _, err := s.run(ctx, "screencapture", "-x", "-t", "png", "-R", region, path); err != nil {
			return nil, err
		}
		if raw, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	} else {
		var err error
		raw, err = s.run(ctx, "import", "-window", "root", "-crop", r.String(), "png:-")
		if err != nil {
			return nil, err
		}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	return img, nil
}

// parseXdotoolGeometry reads `xdotool getwindowgeometry --shell` output.
func parseXdotoolGeometry(out string) (Window, error) {
	vals := map[string]int{}
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		vals[k] = n
	}
	for _, k := range []string{"X", "Y", "WIDTH", "HEIGHT"} {
		if _, ok := vals[k]; !ok {
			return Window{}, fmt.Errorf("%w: xdotool output missing %s", ErrNoActiveWindow, k)
		}
	}
	return Window{Rect: Rect{Left: vals["X"], Top: vals["Y"], Width: vals["WIDTH"], Height: vals["HEIGHT"]}}, nil
}

// parseAppleScriptWindow reads "x,y,w,h,name".
func parseAppleScriptWindow(out string) (Window, error) {
	parts := strings.SplitN(strings.TrimSpace(out), ",", 5)
	if len(parts) < 4 {
		return Window{}, fmt.Errorf("%w: unexpected osascript output %q", ErrNoActiveWindow, out)
	}
	var nums [4]int
	for i := 0; i < 4; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return Window{}, fmt.Errorf("%w: bad osascript field %q", ErrNoActiveWindow, parts[i])
		}
		nums[i] = n
	}
	w := Window{Rect: Rect{Left: nums[0], Top: nums[1], Width: nums[2], Height: nums[3]}}
	if len(parts) == 5 {
		w.Title = strings.TrimSpace(parts[4])
	}
	return w, nil
}
