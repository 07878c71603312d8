package plugin

import (
	"context"
	"errors"
	"image/color"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/felixgeelhaar/recall/internal/capture"
	"github.com/felixgeelhaar/recall/internal/dedup"
)

var _ capture.Backend = (*GRPCClient)(nil)

func dialBackend(t *testing.T, b capture.Backend) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer()
	RegisterCaptureServer(s, &GRPCServer{Impl: b})

	go func() {
		_ = s.Serve(lis)
	}()
	t.Cleanup(s.Stop)

	dialer := func(context.Context, string) (net.Conn, error) {
		return lis.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return NewGRPCClient(conn)
}

func TestCaptureGRPC(t *testing.T) {
	step := capture.Solid("editor - main.go", color.RGBA{R: 200, A: 255})
	step.Window.Rect = capture.Rect{Left: 10, Top: 20, Width: 32, Height: 24}
	client := dialBackend(t, capture.NewScriptedBackend(step))
	ctx := context.Background()

	w, err := client.ActiveWindow(ctx)
	if err != nil {
		t.Fatalf("ActiveWindow failed: %v", err)
	}
	if w.Title != "editor - main.go" || w.Rect != step.Window.Rect {
		t.Errorf("Unexpected window %+v", w)
	}

	img, err := client.Grab(ctx, w.Rect)
	if err != nil {
		t.Fatalf("Grab failed: %v", err)
	}

	// A frame that crossed the wire fingerprints like the local one.
	remote, err := capture.Encode(img)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	local, _ := capture.Encode(step.Image)
	if dedup.Fingerprint(remote) != dedup.Fingerprint(local) {
		t.Error("Expected identical fingerprints across the plugin boundary")
	}
}

func TestCaptureGRPC_Errors(t *testing.T) {
	t.Run("NoActiveWindow", func(t *testing.T) {
		client := dialBackend(t, capture.NewScriptedBackend(capture.Step{Err: capture.ErrNoActiveWindow}))
		_, err := client.ActiveWindow(context.Background())
		if !errors.Is(err, capture.ErrNoActiveWindow) {
			t.Errorf("Expected ErrNoActiveWindow, got %v", err)
		}
	})

	t.Run("GrabFailure", func(t *testing.T) {
		step := capture.Solid("editor", color.White)
		step.GrabErr = errors.New("permission denied")
		client := dialBackend(t, capture.NewScriptedBackend(step))
		if _, err := client.ActiveWindow(context.Background()); err != nil {
			t.Fatalf("ActiveWindow failed: %v", err)
		}
		_, err := client.Grab(context.Background(), step.Window.Rect)
		if err == nil {
			t.Error("Expected grab error")
		}
	})
}

func TestOpen_MissingBinary(t *testing.T) {
	if _, err := Open("/nonexistent/recall-plugin"); err == nil {
		t.Error("Expected error for missing plugin binary")
	}
}
