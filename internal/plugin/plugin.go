package plugin

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	hcplugin "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"

	"github.com/felixgeelhaar/recall/internal/capture"
)

// CaptureKey is the name capture plugins are dispensed under.
const CaptureKey = "capture"

// HandshakeConfig is used to handshake between host and plugin.
var HandshakeConfig = hcplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "RECALL_PLUGIN_MAGIC_COOKIE",
	MagicCookieValue: "recall-capture",
}

// PluginMap is the map of plugins we can dispense.
var PluginMap = map[string]hcplugin.Plugin{
	CaptureKey: &CapturePlugin{},
}

// CapturePlugin serves or consumes a capture.Backend over gRPC.
type CapturePlugin struct {
	hcplugin.NetRPCUnsupportedPlugin
	Impl capture.Backend
}

func (p *CapturePlugin) GRPCServer(broker *hcplugin.GRPCBroker, s *grpc.Server) error {
	RegisterCaptureServer(s, &GRPCServer{Impl: p.Impl})
	return nil
}

func (p *CapturePlugin) GRPCClient(ctx context.Context, broker *hcplugin.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return NewGRPCClient(c), nil
}

// Serve runs b as a plugin process. It blocks until the host disconnects.
func Serve(b capture.Backend) {
	hcplugin.Serve(&hcplugin.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hcplugin.Plugin{
			CaptureKey: &CapturePlugin{Impl: b},
		},
		GRPCServer: hcplugin.DefaultGRPCServer,
	})
}

// Client is a capture backend living in a plugin process.
type Client struct {
	capture.Backend
	client *hcplugin.Client
}

// Open launches the plugin binary at path and dispenses its backend.
func Open(path string) (*Client, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("capture plugin %s: %w", path, err)
	}

	client := hcplugin.NewClient(&hcplugin.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          PluginMap,
		Cmd:              exec.Command(path), // #nosec G204
		AllowedProtocols: []hcplugin.Protocol{hcplugin.ProtocolGRPC},
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:   "plugin",
			Output: os.Stderr,
			Level:  hclog.Warn,
		}),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to start capture plugin: %w", err)
	}
	raw, err := rpcClient.Dispense(CaptureKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense capture plugin: %w", err)
	}
	b, ok := raw.(capture.Backend)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s does not implement capture", path)
	}
	return &Client{Backend: b, client: client}, nil
}

// Close terminates the plugin process.
func (c *Client) Close() {
	c.client.Kill()
}
