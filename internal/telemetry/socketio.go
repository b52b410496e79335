package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/groupsched/internal/ctxlog"
)

// EventName is the socket.io event every telemetry record is emitted as.
const EventName = "tsch"

const connectTimeout = 15 * time.Second

// SocketIO publishes events to a socket.io namespace over WebSocket.
type SocketIO struct {
	io        *socket.Socket
	connected atomic.Bool
}

var _ Publisher = (*SocketIO)(nil)

// DialSocketIO connects to rawURL and joins namespace. It waits for the
// connection to be established or to fail.
func DialSocketIO(ctx context.Context, rawURL, namespace string) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("publisher", "socketio", "url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("telemetry URL %q must include scheme and host", rawURL)
	}
	if namespace == "" {
		namespace = "/"
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)
	p := &SocketIO{io: io}

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		p.connected.Store(true)
		logger.Info("Telemetry connected.", "namespace", namespace, "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})
	io.On(types.EventName("disconnect"), func(...any) {
		p.connected.Store(false)
		logger.Warn("Telemetry disconnected.")
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return p, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}
}

// Publish emits e. Events published while disconnected are dropped.
func (p *SocketIO) Publish(_ context.Context, e Event) error {
	if !p.connected.Load() {
		return fmt.Errorf("socket.io publisher is disconnected, dropping %s event", e.Kind)
	}
	return p.io.Emit(EventName, e)
}

// Close disconnects the client.
func (p *SocketIO) Close() error {
	p.io.Disconnect()
	return nil
}
