package rpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// lampServer serves ControlLightBulb only.
type lampServer struct {
	UnimplementedActuatorServer

	mu   sync.Mutex
	last *LightBulbRequest
}

func (s *lampServer) ControlLightBulb(_ context.Context, req *LightBulbRequest) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = req
	if req.ID != "lamp_1" {
		return Refuse("unknown device " + req.ID), nil
	}
	return OK(), nil
}

func (s *lampServer) lastRequest() *LightBulbRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

type captureLogger struct {
	mu    sync.Mutex
	infos []string
	warns []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}
func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *captureLogger) Error(string, ...any) {}

// startServer serves srv on an in-memory listener and returns a client.
func startServer(t *testing.T, srv ActuatorServer, logger Logger) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := NewServer(srv, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, s, lis) }()

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return client
}

func TestControlLightBulbRoundTrip(t *testing.T) {
	srv := &lampServer{}
	client := startServer(t, srv, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	brightness := 80.0
	resp, err := client.ControlLightBulb(ctx, &LightBulbRequest{ID: "lamp_1", Active: true, Brightness: &brightness})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.ErrorMessage)

	got := srv.lastRequest()
	require.NotNil(t, got)
	assert.Equal(t, "lamp_1", got.ID)
	assert.True(t, got.Active)
	require.NotNil(t, got.Brightness)
	assert.Equal(t, 80.0, *got.Brightness)
}

func TestRefusalIsNotTransportError(t *testing.T) {
	client := startServer(t, &lampServer{}, nil)

	resp, err := client.ControlLightBulb(context.Background(), &LightBulbRequest{ID: "lamp_9", Active: true})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "unknown device lamp_9", resp.ErrorMessage)
}

func TestUnimplementedMethod(t *testing.T) {
	client := startServer(t, &lampServer{}, nil)

	_, err := client.ControlAC(context.Background(), &ACRequest{ID: "ac_1", Active: true, Temperature: 22})
	require.Error(t, err)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestLoggingInterceptor(t *testing.T) {
	logger := &captureLogger{}
	client := startServer(t, &lampServer{}, logger)

	_, err := client.ControlLightBulb(context.Background(), &LightBulbRequest{ID: "lamp_1"})
	require.NoError(t, err)
	_, err = client.ControlDoor(context.Background(), &DoorRequest{ID: "door_1", IsOpen: true})
	require.Error(t, err)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Equal(t, []string{"rpc call"}, logger.infos)
	assert.Equal(t, []string{"rpc call failed"}, logger.warns)
}

func TestUnreachableActuator(t *testing.T) {
	lis := bufconn.Listen(1 << 10)
	lis.Close()

	client, err := Dial("passthrough:///closed",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = client.ControlSprinkler(ctx, &SprinklerRequest{ID: "sprinkler_1", Active: true})
	require.Error(t, err)
	assert.Contains(t, []codes.Code{codes.Unavailable, codes.DeadlineExceeded}, status.Code(err))
}

func TestJSONCodec(t *testing.T) {
	c := jsonCodec{}
	assert.Equal(t, "json", c.Name())

	data, err := c.Marshal(&DoorRequest{ID: "door_1", IsOpen: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"door_1","is_open":true}`, string(data))

	var resp Response
	require.NoError(t, c.Unmarshal([]byte(`{"success":false,"error_message":"jammed"}`), &resp))
	assert.Equal(t, Response{ErrorMessage: "jammed"}, resp)
}
