package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls an actuator's ActuatorService.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target (host:port). The connection is
// established lazily on the first call. Actuator RPC is unauthenticated,
// so transport credentials are insecure unless opts override them.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req any) (*Response, error) {
	out := new(Response)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ControlLightBulb switches a lamp.
func (c *Client) ControlLightBulb(ctx context.Context, req *LightBulbRequest) (*Response, error) {
	return c.invoke(ctx, MethodControlLightBulb, req)
}

// ControlAC switches an air conditioner.
func (c *Client) ControlAC(ctx context.Context, req *ACRequest) (*Response, error) {
	return c.invoke(ctx, MethodControlAC, req)
}

// ControlSprinkler switches a sprinkler.
func (c *Client) ControlSprinkler(ctx context.Context, req *SprinklerRequest) (*Response, error) {
	return c.invoke(ctx, MethodControlSprinkler, req)
}

// ControlDoor opens or closes a door.
func (c *Client) ControlDoor(ctx context.Context, req *DoorRequest) (*Response, error) {
	return c.invoke(ctx, MethodControlDoor, req)
}
