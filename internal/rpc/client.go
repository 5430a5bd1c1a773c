package rpc

import (
	"context"
	"crypto/tls"
	"net"

	"sqlgate/cli/internal/errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote QueryGate.
type Client struct {
	conn  *grpc.ClientConn
	token string
}

// Dial creates a client for addr. The connection is plaintext; extra options
// may replace the transport, as tests do with an in-memory dialer.
func Dial(addr, token string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid, "invalid gate address "+addr, err)
	}
	return &Client{conn: conn, token: token}, nil
}

// TLSOption switches the client to TLS, using the host part of addr for SNI.
func TLSOption(addr string) grpc.DialOption {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	return grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}))
}

// Conn exposes the underlying connection, e.g. for health checks.
func (c *Client) Conn() *grpc.ClientConn { return c.conn }

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Check asks the server to validate sql without running it.
func (c *Client) Check(ctx context.Context, sql string) (*Response, error) {
	return c.call(ctx, methodCheck, sql)
}

// Run asks the server to validate and execute sql.
func (c *Client) Run(ctx context.Context, sql string) (*Response, error) {
	return c.call(ctx, methodRun, sql)
}

func (c *Client) call(ctx context.Context, method, sql string) (*Response, error) {
	in, err := newRequest(sql)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, TokenHeader, c.token)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return decodeResponse(out), nil
}
