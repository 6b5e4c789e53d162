package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the data service over a gRPC connection.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target using the proto codec and plaintext transport. Extra options are
// appended, so callers can override the transport (e.g. a bufconn dialer in tests).
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Healthcheck calls Healthcheck.
func (c *Client) Healthcheck(ctx context.Context) (*HealthcheckResponse, error) {
	out := new(HealthcheckResponse)
	if err := c.conn.Invoke(ctx, MethodHealthcheck, &HealthcheckRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteData calls WriteData.
func (c *Client) WriteData(ctx context.Context, key []byte, data string) (*WriteDataResponse, error) {
	out := new(WriteDataResponse)
	if err := c.conn.Invoke(ctx, MethodWriteData, &WriteDataRequest{Key: key, Data: data}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadData calls ReadData. A missing key surfaces as a codes.NotFound status.
func (c *Client) ReadData(ctx context.Context, key []byte) (string, error) {
	out := new(ReadDataResponse)
	if err := c.conn.Invoke(ctx, MethodReadData, &ReadDataRequest{Key: key}, out); err != nil {
		return "", err
	}
	return out.Data, nil
}

// ReadArticle calls ReadArticle.
func (c *Client) ReadArticle(ctx context.Context, id string) (*ReadArticleResponse, error) {
	out := new(ReadArticleResponse)
	if err := c.conn.Invoke(ctx, MethodReadArticle, &ReadArticleRequest{ID: id}, out); err != nil {
		return nil, err
	}
	return out, nil
}
