// Package client is the typed gRPC client for the daemon's unix socket.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/matheus3301/huddle/internal/api"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket. The connection is lazy: the
// first call reports an unreachable daemon.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(api.CallOption()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, service, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, api.Method(service, method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	return invoke[api.StatusResponse](ctx, c, api.SessionServiceName, "Status", &api.StatusRequest{})
}

// Watch streams events matching prefix (and group, if set) to fn until ctx
// is cancelled, the daemon goes away, or fn returns an error.
func (c *Client) Watch(ctx context.Context, prefix, group string, fn func(api.Event) error) error {
	stream, err := c.conn.NewStream(ctx, &api.WatchStream, api.Method(api.SessionServiceName, "Watch"))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&api.WatchRequest{Prefix: prefix, Group: group}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		var evt api.Event
		if err := stream.RecvMsg(&evt); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}

func (c *Client) Create(ctx context.Context, name string, qr bool) (*api.CreateResponse, error) {
	return invoke[api.CreateResponse](ctx, c, api.GroupServiceName, "Create", &api.CreateRequest{Name: name, QR: qr})
}

func (c *Client) Join(ctx context.Context, invite string) (*api.Group, error) {
	resp, err := invoke[api.GroupResponse](ctx, c, api.GroupServiceName, "Join", &api.JoinRequest{Invite: invite})
	if err != nil {
		return nil, err
	}
	return &resp.Group, nil
}

func (c *Client) List(ctx context.Context) ([]api.Entry, error) {
	resp, err := invoke[api.ListResponse](ctx, c, api.GroupServiceName, "List", &api.Empty{})
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *Client) Members(ctx context.Context, group string) ([]api.Member, error) {
	resp, err := invoke[api.MembersResponse](ctx, c, api.GroupServiceName, "Members", &api.GroupRequest{Group: group})
	if err != nil {
		return nil, err
	}
	return resp.Members, nil
}

func (c *Client) MarkRead(ctx context.Context, group string) error {
	_, err := invoke[api.Empty](ctx, c, api.GroupServiceName, "MarkRead", &api.GroupRequest{Group: group})
	return err
}

func (c *Client) Rename(ctx context.Context, group, name string) error {
	_, err := invoke[api.Empty](ctx, c, api.GroupServiceName, "Rename", &api.RenameRequest{Group: group, Name: name})
	return err
}

func (c *Client) Leave(ctx context.Context, group string) error {
	_, err := invoke[api.Empty](ctx, c, api.GroupServiceName, "Leave", &api.GroupRequest{Group: group})
	return err
}

func (c *Client) Send(ctx context.Context, group, content, contentType string) (*api.Message, error) {
	resp, err := invoke[api.SendResponse](ctx, c, api.MessageServiceName, "Send", &api.SendRequest{Group: group, Content: content, ContentType: contentType})
	if err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

func (c *Client) Focus(ctx context.Context, group string) (*api.PageResponse, error) {
	return invoke[api.PageResponse](ctx, c, api.MessageServiceName, "Focus", &api.GroupRequest{Group: group})
}

func (c *Client) Unfocus(ctx context.Context, group string) error {
	_, err := invoke[api.Empty](ctx, c, api.MessageServiceName, "Unfocus", &api.GroupRequest{Group: group})
	return err
}

func (c *Client) LoadMore(ctx context.Context, group string) (*api.PageResponse, error) {
	return invoke[api.PageResponse](ctx, c, api.MessageServiceName, "LoadMore", &api.GroupRequest{Group: group})
}

func (c *Client) Resend(ctx context.Context, group string) (int, error) {
	resp, err := invoke[api.ResendResponse](ctx, c, api.MessageServiceName, "Resend", &api.GroupRequest{Group: group})
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) Vote(ctx context.Context, group string) error {
	_, err := invoke[api.Empty](ctx, c, api.ClearServiceName, "Vote", &api.GroupRequest{Group: group})
	return err
}

func (c *Client) CancelVote(ctx context.Context, group string) error {
	_, err := invoke[api.Empty](ctx, c, api.ClearServiceName, "CancelVote", &api.GroupRequest{Group: group})
	return err
}

func (c *Client) Tally(ctx context.Context, group string) (*api.TallyResponse, error) {
	return invoke[api.TallyResponse](ctx, c, api.ClearServiceName, "Tally", &api.GroupRequest{Group: group})
}

func (c *Client) InitiateClear(ctx context.Context, group string) error {
	_, err := invoke[api.Empty](ctx, c, api.ClearServiceName, "InitiateClear", &api.GroupRequest{Group: group})
	return err
}
