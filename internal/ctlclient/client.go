// Package ctlclient implements the caller side of spec.md §4.8's
// control-plane protocol: one method per verb against a single NATS
// connection, matching the one-RPC-per-method shape of
// pkg/client.Client directly (that file is this package's closest
// analogue in the teacher repo, a gRPC caller turned into a NATS
// requester), used by wash-equivalent tooling and the end-to-end tests
// instead of the teacher's generated gRPC stubs.
package ctlclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wasmcloud/wasmcloud-host/internal/ctlplane"
	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

// DefaultRequestTimeout bounds one unicast control request; auctions
// use AuctionWindow instead since they gather, not await one reply.
const DefaultRequestTimeout = 2 * time.Second

// AuctionWindow is how long Client waits collecting auction replies
// before returning what it has: auctions are silent-unless-capable
// (spec.md §4.8), so there is no single reply to await.
const AuctionWindow = 300 * time.Millisecond

// Client is a lattice-wide control-plane requester.
type Client struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
}

// NewClient builds a Client. prefix defaults to ctlplane.DefaultTopicPrefix.
func NewClient(nc *nats.Conn, lattice, prefix string, timeout time.Duration) *Client {
	if prefix == "" {
		prefix = ctlplane.DefaultTopicPrefix
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{nc: nc, prefix: fmt.Sprintf("%s.%s", prefix, lattice), timeout: timeout}
}

func (c *Client) request(ctx context.Context, subject string, body interface{}) (ctlplane.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return ctlplane.Response{}, errkind.Wrap(errkind.Validation, "encode control request", err)
	}

	reqCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg, err := c.nc.RequestWithContext(reqCtx, subject, data)
	if err != nil {
		return ctlplane.Response{}, errkind.Wrap(errkind.Transient, fmt.Sprintf("control request %s", subject), err)
	}

	var resp ctlplane.Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return ctlplane.Response{}, errkind.Wrap(errkind.Validation, "decode control response", err)
	}
	if !resp.Success {
		return resp, errkind.New(errkind.Validation, resp.Message)
	}
	return resp, nil
}

func (c *Client) hostSubject(hostID, verb string) string {
	return fmt.Sprintf("%s.host.%s.%s", c.prefix, hostID, verb)
}

func (c *Client) Scale(ctx context.Context, hostID string, req ctlplane.ScaleRequest) error {
	_, err := c.request(ctx, c.hostSubject(hostID, "scale"), req)
	return err
}

func (c *Client) Update(ctx context.Context, hostID string, req ctlplane.ScaleRequest) error {
	_, err := c.request(ctx, c.hostSubject(hostID, "update"), req)
	return err
}

func (c *Client) StartProvider(ctx context.Context, hostID string, req ctlplane.StartProviderRequest) error {
	_, err := c.request(ctx, c.hostSubject(hostID, "start_provider"), req)
	return err
}

func (c *Client) StopProvider(ctx context.Context, hostID string, req ctlplane.StopProviderRequest) error {
	_, err := c.request(ctx, c.hostSubject(hostID, "stop_provider"), req)
	return err
}

func (c *Client) StopHost(ctx context.Context, hostID string) error {
	_, err := c.request(ctx, c.hostSubject(hostID, "stop"), struct{}{})
	return err
}

func (c *Client) Inventory(ctx context.Context, hostID string) (ctlplane.Inventory, error) {
	resp, err := c.request(ctx, c.hostSubject(hostID, "inventory.get"), struct{}{})
	if err != nil {
		return ctlplane.Inventory{}, err
	}
	var inv ctlplane.Inventory
	if err := json.Unmarshal(resp.Data, &inv); err != nil {
		return ctlplane.Inventory{}, errkind.Wrap(errkind.Validation, "decode inventory", err)
	}
	return inv, nil
}

func (c *Client) PutLabel(ctx context.Context, hostID, key, value string) error {
	_, err := c.request(ctx, c.hostSubject(hostID, "label.put"), map[string]string{key: value})
	return err
}

func (c *Client) DeleteLabel(ctx context.Context, hostID, key string) error {
	_, err := c.request(ctx, c.hostSubject(hostID, "label.del"), key)
	return err
}

// GetLink returns every link registered in the lattice; link.get takes
// no filter, matching Host.Links' all-links shape.
func (c *Client) GetLink(ctx context.Context) ([]types.Link, error) {
	resp, err := c.request(ctx, c.prefix+".link.get", struct{}{})
	if err != nil {
		return nil, err
	}
	var links []types.Link
	if err := json.Unmarshal(resp.Data, &links); err != nil {
		return nil, errkind.Wrap(errkind.Validation, "decode links", err)
	}
	return links, nil
}

func (c *Client) PutLink(ctx context.Context, link types.Link) error {
	_, err := c.request(ctx, c.prefix+".link.put", link)
	return err
}

func (c *Client) DeleteLink(ctx context.Context, key types.LinkKey) error {
	_, err := c.request(ctx, c.prefix+".link.del", key)
	return err
}

// GetConfig returns (zero, false, nil) when the host reports the config
// as absent, but propagates any other error (transient/malformed
// request or reply) rather than masking it as absence.
func (c *Client) GetConfig(ctx context.Context, name string) (types.ConfigRecord, bool, error) {
	resp, err := c.request(ctx, c.prefix+".config.get", name)
	if err != nil {
		if !resp.Success && strings.HasPrefix(resp.Message, "config not found") {
			return types.ConfigRecord{}, false, nil
		}
		return types.ConfigRecord{}, false, err
	}
	var cfg types.ConfigRecord
	if err := json.Unmarshal(resp.Data, &cfg); err != nil {
		return types.ConfigRecord{}, false, errkind.Wrap(errkind.Validation, "decode config", err)
	}
	return cfg, true, nil
}

func (c *Client) PutConfig(ctx context.Context, cfg types.ConfigRecord) error {
	_, err := c.request(ctx, c.prefix+".config.put", cfg)
	return err
}

func (c *Client) DeleteConfig(ctx context.Context, name string) error {
	_, err := c.request(ctx, c.prefix+".config.del", name)
	return err
}

func (c *Client) Claims(ctx context.Context) ([]types.Claims, error) {
	resp, err := c.request(ctx, c.prefix+".claims.get", struct{}{})
	if err != nil {
		return nil, err
	}
	var claims []types.Claims
	if err := json.Unmarshal(resp.Data, &claims); err != nil {
		return nil, errkind.Wrap(errkind.Validation, "decode claims", err)
	}
	return claims, nil
}

// HostsGet broadcasts host.get and gathers every reply that arrives
// within AuctionWindow: every host replies (unlike an auction), but
// there may be many, so this is a scatter-gather like the auction
// methods below rather than a single request/reply.
func (c *Client) HostsGet(ctx context.Context) ([]ctlplane.HostSummary, error) {
	raw, err := c.gather(ctx, c.prefix+".host.get", struct{}{}, AuctionWindow)
	if err != nil {
		return nil, err
	}
	summaries := make([]ctlplane.HostSummary, 0, len(raw))
	for _, data := range raw {
		var s ctlplane.HostSummary
		if json.Unmarshal(data, &s) == nil {
			summaries = append(summaries, s)
		}
	}
	return summaries, nil
}

// AuctionComponent broadcasts auction.component and gathers the acks
// from hosts that can satisfy constraints; a host that can't is
// silent, so the result is exactly the set of capable hosts.
func (c *Client) AuctionComponent(ctx context.Context, req ctlplane.AuctionRequest) ([]ctlplane.AuctionResponse, error) {
	return c.gatherAuctions(ctx, c.prefix+".auction.component", req)
}

func (c *Client) AuctionProvider(ctx context.Context, req ctlplane.AuctionRequest) ([]ctlplane.AuctionResponse, error) {
	return c.gatherAuctions(ctx, c.prefix+".auction.provider", req)
}

func (c *Client) gatherAuctions(ctx context.Context, subject string, req ctlplane.AuctionRequest) ([]ctlplane.AuctionResponse, error) {
	raw, err := c.gather(ctx, subject, req, AuctionWindow)
	if err != nil {
		return nil, err
	}
	out := make([]ctlplane.AuctionResponse, 0, len(raw))
	for _, data := range raw {
		var a ctlplane.AuctionResponse
		if json.Unmarshal(data, &a) == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

// gather publishes body to subject with a private inbox as Reply and
// collects every Response.Data that arrives within window, the
// scatter-gather idiom NATS request/reply only handles for a single
// responder: every auction and host.get call needs more than one.
func (c *Client) gather(ctx context.Context, subject string, body interface{}, window time.Duration) ([]json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, "encode control request", err)
	}

	inbox := nats.NewInbox()
	sub, err := c.nc.SubscribeSync(inbox)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "subscribe gather inbox", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := c.nc.PublishRequest(subject, inbox, data); err != nil {
		return nil, errkind.Wrap(errkind.Transient, fmt.Sprintf("publish %s", subject), err)
	}

	deadline := time.Now().Add(window)
	var results []json.RawMessage
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		msg, err := sub.NextMsg(remaining)
		if err != nil {
			break
		}
		var resp ctlplane.Response
		if json.Unmarshal(msg.Data, &resp) == nil && resp.Success {
			results = append(results, resp.Data)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return results, nil
}
