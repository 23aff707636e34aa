package ctlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wasmcloud/wasmcloud-host/internal/log"
)

// DefaultTopicPrefix matches spec.md §6's bus topic convention.
const DefaultTopicPrefix = "wasmbus.ctl.v1"

// DefaultTimeout bounds how long a single command handler may run
// before its reply is dropped, per spec.md §5's ctl_timeout.
const DefaultTimeout = 2 * time.Second

// Server subscribes the lattice-wide control subjects described in
// spec.md §6 and dispatches each to Host. Handlers for distinct
// command kinds run concurrently; NATS queue subscriptions on the
// per-host subjects serialize commands of the same kind against each
// other the way spec.md §4.8 requires ("single-threaded per command
// kind, concurrent across kinds").
//
// Grounded on the teacher's pkg/client.Client (one method per verb
// against a single connection) turned inside-out: that file is the
// caller side of a gRPC service; this is the callee side of the
// equivalent NATS-based protocol spec.md §4.8 specifies instead.
type Server struct {
	nc      *nats.Conn
	host    Host
	prefix  string
	hostID  string
	timeout time.Duration

	subs []*nats.Subscription
}

// NewServer builds a Server. prefix defaults to DefaultTopicPrefix,
// timeout to DefaultTimeout.
func NewServer(nc *nats.Conn, host Host, lattice, hostID, prefix string, timeout time.Duration) *Server {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Server{nc: nc, host: host, prefix: fmt.Sprintf("%s.%s", prefix, lattice), hostID: hostID, timeout: timeout}
}

// Start subscribes every control subject spec.md §6 names.
func (s *Server) Start() error {
	bindings := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{s.hostSubject("scale"), s.wrap(s.handleScale)},
		{s.hostSubject("start_provider"), s.wrap(s.handleStartProvider)},
		{s.hostSubject("stop_provider"), s.wrap(s.handleStopProvider)},
		{s.hostSubject("update"), s.wrap(s.handleUpdate)},
		{s.hostSubject("stop"), s.wrap(s.handleStopHost)},
		{s.hostSubject("inventory.get"), s.wrap(s.handleInventory)},
		{s.hostSubject("label.put"), s.wrap(s.handleLabelPut)},
		{s.hostSubject("label.del"), s.wrap(s.handleLabelDel)},
		{fmt.Sprintf("%s.host.get", s.prefix), s.wrap(s.handleHostGet)},
		{fmt.Sprintf("%s.link.get", s.prefix), s.wrap(s.handleLinkGet)},
		{fmt.Sprintf("%s.link.put", s.prefix), s.wrap(s.handleLinkPut)},
		{fmt.Sprintf("%s.link.del", s.prefix), s.wrap(s.handleLinkDel)},
		{fmt.Sprintf("%s.config.get", s.prefix), s.wrap(s.handleConfigGet)},
		{fmt.Sprintf("%s.config.put", s.prefix), s.wrap(s.handleConfigPut)},
		{fmt.Sprintf("%s.config.del", s.prefix), s.wrap(s.handleConfigDel)},
		{fmt.Sprintf("%s.claims.get", s.prefix), s.wrap(s.handleClaimsGet)},
		{fmt.Sprintf("%s.auction.component", s.prefix), s.wrapAuction(s.handleAuctionComponent)},
		{fmt.Sprintf("%s.auction.provider", s.prefix), s.wrapAuction(s.handleAuctionProvider)},
	}

	for _, b := range bindings {
		sub, err := s.nc.QueueSubscribe(b.subject, s.hostID, b.handler)
		if err != nil {
			s.Stop()
			return fmt.Errorf("subscribe %s: %w", b.subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	log.Info(fmt.Sprintf("control-plane server listening on %s.*", s.prefix))
	return nil
}

// Stop unsubscribes every control subject.
func (s *Server) Stop() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Server) hostSubject(verb string) string {
	return fmt.Sprintf("%s.host.%s.%s", s.prefix, s.hostID, verb)
}

// handlerFunc is the shape every per-verb handler implements: decode
// msg.Data, call into Host, and return the Response to reply with.
type handlerFunc func(ctx context.Context, msg *nats.Msg) Response

// wrap bounds handler execution to s.timeout and replies if msg.Reply
// is set, per spec.md §4.8's "failures are reported, not thrown".
func (s *Server) wrap(h handlerFunc) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		resp := h(ctx, msg)
		if err := msg.Respond(resp.Marshal()); err != nil {
			log.Errorf("respond to control-plane request", err)
		}
	}
}

// wrapAuction only replies when the handler reports success: an
// auction a host cannot win gets no reply at all, so the requester's
// reply collection only ever sees capable hosts, per
// spec.md §4.8.
func (s *Server) wrapAuction(h handlerFunc) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		resp := h(ctx, msg)
		if !resp.Success {
			return
		}
		if err := msg.Respond(resp.Marshal()); err != nil {
			log.Errorf("respond to control-plane request", err)
		}
	}
}
