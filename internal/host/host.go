package host

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/tetratelabs/wazero"

	"github.com/wasmcloud/wasmcloud-host/internal/artifact"
	"github.com/wasmcloud/wasmcloud-host/internal/claims"
	"github.com/wasmcloud/wasmcloud-host/internal/configbuiltin"
	"github.com/wasmcloud/wasmcloud-host/internal/ctlplane"
	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/events"
	"github.com/wasmcloud/wasmcloud-host/internal/fsbuiltin"
	"github.com/wasmcloud/wasmcloud-host/internal/httpserver"
	"github.com/wasmcloud/wasmcloud-host/internal/kvbuiltin"
	"github.com/wasmcloud/wasmcloud-host/internal/linkindex"
	"github.com/wasmcloud/wasmcloud-host/internal/log"
	"github.com/wasmcloud/wasmcloud-host/internal/provider"
	"github.com/wasmcloud/wasmcloud-host/internal/security"
	"github.com/wasmcloud/wasmcloud-host/internal/store"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
	"github.com/wasmcloud/wasmcloud-host/internal/wasmrt"
	"github.com/wasmcloud/wasmcloud-host/internal/wrpc"
)

// State is the supervisor's process-wide lifecycle state, per
// spec.md §4.10.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateStopped  State = "stopped"
)

// SVIDSource is a pluggable workload-identity callback consulted when
// dialing NATS (SPEC_FULL.md §5, crates/host/src/workload_identity.rs).
// The default Supervisor carries none.
type SVIDSource interface {
	// JWTSVID returns a SPIFFE JWT-SVID to present as the NATS
	// connection's auth token.
	JWTSVID(ctx context.Context) (string, error)
}

// componentEntry is the runtime's live bookkeeping for one scaled
// component: its record, compiled module, and bounded instance pool.
type componentEntry struct {
	record   types.ComponentRecord
	compiled wazero.CompiledModule
	pool     *wasmrt.Pool
}

// Supervisor owns every other subsystem for the life of the host
// process and implements ctlplane.Host. Grounded on pkg/manager.Manager
// (NewManager's sequential component construction: store → fsm →
// secrets → CA → event broker → dns), generalized from Raft-backed
// cluster management to the single-host startup sequence spec.md
// §4.10 specifies.
type Supervisor struct {
	cfg      Config
	identity types.HostIdentity

	ctlConn *nats.Conn
	rpcConn *nats.Conn

	linkStore   store.Store
	configStore store.Store
	secretStore store.Store
	secrets     *security.SecretsManager

	links           *linkindex.Index
	stopLinkForward context.CancelFunc

	fetcher    *artifact.Fetcher
	engine     *wasmrt.Engine
	router     *wasmrt.CapabilityRouter
	dispatcher *wrpc.Dispatcher
	policy     *claims.PolicyGate
	providers  *provider.Supervisor
	publisher  *events.Publisher
	ctl        *ctlplane.Server

	svidSource SVIDSource

	mu         sync.RWMutex
	state      State
	components map[string]*componentEntry

	stopHeartbeat context.CancelFunc

	httpServer     *httpserver.Server
	stopHTTPServer context.CancelFunc
}

// New constructs a Supervisor in state "starting". Call Start to
// connect, open stores, and begin serving.
func New(cfg Config, identity types.HostIdentity, svidSource SVIDSource) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		identity:   identity,
		svidSource: svidSource,
		state:      StateStarting,
		components: make(map[string]*componentEntry),
	}
}

// Start runs spec.md §4.10's startup sequence: connect, open buckets,
// init subsystems, replay links/config, subscribe control topics,
// publish host_started.
func (s *Supervisor) Start(ctx context.Context) error {
	ctlConn, err := s.dialNATS(ctx, s.cfg.CtlURL(), s.cfg.CtlJWT, s.cfg.CtlSeed, s.cfg.CtlTLS)
	if err != nil {
		return errkind.Wrap(errkind.Fatal, "connect control NATS", err)
	}
	s.ctlConn = ctlConn

	rpcConn := ctlConn
	if s.cfg.RPCURL() != s.cfg.CtlURL() {
		rpcConn, err = s.dialNATS(ctx, s.cfg.RPCURL(), s.cfg.RPCJWT, s.cfg.RPCSeed, s.cfg.RPCTLS)
		if err != nil {
			return errkind.Wrap(errkind.Fatal, "connect RPC NATS", err)
		}
	}
	s.rpcConn = rpcConn

	js, err := jetstreamOf(rpcConn)
	if err != nil {
		return errkind.Wrap(errkind.Fatal, "open jetstream context", err)
	}
	s.linkStore, err = store.OpenJetStreamStore(ctx, js, bucketName(s.cfg.Lattice, "links"), 10)
	if err != nil {
		return errkind.Wrap(errkind.Fatal, "open links bucket", err)
	}
	s.configStore, err = store.OpenJetStreamStore(ctx, js, bucketName(s.cfg.Lattice, "config"), 10)
	if err != nil {
		return errkind.Wrap(errkind.Fatal, "open config bucket", err)
	}
	s.secretStore, err = store.OpenJetStreamStore(ctx, js, bucketName(s.cfg.Lattice, "secrets"), 1)
	if err != nil {
		return errkind.Wrap(errkind.Fatal, "open secrets bucket", err)
	}
	s.secrets, err = security.NewSecretsManager(security.DeriveKeyFromLattice(s.cfg.Lattice))
	if err != nil {
		return errkind.Wrap(errkind.Fatal, "init secrets manager", err)
	}

	s.links = linkindex.New(s.linkStore)
	if err := s.links.Start(ctx); err != nil {
		return errkind.Wrap(errkind.Fatal, "start link index", err)
	}

	cache, err := artifact.NewCache(s.cfg.CacheDir, s.identity.HostPublicKey)
	if err != nil {
		return errkind.Wrap(errkind.Fatal, "open artifact cache", err)
	}
	s.fetcher = artifact.NewFetcher(artifact.Options{
		AllowFileLoad: s.cfg.AllowFileLoad,
		AllowLatest:   s.cfg.AllowLatest,
	}, cache, nil, nil)

	s.engine, err = wasmrt.NewEngine(ctx, wasmrt.Config{
		MaxExecutionTime: s.cfg.MaxExecutionTime,
		MaxMemoryPages:   s.cfg.MaxMemoryPages,
	})
	if err != nil {
		return errkind.Wrap(errkind.Fatal, "start wasm engine", err)
	}

	s.dispatcher = wrpc.New(s.rpcConn, s.cfg.Lattice)
	s.router = wasmrt.NewCapabilityRouter(s.links, dispatcherInvoker{s.dispatcher})
	s.router.RegisterBuiltin("wasi:keyvalue", kvbuiltin.New(store.NewMemoryStore()))
	fsb, err := fsbuiltin.New(filepath.Join(s.cfg.CacheDir, "fsbuiltin"))
	if err != nil {
		return errkind.Wrap(errkind.Fatal, "start wasi:filesystem builtin", err)
	}
	s.router.RegisterBuiltin("wasi:filesystem", fsb)
	s.router.RegisterBuiltin("wasi:config", configbuiltin.New(s.configStore, s.secretStore, s.secrets, s.configNamesFor))
	s.policy = claims.NewPolicyGate(s.ctlConn, s.cfg.PolicyTopic, s.cfg.CtlTimeout)
	s.publisher = events.NewPublisher(s.ctlConn, s.cfg.Lattice, s.identity.HostPublicKey)
	s.providers = provider.New(s.rpcConn, s.publisher, s.identity.HostPublicKey, provider.Options{
		ShutdownDelay: s.cfg.ProviderShutdownDelay,
		HealthCheck:   provider.HealthCheckConfig{Interval: s.cfg.ProviderHealthInterval},
	})

	forwardCtx, cancelForward := context.WithCancel(context.Background())
	s.stopLinkForward = cancelForward
	go s.forwardLinks(forwardCtx)

	s.ctl = ctlplane.NewServer(s.ctlConn, s, s.cfg.Lattice, s.identity.HostPublicKey, s.cfg.CtlTopicPrefix, s.cfg.CtlTimeout)
	if err := s.ctl.Start(); err != nil {
		return errkind.Wrap(errkind.Fatal, "start control-plane server", err)
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	s.stopHeartbeat = cancel
	go events.Heartbeat(hbCtx, s.publisher, s.cfg.HeartbeatInterval, s.heartbeatSnapshot)

	if s.cfg.Features.BuiltinHTTPServer {
		router := httpserver.NewRouter(nil)
		if s.cfg.HTTPDefaultTarget != "" {
			router.UpdateRoutes([]httpserver.Route{{ComponentID: s.cfg.HTTPDefaultTarget}})
		}
		s.httpServer = httpserver.NewServer(s.cfg.HTTPAddr, router, s)
		httpCtx, httpCancel := context.WithCancel(context.Background())
		s.stopHTTPServer = httpCancel
		go func() {
			if err := s.httpServer.Start(httpCtx); err != nil {
				log.Logger.Error().Err(err).Msg("builtin http server exited")
			}
		}()
	}

	s.setState(StateRunning)
	_ = s.publisher.Publish(ctx, events.KindHostStarted, events.HostStartedData{
		HostID:  s.identity.HostPublicKey,
		Lattice: s.cfg.Lattice,
		Labels:  s.identity.Labels,
	})
	log.Info(fmt.Sprintf("host %s running in lattice %s", s.identity.HostPublicKey, s.cfg.Lattice))
	return nil
}

// Stop runs spec.md §4.10's shutdown sequence: drain, scale every
// component to 0, stop every provider, publish host_stopped, close NATS.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.setState(StateDraining)
	if s.stopHeartbeat != nil {
		s.stopHeartbeat()
	}
	if s.stopLinkForward != nil {
		s.stopLinkForward()
	}
	if s.stopHTTPServer != nil {
		s.stopHTTPServer()
	}
	if s.ctl != nil {
		s.ctl.Stop()
	}

	s.mu.Lock()
	reqs := make([]ctlplane.ScaleRequest, 0, len(s.components))
	for id, entry := range s.components {
		reqs = append(reqs, ctlplane.ScaleRequest{ComponentID: id, Artifact: entry.record.Artifact, MaxInstances: 0})
	}
	s.mu.Unlock()
	for _, req := range reqs {
		_ = s.Scale(ctx, req)
	}

	if s.providers != nil {
		for _, id := range s.providers.Running() {
			_ = s.providers.Stop(ctx, id)
		}
	}

	_ = s.publisher.Publish(ctx, events.KindHostStopped, events.HostStoppedData{HostID: s.identity.HostPublicKey})

	if s.rpcConn != nil && s.rpcConn != s.ctlConn {
		s.rpcConn.Close()
	}
	if s.ctlConn != nil {
		s.ctlConn.Close()
	}
	s.setState(StateStopped)
	return nil
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) dialNATS(ctx context.Context, url, jwtToken, seed string, tlsEnabled bool) (*nats.Conn, error) {
	opts := []nats.Option{nats.Name("wasmcloud-host")}
	if s.svidSource != nil {
		token, err := s.svidSource.JWTSVID(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch workload identity SVID: %w", err)
		}
		opts = append(opts, nats.Token(token))
	} else if jwtToken != "" && seed != "" {
		opts = append(opts, nats.UserJWTAndSeed(jwtToken, seed))
	}
	if tlsEnabled {
		opts = append(opts, nats.Secure())
	}
	return nats.Connect(url, opts...)
}

func bucketName(lattice, kind string) string {
	return fmt.Sprintf("wasmcloud_%s_%s", lattice, kind)
}

func jetstreamOf(nc *nats.Conn) (jetstream.JetStream, error) {
	return jetstream.New(nc)
}

// configNamesFor returns componentID's ConfigNames, the wasi:config
// builtin's merge order, or nil for an unknown or provider-side caller.
func (s *Supervisor) configNamesFor(componentID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.components[componentID]
	if !ok {
		return nil
	}
	return entry.record.ConfigNames
}

// forwardLinks consumes linkindex.Index's change feed and forwards
// every link that names a running provider as source or target to
// that provider's well-known linkdef subject (spec.md §4.6 step 4),
// running until ctx is canceled.
func (s *Supervisor) forwardLinks(ctx context.Context) {
	ch := s.links.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.forwardLinkEvent(ev)
		}
	}
}

func (s *Supervisor) forwardLinkEvent(ev linkindex.Event) {
	if s.providers == nil {
		return
	}
	ids := []string{ev.Link.SourceID}
	if ev.Link.TargetID != ev.Link.SourceID {
		ids = append(ids, ev.Link.TargetID)
	}
	for _, id := range ids {
		if id == "" || !s.providers.IsRunning(id) {
			continue
		}
		if err := s.providers.ForwardLink(id, ev.Link, ev.Deleted); err != nil {
			log.Logger.Warn().Err(err).Str("provider_id", id).Msg("forward link to provider failed")
		}
	}
}

func (s *Supervisor) heartbeatSnapshot() events.HeartbeatData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	components := make([]types.ComponentRecord, 0, len(s.components))
	for _, entry := range s.components {
		components = append(components, entry.record)
	}
	var providers []types.ProviderRecord
	if s.providers != nil {
		for _, id := range s.providers.Running() {
			providers = append(providers, types.ProviderRecord{ID: id, State: types.ProviderReady})
		}
	}

	return events.HeartbeatData{
		HostID:     s.identity.HostPublicKey,
		Lattice:    s.cfg.Lattice,
		Labels:     s.identity.Labels,
		Components: components,
		Providers:  providers,
		Version:    s.identity.Version,
		UptimeSecs: int64(time.Since(s.identity.StartedAt).Seconds()),
	}
}

// dispatcherInvoker adapts *wrpc.Dispatcher to wasmrt.LinkInvoker.
type dispatcherInvoker struct {
	d *wrpc.Dispatcher
}

func (i dispatcherInvoker) InvokeLinked(ctx context.Context, targetID, instance, operation string, payload []byte) ([]byte, error) {
	return i.d.Invoke(ctx, targetID, instance, operation, payload, 0)
}
