package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/events"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

// Options tunes supervisor timing, per spec.md §6.
type Options struct {
	StartTimeout    time.Duration
	ShutdownDelay   time.Duration // grace period before SIGTERM
	ShutdownTimeout time.Duration // grace period before SIGKILL
	HealthCheck     HealthCheckConfig
}

func (o Options) withDefaults() Options {
	if o.StartTimeout <= 0 {
		o.StartTimeout = 5 * time.Second
	}
	if o.ShutdownDelay <= 0 {
		o.ShutdownDelay = 300 * time.Millisecond
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	o.HealthCheck = o.HealthCheck.withDefaults()
	return o
}

// process tracks one running provider child.
type process struct {
	record types.ProviderRecord
	cmd    *exec.Cmd
	done   chan struct{}
}

// Supervisor spawns and manages capability provider child processes,
// enforcing one running process per provider id (spec.md §4.6).
//
// Grounded on pkg/worker/worker.go's executeContainer/stopContainer
// pair: pull/prepare → start → monitor loop, and stop via
// SIGTERM-then-delete, generalized here from a containerd container
// lifecycle to a bare child process lifecycle since providers are
// plain binaries, not OCI images.
type Supervisor struct {
	opts   Options
	nc     *nats.Conn
	events *events.Publisher
	hostID string

	mu        sync.Mutex
	processes map[string]*process
}

// New builds a Supervisor bound to nc, used to probe each provider's
// health subject after spawn and, when publisher is non-nil, to report
// periodic health_check_passed/health_check_failed transitions on it.
func New(nc *nats.Conn, publisher *events.Publisher, hostID string, opts Options) *Supervisor {
	return &Supervisor{opts: opts.withDefaults(), nc: nc, events: publisher, hostID: hostID, processes: make(map[string]*process)}
}

// Start spawns binaryPath for the given provider record, delivers
// hostData on stdin, and blocks until the provider reports ready on
// its health subject or StartTimeout elapses.
func (s *Supervisor) Start(ctx context.Context, record types.ProviderRecord, binaryPath string, hostData HostData) error {
	s.mu.Lock()
	if _, exists := s.processes[record.ID]; exists {
		s.mu.Unlock()
		return errkind.New(errkind.Validation, fmt.Sprintf("provider %s is already running", record.ID))
	}
	s.mu.Unlock()

	payload, err := hostData.Marshal()
	if err != nil {
		return err
	}

	// The child's lifetime is independent of ctx, which only bounds
	// this Start call: a provider must keep running after the
	// control-plane request that started it has been replied to.
	cmd := exec.Command(binaryPath)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return errkind.Wrap(errkind.Transient, fmt.Sprintf("spawn provider %s", record.ID), err)
	}

	p := &process{record: record, cmd: cmd, done: make(chan struct{})}
	s.mu.Lock()
	s.processes[record.ID] = p
	s.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		close(p.done)
		s.mu.Lock()
		delete(s.processes, record.ID)
		s.mu.Unlock()
	}()

	if err := s.waitForReady(ctx, record.ID); err != nil {
		_ = s.Stop(context.Background(), record.ID)
		return err
	}

	if s.events != nil {
		go s.monitorHealth(record.ID, p.done)
	}
	return nil
}

// waitForReady blocks until the provider's health subject answers or
// StartTimeout elapses.
func (s *Supervisor) waitForReady(ctx context.Context, providerID string) error {
	deadline := time.Now().Add(s.opts.StartTimeout)
	subject := HealthSubject(providerID)

	for time.Now().Before(deadline) {
		reqCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		_, err := s.nc.RequestWithContext(reqCtx, subject, nil)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errkind.Wrap(errkind.Transient, "provider start canceled", ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
	return errkind.New(errkind.Transient, fmt.Sprintf("provider %s did not become healthy within %s", providerID, s.opts.StartTimeout))
}

// HealthSubject is the NATS subject a provider answers to report
// readiness, per spec.md §4.6.
func HealthSubject(providerID string) string {
	return fmt.Sprintf("wasmbus.health.%s", providerID)
}

// LinkPutSubject and LinkDelSubject are a provider's well-known
// subjects for link forwarding (spec.md §4.6 step 4, §6's
// "linkdef.put"/"linkdef.del" verbs).
func LinkPutSubject(providerID string) string {
	return fmt.Sprintf("wasmbus.linkdef.%s.put", providerID)
}

func LinkDelSubject(providerID string) string {
	return fmt.Sprintf("wasmbus.linkdef.%s.del", providerID)
}

// ForwardLink publishes link to providerID's well-known linkdef
// subject, put or del depending on deleted. It is a best-effort
// notification: the provider is also free to read the links bucket
// directly, so a missed publish here is not a correctness gap, only a
// slower pickup.
func (s *Supervisor) ForwardLink(providerID string, link types.Link, deleted bool) error {
	data, err := json.Marshal(link)
	if err != nil {
		return errkind.Wrap(errkind.Validation, "encode link for forwarding", err)
	}
	subject := LinkPutSubject(providerID)
	if deleted {
		subject = LinkDelSubject(providerID)
	}
	if err := s.nc.Publish(subject, data); err != nil {
		return errkind.Wrap(errkind.Transient, fmt.Sprintf("forward link to %s", subject), err)
	}
	return nil
}

// Stop escalates shutdown of providerID: it waits ShutdownDelay, sends
// SIGTERM, then SIGKILL if the process has not exited within
// ShutdownTimeout. No shutdown message is published to the provider.
func (s *Supervisor) Stop(ctx context.Context, providerID string) error {
	s.mu.Lock()
	p, ok := s.processes[providerID]
	s.mu.Unlock()
	if !ok {
		return nil // already stopped
	}

	time.Sleep(s.opts.ShutdownDelay)

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(s.opts.ShutdownTimeout):
	case <-ctx.Done():
	}

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.done
	return nil
}

// IsRunning reports whether providerID has a live child process.
func (s *Supervisor) IsRunning(providerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processes[providerID]
	return ok
}

// Running lists the ids of all currently running providers.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.processes))
	for id := range s.processes {
		ids = append(ids, id)
	}
	return ids
}
