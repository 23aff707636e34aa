// Command wasmcloud runs a single host supervisor process: a long-lived
// daemon with no subcommands, matching spec.md §6's flat CLI surface,
// grounded on cmd/warren's "cluster init"/"worker start" shape (connect
// subsystems, print a short startup banner, block on SIGINT/SIGTERM,
// shut down cleanly) without warren's cluster-management subcommand
// tree, since a wasmCloud host has nothing else to manage locally: all
// placement and inspection happens over the control plane via
// internal/ctlclient instead.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wasmcloud/wasmcloud-host/internal/host"
	"github.com/wasmcloud/wasmcloud-host/internal/log"
	"github.com/wasmcloud/wasmcloud-host/internal/security"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

// Version information (set via ldflags during build).
var (
	Version = "dev"
	Commit  = "unknown"
)

// Exit codes per spec.md §6.
const (
	exitClean         = 0
	exitFatalStartup  = 1
	exitMisconfigured = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := host.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:          "wasmcloud",
		Short:        "wasmCloud lattice host",
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context(), &cfg)
		},
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf("wasmcloud %s (%s)\n", Version, Commit))

	host.BindFlags(rootCmd, &cfg)

	rootCmd.PreRunE = wrapPreRunE(rootCmd.PreRunE, func(cmd *cobra.Command, args []string) error {
		if err := host.ApplyEnvOverrides(cmd); err != nil {
			return misconfigured{err}
		}
		if err := cfg.Validate(); err != nil {
			return misconfigured{err}
		}
		return nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var m misconfigured
		if asMisconfigured(err, &m) {
			fmt.Fprintln(os.Stderr, "misconfiguration:", m.err)
			return exitMisconfigured
		}
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return exitFatalStartup
	}
	return exitClean
}

// misconfigured distinguishes a flag/env validation failure (exit 2)
// from a startup failure after the supervisor began connecting (exit 1).
type misconfigured struct{ err error }

func (m misconfigured) Error() string { return m.err.Error() }
func (m misconfigured) Unwrap() error { return m.err }

func asMisconfigured(err error, target *misconfigured) bool {
	for err != nil {
		if m, ok := err.(misconfigured); ok {
			*target = m
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func wrapPreRunE(existing, next func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if existing != nil {
			if err := existing(cmd, args); err != nil {
				return err
			}
		}
		return next(cmd, args)
	}
}

func runHost(ctx context.Context, cfg *host.Config) error {
	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: true})

	identity, err := buildIdentity(*cfg)
	if err != nil {
		return misconfigured{err}
	}

	sup := host.New(*cfg, identity, nil)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := sup.Start(startCtx); err != nil {
		return fmt.Errorf("start host: %w", err)
	}

	log.Logger.Info().
		Str("host_id", identity.HostPublicKey).
		Str("lattice", identity.Lattice).
		Msg("wasmcloud host running, press ctrl-c to stop")

	<-ctx.Done()

	log.Logger.Info().Msg("shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := sup.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop host: %w", err)
	}
	return nil
}

// buildIdentity derives the host's nkeys identity from --host-seed/
// --cluster-seed, generating a fresh ephemeral pair of each when both
// flags are empty (Config.Validate already rejects one-without-the-other).
func buildIdentity(cfg host.Config) (types.HostIdentity, error) {
	var hostKP, clusterKP *security.KeyPair
	var err error

	if cfg.HostSeed != "" {
		hostKP, err = security.KeyPairFromSeed(cfg.HostSeed)
		if err != nil {
			return types.HostIdentity{}, fmt.Errorf("--host-seed: %w", err)
		}
		clusterKP, err = security.KeyPairFromSeed(cfg.ClusterSeed)
		if err != nil {
			return types.HostIdentity{}, fmt.Errorf("--cluster-seed: %w", err)
		}
	} else {
		hostKP, err = security.NewHostKeyPair()
		if err != nil {
			return types.HostIdentity{}, fmt.Errorf("generate host identity: %w", err)
		}
		clusterKP, err = security.NewClusterKeyPair()
		if err != nil {
			return types.HostIdentity{}, fmt.Errorf("generate cluster identity: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	return types.HostIdentity{
		HostPublicKey:    hostKP.Public,
		ClusterPublicKey: clusterKP.Public,
		Lattice:          cfg.Lattice,
		FriendlyName:     hostname,
		Labels:           cfg.Labels,
		StartedAt:        time.Now(),
		Version:          Version,
	}, nil
}
