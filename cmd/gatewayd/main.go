// Command gatewayd wires the RAMSES-II protocol engine to a stub serial
// transport and serves Prometheus metrics, so the engine can be exercised
// end to end. The byte-level frame codec and the real serial device are out
// of scope for the engine itself (see internal/fsm's Transport doc); this
// binary depends on internal/transportstub only for that purpose.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ramses-rf/ramses-rf/internal/discovery"
	"github.com/ramses-rf/ramses-rf/internal/fsm"
	"github.com/ramses-rf/ramses-rf/internal/msgindex"
	"github.com/ramses-rf/ramses-rf/internal/protocol"
	"github.com/ramses-rf/ramses-rf/internal/transportstub"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var metricsErrCh <-chan error
	if cfg.MetricsAddr != "" {
		metricsErrCh = startMetricsServer(ctx, log, cfg.MetricsAddr)
	}

	index, err := msgindex.New(ctx, msgindex.Config{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to open message index: %w", err)
	}
	defer index.Close()

	engine, err := fsm.New(fsm.Config{
		Logger:        log,
		EchoTimeout:   cfg.EchoTimeout,
		ReplyTimeout:  cfg.ReplyTimeout,
		BufferSize:    cfg.BufferSize,
		LocalDeviceID: cfg.LocalDeviceID,
	})
	if err != nil {
		return fmt.Errorf("failed to construct protocol engine: %w", err)
	}

	scheduler, err := discovery.New(discovery.Config{
		Logger: log,
		FSM:    engine,
		Index:  index,
	})
	if err != nil {
		return fmt.Errorf("failed to construct discovery scheduler: %w", err)
	}
	if err := registerDiscoveryTasks(scheduler, cfg); err != nil {
		return fmt.Errorf("failed to register discovery tasks: %w", err)
	}

	sink := newIndexingSink(ctx, engine, index, log)

	errCh := make(chan error, 4)
	go func() { errCh <- engine.Run(ctx) }()
	go func() { errCh <- scheduler.Run(ctx) }()
	go runTransportLoop(ctx, log, cfg, engine, sink)
	go logIndexStats(ctx, log, index)

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("component stopped with error: %w", err)
			}
		case err, ok := <-metricsErrCh:
			if ok && err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			metricsErrCh = nil
		case <-ctx.Done():
			return nil
		}
	}
}

// runTransportLoop dials the transport and reconnects (with backoff) until
// ctx is done or one dialWithRetry call exhausts its attempts, at which
// point it logs and returns. Each successful connection is wired into engine
// and every inbound packet is fed to sink (engine correlation plus indexing).
func runTransportLoop(ctx context.Context, log *slog.Logger, cfg Config, engine *fsm.Context, sink *indexingSink) {
	for ctx.Err() == nil {
		conn, err := dialWithRetry(ctx, log, cfg.TransportAddr)
		if err != nil {
			log.Error("giving up on transport connect", "error", err)
			return
		}

		transport := transportstub.New(conn, log)
		engine.ConnectionMade(transport)
		log.Info("transport connected", "addr", cfg.TransportAddr)

		transport.Run(ctx, sink)
		log.Warn("transport disconnected", "addr", cfg.TransportAddr)
	}
}

// registerDiscoveryTasks registers the periodic discovery commands the
// scheduler keeps fresh. Only one task is wired up today (zone temperature),
// but AddTask is built to take any number of them.
func registerDiscoveryTasks(scheduler *discovery.Scheduler, cfg Config) error {
	src := cfg.LocalDeviceID
	if src == "" {
		src = protocol.HGIDeviceID
	}

	cmd := protocol.NewCommand(
		time.Now(),
		protocol.Header(cfg.DiscoveryCode, protocol.VerbRequest, cfg.DiscoveryDeviceID, ""),
		protocol.Header(cfg.DiscoveryCode, protocol.VerbReply, cfg.DiscoveryDeviceID, ""),
		src, cfg.DiscoveryDeviceID, cfg.DiscoveryCode, protocol.VerbRequest, nil,
	)
	qos := protocol.QosParams{
		Timeout:      cfg.ReplyTimeout + cfg.EchoTimeout,
		MaxRetries:   2,
		WaitForReply: true,
	}
	return scheduler.AddTask(cmd, protocol.DEFAULT, cfg.DiscoveryInterval, 0, 0, qos)
}

func logIndexStats(ctx context.Context, log *slog.Logger, index *msgindex.Index) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rows, codes, err := index.Stats(ctx)
			if err != nil {
				log.Error("failed to read message index stats", "error", err)
				continue
			}
			log.Debug("message index stats", "rows", rows, "distinct_codes", codes)
		}
	}
}
