package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/kstaniek/go-flexcan-media/internal/flexcan"
	"github.com/kstaniek/go-flexcan-media/internal/metrics"
	"github.com/kstaniek/go-flexcan-media/internal/server"
	"github.com/kstaniek/go-flexcan-media/internal/wire"
)

// Helper implementations live in dedicated files: version.go, config.go, logger.go,
// hub_init.go, metrics_logger.go, backend.go, pump.go, slcan_gateway.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("canfd-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	h := initHub(cfg, l)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	board, boardCleanup, berr := initBoard(cfg, l)
	if berr != nil {
		l.Error("board_init_error", "error", berr)
		return
	}
	g, err := flexcan.New(board, cfg.controllers, flexcan.WithLogger(l))
	if err != nil {
		l.Error("can_init_error", "error", err)
		boardCleanup()
		return
	}
	if err := g.Start(cfg.frameFilters); err != nil {
		l.Error("can_start_error", "error", err)
		boardCleanup()
		return
	}
	l.Info("can_started", "controllers", g.InterfaceCount(), "filters", len(cfg.frameFilters))

	p := newPump(g, h, cfg.txController, l)
	slcanCleanup := func() {}
	if cfg.slcanDev != "" {
		mirror, cl, serr := initSlcan(ctx, cfg, p, l, &wg)
		if serr != nil {
			l.Error("slcan_init_error", "error", serr)
			boardCleanup()
			return
		}
		p.mirror = mirror
		slcanCleanup = cl
	}
	wg.Add(1)
	go p.run(ctx, &wg)

	srv := server.NewServer(
		server.WithHub(h),
		server.WithCodec(&wire.Codec{}),
		server.WithSend(p.SendFrame),
		server.WithLogger(l),
		server.WithMaxClients(cfg.maxClients),
		server.WithReadDeadline(cfg.clientReadTO),
	)
	srv.SetListenAddr(cfg.listenAddr)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("tcp_server_error", "error", err)
			cancel()
		}
	}()

	// Start mDNS advertisement once listener is ready.
	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		// Extract port from bound address (host:port or :port)
		addr := srv.Addr()
		var portNum int
		if _, p, err := net.SplitHostPort(addr); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				portNum = pn
			}
		}
		if portNum == 0 { // fallback attempt if format unexpected
			lastColon := strings.LastIndex(addr, ":")
			if lastColon >= 0 {
				if pn, perr := strconv.Atoi(addr[lastColon+1:]); perr == nil {
					portNum = pn
				}
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	// Ready when server listener is bound and context not cancelled.
	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for {
		s := <-sigCh
		if s == syscall.SIGHUP {
			// SIGHUP re-reads CAN_FD_FILTERS and swaps the acceptance filters.
			filters, perr := parseFilters(os.Getenv("CAN_FD_FILTERS"))
			if perr != nil {
				l.Warn("filter_reload_error", "error", perr)
				continue
			}
			if !p.Reconfigure(filters) {
				l.Warn("filter_reload_busy")
			}
			continue
		}
		l.Info("shutdown_signal", "signal", s.String())
		break
	}
	cancel()
	slcanCleanup()
	wg.Wait()
	boardCleanup()
}
