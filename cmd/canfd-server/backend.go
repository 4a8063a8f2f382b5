package main

import (
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-flexcan-media/internal/flexcan"
	"github.com/kstaniek/go-flexcan-media/internal/sim"
)

// initBoard opens the register window for the selected backend and returns
// the hardware handle plus a cleanup function. It returns an error instead
// of exiting the process to allow graceful handling by the caller.
func initBoard(cfg *appConfig, l *slog.Logger) (flexcan.Hardware, func(), error) {
	switch cfg.backend {
	case "sim":
		var opts []sim.Option
		if cfg.simLoopback {
			opts = append(opts, sim.WithLoopback())
		}
		b, err := sim.New(cfg.controllers, opts...)
		if err != nil {
			return nil, func() {}, fmt.Errorf("sim board: %w", err)
		}
		l.Info("sim_board", "controllers", cfg.controllers, "loopback", cfg.simLoopback)
		return b, b.Close, nil
	case "mmio":
		return openMMIOBoard(cfg, l)
	default:
		return nil, func() {}, fmt.Errorf("unknown backend %q (use sim|mmio)", cfg.backend)
	}
}
