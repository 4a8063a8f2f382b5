//go:build linux

package main

import (
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-flexcan-media/internal/flexcan"
)

// openMappedBoard is a hook for tests (overridden in unit tests).
var openMappedBoard = flexcan.OpenMapped

func openMMIOBoard(cfg *appConfig, l *slog.Logger) (flexcan.Hardware, func(), error) {
	b, err := openMappedBoard(cfg.memDev, cfg.memBaseAddr, cfg.controllers)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open mmio: %w", err)
	}
	l.Info("mmio_board", "device", cfg.memDev, "base", fmt.Sprintf("%#x", cfg.memBaseAddr), "controllers", cfg.controllers)
	return b, func() { _ = b.Close() }, nil
}
