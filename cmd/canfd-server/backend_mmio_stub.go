//go:build !linux

package main

import (
	"errors"
	"log/slog"

	"github.com/kstaniek/go-flexcan-media/internal/flexcan"
)

func openMMIOBoard(_ *appConfig, _ *slog.Logger) (flexcan.Hardware, func(), error) {
	return nil, func() {}, errors.New("mmio backend requires linux")
}
