package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-flexcan-media/internal/can"
	"github.com/kstaniek/go-flexcan-media/internal/s32k"
)

type appConfig struct {
	backend         string
	controllers     int
	filters         string
	txController    int
	simLoopback     bool
	memDev          string
	memBase         string
	listenAddr      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	hubBuffer       int
	hubPolicy       string
	logMetricsEvery time.Duration
	maxClients      int
	clientReadTO    time.Duration
	slcanDev        string
	slcanBaud       int
	slcanReadTO     time.Duration
	mdnsEnable      bool
	mdnsName        string

	// Derived during validate.
	frameFilters []can.Filter
	memBaseAddr  int64
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	backend := flag.String("backend", "sim", "Register backend: sim|mmio")
	controllers := flag.Int("controllers", 1, "Number of CAN FD controllers to bring up (1..3)")
	filters := flag.String("filters", "0/0", "Acceptance filters as hex id/mask pairs, comma separated (0/0 accepts everything)")
	txController := flag.Int("tx-controller", 0, "Controller index used for transmitting client frames")
	simLoopback := flag.Bool("sim-loopback", false, "Loop transmitted frames back onto the simulated bus (sim backend only)")
	memDev := flag.String("mem-dev", "/dev/mem", "Memory device for the mmio backend")
	memBase := flag.String("mem-base", "40024000", "Physical base address (hex) of the register block for the mmio backend")
	listen := flag.String("listen", ":20000", "TCP listen address")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	hubBuf := flag.Int("hub-buffer", 512, "Per-client hub buffer (frames)")
	hubPolicy := flag.String("hub-policy", "drop", "Backpressure policy: drop|kick")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	maxClients := flag.Int("max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	clientReadTO := flag.Duration("client-read-timeout", 60*time.Second, "Per-connection read deadline")
	slcanDev := flag.String("slcan-dev", "", "Serial device for the slcan mirror/gateway; empty disables")
	slcanBaud := flag.Int("slcan-baud", 115200, "Baud rate for the slcan gateway")
	slcanReadTO := flag.Duration("slcan-read-timeout", 50*time.Millisecond, "Read timeout for the slcan gateway")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default canfd-server-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.backend = *backend
	cfg.controllers = *controllers
	cfg.filters = *filters
	cfg.txController = *txController
	cfg.simLoopback = *simLoopback
	cfg.memDev = *memDev
	cfg.memBase = *memBase
	cfg.listenAddr = *listen
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.hubBuffer = *hubBuf
	cfg.hubPolicy = *hubPolicy
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.maxClients = *maxClients
	cfg.clientReadTO = *clientReadTO
	cfg.slcanDev = *slcanDev
	cfg.slcanBaud = *slcanBaud
	cfg.slcanReadTO = *slcanReadTO
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// parseFilters decodes a comma separated list of hex id/mask pairs
// ("100/1FFFFF00,200/0") into acceptance filters.
func parseFilters(s string) ([]can.Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	filters := make([]can.Filter, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		idStr, maskStr, ok := strings.Cut(part, "/")
		if !ok {
			return nil, fmt.Errorf("filter %q: want id/mask", part)
		}
		id, err := strconv.ParseUint(idStr, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("filter %q: bad id: %w", part, err)
		}
		mask, err := strconv.ParseUint(maskStr, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("filter %q: bad mask: %w", part, err)
		}
		filters = append(filters, can.Filter{ID: uint32(id), Mask: uint32(mask)})
	}
	return filters, nil
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners, only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "sim", "mmio":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.controllers < 1 || c.controllers > s32k.MaxControllers {
		return fmt.Errorf("controllers must be 1..%d (got %d)", s32k.MaxControllers, c.controllers)
	}
	if c.txController < 0 || c.txController >= c.controllers {
		return fmt.Errorf("tx-controller must be 0..%d (got %d)", c.controllers-1, c.txController)
	}
	filters, err := parseFilters(c.filters)
	if err != nil {
		return err
	}
	if len(filters) > can.MaxFilters {
		return fmt.Errorf("too many filters: %d (max %d)", len(filters), can.MaxFilters)
	}
	c.frameFilters = filters
	if c.backend == "mmio" {
		base, err := strconv.ParseInt(strings.TrimPrefix(c.memBase, "0x"), 16, 64)
		if err != nil {
			return fmt.Errorf("invalid mem-base %q: %w", c.memBase, err)
		}
		c.memBaseAddr = base
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	if c.slcanDev != "" {
		if c.slcanBaud <= 0 {
			return fmt.Errorf("slcan-baud must be > 0 (got %d)", c.slcanBaud)
		}
		if c.slcanReadTO <= 0 {
			return fmt.Errorf("slcan-read-timeout must be > 0")
		}
	}
	return nil
}

// applyEnvOverrides maps CAN_FD_* environment variables to config fields
// unless a corresponding flag was explicitly set. Boolean & numeric parsing is lax:
// empty values ignored. Duration accepts Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	// Only apply if NOT in set (flag wins).
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["backend"]; !ok {
		if v, ok := get("CAN_FD_BACKEND"); ok && v != "" {
			c.backend = v
		}
	}
	if _, ok := set["controllers"]; !ok {
		if v, ok := get("CAN_FD_CONTROLLERS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.controllers = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CAN_FD_CONTROLLERS: %w", err)
			}
		}
	}
	if _, ok := set["filters"]; !ok {
		if v, ok := get("CAN_FD_FILTERS"); ok && v != "" {
			c.filters = v
		}
	}
	if _, ok := set["tx-controller"]; !ok {
		if v, ok := get("CAN_FD_TX_CONTROLLER"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.txController = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CAN_FD_TX_CONTROLLER: %w", err)
			}
		}
	}
	if _, ok := set["sim-loopback"]; !ok {
		if v, ok := get("CAN_FD_SIM_LOOPBACK"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.simLoopback = true
			case "0", "false", "no", "off":
				c.simLoopback = false
			}
		}
	}
	if _, ok := set["mem-dev"]; !ok {
		if v, ok := get("CAN_FD_MEM_DEV"); ok && v != "" {
			c.memDev = v
		}
	}
	if _, ok := set["mem-base"]; !ok {
		if v, ok := get("CAN_FD_MEM_BASE"); ok && v != "" {
			c.memBase = v
		}
	}
	if _, ok := set["listen"]; !ok {
		if v, ok := get("CAN_FD_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("CAN_FD_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("CAN_FD_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("CAN_FD_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["hub-buffer"]; !ok {
		if v, ok := get("CAN_FD_HUB_BUFFER"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.hubBuffer = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CAN_FD_HUB_BUFFER: %w", err)
			}
		}
	}
	if _, ok := set["hub-policy"]; !ok {
		if v, ok := get("CAN_FD_HUB_POLICY"); ok && v != "" {
			c.hubPolicy = v
		}
	}
	if _, ok := set["max-clients"]; !ok {
		if v, ok := get("CAN_FD_MAX_CLIENTS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.maxClients = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CAN_FD_MAX_CLIENTS: %w", err)
			}
		}
	}
	if _, ok := set["client-read-timeout"]; !ok {
		if v, ok := get("CAN_FD_CLIENT_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.clientReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CAN_FD_CLIENT_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["slcan-dev"]; !ok {
		if v, ok := get("CAN_FD_SLCAN_DEV"); ok {
			c.slcanDev = v
		}
	}
	if _, ok := set["slcan-baud"]; !ok {
		if v, ok := get("CAN_FD_SLCAN_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.slcanBaud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CAN_FD_SLCAN_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["slcan-read-timeout"]; !ok {
		if v, ok := get("CAN_FD_SLCAN_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.slcanReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CAN_FD_SLCAN_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("CAN_FD_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("CAN_FD_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("CAN_FD_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CAN_FD_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
