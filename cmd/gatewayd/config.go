package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ramses-rf/ramses-rf/internal/fsm"
)

const (
	defaultMetricsAddr = ":2112"
	defaultDialTimeout = 10 * time.Second

	// defaultDiscoveryCode is 2309, zone temperature: the most commonly
	// polled state in a RAMSES-II system.
	defaultDiscoveryCode     = "2309"
	defaultDiscoveryDeviceID = "01:078710"
	defaultDiscoveryInterval = 3 * time.Minute
)

// Config holds gatewayd's application configuration.
type Config struct {
	ShowVersion bool
	Verbose     bool
	MetricsAddr string

	// TransportAddr is a host:port this binary dials to reach the serial
	// gateway, via a TCP bridge standing in for a real device node.
	TransportAddr string
	LocalDeviceID string

	EchoTimeout  time.Duration
	ReplyTimeout time.Duration
	BufferSize   int

	// DiscoveryCode/DiscoveryDeviceID/DiscoveryInterval describe the one
	// periodic discovery task registered at startup.
	DiscoveryCode     string
	DiscoveryDeviceID string
	DiscoveryInterval time.Duration
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func loadConfig() (Config, error) {
	var cfg Config

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", defaultMetricsAddr), "address for prometheus metrics (env: METRICS_ADDR)")
	flag.StringVar(&cfg.TransportAddr, "transport-addr", getenv("TRANSPORT_ADDR", "localhost:8910"), "host:port of the serial gateway bridge (env: TRANSPORT_ADDR)")
	flag.StringVar(&cfg.LocalDeviceID, "local-device-id", getenv("LOCAL_DEVICE_ID", ""), "local gateway interface device id, e.g. 18:111111 (env: LOCAL_DEVICE_ID)")
	flag.DurationVar(&cfg.EchoTimeout, "echo-timeout", fsm.DefaultEchoTimeout, "echo correlation timeout")
	flag.DurationVar(&cfg.ReplyTimeout, "reply-timeout", fsm.DefaultReplyTimeout, "reply correlation timeout")
	flag.IntVar(&cfg.BufferSize, "buffer-size", fsm.DefaultBufferSize, "send queue capacity")
	flag.StringVar(&cfg.DiscoveryCode, "discovery-code", getenv("DISCOVERY_CODE", defaultDiscoveryCode), "message code the discovery scheduler keeps fresh (env: DISCOVERY_CODE)")
	flag.StringVar(&cfg.DiscoveryDeviceID, "discovery-device-id", getenv("DISCOVERY_DEVICE_ID", defaultDiscoveryDeviceID), "device id the discovery scheduler polls (env: DISCOVERY_DEVICE_ID)")
	flag.DurationVar(&cfg.DiscoveryInterval, "discovery-interval", defaultDiscoveryInterval, "how often the discovery scheduler refreshes its state")

	flag.Parse()

	if cfg.ShowVersion {
		return cfg, nil
	}
	if cfg.TransportAddr == "" {
		return Config{}, fmt.Errorf("transport-addr is required")
	}
	return cfg, nil
}
