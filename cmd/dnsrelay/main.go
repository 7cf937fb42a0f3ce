package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/raven-go"
	"golang.org/x/sync/errgroup"

	"dnsrelay/internal/log"
	"dnsrelay/internal/meta"
	"dnsrelay/internal/metrics"
	"dnsrelay/internal/network"
	"dnsrelay/internal/policy"
	"dnsrelay/internal/protocol"
)

// shutdownGracePeriod bounds how long in-flight queries may take to drain after a signal.
const shutdownGracePeriod = 10 * time.Second

func main() {
	configPath := flag.String(
		"config",
		os.Getenv("DNSRELAY_CONFIG"),
		"path to the configuration file on disk; built-in defaults are used if empty",
	)
	version := flag.Bool(
		"version",
		false,
		"print the compiled dnsrelay version SHA",
	)
	verbosity := flag.String(
		"verbosity",
		"info",
		"desired logging verbosity: one of error, warn, info, debug",
	)
	flag.Parse()

	// Report the compiled version and exit
	if *version {
		fmt.Printf("dnsrelay/%s\n", meta.VersionSHA)
		return
	}

	// Logging configuration; default to log.Info verbosity so that each query is traced
	level, ok := log.ParseLevel(*verbosity)
	if !ok {
		level = log.Info
	}

	logger := log.NewConsoleLogger(level)
	logger.Debug("main: initialized logger: level=%v", level)

	if err := run(*configPath, logger); err != nil {
		logger.Error("main: %v", err)
		os.Exit(1)
	}
}

// run wires every component from configuration and serves queries until the process is signalled.
func run(configPath string, logger log.Logger) error {
	// Parse application configuration
	logger.Debug("main: reading and parsing config: path=%s", configPath)
	config, err := meta.ParseConfig(configPath)
	if err != nil {
		return err
	}

	// Configure error reporting
	if config.Application != nil && config.Application.SentryDSN != "" {
		raven.SetDSN(config.Application.SentryDSN)
		raven.SetRelease(meta.VersionSHA)
	}

	// Configure metrics reporting
	upstreamCxLifecycleHook := metrics.NewNoopConnectionLifecycleHook()
	clientCxIOHook := metrics.NewNoopConnectionIOHook()
	upstreamCxIOHook := metrics.NewNoopConnectionIOHook()

	var proxyHooks metrics.MultiProxyHook

	if config.Metrics != nil && config.Metrics.Statsd != nil {
		addr := config.Metrics.Statsd.Address
		sampleRate := float32(config.Metrics.Statsd.SampleRate)

		logger.Info("main: configuring statsd metrics reporting: addr=%s sample_rate=%f", addr, sampleRate)

		if upstreamCxLifecycleHook, err = metrics.NewAsyncStatsdConnectionLifecycleHook(
			"upstream",
			addr,
			sampleRate,
			meta.VersionSHA,
		); err != nil {
			return err
		}

		if clientCxIOHook, err = metrics.NewAsyncStatsdConnectionIOHook(
			"client",
			addr,
			sampleRate,
			meta.VersionSHA,
		); err != nil {
			return err
		}

		if upstreamCxIOHook, err = metrics.NewAsyncStatsdConnectionIOHook(
			"upstream",
			addr,
			sampleRate,
			meta.VersionSHA,
		); err != nil {
			return err
		}

		statsdProxyHook, err := metrics.NewAsyncStatsdProxyHook(addr, sampleRate, meta.VersionSHA)
		if err != nil {
			return err
		}

		proxyHooks = append(proxyHooks, statsdProxyHook)
	}

	var prometheusHook *metrics.PrometheusProxyHook

	if config.Metrics != nil && config.Metrics.Prometheus != nil {
		logger.Info("main: exposing prometheus metrics: addr=%s", config.Metrics.Prometheus.Address)

		prometheusHook = metrics.NewPrometheusProxyHook()
		proxyHooks = append(proxyHooks, prometheusHook)
	}

	var proxyHook metrics.ProxyHook

	switch len(proxyHooks) {
	case 0:
		logger.Warn("main: no metrics output engine specified; disabling metrics")
		proxyHook = metrics.NewNoopProxyHook()
	case 1:
		proxyHook = proxyHooks[0]
	default:
		proxyHook = proxyHooks
	}

	// Configure the block policy
	rules := policy.Rules{
		Exact:    config.Policy.Block,
		Suffixes: config.Policy.BlockSuffixes,
		Patterns: config.Policy.BlockPatterns,
	}

	if config.Policy.BlocklistFile != "" {
		names, err := policy.LoadBlocklistFile(config.Policy.BlocklistFile)
		if err != nil {
			return err
		}

		logger.Info("main: loaded blocklist: path=%s names=%d", config.Policy.BlocklistFile, len(names))
		rules.Exact = append(rules.Exact, names...)
	}

	filter, err := policy.NewFilter(rules, config.Verdict())
	if err != nil {
		return err
	}

	logger.Info("main: configured block policy: policy=%v", filter)

	// Configure the upstream
	client, err := network.NewUDPClient(
		config.Upstream.Address,
		upstreamCxLifecycleHook,
		upstreamCxIOHook,
		network.UDPClientOpts{
			Timeout:         config.Upstream.Timeout,
			MaxResponseSize: config.Upstream.MaxResponseSize,
		},
	)
	if err != nil {
		return err
	}

	logger.Info("main: relaying queries to upstream: upstream=%v timeout=%v", client, config.Upstream.Timeout)

	// Configure the server listener
	h := &protocol.DNSProxyHandler{
		Upstream:       client,
		Policy:         filter,
		ClientCxIOHook: clientCxIOHook,
		ProxyHook:      proxyHook,
		Logger:         logger,
	}

	udpServer := network.NewUDPServer(config.Listener.UDP.Address, network.UDPServerOpts{
		MaxConcurrentQueries: config.Listener.UDP.MaxConcurrentQueries,
		WriteTimeout:         config.Listener.UDP.WriteTimeout,
	})

	// Failing to acquire the listening socket aborts startup
	if err := udpServer.Listen(); err != nil {
		return err
	}

	logger.Info(
		"main: serving queries: addr=%s max_concurrent_queries=%d",
		udpServer.Addr(),
		config.Listener.UDP.MaxConcurrentQueries,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return udpServer.Serve(context.Background(), h)
	})

	if prometheusHook != nil {
		group.Go(func() error {
			return metrics.ServePrometheus(groupCtx, config.Metrics.Prometheus.Address, prometheusHook)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()

		logger.Info("main: shutting down; draining in-flight queries: grace_period=%v", shutdownGracePeriod)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()

		return udpServer.Shutdown(shutdownCtx)
	})

	err = group.Wait()

	stats := client.Stats()
	logger.Info(
		"main: relay stopped: successful_exchanges=%d failed_exchanges=%d",
		stats.SuccessfulExchanges,
		stats.FailedExchanges,
	)

	return err
}
