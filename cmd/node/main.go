package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chordring/internal/bootstrap"
	"chordring/internal/chordid"
	"chordring/internal/chordnode"
	"chordring/internal/config"
	"chordring/internal/logger"
	zapfactory "chordring/internal/logger/zap"
	"chordring/internal/telemetry"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	addressingMode := flag.String("addressing", "private", "interface selection mode when node.host is unset: private or public")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}
	cfg.LogConfig(lgr)

	// Bind once to learn the address this node will advertise to peers,
	// then release it: chordnode.Run binds its own listener on the same
	// address. The gap between the two binds is the cost of letting
	// config decide addressing (interface selection, :0 port discovery)
	// independently of the wire-protocol listener.
	probe, err := cfg.Node.Listen(*addressingMode)
	if err != nil {
		lgr.Error("failed to determine listen address", logger.F("err", err))
		os.Exit(1)
	}
	addr := probe.Addr().String()
	_ = probe.Close()
	lgr.Debug("resolved listen address", logger.F("addr", addr))

	space, err := chordid.NewSpace(cfg.DHT.Routing.IDBits)
	if err != nil {
		lgr.Error("failed to initialize identifier space", logger.F("err", err))
		os.Exit(1)
	}

	params := chordnode.Params{
		Space:              space,
		RouteFallbackK:     cfg.DHT.Routing.RouteFallback,
		StabilizeInterval:  cfg.DHT.Timing.StabilizeInterval,
		FixFingersInterval: cfg.DHT.Timing.FixFingersInterval,
		JoinTimeout:        cfg.DHT.Timing.JoinTimeout,
		RequestTimeout:     cfg.DHT.Timing.RequestTimeout,
		MaxPendingPerConn:  cfg.DHT.Timing.MaxPendingPerConn,
	}

	n, err := chordnode.New(addr, params, chordnode.WithLogger(lgr.Named("chordnode")))
	if err != nil {
		lgr.Error("failed to construct node", logger.F("err", err))
		os.Exit(1)
	}
	lgr = lgr.With(logger.FHash("hash", n.Hash()), logger.F("addr", n.ListenAddr()))
	lgr.Info("node identity established")

	shutdownTracer := telemetry.InitTracer(cfg.Telemetry, "chordring-node", n.Hash())
	defer func() { _ = shutdownTracer(context.Background()) }()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Run(runCtx); err != nil {
		lgr.Error("failed to start node", logger.F("err", err))
		os.Exit(1)
	}

	disc, err := discoveryBackend(cfg.DHT.Bootstrap)
	if err != nil {
		lgr.Error("failed to initialize bootstrap discovery", logger.F("err", err))
		shutdown(n, lgr)
		os.Exit(1)
	}

	if disc != nil {
		discoverCtx, cancel := context.WithTimeout(runCtx, cfg.DHT.Timing.JoinTimeout)
		peers, err := disc.Discover(discoverCtx)
		cancel()
		if err != nil {
			lgr.Error("failed to resolve bootstrap peers", logger.F("err", err))
			shutdown(n, lgr)
			os.Exit(1)
		}
		lgr.Info("resolved bootstrap peers", logger.F("peers", peers))

		joined := false
		for _, peerAddr := range peers {
			if peerAddr == n.ListenAddr() {
				continue
			}
			joinCtx, cancel := context.WithTimeout(runCtx, cfg.DHT.Timing.JoinTimeout)
			err := n.Join(joinCtx, peerAddr)
			cancel()
			if err == nil {
				joined = true
				lgr.Info("joined ring", logger.F("entry", peerAddr))
				break
			}
			lgr.Warn("join attempt failed, trying next peer", logger.F("peer", peerAddr), logger.F("err", err))
		}
		if !joined && len(peers) > 0 {
			lgr.Error("exhausted bootstrap peers without joining")
			shutdown(n, lgr)
			os.Exit(1)
		}
		if !joined {
			lgr.Info("no bootstrap peers found, starting a new ring")
		}
	} else {
		lgr.Info("bootstrap mode=init, starting a new ring")
	}

	reg := cfg.DHT.Bootstrap.Register
	var registrar bootstrap.Bootstrap
	if reg.Enabled {
		registrar, err = bootstrap.NewRoute53Bootstrap(config.Route53Config{
			HostedZoneID: reg.HostedZoneID,
			DomainSuffix: reg.DomainSuffix,
			TTL:          reg.TTL,
		})
		if err != nil {
			lgr.Error("failed to initialize registration backend", logger.F("err", err))
		} else {
			self := bootstrap.SelfInfo{Hash: n.Hash(), Addr: n.ListenAddr()}
			registerCtx, cancel := context.WithTimeout(runCtx, cfg.DHT.Timing.JoinTimeout)
			err := registrar.Register(registerCtx, self)
			cancel()
			if err != nil {
				lgr.Error("failed to register node", logger.F("err", err))
			} else {
				lgr.Info("node registered for discovery")
			}
		}
	}

	<-runCtx.Done()
	lgr.Info("shutdown signal received, stopping gracefully")

	if registrar != nil {
		self := bootstrap.SelfInfo{Hash: n.Hash(), Addr: n.ListenAddr()}
		deregisterCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := registrar.Deregister(deregisterCtx, self); err != nil {
			lgr.Warn("failed to deregister node", logger.F("err", err))
		}
		cancel()
	}

	shutdown(n, lgr)
}

// discoveryBackend builds the Bootstrap implementation cfg.Mode names,
// or nil for mode=init (first node of a new ring, nothing to discover).
func discoveryBackend(cfg config.BootstrapConfig) (bootstrap.Bootstrap, error) {
	switch cfg.Mode {
	case "static":
		return bootstrap.NewStaticBootstrap(cfg.Peers), nil
	case "dns":
		return bootstrap.NewDNSBootstrap(cfg)
	case "docker":
		return bootstrap.NewDockerBootstrap(cfg.Docker)
	case "init":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported bootstrap mode: %s", cfg.Mode)
	}
}

func shutdown(n *chordnode.LocalNode, lgr logger.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Shutdown(shutdownCtx); err != nil {
		lgr.Warn("shutdown did not complete cleanly", logger.F("err", err))
	}
}
