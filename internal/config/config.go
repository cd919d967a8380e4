package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chordring/internal/logger"
)

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Active   bool             `yaml:"active"`
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"`
	Mode     string           `yaml:"mode"`
	File     FileLoggerConfig `yaml:"file"`
}

// RoutingConfig holds the identifier-space bitcount and the bounded
// fallback-candidate depth every finger-table entry keeps.
type RoutingConfig struct {
	IDBits        int `yaml:"idBits"`
	RouteFallback int `yaml:"routeFallback"`
}

// TimingConfig holds the periodic maintenance intervals and per-call
// timeouts the state machine runs under.
type TimingConfig struct {
	StabilizeInterval  time.Duration `yaml:"stabilizeInterval"`
	FixFingersInterval time.Duration `yaml:"fixFingersInterval"`
	JoinTimeout        time.Duration `yaml:"joinTimeout"`
	RequestTimeout     time.Duration `yaml:"requestTimeout"`
	MaxPendingPerConn  int           `yaml:"maxPendingPerConn"`
}

type RegisterConfig struct {
	Enabled      bool   `yaml:"enabled"`
	HostedZoneID string `yaml:"hostedZoneId"`
	DomainSuffix string `yaml:"domainSuffix"`
	TTL          int64  `yaml:"ttl"`
}

// Route53Config configures the Route53Bootstrap backend directly (used
// when constructing it outside of the full DHT config, e.g. in tests).
type Route53Config struct {
	HostedZoneID string `yaml:"hostedZoneId"`
	DomainSuffix string `yaml:"domainSuffix"`
	TTL          int64  `yaml:"ttl"`
}

// DockerBootstrapConfig configures discovery of ring peers via Docker
// container labels/networks instead of DNS or a static list.
type DockerBootstrapConfig struct {
	Label     string `yaml:"label"`
	Network   string `yaml:"network"`
	Port      int    `yaml:"port"`
	DockerURL string `yaml:"dockerUrl"`
}

type BootstrapConfig struct {
	Mode     string                `yaml:"mode"`
	DNSName  string                `yaml:"dnsName"`
	SRV      bool                  `yaml:"srv"`
	Port     int                   `yaml:"port"`
	Peers    []string              `yaml:"peers"`
	Register RegisterConfig        `yaml:"register"`
	Docker   DockerBootstrapConfig `yaml:"docker"`
}

type DHTConfig struct {
	Routing   RoutingConfig   `yaml:"routing"`
	Timing    TimingConfig    `yaml:"timing"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

type NodeConfig struct {
	Id   string `yaml:"id"`
	Bind string `yaml:"bind"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	DHT       DHTConfig       `yaml:"dht"`
	Node      NodeConfig      `yaml:"node"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LoadConfig loads the configuration from a YAML file at the given path.
//
// This function performs only syntactic parsing. Call cfg.ValidateConfig()
// after loading (and after ApplyEnvOverrides) to check structural validity.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration.
//
// Supported overrides:
//
//	NODE_ID               -> cfg.Node.Id
//	NODE_BIND             -> cfg.Node.Bind
//	NODE_HOST             -> cfg.Node.Host
//	NODE_PORT             -> cfg.Node.Port
//	ROUTING_ID_BITS       -> cfg.DHT.Routing.IDBits
//	ROUTING_FALLBACK      -> cfg.DHT.Routing.RouteFallback
//	BOOTSTRAP_MODE        -> cfg.DHT.Bootstrap.Mode
//	BOOTSTRAP_DNSNAME     -> cfg.DHT.Bootstrap.DNSName
//	BOOTSTRAP_SRV         -> cfg.DHT.Bootstrap.SRV
//	BOOTSTRAP_PORT        -> cfg.DHT.Bootstrap.Port
//	BOOTSTRAP_PEERS       -> cfg.DHT.Bootstrap.Peers (comma-separated)
//	REGISTER_ENABLED      -> cfg.DHT.Bootstrap.Register.Enabled
//	REGISTER_ZONE_ID      -> cfg.DHT.Bootstrap.Register.HostedZoneID
//	REGISTER_SUFFIX       -> cfg.DHT.Bootstrap.Register.DomainSuffix
//	REGISTER_TTL          -> cfg.DHT.Bootstrap.Register.TTL
//	TRACE_ENABLED         -> cfg.Telemetry.Tracing.Enabled
//	TRACE_EXPORTER        -> cfg.Telemetry.Tracing.Exporter
//	TRACE_ENDPOINT        -> cfg.Telemetry.Tracing.Endpoint
//	LOGGER_ENABLED        -> cfg.Logger.Active
//	LOGGER_LEVEL          -> cfg.Logger.Level
//	LOGGER_ENCODING       -> cfg.Logger.Encoding
//	LOGGER_MODE           -> cfg.Logger.Mode
//	LOGGER_FILE_PATH      -> cfg.Logger.File.Path
func (cfg *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NODE_ID"); v != "" {
		cfg.Node.Id = v
	}
	if v := os.Getenv("NODE_BIND"); v != "" {
		cfg.Node.Bind = v
	} else if cfg.Node.Bind == "" {
		cfg.Node.Bind = "0.0.0.0"
	}
	if v := os.Getenv("NODE_HOST"); v != "" {
		cfg.Node.Host = v
	}
	if v := os.Getenv("NODE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Node.Port = port
		}
	}

	if v := os.Getenv("ROUTING_ID_BITS"); v != "" {
		if bits, err := strconv.Atoi(v); err == nil {
			cfg.DHT.Routing.IDBits = bits
		}
	}
	if v := os.Getenv("ROUTING_FALLBACK"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.DHT.Routing.RouteFallback = k
		}
	}

	if v := os.Getenv("BOOTSTRAP_MODE"); v != "" {
		cfg.DHT.Bootstrap.Mode = v
	}
	if v := os.Getenv("BOOTSTRAP_DNSNAME"); v != "" {
		cfg.DHT.Bootstrap.DNSName = v
	}
	if v := os.Getenv("BOOTSTRAP_SRV"); v != "" {
		v = strings.ToLower(v)
		cfg.DHT.Bootstrap.SRV = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("BOOTSTRAP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.DHT.Bootstrap.Port = port
		}
	}
	if v := os.Getenv("BOOTSTRAP_PEERS"); v != "" {
		cfg.DHT.Bootstrap.Peers = strings.Split(v, ",")
	}
	if v := os.Getenv("REGISTER_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.DHT.Bootstrap.Register.Enabled = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("REGISTER_ZONE_ID"); v != "" {
		cfg.DHT.Bootstrap.Register.HostedZoneID = v
	}
	if v := os.Getenv("REGISTER_SUFFIX"); v != "" {
		cfg.DHT.Bootstrap.Register.DomainSuffix = v
	}
	if v := os.Getenv("REGISTER_TTL"); v != "" {
		if ttl, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.DHT.Bootstrap.Register.TTL = ttl
		}
	}
	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Telemetry.Tracing.Enabled = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("TRACE_EXPORTER"); v != "" {
		cfg.Telemetry.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACE_ENDPOINT"); v != "" {
		cfg.Telemetry.Tracing.Endpoint = v
	}
	if v := os.Getenv("LOGGER_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Logger.Active = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOGGER_ENCODING"); v != "" {
		cfg.Logger.Encoding = v
	}
	if v := os.Getenv("LOGGER_MODE"); v != "" {
		cfg.Logger.Mode = v
	}
	if v := os.Getenv("LOGGER_FILE_PATH"); v != "" {
		cfg.Logger.File.Path = v
	}
}

// ValidateConfig performs structural validation of the loaded
// configuration, accumulating every problem found rather than failing
// on the first one, so a misconfigured deployment gets one complete
// error report instead of a fix-and-rerun loop.
func (cfg *Config) ValidateConfig() error {
	var errs []string

	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.level: %s", cfg.Logger.Level))
	}
	switch cfg.Logger.Encoding {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.encoding: %s", cfg.Logger.Encoding))
	}
	switch cfg.Logger.Mode {
	case "stdout":
	case "file":
		if cfg.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path is required when mode=file")
		}
		if cfg.Logger.File.MaxSize < 0 || cfg.Logger.File.MaxBackups < 0 || cfg.Logger.File.MaxAge < 0 {
			errs = append(errs, "logger.file.* values must be non-negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.mode: %s", cfg.Logger.Mode))
	}

	if cfg.DHT.Routing.IDBits <= 0 || cfg.DHT.Routing.IDBits%8 != 0 {
		errs = append(errs, "dht.routing.idBits must be a positive multiple of 8")
	}
	if cfg.DHT.Routing.RouteFallback <= 0 {
		errs = append(errs, "dht.routing.routeFallback must be > 0")
	}
	if cfg.DHT.Timing.StabilizeInterval <= 0 {
		errs = append(errs, "dht.timing.stabilizeInterval must be > 0")
	}
	if cfg.DHT.Timing.FixFingersInterval <= 0 {
		errs = append(errs, "dht.timing.fixFingersInterval must be > 0")
	}
	if cfg.DHT.Timing.JoinTimeout <= 0 {
		errs = append(errs, "dht.timing.joinTimeout must be > 0")
	}
	if cfg.DHT.Timing.RequestTimeout <= 0 {
		errs = append(errs, "dht.timing.requestTimeout must be > 0")
	}
	if cfg.DHT.Timing.MaxPendingPerConn <= 0 {
		errs = append(errs, "dht.timing.maxPendingPerConn must be > 0")
	}

	b := cfg.DHT.Bootstrap
	switch b.Mode {
	case "dns":
		if b.DNSName == "" {
			errs = append(errs, "bootstrap.dnsName is required in mode=dns")
		}
		if !b.SRV && b.Port <= 0 {
			errs = append(errs, "bootstrap.port must be > 0 when using A/AAAA (srv=false)")
		}
		if b.Register.Enabled {
			if b.Register.HostedZoneID == "" {
				errs = append(errs, "bootstrap.register.hostedZoneId is required when register.enabled=true")
			}
			if b.Register.DomainSuffix == "" {
				errs = append(errs, "bootstrap.register.domainSuffix is required when register.enabled=true")
			}
			if b.Register.TTL <= 0 {
				errs = append(errs, "bootstrap.register.ttl must be > 0 when register.enabled=true")
			}
		}
	case "static":
		for _, p := range b.Peers {
			if _, _, err := net.SplitHostPort(p); err != nil {
				errs = append(errs, fmt.Sprintf("invalid peer address %q in bootstrap.peers: %v", p, err))
			}
		}
	case "docker":
		// discovered via the Docker API at runtime; no static fields required
	case "init":
		// first node of a ring: no extra constraints
	default:
		errs = append(errs, fmt.Sprintf("invalid bootstrap.mode: %s (must be dns, static, docker or init)", b.Mode))
	}

	if cfg.Node.Port < 0 || cfg.Node.Port > 65535 {
		errs = append(errs, fmt.Sprintf("node.port must be in [0,65535], got %d", cfg.Node.Port))
	}

	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Exporter {
		case "stdout", "otlp":
		default:
			errs = append(errs, fmt.Sprintf("invalid telemetry.tracing.exporter: %s", cfg.Telemetry.Tracing.Exporter))
		}
		if cfg.Telemetry.Tracing.Exporter == "otlp" && cfg.Telemetry.Tracing.Endpoint == "" {
			errs = append(errs, "telemetry.tracing.endpoint is required when exporter=otlp")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig prints the loaded configuration at DEBUG level, useful for
// confirming a deployment picked up the values it was meant to.
func (cfg *Config) LogConfig(lgr logger.Logger) {
	lgr.Debug("loaded configuration",
		logger.F("logger.active", cfg.Logger.Active),
		logger.F("logger.level", cfg.Logger.Level),
		logger.F("logger.encoding", cfg.Logger.Encoding),
		logger.F("logger.mode", cfg.Logger.Mode),
		logger.F("logger.file.path", cfg.Logger.File.Path),

		logger.F("dht.routing.idBits", cfg.DHT.Routing.IDBits),
		logger.F("dht.routing.routeFallback", cfg.DHT.Routing.RouteFallback),

		logger.F("dht.timing.stabilizeInterval", cfg.DHT.Timing.StabilizeInterval.String()),
		logger.F("dht.timing.fixFingersInterval", cfg.DHT.Timing.FixFingersInterval.String()),
		logger.F("dht.timing.joinTimeout", cfg.DHT.Timing.JoinTimeout.String()),
		logger.F("dht.timing.requestTimeout", cfg.DHT.Timing.RequestTimeout.String()),
		logger.F("dht.timing.maxPendingPerConn", cfg.DHT.Timing.MaxPendingPerConn),

		logger.F("dht.bootstrap.mode", cfg.DHT.Bootstrap.Mode),
		logger.F("dht.bootstrap.dnsName", cfg.DHT.Bootstrap.DNSName),
		logger.F("dht.bootstrap.srv", cfg.DHT.Bootstrap.SRV),
		logger.F("dht.bootstrap.port", cfg.DHT.Bootstrap.Port),
		logger.F("dht.bootstrap.peers", cfg.DHT.Bootstrap.Peers),

		logger.F("dht.bootstrap.register.enabled", cfg.DHT.Bootstrap.Register.Enabled),
		logger.F("dht.bootstrap.register.hostedZoneId", cfg.DHT.Bootstrap.Register.HostedZoneID),
		logger.F("dht.bootstrap.register.domainSuffix", cfg.DHT.Bootstrap.Register.DomainSuffix),
		logger.F("dht.bootstrap.register.ttl", cfg.DHT.Bootstrap.Register.TTL),

		logger.F("node.id", cfg.Node.Id),
		logger.F("node.bind", cfg.Node.Bind),
		logger.F("node.host", cfg.Node.Host),
		logger.F("node.port", cfg.Node.Port),

		logger.F("telemetry.tracing.enabled", cfg.Telemetry.Tracing.Enabled),
		logger.F("telemetry.tracing.exporter", cfg.Telemetry.Tracing.Exporter),
		logger.F("telemetry.tracing.endpoint", cfg.Telemetry.Tracing.Endpoint),
	)
}
