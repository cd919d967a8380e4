package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Logger: LoggerConfig{Active: true, Level: "info", Encoding: "json", Mode: "stdout"},
		DHT: DHTConfig{
			Routing: RoutingConfig{IDBits: 128, RouteFallback: 5},
			Timing: TimingConfig{
				StabilizeInterval:  time.Second,
				FixFingersInterval: 5 * time.Second,
				JoinTimeout:        10 * time.Second,
				RequestTimeout:     10 * time.Second,
				MaxPendingPerConn:  64,
			},
			Bootstrap: BootstrapConfig{Mode: "init"},
		},
		Node: NodeConfig{Bind: "0.0.0.0", Port: 2017},
	}
}

func TestLoadConfigParsesYAML(t *testing.T) {
	doc := `
logger:
  active: true
  level: debug
  encoding: console
  mode: stdout
dht:
  routing:
    idBits: 64
    routeFallback: 3
  timing:
    stabilizeInterval: 500ms
    fixFingersInterval: 2s
    joinTimeout: 5s
    requestTimeout: 5s
    maxPendingPerConn: 32
  bootstrap:
    mode: static
    peers:
      - 10.0.0.1:2017
node:
  bind: 0.0.0.0
  port: 2018
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DHT.Routing.IDBits != 64 || cfg.DHT.Routing.RouteFallback != 3 {
		t.Fatalf("routing config not parsed: %+v", cfg.DHT.Routing)
	}
	if cfg.DHT.Timing.StabilizeInterval != 500*time.Millisecond {
		t.Fatalf("stabilizeInterval = %s, want 500ms", cfg.DHT.Timing.StabilizeInterval)
	}
	if err := cfg.ValidateConfig(); err != nil {
		t.Fatalf("ValidateConfig on a valid document: %v", err)
	}
}

func TestValidateConfigAcceptsValid(t *testing.T) {
	if err := validConfig().ValidateConfig(); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
}

func TestValidateConfigAccumulatesAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Logger.Level = "loud"
	cfg.DHT.Routing.IDBits = 7
	cfg.DHT.Timing.RequestTimeout = 0
	cfg.DHT.Bootstrap.Mode = "carrier-pigeon"

	err := cfg.ValidateConfig()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"logger.level", "idBits", "requestTimeout", "bootstrap.mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error does not mention %q:\n%v", want, err)
		}
	}
}

func TestValidateConfigDNSModeRequiresName(t *testing.T) {
	cfg := validConfig()
	cfg.DHT.Bootstrap.Mode = "dns"
	cfg.DHT.Bootstrap.Port = 2017
	err := cfg.ValidateConfig()
	if err == nil || !strings.Contains(err.Error(), "dnsName") {
		t.Fatalf("expected dnsName error, got %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := validConfig()
	t.Setenv("NODE_PORT", "3001")
	t.Setenv("BOOTSTRAP_MODE", "static")
	t.Setenv("BOOTSTRAP_PEERS", "10.0.0.1:2017,10.0.0.2:2017")
	t.Setenv("LOGGER_LEVEL", "debug")
	t.Setenv("ROUTING_ID_BITS", "64")

	cfg.ApplyEnvOverrides()

	if cfg.Node.Port != 3001 {
		t.Errorf("Node.Port = %d, want 3001", cfg.Node.Port)
	}
	if cfg.DHT.Bootstrap.Mode != "static" || len(cfg.DHT.Bootstrap.Peers) != 2 {
		t.Errorf("bootstrap overrides not applied: %+v", cfg.DHT.Bootstrap)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", cfg.Logger.Level)
	}
	if cfg.DHT.Routing.IDBits != 64 {
		t.Errorf("Routing.IDBits = %d, want 64", cfg.DHT.Routing.IDBits)
	}
}
