// Package config loads and exposes the host's runtime configuration: tape
// root, backend router targets, scheduler policy, tribunal judges, and the
// ambient HTTP/store/sandbox settings. Grounded on the teacher's YAML +
// environment-override + sync.Once singleton shape
// (internal/config/config.go), re-keyed from the teacher's governance/trust
// domain to the GHOST domain.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is the root configuration tree for the host process.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Registry  RegistryConfig  `yaml:"registry"`
	Router    RouterConfig    `yaml:"router"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Tribunal  TribunalConfig  `yaml:"tribunal"`
	Store     StoreConfig     `yaml:"store"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Swarm     SwarmConfig     `yaml:"swarm"`
}

// ServerConfig configures the HTTP surface (C9).
type ServerConfig struct {
	Host             string   `yaml:"host"`
	Port             string   `yaml:"port"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// RegistryConfig configures tape discovery (C1/C2).
type RegistryConfig struct {
	Root            string `yaml:"root"`
	InitialState    string `yaml:"initial_state"`
	UnmountBusyWait int    `yaml:"unmount_busy_wait_ms"`
}

// RouterBackend is one entry in the router's priority-ordered backend list.
type RouterBackend struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	DeadlineMs int    `yaml:"deadline_ms"`
}

// RouterConfig configures the backend router (C5).
type RouterConfig struct {
	Backends            []RouterBackend `yaml:"backends"`
	DefaultDeadlineMs    int            `yaml:"default_deadline_ms"`
	BreakerFailThreshold int            `yaml:"breaker_fail_threshold"`
	BreakerOpenMs        int            `yaml:"breaker_open_ms"`
}

// DeviceProfile describes one device tier's capacity for the scheduler (C6).
type DeviceProfile struct {
	Name           string  `yaml:"name"`
	Tier           string  `yaml:"tier"` // cpu | gpu | remote | queued
	MaxConcurrency int     `yaml:"max_concurrency"`
	CPULoadCeiling float64 `yaml:"cpu_load_ceiling"`
}

// SchedulerConfig configures the device scheduler (C6).
type SchedulerConfig struct {
	Shards          []DeviceProfile `yaml:"shards"`
	MaxRetries      int             `yaml:"max_retries"`
	FallbackPenalty float64         `yaml:"fallback_priority_penalty"`
	QueueDelayMs    int             `yaml:"queue_delay_ms"`
}

// JudgeConfig names one tribunal judge endpoint.
type JudgeConfig struct {
	Name       string `yaml:"name"`
	Transport  string `yaml:"transport"` // http | grpc
	Address    string `yaml:"address"`
	Weight     float64 `yaml:"weight"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// TribunalConfig configures the multi-judge consensus evaluator (C7).
type TribunalConfig struct {
	Judges            []JudgeConfig `yaml:"judges"`
	QuorumFraction    float64       `yaml:"quorum_fraction"`
	DisagreementLimit int           `yaml:"disagreement_ring_capacity"`
}

// StoreConfig configures the C4 store / C12 durable snapshot backing.
type StoreConfig struct {
	Backend   string `yaml:"backend"` // memory | redis
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	Namespace string `yaml:"namespace"`
}

// SandboxConfig configures C10 path confinement and C13 shell sandboxing.
type SandboxConfig struct {
	FilesystemRoot string `yaml:"filesystem_root"`
	DockerImage    string `yaml:"docker_image"`
	DockerRuntime  string `yaml:"docker_runtime"`
	PoolMinIdle    int    `yaml:"pool_min_idle"`
	PoolMaxCap     int    `yaml:"pool_max_capacity"`
}

// ProxyConfig configures the inter-tape proxy (C8) and proxy-external map.
type ProxyConfig struct {
	MaxHops          int               `yaml:"max_hops"`
	ExternalServices map[string]string `yaml:"external_services"`
}

// KeywordRoute is one entry in the swarm router's fixed-precedence keyword
// table: the first rule whose Keyword appears in the routed text wins.
type KeywordRoute struct {
	Keyword string `yaml:"keyword"`
	Agent   string `yaml:"agent"`
}

// SwarmConfig configures the /swarm/route keyword table (spec §4.9). Keywords
// is an ordered list, not a map, because routing precedence among
// simultaneously-matching keywords must be deterministic.
type SwarmConfig struct {
	FallbackAgent string         `yaml:"fallback_agent"`
	Keywords      []KeywordRoute `yaml:"keywords"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton configuration, loading it from
// CONFIG_PATH (default config.yaml) on first call and applying environment
// overrides and defaults.
func Get() *Config {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			slog.Debug("config: no .env file loaded", "error", err)
		}

		cfg, err := Load(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

// Load reads and decodes a YAML config file from path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Registry.Root = getEnv("TAPEHOST_REGISTRY_ROOT", c.Registry.Root)
	c.Store.Backend = getEnv("TAPEHOST_STORE_BACKEND", c.Store.Backend)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	if v := getEnvInt("REDIS_DB", -1); v >= 0 {
		c.Store.RedisDB = v
	}
	c.Sandbox.FilesystemRoot = getEnv("TAPEHOST_SANDBOX_ROOT", c.Sandbox.FilesystemRoot)
	c.Sandbox.DockerImage = getEnv("TAPEHOST_SANDBOX_IMAGE", c.Sandbox.DockerImage)
	if origins := getEnv("CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}
	if v := getEnvInt("ROUTER_DEFAULT_DEADLINE_MS", 0); v > 0 {
		c.Router.DefaultDeadlineMs = v
	}
	if v := getEnvInt("SCHEDULER_MAX_RETRIES", 0); v > 0 {
		c.Scheduler.MaxRetries = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == "" {
		c.Server.Port = "3000"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10
	}
	if len(c.Server.CORSAllowOrigins) == 0 {
		c.Server.CORSAllowOrigins = []string{"*"}
	}

	if c.Registry.Root == "" {
		c.Registry.Root = "tapes"
	}
	if c.Registry.InitialState == "" {
		c.Registry.InitialState = "mounted"
	}
	if c.Registry.UnmountBusyWait == 0 {
		c.Registry.UnmountBusyWait = 5000
	}

	if c.Router.DefaultDeadlineMs == 0 {
		c.Router.DefaultDeadlineMs = 5000
	}
	if c.Router.BreakerFailThreshold == 0 {
		c.Router.BreakerFailThreshold = 5
	}
	if c.Router.BreakerOpenMs == 0 {
		c.Router.BreakerOpenMs = 30000
	}

	if c.Scheduler.MaxRetries == 0 {
		c.Scheduler.MaxRetries = 8
	}
	if c.Scheduler.FallbackPenalty == 0 {
		c.Scheduler.FallbackPenalty = 0.8
	}
	if c.Scheduler.QueueDelayMs == 0 {
		c.Scheduler.QueueDelayMs = 500
	}
	if len(c.Scheduler.Shards) == 0 {
		c.Scheduler.Shards = []DeviceProfile{
			{Name: "cpu-0", Tier: "cpu", MaxConcurrency: 4, CPULoadCeiling: 0.85},
			{Name: "gpu-0", Tier: "gpu", MaxConcurrency: 2, CPULoadCeiling: 0.95},
		}
	}

	if c.Tribunal.QuorumFraction == 0 {
		c.Tribunal.QuorumFraction = 0.5
	}
	if c.Tribunal.DisagreementLimit == 0 {
		c.Tribunal.DisagreementLimit = 100
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Namespace == "" {
		c.Store.Namespace = "tapehost"
	}

	if c.Sandbox.FilesystemRoot == "" {
		c.Sandbox.FilesystemRoot = "sandbox"
	}
	if c.Sandbox.DockerImage == "" {
		c.Sandbox.DockerImage = "tapehost/sandbox:latest"
	}
	if c.Sandbox.PoolMaxCap == 0 {
		c.Sandbox.PoolMaxCap = 4
	}

	if c.Proxy.MaxHops == 0 {
		c.Proxy.MaxHops = 8
	}
	if c.Proxy.ExternalServices == nil {
		c.Proxy.ExternalServices = map[string]string{}
	}

	if c.Swarm.FallbackAgent == "" {
		c.Swarm.FallbackAgent = "agent:c"
	}
	if len(c.Swarm.Keywords) == 0 {
		c.Swarm.Keywords = []KeywordRoute{
			{Keyword: "build", Agent: "agent:a"},
			{Keyword: "deploy", Agent: "agent:a"},
			{Keyword: "git", Agent: "agent:a"},
			{Keyword: "eval", Agent: "agent:b"},
			{Keyword: "judge", Agent: "agent:b"},
			{Keyword: "code", Agent: "agent:b"},
			{Keyword: "reason", Agent: "agent:c"},
			{Keyword: "analyze", Agent: "agent:c"},
			{Keyword: "longform", Agent: "agent:c"},
		}
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
