package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendSim / BackendEthereum select the execution environment.
const (
	BackendSim      = "sim"
	BackendEthereum = "ethereum"
)

// Config 服务运行配置
type Config struct {
	ListenAddr string
	// DebugAddr 开启 expvar/pprof 调试服务（建议仅监听 localhost），
	// 留空则不启动
	DebugAddr string

	Chain        ChainConfig
	Orchestrator OrchestratorConfig
	Narrative    NarrativeConfig
	Log          LogConfig

	// JournalPath is the SQLite file holding the action history. Empty
	// disables the journal.
	JournalPath string
	// SecretStorePath holds the encrypted operator key for the ethereum
	// backend.
	SecretStorePath string
	// OwnerAddress is the pool owner identity at genesis.
	OwnerAddress string
}

// ChainConfig 执行环境配置
type ChainConfig struct {
	// Backend: sim | ethereum
	Backend         string
	RPCURL          string
	ContractAddress string
	ChainID         int64
	ConfirmTimeout  time.Duration
	ReceiptPollMs   int
	// SimLatencyMs is the artificial confirmation delay of the sim backend.
	SimLatencyMs int
}

// OrchestratorConfig 执行编排配置
type OrchestratorConfig struct {
	MaxAttempts  int
	RetryBaseMs  int
	RetryMaxMs   int
	StateReadTTL time.Duration
}

// NarrativeConfig 叙事合成配置
type NarrativeConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string
	OutputFile string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// configFile 配置文件结构（支持 YAML 和 JSON）
type configFile struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	DebugAddr  string `yaml:"debug_addr" json:"debug_addr"`

	Chain struct {
		Backend         string `yaml:"backend" json:"backend"`
		RPCURL          string `yaml:"rpc_url" json:"rpc_url"`
		ContractAddress string `yaml:"contract_address" json:"contract_address"`
		ChainID         int64  `yaml:"chain_id" json:"chain_id"`
		ConfirmTimeoutS int    `yaml:"confirm_timeout_seconds" json:"confirm_timeout_seconds"`
		ReceiptPollMs   int    `yaml:"receipt_poll_ms" json:"receipt_poll_ms"`
		SimLatencyMs    int    `yaml:"sim_latency_ms" json:"sim_latency_ms"`
	} `yaml:"chain" json:"chain"`

	Orchestrator struct {
		MaxAttempts    int `yaml:"max_attempts" json:"max_attempts"`
		RetryBaseMs    int `yaml:"retry_base_ms" json:"retry_base_ms"`
		RetryMaxMs     int `yaml:"retry_max_ms" json:"retry_max_ms"`
		StateReadTTLMs int `yaml:"state_read_ttl_ms" json:"state_read_ttl_ms"`
	} `yaml:"orchestrator" json:"orchestrator"`

	Narrative struct {
		BaseURL  string `yaml:"base_url" json:"base_url"`
		APIKey   string `yaml:"api_key" json:"api_key"`
		Model    string `yaml:"model" json:"model"`
		TimeoutS int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	} `yaml:"narrative" json:"narrative"`

	Log struct {
		Level      string `yaml:"level" json:"level"`
		OutputFile string `yaml:"output_file" json:"output_file"`
		MaxSize    int    `yaml:"max_size" json:"max_size"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAge     int    `yaml:"max_age" json:"max_age"`
		Compress   bool   `yaml:"compress" json:"compress"`
	} `yaml:"log" json:"log"`

	JournalPath     string `yaml:"journal_path" json:"journal_path"`
	SecretStorePath string `yaml:"secret_store_path" json:"secret_store_path"`
	OwnerAddress    string `yaml:"owner_address" json:"owner_address"`
}

// Load 加载配置。优先级：配置文件 > 环境变量 > 默认值。
// path 为空时只使用环境变量和默认值。
func Load(path string) (*Config, error) {
	var cf configFile
	if path != "" {
		if err := readConfigFile(path, &cf); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		ListenAddr: pick(cf.ListenAddr, getEnv("DEFISIM_LISTEN_ADDR", ":8080")),
		DebugAddr:  pick(cf.DebugAddr, os.Getenv("DEFISIM_DEBUG_ADDR")),
		Chain: ChainConfig{
			Backend:         pick(cf.Chain.Backend, getEnv("DEFISIM_CHAIN_BACKEND", BackendSim)),
			RPCURL:          pick(cf.Chain.RPCURL, os.Getenv("DEFISIM_RPC_URL")),
			ContractAddress: pick(cf.Chain.ContractAddress, os.Getenv("DEFISIM_CONTRACT_ADDRESS")),
			ChainID:         pickInt64(cf.Chain.ChainID, parseInt64Env("DEFISIM_CHAIN_ID", 0)),
			ConfirmTimeout:  time.Duration(pickInt(cf.Chain.ConfirmTimeoutS, parseIntEnv("DEFISIM_CONFIRM_TIMEOUT_SECONDS", 90))) * time.Second,
			ReceiptPollMs:   pickInt(cf.Chain.ReceiptPollMs, parseIntEnv("DEFISIM_RECEIPT_POLL_MS", 3000)),
			SimLatencyMs:    pickInt(cf.Chain.SimLatencyMs, parseIntEnv("DEFISIM_SIM_LATENCY_MS", 0)),
		},
		Orchestrator: OrchestratorConfig{
			MaxAttempts:  pickInt(cf.Orchestrator.MaxAttempts, parseIntEnv("DEFISIM_MAX_ATTEMPTS", 3)),
			RetryBaseMs:  pickInt(cf.Orchestrator.RetryBaseMs, parseIntEnv("DEFISIM_RETRY_BASE_MS", 200)),
			RetryMaxMs:   pickInt(cf.Orchestrator.RetryMaxMs, parseIntEnv("DEFISIM_RETRY_MAX_MS", 5000)),
			StateReadTTL: time.Duration(pickInt(cf.Orchestrator.StateReadTTLMs, parseIntEnv("DEFISIM_STATE_READ_TTL_MS", 5000))) * time.Millisecond,
		},
		Narrative: NarrativeConfig{
			BaseURL: pick(cf.Narrative.BaseURL, os.Getenv("DEFISIM_NARRATIVE_BASE_URL")),
			APIKey:  pick(cf.Narrative.APIKey, os.Getenv("GEMINI_API_KEY")),
			Model:   pick(cf.Narrative.Model, os.Getenv("DEFISIM_NARRATIVE_MODEL")),
			Timeout: time.Duration(pickInt(cf.Narrative.TimeoutS, parseIntEnv("DEFISIM_NARRATIVE_TIMEOUT_SECONDS", 20))) * time.Second,
		},
		Log: LogConfig{
			Level:      pick(cf.Log.Level, getEnv("DEFISIM_LOG_LEVEL", "info")),
			OutputFile: pick(cf.Log.OutputFile, os.Getenv("DEFISIM_LOG_FILE")),
			MaxSize:    pickInt(cf.Log.MaxSize, 100),
			MaxBackups: pickInt(cf.Log.MaxBackups, 3),
			MaxAge:     pickInt(cf.Log.MaxAge, 7),
			Compress:   cf.Log.Compress,
		},
		JournalPath:     pick(cf.JournalPath, getEnv("DEFISIM_JOURNAL_PATH", "data/journal.db")),
		SecretStorePath: pick(cf.SecretStorePath, getEnv("DEFISIM_SECRET_STORE_PATH", "data/secrets")),
		OwnerAddress:    pick(cf.OwnerAddress, os.Getenv("DEFISIM_OWNER_ADDRESS")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Chain.Backend {
	case BackendSim:
	case BackendEthereum:
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("chain.rpc_url is required for the ethereum backend")
		}
		if c.Chain.ContractAddress == "" {
			return fmt.Errorf("chain.contract_address is required for the ethereum backend")
		}
		if c.Chain.ChainID == 0 {
			return fmt.Errorf("chain.chain_id is required for the ethereum backend")
		}
	default:
		return fmt.Errorf("unknown chain backend %q (want %q or %q)", c.Chain.Backend, BackendSim, BackendEthereum)
	}
	if c.Chain.Backend == BackendSim && c.OwnerAddress == "" {
		return fmt.Errorf("owner_address is required for the sim backend")
	}
	if c.Orchestrator.MaxAttempts <= 0 {
		return fmt.Errorf("orchestrator.max_attempts must be positive")
	}
	return nil
}

// readConfigFile 加载配置文件（支持 YAML 和 JSON）
func readConfigFile(path string, out *configFile) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse json config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %s (want .yaml, .yml or .json)", ext)
	}
	return nil
}

func pick(fileValue, fallback string) string {
	if strings.TrimSpace(fileValue) != "" {
		return fileValue
	}
	return fallback
}

func pickInt(fileValue, fallback int) int {
	if fileValue != 0 {
		return fileValue
	}
	return fallback
}

func pickInt64(fileValue, fallback int64) int64 {
	if fileValue != 0 {
		return fileValue
	}
	return fallback
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func parseInt64Env(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}
