package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/memtriage/internal/domain/analysis"
	"github.com/bryanwahyu/memtriage/internal/logger"
)

// DefaultRiskThreshold applies when response.riskThreshold is absent; an
// explicit 0 responds to every result.
const DefaultRiskThreshold = 70

type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"readTimeout"`
		WriteTimeout time.Duration `yaml:"writeTimeout"`
		CORSOrigins  []string      `yaml:"corsOrigins"`
		// APIKeys maps caller name -> key; empty disables webhook auth
		APIKeys   map[string]string `yaml:"apiKeys"`
		RateLimit struct {
			Capacity   int `yaml:"capacity"`
			RefillRate int `yaml:"refillRate"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	GRR struct {
		Endpoint string        `yaml:"endpoint"`
		Username string        `yaml:"username"`
		Password string        `yaml:"password"`
		Timeout  time.Duration `yaml:"timeout"`
		// StallTimeout aborts an image download that makes no progress
		StallTimeout time.Duration `yaml:"stallTimeout"`
	} `yaml:"grr"`

	Extraction struct {
		Mode          string            `yaml:"mode"` // local | docker
		Binary        string            `yaml:"binary"`
		DockerImage   string            `yaml:"dockerImage"`
		ModuleTimeout time.Duration     `yaml:"moduleTimeout"`
		TempDir       string            `yaml:"tempDir"`
		Modules       []analysis.Module `yaml:"modules"`
	} `yaml:"extraction"`

	Ingestion struct {
		AllowedFlows   []string      `yaml:"allowedFlows"`
		TerminalState  string        `yaml:"terminalState"`
		QueueSize      int           `yaml:"queueSize"`
		EnqueueTimeout time.Duration `yaml:"enqueueTimeout"`
		// DedupWindow 0 = duplicates are admitted
		DedupWindow time.Duration `yaml:"dedupWindow"`
	} `yaml:"ingestion"`

	Response struct {
		Enabled       bool `yaml:"enabled"`
		RiskThreshold int  `yaml:"riskThreshold"`
	} `yaml:"response"`

	OpenAI struct {
		APIKey  string `yaml:"apiKey"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"baseURL"`
		// Timeout bounds the whole assessment round trip
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"openai"`

	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
		Stream  string `yaml:"stream"`
	} `yaml:"nats"`

	Log logger.Config `yaml:"log"`
}

// Load baca file config.yaml, isi default, lalu override secret dari env
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	// fields whose zero value is meaningful are seeded before decoding;
	// yaml leaves them untouched when absent
	cfg.Response.Enabled = true
	cfg.Response.RiskThreshold = DefaultRiskThreshold
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GRR_PASSWORD"); v != "" {
		c.GRR.Password = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.RateLimit.Capacity == 0 {
		c.Server.RateLimit.Capacity = 100
	}
	if c.Server.RateLimit.RefillRate == 0 {
		c.Server.RateLimit.RefillRate = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.GRR.Endpoint == "" {
		c.GRR.Endpoint = "http://localhost:8000"
	}
	if c.GRR.Timeout == 0 {
		c.GRR.Timeout = 10 * time.Minute
	}
	if c.GRR.StallTimeout == 0 {
		c.GRR.StallTimeout = 2 * time.Minute
	}
	if c.Extraction.Mode == "" {
		c.Extraction.Mode = "local"
	}
	if c.Extraction.Binary == "" {
		c.Extraction.Binary = "vol"
		if v := os.Getenv("VOLATILITY_PATH"); v != "" {
			c.Extraction.Binary = v
		}
	}
	if c.Extraction.DockerImage == "" {
		c.Extraction.DockerImage = "sk4la/volatility3:latest"
	}
	if c.Extraction.ModuleTimeout == 0 {
		c.Extraction.ModuleTimeout = 300 * time.Second
	}
	if len(c.Extraction.Modules) == 0 {
		c.Extraction.Modules = analysis.DefaultBattery()
	}
	if len(c.Ingestion.AllowedFlows) == 0 {
		c.Ingestion.AllowedFlows = []string{"DumpProcessMemory", "ArtifactCollectorFlow"}
	}
	if c.Ingestion.TerminalState == "" {
		c.Ingestion.TerminalState = "TERMINATED"
	}
	if c.Ingestion.QueueSize == 0 {
		c.Ingestion.QueueSize = 256
	}
	if c.Ingestion.EnqueueTimeout == 0 {
		c.Ingestion.EnqueueTimeout = 2 * time.Second
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.Timeout == 0 {
		c.OpenAI.Timeout = 2 * time.Minute
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "MEMTRIAGE"
	}
}

// Validate cek nilai yang tidak masuk akal
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.Extraction.Mode {
	case "local", "docker":
	default:
		return fmt.Errorf("unsupported extraction mode: %s", c.Extraction.Mode)
	}
	if c.Ingestion.QueueSize < 0 {
		return fmt.Errorf("ingestion.queueSize must be positive")
	}
	if c.Response.RiskThreshold < 0 || c.Response.RiskThreshold > 100 {
		return fmt.Errorf("response.riskThreshold must be within [0,100]")
	}
	for _, m := range c.Extraction.Modules {
		if m.Name == "" {
			return fmt.Errorf("extraction.modules: empty module name")
		}
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// DSN returns the DSN for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver == "postgres" {
		return c.PostgresDSN()
	}
	return c.MySQLDSN()
}

// WorstCaseJob bounds one job end to end: the download, every extraction
// module at its full timeout, and the assessment.
func (c *Config) WorstCaseJob() time.Duration {
	return c.GRR.Timeout +
		time.Duration(len(c.Extraction.Modules))*c.Extraction.ModuleTimeout +
		c.OpenAI.Timeout
}
