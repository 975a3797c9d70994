package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"LineGuard/pkg/logger"
)

const envPrefix = "LINEGUARD_"

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10m"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		AllowOrigin     string        `yaml:"allow_origin" default:"*"`
	} `yaml:"server"`

	Logger logger.Config `yaml:"logger"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Dataset struct {
		Source    string        `yaml:"source" default:"csv" validate:"oneof=csv clickhouse"`
		Path      string        `yaml:"path" default:"data/train.csv"`
		Delimiter string        `yaml:"delimiter" default:","`
		MaxRows   int           `yaml:"max_rows" default:"40000" validate:"min=0"`
		CacheTTL  time.Duration `yaml:"cache_ttl" default:"10m"`
	} `yaml:"dataset"`

	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		Table            string        `yaml:"table" default:"production_line"`
		OrderBy          string        `yaml:"order_by" default:"Id"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"60s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"120s"`
	} `yaml:"clickhouse"`

	Model struct {
		ArtifactPath string        `yaml:"artifact_path" default:"models/model.bundle" validate:"required"`
		RegistryPath string        `yaml:"registry_path" default:"models/runs.db"`
		LockTTL      time.Duration `yaml:"lock_ttl" default:"30m"`
		Training     Training      `yaml:"training"`
	} `yaml:"model"`

	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"lineguard"`
		LocalTTL time.Duration `yaml:"local_ttl" default:"30s"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=none gzip snappy lz4 zstd"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Producer     struct {
			BatchSize    int           `yaml:"batch_size" default:"100" validate:"min=1"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576" validate:"min=1"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Events struct {
			Topic        string        `yaml:"topic" default:"lineguard.events"`
			MaxRPS       int           `yaml:"max_rps" default:"50" validate:"min=0"`
			BufferSize   int           `yaml:"buffer_size" default:"1000" validate:"min=1"`
			BatchTimeout time.Duration `yaml:"batch_timeout" default:"100ms"`
		} `yaml:"events"`
		Scoring struct {
			RequestsTopic string        `yaml:"requests_topic" default:"lineguard.scoring.requests"`
			ResultsTopic  string        `yaml:"results_topic" default:"lineguard.scoring.results"`
			GroupID       string        `yaml:"group_id" default:"lineguard-scoring"`
			Workers       int           `yaml:"workers" default:"2" validate:"min=1"`
			BufferSize    int           `yaml:"buffer_size" default:"16" validate:"min=1"`
			RetryMax      int           `yaml:"retry_max" default:"3" validate:"min=0"`
			BackoffMin    time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax    time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic      string        `yaml:"dlq_topic" default:"lineguard.scoring.dlq"`
		} `yaml:"scoring"`
	} `yaml:"kafka"`

	Simulation struct {
		Interval time.Duration `yaml:"interval" default:"1s" validate:"min=0"`
		MaxRows  int           `yaml:"max_rows" default:"5000" validate:"min=0"`
	} `yaml:"simulation"`

	RateLimit struct {
		Predict struct {
			Capacity     float64 `yaml:"capacity" default:"20" validate:"min=0"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"10" validate:"min=0"`
		} `yaml:"predict"`
	} `yaml:"ratelimit"`
}

// Training holds the boosting hyperparameters.
type Training struct {
	Rounds          int     `yaml:"rounds" default:"200" validate:"min=1"`
	MaxDepth        int     `yaml:"max_depth" default:"6" validate:"min=1,max=16"`
	LearningRate    float64 `yaml:"learning_rate" default:"0.1" validate:"gt=0,lte=1"`
	Subsample       float64 `yaml:"subsample" default:"0.9" validate:"gt=0,lte=1"`
	ColsampleByTree float64 `yaml:"colsample_bytree" default:"0.9" validate:"gt=0,lte=1"`
	Lambda          float64 `yaml:"lambda" default:"1" validate:"min=0"`
	MinChildWeight  float64 `yaml:"min_child_weight" default:"1" validate:"min=0"`
	MaxBins         int     `yaml:"max_bins" default:"256" validate:"min=2,max=256"`
	Seed            int64   `yaml:"seed" default:"42"`
	Workers         int     `yaml:"workers" validate:"min=0"`
	Objective       string  `yaml:"objective" default:"binary:logistic" validate:"oneof=binary:logistic binary:logitraw"`
}

// Load reads a YAML configuration file, fills defaults and validates it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes; an empty document yields the defaults.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (when present), the YAML file, then applies
// environment overrides and validates the result again.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	var errList []error
	num := func(dst *int, key string) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(dst *bool, key string) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	list := func(dst *[]string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = splitList(v)
				return
			}
		}
	}

	str(&c.Environment, envPrefix+"ENV")
	num(&c.Server.Port, envPrefix+"PORT")
	str(&c.Server.AllowOrigin, "ALLOW_ORIGIN", envPrefix+"ALLOW_ORIGIN")
	str(&c.Logger.Level, envPrefix+"LOG_LEVEL")
	str(&c.Logger.Format, envPrefix+"LOG_FORMAT")
	str(&c.Dataset.Source, envPrefix+"DATASET_SOURCE")
	str(&c.Dataset.Path, "DATASET_PATH", envPrefix+"DATASET_PATH")
	num(&c.Dataset.MaxRows, envPrefix+"DATASET_MAX_ROWS")
	str(&c.ClickHouse.Host, envPrefix+"CLICKHOUSE_HOST")
	str(&c.ClickHouse.Password, envPrefix+"CLICKHOUSE_PASSWORD")
	str(&c.Model.ArtifactPath, "MODEL_PATH", envPrefix+"MODEL_PATH")
	str(&c.Model.RegistryPath, envPrefix+"REGISTRY_PATH")
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	str(&c.Redis.Password, envPrefix+"REDIS_PASSWORD")
	flag(&c.Redis.Enabled, envPrefix+"REDIS_ENABLED")
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	list(&c.Kafka.Brokers, envPrefix+"KAFKA_BROKERS")
	flag(&c.Kafka.Enabled, envPrefix+"KAFKA_ENABLED")

	return errors.Join(errList...)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var validate = validator.New()

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.Dataset.Source {
	case "csv":
		if c.Dataset.Path == "" {
			return fmt.Errorf("dataset.path is required for the csv source")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for the clickhouse source")
		}
		if c.ClickHouse.Table == "" || c.ClickHouse.OrderBy == "" {
			return fmt.Errorf("clickhouse.table and clickhouse.order_by are required")
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Enabled && c.Kafka.Scoring.BackoffMax < c.Kafka.Scoring.BackoffMin {
		return fmt.Errorf("kafka.scoring.backoff_max must be >= backoff_min")
	}
	return nil
}
