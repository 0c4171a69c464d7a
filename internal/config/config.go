package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go-linkrot/internal/crawl"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvDatabaseURL overrides database.url when set.
const EnvDatabaseURL = "LINKROT_DATABASE_URL"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type CrawlConfig struct {
	MaxConcurrency        int           `yaml:"max_concurrency"`
	MaxPages              int           `yaml:"max_pages"`
	NonDocumentExtensions []string      `yaml:"non_document_extensions"`
	UserAgent             string        `yaml:"user_agent"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	MaxBodyBytes          int64         `yaml:"max_body_bytes"`
	RequestsPerSecond     float64       `yaml:"requests_per_second"`
	MaxRedirects          int           `yaml:"max_redirects"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

func Default() *Config {
	engine := crawl.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Crawl: CrawlConfig{
			MaxConcurrency: engine.MaxConcurrency,
			UserAgent:      engine.Fetcher.UserAgent,
			RequestTimeout: engine.Fetcher.Timeout,
			MaxBodyBytes:   engine.Fetcher.MaxBodyBytes,
			MaxRedirects:   engine.Fetcher.MaxRedirects,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path yields the
// defaults. The environment override is applied last and the result is
// validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Database.URL = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Crawl.MaxConcurrency < 1 {
		errs = append(errs, errors.New("crawl.max_concurrency must be at least 1"))
	}
	if c.Crawl.MaxPages < 0 {
		errs = append(errs, errors.New("crawl.max_pages must not be negative"))
	}
	if c.Crawl.RequestTimeout <= 0 {
		errs = append(errs, errors.New("crawl.request_timeout must be positive"))
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("crawl.max_body_bytes must be positive"))
	}
	if c.Crawl.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("crawl.requests_per_second must not be negative"))
	}
	if c.Crawl.MaxRedirects < 1 {
		errs = append(errs, errors.New("crawl.max_redirects must be at least 1"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Engine converts the crawl section into the engine's settings.
func (c CrawlConfig) Engine() crawl.Config {
	return crawl.Config{
		MaxConcurrency:        c.MaxConcurrency,
		NonDocumentExtensions: c.NonDocumentExtensions,
		MaxPages:              c.MaxPages,
		Fetcher: crawl.FetcherConfig{
			UserAgent:         c.UserAgent,
			Timeout:           c.RequestTimeout,
			MaxBodyBytes:      c.MaxBodyBytes,
			MaxRedirects:      c.MaxRedirects,
			RequestsPerSecond: c.RequestsPerSecond,
		},
	}
}
