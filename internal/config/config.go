// Package config loads the memwatch configuration file. Files are TOML or
// YAML; values given on the command line are merged over the file.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/BurntSushi/toml"
	"github.com/RaveNoX/go-jsonmerge"
	"github.com/goccy/go-json"
	"github.com/mitchellh/hashstructure/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/kube-openapi/pkg/validation/strfmt"

	"github.com/voluzi/memwatch/pkg/memsource"
)

// Duration is a time.Duration read from text such as "500ms" or "1d".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := strfmt.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Config struct {
	Source        memsource.Kind `json:"source"`
	MetricsURL    string         `json:"metrics_url"`
	TracePath     string         `json:"trace_path"`
	CreateFifo    bool           `json:"create_fifo"`
	InitialDelay  Duration       `json:"initial_delay"`
	Period        Duration       `json:"period"`
	GracePeriod   Duration       `json:"grace_period"`
	MaxSamples    int            `json:"max_samples"`
	EventCapacity int            `json:"event_capacity"`
	Host          string         `json:"host"`
	Port          int            `json:"port"`
	ProcessName   string         `json:"process_name"`
	MockMode      bool           `json:"mock_mode"`
}

func Default() *Config {
	return &Config{
		Source:        memsource.KindRuntime,
		MetricsURL:    "http://127.0.0.1:8080/metrics",
		TracePath:     "/tmp/gctrace.fifo",
		Period:        Duration{time.Second},
		GracePeriod:   Duration{5 * time.Second},
		MaxSamples:    3600,
		EventCapacity: 100,
		Host:          "0.0.0.0",
		Port:          8000,
	}
}

// Load reads path over the defaults and then applies overrides, keyed like the
// file. An empty path skips the file.
func Load(path string, overrides map[string]interface{}) (*Config, error) {
	doc, err := toDocument(Default())
	if err != nil {
		return nil, err
	}

	if path != "" {
		fileDoc, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if doc, err = merge(doc, fileDoc); err != nil {
			return nil, errors.WrapIfWithDetails(err, "invalid config file", "path", path)
		}
	}

	if len(overrides) > 0 {
		if doc, err = merge(doc, overrides); err != nil {
			return nil, errors.WrapIf(err, "invalid config override")
		}
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, errors.WrapIf(err, "invalid config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if !c.Source.Valid() {
		return errors.WithDetails(memsource.ErrUnsupportedKind, "kind", string(c.Source))
	}
	if c.Period.Duration <= 0 {
		return errors.New("period must be positive")
	}
	if c.MaxSamples < 1 {
		return errors.New("max_samples must be at least 1")
	}
	return nil
}

// Hash identifies the effective configuration. Equal configs hash equally.
func (c *Config) Hash() (string, error) {
	hash, err := hashstructure.Hash(c, hashstructure.FormatV2, &hashstructure.HashOptions{
		ZeroNil: true,
	})
	return strconv.FormatUint(hash, 10), err
}

func toDocument(cfg *Config) (map[string]interface{}, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	doc := make(map[string]interface{})
	return doc, errors.WithStack(json.Unmarshal(b, &doc))
}

func readFile(path string) (map[string]interface{}, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	doc := make(map[string]interface{})
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(body), &doc); err != nil {
			return nil, errors.WrapIfWithDetails(err, "failed to parse toml", "path", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(body, &doc); err != nil {
			return nil, errors.WrapIfWithDetails(err, "failed to parse yaml", "path", path)
		}
	default:
		return nil, errors.NewWithDetails("unsupported config file extension", "extension", ext)
	}
	return doc, nil
}

func merge(data, patch interface{}) (map[string]interface{}, error) {
	out, info := jsonmerge.Merge(data, patch)
	if len(info.Errors) > 0 {
		return nil, info.Errors[0]
	}
	doc, ok := out.(map[string]interface{})
	if !ok {
		return nil, errors.New("config is not a table")
	}
	return doc, nil
}
