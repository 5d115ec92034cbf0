package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vango-dev/vango-web/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "vango-web.json"

	// DefaultRootID is the id attribute of the mount container.
	DefaultRootID = "main"

	// DefaultNodeLimit caps the number of live nodes in the document.
	DefaultNodeLimit = 1 << 20

	// DefaultIngestDir is where DiskStore keeps ingested files.
	DefaultIngestDir = ".vango-web/ingest"

	// DefaultMaxFileSize is the largest file the ingest store accepts.
	DefaultMaxFileSize = 10 << 20

	// DefaultIngestTimeout bounds one background upload.
	DefaultIngestTimeout = 30 * time.Second

	// DefaultCleanupAge is how long unclaimed files are kept.
	DefaultCleanupAge = time.Hour

	// DefaultEvalTimeout bounds one eval request.
	DefaultEvalTimeout = 5 * time.Second

	// DefaultInitialBackoff and DefaultMaxBackoff are the reconnect delays
	// of the hot-reload client.
	DefaultInitialBackoff = 250 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
)

// Feature toggle names.
const (
	FeatureMountReporting = "mount-reporting"
	FeatureFileIngest     = "file-ingest"
	FeatureHotReload      = "hot-reload"
	FeatureEval           = "eval"
)

// FeatureNames lists every feature toggle.
var FeatureNames = []string{FeatureMountReporting, FeatureFileIngest, FeatureHotReload, FeatureEval}

// Config represents the complete vango-web.json configuration.
type Config struct {
	// Features toggles the optional parts of the renderer.
	Features Features `json:"features"`

	// Document configures the native document.
	Document DocumentConfig `json:"document"`

	// HotReload configures the template hot-reload client.
	HotReload HotReloadConfig `json:"hotReload"`

	// Ingest configures file ingestion.
	Ingest IngestConfig `json:"ingest"`

	// Eval configures the eval channel.
	Eval EvalConfig `json:"eval"`

	// Metrics configures the Prometheus collectors.
	Metrics MetricsConfig `json:"metrics"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// Features are the renderer's feature toggles.
type Features struct {
	MountReporting bool `json:"mountReporting"`
	FileIngest     bool `json:"fileIngest"`
	HotReload      bool `json:"hotReload"`
	Eval           bool `json:"eval"`
}

// Enabled reports whether the named feature is on. Unknown names are off.
func (f Features) Enabled(name string) bool {
	switch name {
	case FeatureMountReporting:
		return f.MountReporting
	case FeatureFileIngest:
		return f.FileIngest
	case FeatureHotReload:
		return f.HotReload
	case FeatureEval:
		return f.Eval
	}
	return false
}

// Set turns the named feature on or off.
func (f *Features) Set(name string, on bool) error {
	switch name {
	case FeatureMountReporting:
		f.MountReporting = on
	case FeatureFileIngest:
		f.FileIngest = on
	case FeatureHotReload:
		f.HotReload = on
	case FeatureEval:
		f.Eval = on
	default:
		return errors.New("R060").
			WithDetail(fmt.Sprintf("Unknown feature %q", name)).
			WithSuggestion("Known features: " + strings.Join(FeatureNames, ", "))
	}
	return nil
}

// DocumentConfig contains native document settings.
type DocumentConfig struct {
	// RootID is the id attribute of the mount container.
	RootID string `json:"rootId,omitempty"`

	// NodeLimit caps the number of nodes; creation beyond it fails.
	NodeLimit int `json:"nodeLimit,omitempty"`
}

// HotReloadConfig contains hot-reload client settings.
type HotReloadConfig struct {
	// URL is the websocket endpoint of the reload server.
	URL string `json:"url,omitempty"`

	InitialBackoff Duration `json:"initialBackoff,omitempty"`
	MaxBackoff     Duration `json:"maxBackoff,omitempty"`
}

// IngestConfig contains file ingestion settings.
type IngestConfig struct {
	// Dir is the DiskStore directory. Ignored when S3 is configured.
	Dir string `json:"dir,omitempty"`

	// MaxFileSize is the largest accepted file in bytes.
	MaxFileSize int64 `json:"maxFileSize,omitempty"`

	// Timeout bounds one background upload.
	Timeout Duration `json:"timeout,omitempty"`

	// CleanupAge is how long unclaimed files are kept. Cleanup runs every
	// CleanupAge/2.
	CleanupAge Duration `json:"cleanupAge,omitempty"`

	// S3 stores files in a bucket instead of Dir.
	S3 *S3Config `json:"s3,omitempty"`
}

// S3Config selects an S3 bucket for ingested files.
type S3Config struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`
	Region string `json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint (for S3-compatible stores).
	Endpoint string `json:"endpoint,omitempty"`
}

// EvalConfig contains eval channel settings.
type EvalConfig struct {
	// Timeout bounds one request when the caller's context has no deadline.
	Timeout Duration `json:"timeout,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Namespace prefixes every metric name.
	Namespace string `json:"namespace,omitempty"`
}

// New creates a new Config with default values. All features are off.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads configuration from the specified directory.
// It looks for vango-web.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("R061").
				WithDetail("No " + ConfigFileName + " found at " + path).
				Wrap(err)
		}
		return nil, errors.New("R061").Wrap(err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("R061").
			WithDetail("Failed to parse " + path + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("R061").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("R061").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Document.RootID == "" {
		c.Document.RootID = DefaultRootID
	}
	if c.Document.NodeLimit == 0 {
		c.Document.NodeLimit = DefaultNodeLimit
	}

	if c.HotReload.InitialBackoff == 0 {
		c.HotReload.InitialBackoff = Duration(DefaultInitialBackoff)
	}
	if c.HotReload.MaxBackoff == 0 {
		c.HotReload.MaxBackoff = Duration(DefaultMaxBackoff)
	}

	if c.Ingest.Dir == "" {
		c.Ingest.Dir = DefaultIngestDir
	}
	if c.Ingest.MaxFileSize == 0 {
		c.Ingest.MaxFileSize = DefaultMaxFileSize
	}
	if c.Ingest.Timeout == 0 {
		c.Ingest.Timeout = Duration(DefaultIngestTimeout)
	}
	if c.Ingest.CleanupAge == 0 {
		c.Ingest.CleanupAge = Duration(DefaultCleanupAge)
	}

	if c.Eval.Timeout == 0 {
		c.Eval.Timeout = Duration(DefaultEvalTimeout)
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "vango_web"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(detail string) *errors.RenderError {
		return errors.New("R060").WithDetail(detail)
	}
	switch {
	case c.Document.NodeLimit < 0:
		return invalid("document.nodeLimit must not be negative")
	case c.HotReload.InitialBackoff <= 0:
		return invalid("hotReload.initialBackoff must be positive")
	case c.HotReload.MaxBackoff < c.HotReload.InitialBackoff:
		return invalid("hotReload.maxBackoff must not be below hotReload.initialBackoff")
	case c.Ingest.MaxFileSize < 0:
		return invalid("ingest.maxFileSize must not be negative")
	case c.Ingest.CleanupAge <= 0:
		return invalid("ingest.cleanupAge must be positive")
	case c.Ingest.S3 != nil && c.Ingest.S3.Bucket == "":
		return invalid("ingest.s3.bucket is required when ingest.s3 is set")
	case c.Eval.Timeout < 0:
		return invalid("eval.timeout must not be negative")
	}
	if c.Features.HotReload {
		if c.HotReload.URL == "" {
			return invalid("hotReload.url is required when the hot-reload feature is on").
				WithSuggestion(`Set "hotReload.url" to the reload server's /ws endpoint, e.g. ws://localhost:3001/ws`)
		}
		if !strings.HasPrefix(c.HotReload.URL, "ws://") && !strings.HasPrefix(c.HotReload.URL, "wss://") {
			return invalid("hotReload.url must use the ws or wss scheme")
		}
	}
	return nil
}

// IngestPath returns the absolute path to the ingest directory.
func (c *Config) IngestPath() string {
	if filepath.IsAbs(c.Ingest.Dir) {
		return c.Ingest.Dir
	}
	return filepath.Join(c.Dir(), c.Ingest.Dir)
}
