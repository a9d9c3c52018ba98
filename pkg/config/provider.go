// Package config loads ecogmark configuration from YAML files or SQLite databases.
package config

import (
	"fmt"
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration, with defaults applied
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetAnnotator() (*AnnotatorData, error)
	GetStorageConfig() (*StorageData, error)
	GetControllers() ([]ControllerData, error)

	IsReadOnly() bool
	Close() error
}

// Defaults
const (
	DefaultSamplingRate          = 400.0
	DefaultListenAddr            = "0.0.0.0"
	DefaultPort                  = 8080
	DefaultStaticDir             = "static"
	DefaultMaxUploadMB           = 512
	DefaultClassifierWindow      = 4.0
	DefaultClassifierTimeout     = 30 * time.Second
	DefaultClassifierTimeoutText = "30s"
)

// DefaultChannels is the electrode montage expected in uploaded recordings
var DefaultChannels = []string{"FrL", "FrR", "OcR"}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Annotator   AnnotatorData    `json:"annotator" yaml:"annotator"`
	Storage     StorageData      `json:"storage,omitempty" yaml:"storage,omitempty"`
	Controllers []ControllerData `json:"controllers,omitempty" yaml:"controllers,omitempty"`
}

// AnnotatorData configures the annotation codec
type AnnotatorData struct {
	SamplingRate float64         `json:"sampling_rate" yaml:"sampling-rate"`
	Channels     []string        `json:"channels,omitempty" yaml:"channels,omitempty"`
	Classifier   *ClassifierData `json:"classifier,omitempty" yaml:"classifier,omitempty"`
}

// ChannelLabels returns the three configured electrode labels in order
func (a *AnnotatorData) ChannelLabels() [3]string {
	var labels [3]string
	for i := range labels {
		if i < len(a.Channels) {
			labels[i] = a.Channels[i]
		} else {
			labels[i] = DefaultChannels[i]
		}
	}
	return labels
}

// ClassifierData points at the external model service
type ClassifierData struct {
	Endpoint      string  `json:"endpoint" yaml:"endpoint"`
	WindowSeconds float64 `json:"window_seconds,omitempty" yaml:"window-seconds,omitempty"`
	Timeout       string  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// TimeoutDuration parses Timeout, falling back to the default
func (c *ClassifierData) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return DefaultClassifierTimeout
	}
	return d
}

// StorageData holds the configuration for the storage backends.
// More than one backend can be used simultaneously.
type StorageData struct {
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty" yaml:"timescaledb,omitempty"`
	SQLite      *SQLiteData      `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string" yaml:"connection-string"`
}

type SQLiteData struct {
	Path string `json:"path" yaml:"path"`
}

// ControllerData holds the configuration for a controller
type ControllerData struct {
	Type       string          `json:"type,omitempty" yaml:"type,omitempty"`
	RESTServer *RESTServerData `json:"rest,omitempty" yaml:"rest,omitempty"`
}

type RESTServerData struct {
	Cert        string `json:"cert,omitempty" yaml:"cert,omitempty"`
	Key         string `json:"key,omitempty" yaml:"key,omitempty"`
	Port        int    `json:"port,omitempty" yaml:"port,omitempty"`
	ListenAddr  string `json:"listen_addr,omitempty" yaml:"listen-addr,omitempty"`
	StaticDir   string `json:"static_dir,omitempty" yaml:"static-dir,omitempty"`
	MaxUploadMB int    `json:"max_upload_mb,omitempty" yaml:"max-upload-mb,omitempty"`
}

// ApplyDefaults fills unset fields
func (c *ConfigData) ApplyDefaults() {
	if c.Annotator.SamplingRate == 0 {
		c.Annotator.SamplingRate = DefaultSamplingRate
	}
	if len(c.Annotator.Channels) == 0 {
		c.Annotator.Channels = append([]string(nil), DefaultChannels...)
	}
	if cl := c.Annotator.Classifier; cl != nil {
		if cl.WindowSeconds == 0 {
			cl.WindowSeconds = DefaultClassifierWindow
		}
		if cl.Timeout == "" {
			cl.Timeout = DefaultClassifierTimeoutText
		}
	}

	for i := range c.Controllers {
		rs := c.Controllers[i].RESTServer
		if rs == nil {
			continue
		}
		if rs.ListenAddr == "" {
			rs.ListenAddr = DefaultListenAddr
		}
		if rs.Port == 0 {
			rs.Port = DefaultPort
		}
		if rs.StaticDir == "" {
			rs.StaticDir = DefaultStaticDir
		}
		if rs.MaxUploadMB == 0 {
			rs.MaxUploadMB = DefaultMaxUploadMB
		}
	}
}

// Validate reports configuration that cannot work
func (c *ConfigData) Validate() error {
	if c.Annotator.SamplingRate <= 0 {
		return fmt.Errorf("annotator sampling rate must be positive, got %g", c.Annotator.SamplingRate)
	}
	if len(c.Annotator.Channels) != 3 {
		return fmt.Errorf("annotator needs exactly 3 channels, got %d", len(c.Annotator.Channels))
	}
	if cl := c.Annotator.Classifier; cl != nil && cl.Endpoint == "" {
		return fmt.Errorf("classifier configured without an endpoint")
	}
	for i, ctrl := range c.Controllers {
		switch ctrl.Type {
		case "rest":
			if ctrl.RESTServer == nil {
				return fmt.Errorf("controller %d: type rest without rest settings", i)
			}
		default:
			return fmt.Errorf("controller %d: unknown type %q", i, ctrl.Type)
		}
	}
	return nil
}

// finish applies defaults and validates; shared by the providers
func finish(c *ConfigData) (*ConfigData, error) {
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}
