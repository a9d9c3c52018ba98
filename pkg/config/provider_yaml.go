package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from the YAML file. The file
// is read once and cached.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}

	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	cfg, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, err
	}
	y.config = cfg
	return cfg, nil
}

// ParseYAML decodes, defaults and validates a YAML document
func ParseYAML(data []byte) (*ConfigData, error) {
	var cfg ConfigData
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, err
	}
	return finish(&cfg)
}

// GetAnnotator returns the annotator section
func (y *YAMLProvider) GetAnnotator() (*AnnotatorData, error) {
	cfg, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.Annotator, nil
}

// GetStorageConfig returns the storage section
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	cfg, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.Storage, nil
}

// GetControllers returns the configured controllers
func (y *YAMLProvider) GetControllers() ([]ControllerData, error) {
	cfg, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Controllers, nil
}

// IsReadOnly returns true since YAML files are treated as read-only
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
