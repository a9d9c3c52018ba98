package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

const sampleYAML = `
annotator:
  sampling-rate: 400
  classifier:
    endpoint: http://model:8000
storage:
  sqlite:
    path: /var/lib/ecogmark/archive.db
controllers:
  - type: rest
    rest:
      port: 9090
`

func TestParseYAMLDefaults(t *testing.T) {
	cfg, err := ParseYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}

	if cfg.Annotator.SamplingRate != 400 {
		t.Errorf("SamplingRate = %v", cfg.Annotator.SamplingRate)
	}
	if !reflect.DeepEqual(cfg.Annotator.Channels, DefaultChannels) {
		t.Errorf("Channels = %v", cfg.Annotator.Channels)
	}
	cl := cfg.Annotator.Classifier
	if cl == nil || cl.WindowSeconds != DefaultClassifierWindow || cl.TimeoutDuration() != 30*time.Second {
		t.Errorf("classifier = %+v", cl)
	}
	if cfg.Storage.SQLite == nil || cfg.Storage.SQLite.Path != "/var/lib/ecogmark/archive.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	rs := cfg.Controllers[0].RESTServer
	if rs.Port != 9090 || rs.ListenAddr != DefaultListenAddr || rs.StaticDir != DefaultStaticDir {
		t.Errorf("rest = %+v", rs)
	}
}

func TestParseYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "annotator:\n  sample-rate: 400\n"},
		{"negative rate", "annotator:\n  sampling-rate: -1\n"},
		{"two channels", "annotator:\n  channels: [a, b]\n"},
		{"classifier without endpoint", "annotator:\n  classifier:\n    window-seconds: 2\n"},
		{"unknown controller", "controllers:\n  - type: grpc\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseYAML([]byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestYAMLProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewYAMLProvider(path)
	defer p.Close()

	controllers, err := p.GetControllers()
	if err != nil {
		t.Fatalf("GetControllers: %v", err)
	}
	if len(controllers) != 1 || controllers[0].Type != "rest" {
		t.Errorf("controllers = %+v", controllers)
	}
	if !p.IsReadOnly() {
		t.Error("YAML provider should be read-only")
	}

	if _, err := NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml")).LoadConfig(); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("NewSQLiteProvider: %v", err)
	}
	defer p.Close()

	empty, err := p.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig on empty database: %v", err)
	}
	if empty.Annotator.SamplingRate != DefaultSamplingRate {
		t.Errorf("empty config rate = %v", empty.Annotator.SamplingRate)
	}

	want, err := ParseYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	want.Storage.TimescaleDB = &TimescaleDBData{ConnectionString: "postgres://localhost/ecog"}
	if err := p.SaveConfig(want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got, err := p.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("loaded config differs:\n got %+v\nwant %+v", got, want)
	}
	if p.IsReadOnly() {
		t.Error("SQLite provider should be writable")
	}
}
