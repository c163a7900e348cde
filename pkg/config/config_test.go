package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Name  string   `yaml:"name" json:"name" toml:"name"`
	Port  int      `yaml:"port" json:"port" toml:"port"`
	Hosts []string `yaml:"hosts" json:"hosts" toml:"hosts"`
	Etcd  struct {
		Endpoints   []string      `yaml:"endpoints" json:"endpoints" toml:"endpoints"`
		DialTimeout time.Duration `yaml:"dialTimeout" json:"dialTimeout" toml:"dialTimeout"`
	} `yaml:"etcd" json:"etcd" toml:"etcd"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "config.yaml",
			content: `
name: echo
port: 9001
hosts: [a, b]
etcd:
  endpoints: ["127.0.0.1:2379"]
  dialTimeout: 3s
`,
		},
		{
			name: "toml",
			file: "config.toml",
			content: `
name = "echo"
port = 9001
hosts = ["a", "b"]

[etcd]
endpoints = ["127.0.0.1:2379"]
dialTimeout = "3s"
`,
		},
		{
			name:    "json",
			file:    "config.json",
			content: `{"name":"echo","port":9001,"hosts":["a","b"],"etcd":{"endpoints":["127.0.0.1:2379"],"dialTimeout":"3s"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg testConfig
			if err := Load(writeFile(t, tt.file, tt.content), &cfg); err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Name != "echo" || cfg.Port != 9001 {
				t.Errorf("unexpected scalar values: %+v", cfg)
			}
			if len(cfg.Hosts) != 2 || cfg.Hosts[1] != "b" {
				t.Errorf("unexpected hosts: %v", cfg.Hosts)
			}
			if len(cfg.Etcd.Endpoints) != 1 || cfg.Etcd.Endpoints[0] != "127.0.0.1:2379" {
				t.Errorf("unexpected etcd endpoints: %v", cfg.Etcd.Endpoints)
			}
			if cfg.Etcd.DialTimeout != 3*time.Second {
				t.Errorf("expected dial timeout 3s, got %v", cfg.Etcd.DialTimeout)
			}
		})
	}
}

func TestLoad_UnknownExtension(t *testing.T) {
	var cfg testConfig
	if err := Load(writeFile(t, "config.ini", "name=echo"), &cfg); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg testConfig
	if err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_EmptyYAML(t *testing.T) {
	cfg := testConfig{Name: "keep"}
	if err := Load(writeFile(t, "empty.yaml", ""), &cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Name != "keep" {
		t.Errorf("empty document should not touch target, got %q", cfg.Name)
	}
}

func TestLoad_JSONFieldsFollowYAMLTags(t *testing.T) {
	type channelConfig struct {
		CallTimeout time.Duration `yaml:"callTimeout" json:"call_timeout"`
		MaxRetries  int           `yaml:"maxRetries"`
		Protocol    string        `yaml:"protocol"`
	}

	content := `{"callTimeout": "1500ms", "maxRetries": 5, "protocol": "9001"}`
	var cfg channelConfig
	if err := Load(writeFile(t, "channel.json", content), &cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CallTimeout != 1500*time.Millisecond {
		t.Errorf("callTimeout = %v, want 1.5s", cfg.CallTimeout)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("maxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.Protocol != "9001" {
		t.Errorf("numeric-looking strings must stay strings, got %q", cfg.Protocol)
	}
}

func TestLoad_EmptyJSON(t *testing.T) {
	cfg := testConfig{Name: "keep"}
	for _, content := range []string{"", "null"} {
		if err := Load(writeFile(t, "empty.json", content), &cfg); err != nil {
			t.Fatalf("Load(%q) error = %v", content, err)
		}
	}
	if cfg.Name != "keep" {
		t.Errorf("empty document should not touch target, got %q", cfg.Name)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("PATHFINDER_TEST_NAME", "from-env")

	content := `
name: ${PATHFINDER_TEST_NAME}
port: ${PATHFINDER_TEST_UNSET:8080}
`
	var cfg testConfig
	if err := Load(writeFile(t, "env.yaml", content), &cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Name != "from-env" {
		t.Errorf("expected 'from-env', got %q", cfg.Name)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default 8080, got %d", cfg.Port)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("PF_HOST", "10.0.0.1")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${PF_HOST}:2379", "10.0.0.1:2379"},
		{"${PF_MISSING:localhost}:2379", "localhost:2379"},
		{"${PF_MISSING}", ""},
		{"${PF_HOST}-${PF_MISSING:x}", "10.0.0.1-x"},
		{"broken ${PF_HOST", "broken ${PF_HOST"},
	}

	for _, tt := range tests {
		if got := ExpandEnv(tt.in); got != tt.want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMustLoadPanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustLoad() should panic on missing file")
		}
	}()

	var cfg testConfig
	MustLoad(filepath.Join(t.TempDir(), "missing.yaml"), &cfg)
}
