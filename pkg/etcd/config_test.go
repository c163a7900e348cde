package etcd

import (
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "nil", cfg: nil, wantErr: true},
		{name: "no endpoints", cfg: &Config{}, wantErr: true},
		{name: "blank endpoint", cfg: &Config{Endpoints: []string{""}}, wantErr: true},
		{name: "ok", cfg: &Config{Endpoints: []string{"127.0.0.1:2379"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ClientV3Config(t *testing.T) {
	cfg := &Config{
		Endpoints: []string{"127.0.0.1:2379"},
		Username:  "root",
		Password:  "secret",
	}

	c, err := cfg.ClientV3Config()
	if err != nil {
		t.Fatalf("ClientV3Config() error = %v", err)
	}
	if c.DialTimeout != 5*time.Second {
		t.Errorf("expected default dial timeout 5s, got %v", c.DialTimeout)
	}
	if c.Username != "root" || c.Password != "secret" {
		t.Errorf("credentials not propagated: %q/%q", c.Username, c.Password)
	}
	if c.Logger == nil {
		t.Error("expected a non-nil zap logger")
	}

	cfg.DialTimeout = time.Second
	c, _ = cfg.ClientV3Config()
	if c.DialTimeout != time.Second {
		t.Errorf("expected dial timeout 1s, got %v", c.DialTimeout)
	}
}

func TestNewClient_InvalidConfig(t *testing.T) {
	if _, err := NewClient(&Config{}); err == nil {
		t.Fatal("expected error for empty endpoints")
	}
}
