package etcd

import (
	"errors"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Config is the configuration for etcd client connection.
//
//	etcd:
//	  endpoints: ["127.0.0.1:2379"]
//	  dialTimeout: 5s
type Config struct {
	// Endpoints is the list of etcd node addresses.
	Endpoints []string `yaml:"endpoints" json:"endpoints" toml:"endpoints"`

	// DialTimeout is the connection timeout (default: 5s).
	DialTimeout time.Duration `yaml:"dialTimeout" json:"dialTimeout" toml:"dialTimeout"`

	// AutoSyncInterval is the interval to refresh endpoints from the cluster
	// membership. Zero disables auto-sync.
	AutoSyncInterval time.Duration `yaml:"autoSyncInterval" json:"autoSyncInterval" toml:"autoSyncInterval"`

	// Username is the etcd username (optional).
	Username string `yaml:"username" json:"username" toml:"username"`

	// Password is the etcd password (optional).
	Password string `yaml:"password" json:"password" toml:"password"`

	// ClientLog enables the etcd client's internal zap logging.
	ClientLog bool `yaml:"clientLog" json:"clientLog" toml:"clientLog"`
}

// ClientV3Config returns a clientv3.Config for creating an etcd client.
func (c *Config) ClientV3Config() (*clientv3.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg := &clientv3.Config{
		Endpoints:        c.Endpoints,
		AutoSyncInterval: c.AutoSyncInterval,
	}

	if c.DialTimeout > 0 {
		cfg.DialTimeout = c.DialTimeout
	} else {
		cfg.DialTimeout = 5 * time.Second
	}

	if c.Username != "" {
		cfg.Username = c.Username
		cfg.Password = c.Password
	}

	if c.ClientLog {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		cfg.Logger = logger
	} else {
		cfg.Logger = zap.NewNop()
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("etcd config is nil")
	}
	if len(c.Endpoints) == 0 {
		return errors.New("endpoints not configured")
	}
	for _, ep := range c.Endpoints {
		if ep == "" {
			return errors.New("empty endpoint in etcd config")
		}
	}
	return nil
}
