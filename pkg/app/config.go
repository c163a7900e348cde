package app

import (
	"errors"
	"fmt"

	"github.com/HorseArcher567/pathfinder/pkg/api"
	"github.com/HorseArcher567/pathfinder/pkg/channel"
	"github.com/HorseArcher567/pathfinder/pkg/etcd"
	"github.com/HorseArcher567/pathfinder/pkg/rpc"
	"github.com/HorseArcher567/pathfinder/pkg/xlog"
)

// Framework holds the configuration of every part an App can run. Sections
// left nil are disabled. It is meant to be embedded into the user's own
// configuration struct.
//
// Example:
//
//	type Config struct {
//	    app.Framework `yaml:",inline"`
//	    Greeting string `yaml:"greeting"`
//	}
//
//	var cfg Config
//	config.MustLoad("config.yaml", &cfg)
//	a := app.MustNew(&cfg.Framework)
type Framework struct {
	// Logger configures the application logger.
	Logger xlog.Config `yaml:"logger" json:"logger" toml:"logger"`

	// Etcd configures the coordination store client.
	Etcd *etcd.Config `yaml:"etcd" json:"etcd" toml:"etcd"`

	// Discovery enables the watcher and the router.
	Discovery *DiscoveryConfig `yaml:"discovery" json:"discovery" toml:"discovery"`

	// Registration registers this process as a service instance.
	Registration *RegistrationConfig `yaml:"registration" json:"registration" toml:"registration"`

	// RpcServer configures the gRPC server.
	RpcServer *rpc.ServerConfig `yaml:"rpcServer" json:"rpcServer" toml:"rpcServer"`

	// ApiServer configures the admin HTTP server.
	ApiServer *api.ServerConfig `yaml:"apiServer" json:"apiServer" toml:"apiServer"`
}

// DiscoveryConfig 服务发现配置。
//
// 示例配置:
// discovery:
//
//	basePath: /service
//	follow: [/service/echo]
//	reconnect: true
//	channel:
//	  callTimeout: 2s
//	  maxRetries: 3
type DiscoveryConfig struct {
	// BasePath 监听的前缀路径。
	BasePath string `yaml:"basePath" json:"basePath" toml:"basePath"`

	// Follow 需要关注的服务名（完整路径，如 /service/echo）。
	Follow []string `yaml:"follow" json:"follow" toml:"follow"`

	// Reconnect watch 断开后是否自动重连并全量同步。
	Reconnect bool `yaml:"reconnect" json:"reconnect" toml:"reconnect"`

	// Channel 每个 endpoint channel 的传输参数。
	Channel channel.Options `yaml:"channel" json:"channel" toml:"channel"`
}

// RegistrationConfig 服务注册配置。
//
// 示例配置:
// registration:
//
//	service: /service/echo
//	instanceId: i1
//	advertiseAddr: 10.0.0.5:9001
//	ttl: 3
type RegistrationConfig struct {
	// Service 服务名（完整路径）。
	Service string `yaml:"service" json:"service" toml:"service"`

	// InstanceID 实例 ID，为空时自动生成 UUID。
	InstanceID string `yaml:"instanceId" json:"instanceId" toml:"instanceId"`

	// AdvertiseAddr 对外公布的地址，为空时使用 RPC 服务器的监听地址。
	AdvertiseAddr string `yaml:"advertiseAddr" json:"advertiseAddr" toml:"advertiseAddr"`

	// TTL 租约时间（秒），默认 3。
	TTL int64 `yaml:"ttl" json:"ttl" toml:"ttl"`

	// RevokeOnClose 退出时是否立即撤销租约。
	RevokeOnClose bool `yaml:"revokeOnClose" json:"revokeOnClose" toml:"revokeOnClose"`

	// DisableRecovery 租约丢失后不再自动重新注册。
	DisableRecovery bool `yaml:"disableRecovery" json:"disableRecovery" toml:"disableRecovery"`
}

// Validate checks cross-section requirements. needStore reports whether a
// coordination store is required.
func (f *Framework) Validate() (needStore bool, err error) {
	if d := f.Discovery; d != nil {
		if d.BasePath == "" {
			return false, errors.New("discovery.basePath is required")
		}
		needStore = true
	}
	if r := f.Registration; r != nil {
		if r.Service == "" {
			return false, errors.New("registration.service is required")
		}
		if r.AdvertiseAddr == "" && f.RpcServer == nil {
			return false, errors.New("registration.advertiseAddr is required without rpcServer")
		}
		if r.TTL < 0 {
			return false, fmt.Errorf("invalid registration.ttl %d", r.TTL)
		}
		needStore = true
	}
	return needStore, nil
}
