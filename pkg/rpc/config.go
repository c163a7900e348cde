package rpc

import (
	"fmt"
	"net"
	"strconv"
)

// ServerConfig 是 gRPC 服务器配置。
//
// 示例配置:
// rpcServer:
//
//	name: echo
//	host: 0.0.0.0
//	port: 9001
//	enableReflection: true
type ServerConfig struct {
	// Name 服务名称，用于健康检查和日志。
	Name string `yaml:"name" json:"name" toml:"name"`

	// Host 监听地址（默认 0.0.0.0）。
	Host string `yaml:"host" json:"host" toml:"host"`

	// Port 监听端口，0 表示由系统分配。
	Port int `yaml:"port" json:"port" toml:"port"`

	// EnableReflection 是否启用 gRPC 反射（开发环境使用）。
	EnableReflection bool `yaml:"enableReflection" json:"enableReflection" toml:"enableReflection"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// ListenAddr returns host:port, defaulting the host to 0.0.0.0.
func (c *ServerConfig) ListenAddr() string {
	host := c.Host
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}
