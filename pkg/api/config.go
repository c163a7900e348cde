package api

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// ServerConfig 是管理接口（/healthz、/metrics、/services）的 HTTP 服务配置。
//
// 示例配置:
// apiServer:
//
//	appName: pathfinder
//	host: 127.0.0.1
//	port: 8080
//	mode: release
//	enablePProf: false
//	readTimeout: 5s
//	writeTimeout: 10s
//	idleTimeout: 60s
type ServerConfig struct {
	// AppName 进程名称，写入每条访问日志。
	AppName string `yaml:"appName" json:"appName" toml:"appName"`

	// Host 监听地址，默认 0.0.0.0；只供本机运维时建议 127.0.0.1。
	Host string `yaml:"host" json:"host" toml:"host"`

	// Port 监听端口，0 表示由系统分配（实际地址见 Server.Addr）。
	Port int `yaml:"port" json:"port" toml:"port"`

	// Mode Gin 运行模式: debug / release / test，默认 release。
	Mode string `yaml:"mode" json:"mode" toml:"mode"`

	// EnablePProf 在 /debug/pprof 下挂载 pprof。
	EnablePProf bool `yaml:"enablePProf" json:"enablePProf" toml:"enablePProf"`

	// ReadTimeout、WriteTimeout、IdleTimeout 为 0 时不限制。
	ReadTimeout  time.Duration `yaml:"readTimeout" json:"readTimeout" toml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout" json:"writeTimeout" toml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout" json:"idleTimeout" toml:"idleTimeout"`
}

// Validate checks the port range and timeouts.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("negative timeout")
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
