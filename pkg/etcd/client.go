// Package etcd builds etcd v3 clients from configuration.
package etcd

import (
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// NewClient 使用配置创建 etcd client
// clientv3.New 不会阻塞等待连接建立，连接失败会在首次请求时暴露
func NewClient(cfg *Config) (*clientv3.Client, error) {
	clientV3Config, err := cfg.ClientV3Config()
	if err != nil {
		return nil, err
	}
	client, err := clientv3.New(*clientV3Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return client, nil
}

// MustNewClient 使用配置创建 etcd client，失败时 panic
func MustNewClient(cfg *Config) *clientv3.Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic("etcd: " + err.Error())
	}
	return client
}
