package registry

import (
	"errors"
	"strings"
)

// Instance describes one running replica. Its store key is
// "<base>/<service>/<id>" and its value is Addr.
type Instance struct {
	Base    string `yaml:"base" json:"base" toml:"base"`
	Service string `yaml:"service" json:"service" toml:"service"`
	ID      string `yaml:"id" json:"id" toml:"id"`
	Addr    string `yaml:"addr" json:"addr" toml:"addr"`
}

func (i *Instance) Validate() error {
	if i == nil {
		return errors.New("instance is nil")
	}
	if strings.Trim(i.Service, "/") == "" {
		return errors.New("service is required")
	}
	if strings.Trim(i.ID, "/") == "" {
		return errors.New("id is required")
	}
	if strings.Contains(strings.Trim(i.ID, "/"), "/") {
		return errors.New("id must not contain '/'")
	}
	if i.Addr == "" {
		return errors.New("addr is required")
	}
	return nil
}

// ServiceKey is the service name as watchers derive it from Key.
func (i *Instance) ServiceKey() string {
	return JoinPath(i.Base, i.Service)
}

func (i *Instance) Key() string {
	return JoinPath(i.Base, i.Service, i.ID)
}

// ServiceName derives the service name from an instance key by dropping the
// last "/"-delimited segment. A key without any "/" is its own service name.
func ServiceName(key string) string {
	idx := strings.LastIndexByte(key, '/')
	if idx < 0 {
		return key
	}
	return key[:idx]
}

// JoinPath joins path segments with single slashes and a leading slash.
// Empty segments are skipped.
func JoinPath(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(p)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}
