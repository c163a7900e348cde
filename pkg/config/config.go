// Package config loads JSON, YAML and TOML files straight into Go structs.
// JSON and YAML documents are matched through yaml tags, TOML through toml
// tags, so a duration reads as "2s" in every format.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Load 加载配置文件（按扩展名识别格式）并解码到 target
// 支持环境变量替换，格式: ${ENV_VAR} 或 ${ENV_VAR:default_value}
func Load(path string, target any) error {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return fmt.Errorf("cannot detect format from file extension: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := LoadBytes(data, format, target); err != nil {
		return fmt.Errorf("failed to load config from file %s: %w", path, err)
	}
	return nil
}

// LoadBytes 从字节流加载配置，同样支持环境变量替换
func LoadBytes(data []byte, format Format, target any) error {
	if target == nil {
		return fmt.Errorf("config target cannot be nil")
	}
	return decode([]byte(ExpandEnv(string(data))), format, target)
}

// MustLoad 加载配置文件，失败时 panic
// 适用于程序启动阶段，配置加载失败时程序无法继续运行
func MustLoad(path string, target any) {
	if err := Load(path, target); err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
}

// ExpandEnv 展开环境变量
// 支持格式: ${ENV_VAR} 或 ${ENV_VAR:default_value}
// 未设置且没有默认值的变量替换为空串；不完整的 "${" 原样保留
func ExpandEnv(value string) string {
	if !strings.Contains(value, "${") {
		return value
	}

	var b strings.Builder
	b.Grow(len(value))

	rest := value
	for {
		start := strings.Index(rest, "${")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(rest[:start])

		name, def, _ := strings.Cut(rest[start+2:end], ":")
		if v := os.Getenv(name); v != "" {
			b.WriteString(v)
		} else {
			b.WriteString(def)
		}
		rest = rest[end+1:]
	}
	b.WriteString(rest)
	return b.String()
}
