package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format 配置文件格式
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatTOML    Format = "toml"
	FormatUnknown Format = ""
)

// DetectFormat 根据文件扩展名检测格式
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatUnknown
	}
}

// decode 按格式将字节流解码到 target
func decode(data []byte, format Format, target any) error {
	switch format {
	case FormatJSON:
		return decodeJSON(data, target)
	case FormatYAML:
		err := yaml.NewDecoder(bytes.NewReader(data)).Decode(target)
		// An empty document leaves target untouched.
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), target); err != nil {
			return fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format: %q", format)
	}
	return nil
}

// decodeJSON 先解析 JSON 文档，再经 YAML 解码到 target。
// 字段按 yaml 标签匹配，时长与 YAML 一样写成 "2s" 形式。
func decodeJSON(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	if doc == nil {
		return nil
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert JSON: %w", err)
	}
	if err := yaml.Unmarshal(out, target); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}
