package xlog

// Config 日志配置
//
// 示例配置:
//
//	logger:
//	  level: debug
//	  format: json
//	  output: /var/log/pathfinder.log
type Config struct {
	// Level 日志级别：debug/info/warn/error（默认 info）
	Level string `yaml:"level" json:"level" toml:"level"`

	// Format 日志格式：json/text（默认 text）
	Format string `yaml:"format" json:"format" toml:"format"`

	// AddSource 是否添加源码位置（文件名、行号）
	AddSource bool `yaml:"addSource" json:"addSource" toml:"addSource"`

	// Output 输出目标：stdout/stderr/discard/文件路径（默认 stdout）
	// 文件以追加方式打开，轮转交给外部工具（logrotate 等）
	Output string `yaml:"output" json:"output" toml:"output"`
}
