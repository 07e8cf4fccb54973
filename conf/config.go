package conf

import (
	"os"
	"path/filepath"

	"github.com/KotoriAster/DB/logger"

	"gopkg.in/ini.v1"
)

// CommandLineArgs 命令行参数
type CommandLineArgs struct {
	ConfigPath string
	DataDir    string
}

// Cfg 存储引擎配置
type Cfg struct {
	Raw *ini.File

	// storage
	DataDir        string `default:"data" ini:"data_dir"`
	BufferPoolSize int    `default:"4194304" ini:"buffer_pool_size"`

	// logs
	LogError string `default:"" ini:"log_error"`
	LogInfos string `default:"" ini:"log_infos"`
	LogLevel string `default:"info" ini:"log_level"`
}

// NewCfg 返回带默认值的配置
func NewCfg() *Cfg {
	return &Cfg{
		DataDir:        "data",
		BufferPoolSize: 4 * 1024 * 1024,
		LogLevel:       "info",
	}
}

// Load 加载ini配置文件，命令行参数优先
func (cfg *Cfg) Load(args *CommandLineArgs) *Cfg {
	if args != nil && args.ConfigPath != "" {
		raw, err := ini.Load(args.ConfigPath)
		if err != nil {
			logger.Warnf("Failed to load config %s, using defaults: %v", args.ConfigPath, err)
		} else {
			cfg.Raw = raw
			section := raw.Section("storage")
			if v := section.Key("data_dir").String(); v != "" {
				cfg.DataDir = v
			}
			if v, err := section.Key("buffer_pool_size").Int(); err == nil && v > 0 {
				cfg.BufferPoolSize = v
			}
			logSection := raw.Section("log")
			if v := logSection.Key("log_error").String(); v != "" {
				cfg.LogError = v
			}
			if v := logSection.Key("log_infos").String(); v != "" {
				cfg.LogInfos = v
			}
			if v := logSection.Key("log_level").String(); v != "" {
				cfg.LogLevel = v
			}
		}
	}
	if args != nil && args.DataDir != "" {
		cfg.DataDir = args.DataDir
	}
	return cfg
}

// EnsureDataDir 确保数据目录存在
func (cfg *Cfg) EnsureDataDir() error {
	return os.MkdirAll(cfg.DataDir, 0755)
}

// ResolvePath 将文件名解析到数据目录下
func (cfg *Cfg) ResolvePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.DataDir, name)
}
