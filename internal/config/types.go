package config

import (
	"time"
)

// Config represents the full toolweave configuration document.
type Config struct {
	Repository RepositoryConfig `yaml:"repository" toml:"repository"`
	Storage    StorageConfig    `yaml:"storage,omitempty" toml:"storage"`
	Partition  PartitionConfig  `yaml:"partition,omitempty" toml:"partition"`
	Execution  ExecutionConfig  `yaml:"execution,omitempty" toml:"execution"`
	Logging    LoggingConfig    `yaml:"logging,omitempty" toml:"logging"`
}

// RepositoryConfig locates the toolspec repository. Dir is used as-is when Git
// is nil; otherwise the git repository is cloned into Git.Cache first.
type RepositoryConfig struct {
	Dir string     `yaml:"dir,omitempty" toml:"dir" validate:"required_without=Git"`
	Git *GitConfig `yaml:"git,omitempty" toml:"git"`
}

// GitConfig describes a remote toolspec repository.
type GitConfig struct {
	URL    string `yaml:"url" toml:"url" validate:"required"`
	Branch string `yaml:"branch,omitempty" toml:"branch"`
	Depth  int    `yaml:"depth,omitempty" toml:"depth" validate:"omitempty,min=0"`
	Cache  string `yaml:"cache,omitempty" toml:"cache"`
	SubDir string `yaml:"subdir,omitempty" toml:"subdir"`
}

// StorageConfig holds per-scheme filesystem settings.
type StorageConfig struct {
	Local LocalStorageConfig `yaml:"local,omitempty" toml:"local"`
	HDFS  HDFSConfig         `yaml:"hdfs,omitempty" toml:"hdfs"`
	Azure AzureConfig        `yaml:"azure,omitempty" toml:"azure"`
}

// LocalStorageConfig controls the block layout synthesized for local files.
type LocalStorageConfig struct {
	BlockSize int64    `yaml:"block_size,omitempty" toml:"block_size" validate:"omitempty,min=1"`
	Hosts     []string `yaml:"hosts,omitempty" toml:"hosts"`
}

// HDFSConfig configures the native client and the WebHDFS endpoint used for
// block locations.
type HDFSConfig struct {
	Namenodes []string `yaml:"namenodes,omitempty" toml:"namenodes"`
	User      string   `yaml:"user,omitempty" toml:"user"`
	WebHDFS   string   `yaml:"webhdfs,omitempty" toml:"webhdfs" validate:"omitempty,url"`
	Timeout   string   `yaml:"timeout,omitempty" toml:"timeout" validate:"omitempty,duration"`
}

// AzureConfig configures blob storage access.
type AzureConfig struct {
	ConnectionString    string `yaml:"connection_string,omitempty" toml:"connection_string"`
	ConnectionStringEnv string `yaml:"connection_string_env,omitempty" toml:"connection_string_env"`
}

// PartitionConfig holds split sizing parameters.
type PartitionConfig struct {
	LinesPerSplit int    `yaml:"lines_per_split,omitempty" toml:"lines_per_split" validate:"min=1"`
	Policy        string `yaml:"policy,omitempty" toml:"policy" validate:"split_policy"`
}

// ExecutionConfig holds chain and worker pool settings.
type ExecutionConfig struct {
	Parallel          int    `yaml:"parallel,omitempty" toml:"parallel" validate:"min=1,max=256"`
	LinkTimeout       string `yaml:"link_timeout,omitempty" toml:"link_timeout" validate:"duration"`
	ScratchRoot       string `yaml:"scratch_root,omitempty" toml:"scratch_root"`
	KeepScratch       bool   `yaml:"keep_scratch,omitempty" toml:"keep_scratch"`
	TerminateOnCancel *bool  `yaml:"terminate_on_cancel,omitempty" toml:"terminate_on_cancel"`
	JavaHome          string `yaml:"java_home,omitempty" toml:"java_home"`
	Shell             string `yaml:"shell,omitempty" toml:"shell"`
}

// LoggingConfig mirrors logger.Options.
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Human      bool   `yaml:"human,omitempty" toml:"human"`
	File       string `yaml:"file,omitempty" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty" toml:"max_size_mb" validate:"omitempty,min=1"`
	MaxBackups int    `yaml:"max_backups,omitempty" toml:"max_backups" validate:"omitempty,min=0"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty" toml:"max_age_days" validate:"omitempty,min=0"`
}

const (
	PolicyFill   = "fill"
	PolicySpread = "spread"

	DefaultLinesPerSplit = 100
	DefaultParallel      = 4
	DefaultLinkTimeout   = 10 * time.Minute
	DefaultBlockSize     = 128 << 20
	DefaultHDFSTimeout   = 30 * time.Second
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Partition.LinesPerSplit == 0 {
		cfg.Partition.LinesPerSplit = DefaultLinesPerSplit
	}
	if cfg.Partition.Policy == "" {
		cfg.Partition.Policy = PolicyFill
	}
	if cfg.Execution.Parallel == 0 {
		cfg.Execution.Parallel = DefaultParallel
	}
	if cfg.Execution.LinkTimeout == "" {
		cfg.Execution.LinkTimeout = DefaultLinkTimeout.String()
	}
	if cfg.Execution.TerminateOnCancel == nil {
		terminate := true
		cfg.Execution.TerminateOnCancel = &terminate
	}
	if cfg.Storage.Local.BlockSize == 0 {
		cfg.Storage.Local.BlockSize = DefaultBlockSize
	}
	if cfg.Storage.HDFS.Timeout == "" {
		cfg.Storage.HDFS.Timeout = DefaultHDFSTimeout.String()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.File != "" && cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
}

// LinkTimeoutDuration returns the per-link timeout of a validated config.
func (e ExecutionConfig) LinkTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(e.LinkTimeout)
	if err != nil || d <= 0 {
		return DefaultLinkTimeout
	}
	return d
}

// TerminatesOnCancel reports whether cancelled chains kill their subprocesses.
func (e ExecutionConfig) TerminatesOnCancel() bool {
	return e.TerminateOnCancel == nil || *e.TerminateOnCancel
}

// TimeoutDuration returns the WebHDFS request timeout.
func (h HDFSConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(h.Timeout)
	if err != nil || d <= 0 {
		return DefaultHDFSTimeout
	}
	return d
}
