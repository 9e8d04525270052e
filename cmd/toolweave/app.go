package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/toolweave/internal/catalog"
	"github.com/alexisbeaulieu97/toolweave/internal/config"
	"github.com/alexisbeaulieu97/toolweave/internal/logger"
	"github.com/alexisbeaulieu97/toolweave/internal/storage"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// appContext bundles the long-lived services a command needs.
type appContext struct {
	cfg     *config.Config
	log     *logger.Logger
	storage *storage.Resolver
	catalog *catalog.Repository
}

// loadApp reads the configuration and builds the logger, storage resolver and
// toolspec catalog.
func loadApp(ctx context.Context, cmd *cobra.Command, flags *rootFlags) (*appContext, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, newCommandError("load configuration", flags.configPath, err, "Check the configuration file syntax and values.")
	}
	if flags.toolsDir != "" {
		cfg.Repository.Dir = flags.toolsDir
		cfg.Repository.Git = nil
	}

	log, err := newLogger(cmd, cfg.Logging, flags.verbose)
	if err != nil {
		return nil, newCommandError("create logger", cfg.Logging.Level, err, "Use one of trace, debug, info, warn or error.")
	}

	repo, err := loadCatalog(ctx, cfg.Repository, log)
	if err != nil {
		return nil, newCommandError("load toolspecs", repositoryName(cfg.Repository), err, "Pass --tools or set repository.dir or repository.git.")
	}

	resolver, err := storage.FromConfig(cfg.Storage, log)
	if err != nil {
		return nil, newCommandError("configure storage", "storage", err, "Check the storage section of the configuration.")
	}

	return &appContext{cfg: cfg, log: log, storage: resolver, catalog: repo}, nil
}

func (a *appContext) Close() {
	if err := a.storage.Close(); err != nil {
		a.log.WarnErr(err, "failed to close storage")
	}
}

func newLogger(cmd *cobra.Command, cfg config.LoggingConfig, verbose bool) (*logger.Logger, error) {
	opts := logger.Options{
		Level:         cfg.Level,
		HumanReadable: cfg.Human,
		Writer:        cmd.ErrOrStderr(),
	}
	if verbose {
		opts.Level = "debug"
		opts.HumanReadable = true
	}
	if cfg.File != "" {
		opts.File = &logger.FileOptions{
			Path:       cfg.File,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
		}
	}
	return logger.New(opts)
}

func loadCatalog(ctx context.Context, cfg config.RepositoryConfig, log *logger.Logger) (*catalog.Repository, error) {
	if cfg.Git != nil {
		cache := cfg.Git.Cache
		if cache == "" && cfg.Dir != "" {
			cache = filepath.Join(cfg.Dir, ".toolweave-git")
		}
		src := &catalog.GitSource{
			URL:         cfg.Git.URL,
			Branch:      cfg.Git.Branch,
			Depth:       cfg.Git.Depth,
			Destination: cache,
			SubDir:      cfg.Git.SubDir,
		}
		return src.Load(ctx, log)
	}
	if cfg.Dir == "" {
		return nil, apperrors.NewValidationError("repository.dir", "no toolspec repository configured", nil)
	}
	return catalog.NewRepository(cfg.Dir, log)
}

func repositoryName(cfg config.RepositoryConfig) string {
	if cfg.Git != nil {
		return cfg.Git.URL
	}
	return cfg.Dir
}
