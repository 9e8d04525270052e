// Package engine runs control lines as tool chains: each line is staged into
// its own scratch directory, executed, and its outputs copied back.
package engine

import (
	"os"
	"path/filepath"
	"time"

	"github.com/alexisbeaulieu97/toolweave/internal/catalog"
	"github.com/alexisbeaulieu97/toolweave/internal/chain"
	"github.com/alexisbeaulieu97/toolweave/internal/config"
	"github.com/alexisbeaulieu97/toolweave/internal/controlline"
	"github.com/alexisbeaulieu97/toolweave/internal/logger"
	"github.com/alexisbeaulieu97/toolweave/internal/storage"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// Settings tune how lines are executed.
type Settings struct {
	Parallel          int
	ScratchRoot       string
	KeepScratch       bool
	LinkTimeout       time.Duration
	TerminateOnCancel bool
	JavaHome          string
	Shell             string
	Env               map[string]string
}

// SettingsFromConfig maps the execution section of the configuration.
func SettingsFromConfig(cfg config.ExecutionConfig) Settings {
	return Settings{
		Parallel:          cfg.Parallel,
		ScratchRoot:       cfg.ScratchRoot,
		KeepScratch:       cfg.KeepScratch,
		LinkTimeout:       cfg.LinkTimeoutDuration(),
		TerminateOnCancel: cfg.TerminatesOnCancel(),
		JavaHome:          cfg.JavaHome,
		Shell:             cfg.Shell,
	}
}

// ExecutionContext holds the state shared by every work unit of a run. It is
// built once and never mutated afterwards.
type ExecutionContext struct {
	Catalog  catalog.Catalog
	Parser   controlline.Parser
	Storage  storage.FileSystem
	Stager   *storage.Stager
	Logger   *logger.Logger
	Settings Settings
}

// NewExecutionContext validates the collaborators and fills setting defaults.
func NewExecutionContext(cat catalog.Catalog, parser controlline.Parser, fs storage.FileSystem, log *logger.Logger, settings Settings) (*ExecutionContext, error) {
	if cat == nil {
		return nil, apperrors.NewValidationError("catalog", "catalog is required", nil)
	}
	if fs == nil {
		return nil, apperrors.NewValidationError("storage", "storage is required", nil)
	}
	if parser == nil {
		parser = controlline.NewPipedParser()
	}
	if log == nil {
		log = logger.Nop()
	}
	if settings.Parallel <= 0 {
		settings.Parallel = config.DefaultParallel
	}
	if settings.LinkTimeout <= 0 {
		settings.LinkTimeout = chain.DefaultLinkTimeout
	}
	if settings.ScratchRoot == "" {
		settings.ScratchRoot = filepath.Join(os.TempDir(), "toolweave")
	}

	return &ExecutionContext{
		Catalog:  cat,
		Parser:   parser,
		Storage:  fs,
		Stager:   storage.NewStager(fs, log),
		Logger:   log,
		Settings: settings,
	}, nil
}

func (ec *ExecutionContext) chainOptions(workDir string, log *logger.Logger) chain.Options {
	return chain.Options{
		WorkDir:           workDir,
		Shell:             ec.Settings.Shell,
		JavaHome:          ec.Settings.JavaHome,
		LinkTimeout:       ec.Settings.LinkTimeout,
		TerminateOnCancel: ec.Settings.TerminateOnCancel,
		Env:               ec.Settings.Env,
		Log:               log,
	}
}
