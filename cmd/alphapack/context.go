package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"alphapack/internal/config"
	"alphapack/internal/jobs"
	"alphapack/internal/logging"
	"alphapack/internal/pipeline"
	"alphapack/internal/staging"
)

// abandonedAfter is how long a job may stay running before a new invocation
// assumes its process died.
const abandonedAfter = 24 * time.Hour

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// logger builds the run logger and prunes expired log files.
func (c *commandContext) logger() (*config.Config, *slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	if cfg.Logging.File {
		if removed := logging.PruneOldLogs(logger, cfg.Paths.LogDir, "*.log", cfg.Logging.RetentionDays, cfg.LogFilePath()); removed > 0 {
			logger.Debug("pruned old logs", logging.Int("removed", removed))
		}
	}
	return cfg, logger, nil
}

// withRuntime runs fn against a fresh pipeline runtime and closes it after.
// The ledger and work directory are tidied before fn runs.
func (c *commandContext) withRuntime(cmd *cobra.Command, fn func(context.Context, *config.Config, *pipeline.Runtime) error) error {
	cfg, logger, err := c.logger()
	if err != nil {
		return err
	}
	rt, err := pipeline.NewRuntime(cfg, logger)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	maintainWorkspace(ctx, cfg, rt.Store(), logger)
	runErr := fn(ctx, cfg, rt)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Close(closeCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shut down runtime: %w", err)
	}
	return runErr
}

// withStore opens the ledger directly for read-only commands.
func (c *commandContext) withStore(fn func(*jobs.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		return fmt.Errorf("open job ledger: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func maintainWorkspace(ctx context.Context, cfg *config.Config, store *jobs.Store, logger *slog.Logger) {
	if cleaned := staging.CleanStale(ctx, cfg.Paths.WorkDir, abandonedAfter, logger); len(cleaned.Removed) > 0 {
		logger.Info("removed stale scratch files", logging.Int("count", len(cleaned.Removed)))
	}
	if store == nil {
		return
	}
	if n, err := store.MarkAbandoned(ctx, abandonedAfter); err != nil {
		logger.Warn("failed to mark abandoned jobs", logging.Error(err))
	} else if n > 0 {
		logger.Info("marked abandoned jobs failed", logging.Int64("count", n))
	}
	if cfg.Jobs.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -cfg.Jobs.RetentionDays)
	if n, err := store.Prune(ctx, cutoff); err != nil {
		logger.Warn("failed to prune job history", logging.Error(err))
	} else if n > 0 {
		logger.Debug("pruned job history", logging.Int64("removed", n))
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
