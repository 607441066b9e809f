package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/ems-program-api/internal/dto"
	"github.com/noah-isme/ems-program-api/internal/models"
	"github.com/noah-isme/ems-program-api/internal/repository"
	"github.com/noah-isme/ems-program-api/internal/service"
	"github.com/noah-isme/ems-program-api/pkg/cache"
	"github.com/noah-isme/ems-program-api/pkg/config"
	"github.com/noah-isme/ems-program-api/pkg/database"
	"github.com/noah-isme/ems-program-api/pkg/logger"
)

type bulkService interface {
	Execute(ctx context.Context, req dto.BulkOperationRequest, actor dto.Actor) (*dto.BulkOperationResult, error)
	List(ctx context.Context, query dto.BulkOperationQuery) (*dto.BulkOperationHistory, error)
	Get(ctx context.Context, id string) (*models.BulkOperationLog, error)
	Rollback(ctx context.Context, id string, actor dto.Actor) (*dto.RollbackResult, error)
	Tables() []dto.TargetTableInfo
}

type app struct {
	out    io.Writer
	format string
	actor  string

	svc    bulkService
	db     *sqlx.DB
	cache  io.Closer
	logger *zap.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "bulkctl",
		Short: "inspect and operate bulk record operations",
		Long: `
bulkctl talks to the program database directly. It shares configuration with the
API server (.env and environment variables) and writes the same operation log.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.format != "text" && a.format != "json" {
				return fmt.Errorf("unrecognized format: %s", a.format)
			}
			return nil
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.format, "format", "text", "output format: text or json")
	root.PersistentFlags().StringVar(&a.actor, "actor", os.Getenv("BULKCTL_ACTOR"), "user id recorded as performed_by")

	root.AddCommand(
		newTablesCmd(a),
		newHistoryCmd(a),
		newShowCmd(a),
		newPreviewCmd(a),
		newRunCmd(a),
		newRollbackCmd(a),
	)
	return root
}

// connect builds the service on first use. Commands that only read the catalog never touch the database.
func (a *app) connect() error {
	if a.svc != nil {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Log.Format = "console"
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.logger = logr

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	a.db = db

	var opts []service.BulkOperationServiceOption
	if repo := historyCache(cfg, logr); repo != nil {
		a.cache = repo
		opts = append(opts, service.WithBulkHistoryCache(
			service.NewCacheService(repo, nil, cfg.BulkOperations.HistoryCacheTTL, logr, true)))
	}

	a.svc = service.NewBulkOperationService(
		repository.NewBulkRecordRepository(db),
		repository.NewBulkOperationLogRepository(db),
		db,
		validator.New(),
		logr,
		service.BulkOperationConfig{
			PreviewLimit:  cfg.BulkOperations.PreviewLimit,
			HistoryLimit:  cfg.BulkOperations.HistoryLimit,
			ExportMaxRows: cfg.BulkOperations.ExportMaxRows,
		},
		opts...,
	)
	return nil
}

// historyCache connects the history cache the API reads so CLI runs invalidate its pages.
// It returns nil when the cache is disabled or redis is unreachable.
func historyCache(cfg *config.Config, logr *zap.Logger) *repository.CacheRepository {
	if !cfg.BulkOperations.HistoryCache {
		return nil
	}
	client, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, api history may be stale until its ttl expires", zap.Error(err))
		return nil
	}
	return repository.NewCacheRepository(client, repository.HistoryCachePrefix, logr)
}

func (a *app) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) requireActor() (dto.Actor, error) {
	if a.actor == "" {
		return dto.Actor{}, fmt.Errorf("--actor (or BULKCTL_ACTOR) is required")
	}
	return dto.Actor{ID: a.actor}, nil
}

func (a *app) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "%s\n", data)
	return err
}
