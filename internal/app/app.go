package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay_bot/internal/config"
	"relay_bot/internal/logger"
	"relay_bot/internal/metrics"
	"relay_bot/internal/mongo"
	"relay_bot/internal/postgres"
	"relay_bot/internal/r2"
	"relay_bot/internal/telegram"
	"relay_bot/internal/telegram/archive"
	"relay_bot/internal/telegram/forward"
	"relay_bot/internal/telegram/models"
	"relay_bot/internal/telegram/relay"
	"relay_bot/internal/telegram/repository"
	"relay_bot/internal/telegram/service"

	"github.com/thejerf/suture/v4"
)

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	cfg *config.Config

	MongoDB  *mongo.Client
	Postgres *postgres.Client
	Telegram *telegram.Client

	content  repository.ContentRepository // 未配置存储时为 nil
	state    repository.StateRepository   // 未开启 PERSIST_STATE 时为 nil
	archiver *archive.Archiver
}

// New 初始化应用及其所有服务
// 按顺序初始化各个服务，任何服务初始化失败都会返回错误
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}

	if err := app.initStore(ctx); err != nil {
		app.Close(context.Background())
		return nil, err
	}

	tgClient, err := telegram.NewClient(telegram.Config{
		APIID:       cfg.APIID,
		APIHash:     cfg.APIHash,
		SessionPath: cfg.SessionPath,
	})
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init Telegram client failed: %w", err)
	}
	app.Telegram = tgClient

	// 对象存储可选，未配置时归档器整体禁用
	var store archive.ObjectStore
	if cfg.R2.Enabled() {
		r2Client, err := r2.NewClient(r2.Config{
			Endpoint:        cfg.R2.ResolvedEndpoint(),
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			Bucket:          cfg.R2.BucketName,
		})
		if err != nil {
			app.Close(context.Background())
			return nil, fmt.Errorf("init R2 client failed: %w", err)
		}
		store = r2Client
		logger.L().Infof("R2 storage enabled: bucket=%s", cfg.R2.BucketName)
	} else {
		logger.L().Info("R2 storage not configured, media archiving disabled")
	}
	app.archiver = archive.NewArchiver(store, cfg.R2.PublicURL, tgClient, cfg.MediaDownloadTimeout).
		WithMaxSize(cfg.MediaMaxBytes)

	return app, nil
}

// initStore 按驱动连接数据库并确保表结构与索引
func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.StoreDriver {
	case config.StoreDriverPostgres:
		client, err := postgres.NewClient(ctx, postgres.DefaultConfig(a.cfg.DatabaseURL))
		if err != nil {
			return fmt.Errorf("init PostgreSQL failed: %w", err)
		}
		a.Postgres = client
		a.content = repository.NewPostgresContentRepository(client.Pool)
		if a.cfg.PersistState {
			a.state = repository.NewPostgresStateRepository(client.Pool)
		}
		logger.L().Info("PostgreSQL initialized successfully")

	case config.StoreDriverMongo:
		client, err := mongo.NewClient(ctx, mongo.Config{
			URI:      a.cfg.MongoURI,
			Database: a.cfg.MongoDBName,
			AppName:  "relay_bot",
		})
		if err != nil {
			return fmt.Errorf("init MongoDB failed: %w", err)
		}
		a.MongoDB = client
		a.content = repository.NewMongoContentRepository(client.Database())
		if a.cfg.PersistState {
			a.state = repository.NewMongoStateRepository(client.Database())
		}
		logger.L().Info("MongoDB initialized successfully")

	default:
		logger.L().Warn("No database configured, duplicate detection and content records disabled")
		return nil
	}

	if err := a.content.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure content schema: %w", err)
	}
	if a.state != nil {
		if err := a.state.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure relay state schema: %w", err)
		}
	}
	return nil
}

// Run 连接 Telegram，校验频道后在 supervisor 下运行转发引擎，直到 ctx 取消
func (a *App) Run(ctx context.Context) error {
	return a.Telegram.Run(ctx, func(ctx context.Context) error {
		peers := a.Telegram.Peers()

		count, err := peers.LoadDialogs(ctx)
		if err != nil {
			return err
		}
		logger.L().Infof("Loaded %d chats into cache", count)

		sources, target, err := relay.Resolve(ctx, peers, a.Telegram, a.cfg)
		if err != nil {
			return err
		}

		gateway, err := a.newGateway(target)
		if err != nil {
			return err
		}

		engine := relay.NewEngine(
			sources,
			a.Telegram,
			service.NewContentService(a.content),
			a.archiver,
			gateway,
			a.state,
			relay.Options{
				CheckLimit:   a.cfg.CheckLimit,
				PollInterval: a.cfg.PollInterval,
				Pacing:       a.cfg.Pacing,
			},
		)

		sup := newSupervisor()
		sup.Add(engine)
		if a.cfg.MetricsAddr != "" {
			sup.Add(metrics.NewServer(a.cfg.MetricsAddr))
		}

		logger.L().Infof("Monitoring %d channel(s), forwarding to %s (mode=%s)",
			len(sources), target.Title, a.cfg.ForwardMode)

		if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("supervisor stopped: %w", err)
		}
		return nil
	})
}

// newGateway 按转发模式创建网关
func (a *App) newGateway(target *models.Channel) (forward.Gateway, error) {
	limiter := forward.NewRateLimiter(a.cfg.ForwardRateRPS)

	if a.cfg.ForwardMode == config.ForwardModeBot {
		gw, err := forward.NewBotGateway(a.cfg.TelegramToken, target.ID, limiter)
		if err != nil {
			return nil, fmt.Errorf("init Bot API gateway failed: %w", err)
		}
		return gw, nil
	}
	return forward.NewUserGateway(a.Telegram.API(), a.Telegram.Peers(), target.ID, limiter), nil
}

// newSupervisor 服务失败后按退避策略重启，事件写入日志
func newSupervisor() *suture.Supervisor {
	return suture.New("relay_bot", suture.Spec{
		EventHook: func(e suture.Event) {
			logger.L().Warnf("Supervisor event: %s", e.String())
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) {
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			logger.L().Errorf("Close MongoDB failed: %v", err)
		}
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}
