package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"xtick/internal/application/port"
	"xtick/internal/application/usecase/aggregate"
	"xtick/internal/application/usecase/consumer"
	"xtick/internal/application/usecase/monitor"
	"xtick/internal/domain"
	"xtick/internal/infrastructure/config"
	"xtick/internal/infrastructure/registry"
	"xtick/internal/infrastructure/storage/composite"
	postgresrepo "xtick/internal/infrastructure/storage/postgres"
	redisrepo "xtick/internal/infrastructure/storage/redis"
	sqliterepo "xtick/internal/infrastructure/storage/sqlite"
	"xtick/internal/interfaces/httpapi"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层（第一层初始化）
	redisClient *redisclient.Client
	repos       []port.Repository

	// 核心
	Store    *aggregate.Store
	Registry *registry.Registry
	View     *consumer.View

	// 输出端
	Repo    port.Repository
	Monitor *monitor.Service
	HTTP    *httpapi.Server

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点；不会发起任何行情连接，连接在 Registry.Start() 时建立
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		closerChain: make([]func() error, 0),
	}

	// 初始化所有组件，按依赖顺序
	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 按依赖关系有序初始化
// 关闭顺序与之相反：HTTP → Registry → 存储
func (sc *ServiceContext) initializeComponents() error {
	// 0. 存储层
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}
	sc.Repo = composite.New(sc.repos...)

	// 1. 聚合存储 + 连接器
	sc.Store = aggregate.NewStore()
	reg, err := registry.New(sc.Config, func(u domain.TickerUpdate) { sc.Store.Ingest(u) })
	if err != nil {
		if errors.Is(err, registry.ErrNoConnectors) {
			return fmt.Errorf("%w: %w", ErrNoConnectorsEnabled, err)
		}
		return err
	}
	sc.Registry = reg
	sc.Store.UseStarter(reg)
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("stopping connectors")
		return reg.Close()
	})

	// 2. 消费方
	sc.View = consumer.NewView(sc.Store, consumer.Policy{
		PriceMaxAge:        sc.Config.Staleness.PriceMaxAge(),
		ExtendedMaxAge:     sc.Config.Staleness.ExtendedMaxAge(),
		MinExtendedSamples: uint64(sc.Config.Staleness.MinExtendedSamples),
	})
	sc.Monitor = monitor.NewService(sc.BuildMonitorServiceDeps())

	if sc.Config.HTTP.Enabled {
		sc.HTTP = httpapi.NewServer(sc.Config.HTTP.Addr, sc.View, reg)
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("shutting down http api")
			return sc.HTTP.Close()
		})
	}

	log.Info().
		Int("domestic", len(reg.Domestic())).
		Int("overseas", len(reg.Overseas())).
		Int("storages", len(sc.repos)).
		Msg("✓ All components initialized")
	return nil
}

// initializeStorage 初始化存储层 (Redis / SQLite / Postgres)，均为可选
func (sc *ServiceContext) initializeStorage() error {
	st := sc.Config.Storage
	if st.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
	}
	if st.SQLite.Enabled {
		if err := sc.initSQLite(); err != nil {
			return fmt.Errorf("sqlite initialization failed: %w", err)
		}
	}
	if st.Postgres.Enabled {
		if err := sc.initPostgres(); err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
	}
	return nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() error {
	rc := sc.Config.Storage.Redis
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	sc.redisClient = rdb
	ttl := time.Duration(rc.TTLSeconds) * time.Second
	sc.repos = append(sc.repos, redisrepo.New(rdb, rc.Prefix, ttl, rc.ReportStream, rc.Channel))

	// 注册关闭回调
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", rc.Addr).
		Int("db", rc.DB).
		Msg("✓ Redis initialized")
	return nil
}

// initSQLite 初始化 SQLite 数据库
func (sc *ServiceContext) initSQLite() error {
	path := sc.Config.Storage.SQLite.Path
	repo, err := sqliterepo.New(path)
	if err != nil {
		return fmt.Errorf("sqlite repo creation failed: %w", err)
	}
	sc.repos = append(sc.repos, repo)

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().Str("path", path).Msg("✓ SQLite initialized")
	return nil
}

// initPostgres 初始化 Postgres（pgx stdlib 驱动）
func (sc *ServiceContext) initPostgres() error {
	repo, err := postgresrepo.New(sc.Config.Storage.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres repo creation failed: %w", err)
	}
	sc.repos = append(sc.repos, repo)

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("✓ Postgres initialized")
	return nil
}

// BuildMonitorServiceDeps 构建 Monitor Service 所需的所有依赖
func (sc *ServiceContext) BuildMonitorServiceDeps() monitor.ServiceDeps {
	return monitor.ServiceDeps{
		Source:         sc.Store,
		View:           sc.View,
		Connectors:     sc.Registry,
		Repo:           sc.Repo,
		FlushInterval:  sc.Config.FlushInterval(),
		ReportInterval: sc.Config.ReportInterval(),
	}
}

// Close 按照相反的顺序关闭所有资源，可重复调用
func (sc *ServiceContext) Close() error {
	var errs []error
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
			errs = append(errs, err)
		}
	}
	sc.closerChain = nil
	return errors.Join(errs...)
}
