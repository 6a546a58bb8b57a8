package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/wagerbook/internal/blob/s3"
	"github.com/alanyoungcy/wagerbook/internal/cache/memory"
	"github.com/alanyoungcy/wagerbook/internal/cache/redis"
	"github.com/alanyoungcy/wagerbook/internal/config"
	"github.com/alanyoungcy/wagerbook/internal/crypto"
	"github.com/alanyoungcy/wagerbook/internal/custody"
	"github.com/alanyoungcy/wagerbook/internal/domain"
	"github.com/alanyoungcy/wagerbook/internal/metrics"
	"github.com/alanyoungcy/wagerbook/internal/notify"
	"github.com/alanyoungcy/wagerbook/internal/oracle"
	"github.com/alanyoungcy/wagerbook/internal/server/handler"
	memstore "github.com/alanyoungcy/wagerbook/internal/store/memory"
	"github.com/alanyoungcy/wagerbook/internal/store/postgres"
)

// Funder credits custody accounts. The memory ledger and the postgres
// custody store implement it; an external custody service does not.
type Funder interface {
	OpenAccount(ctx context.Context, id, owner, asset string) (domain.Account, error)
	Deposit(ctx context.Context, id string, amount uint64) error
}

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	Markets   domain.MarketStore
	Positions domain.PositionStore
	Audit     domain.AuditStore
	Custody   domain.Custody
	Funder    Funder // nil for the http custody backend

	// Caches and coordination
	Locks   domain.LockManager
	Bus     domain.SignalBus
	Cache   domain.MarketCache
	Feeds   domain.FeedSource
	Limiter domain.RateLimiter

	// Blob storage, nil unless s3 is enabled.
	Archiver   domain.Archiver
	BlobReader domain.BlobReader

	Verifier domain.ReadingVerifier // nil when signatures are not required
	Notifier *notify.Notifier
	Metrics  *metrics.SettlementMetrics // nil when metrics are disabled

	// Checks are reported by the health endpoint.
	Checks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- Stores ---
	var pgClient *postgres.Client
	switch cfg.Store.Backend {
	case "postgres":
		var err error
		pgClient, err = postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.Markets = postgres.NewMarketStore(pool)
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	default:
		st := memstore.NewStore()
		deps.Markets = st
		deps.Positions = st.Positions()
		deps.Audit = st.Audit()
	}

	// --- Custody ---
	switch cfg.Custody.Backend {
	case "postgres":
		if pgClient == nil {
			return fail("custody", fmt.Errorf("postgres custody requires the postgres store"))
		}
		cs := postgres.NewCustodyStore(pgClient.Pool())
		deps.Custody, deps.Funder = cs, cs
	case "http":
		deps.Custody = custody.NewClient(cfg.Custody.Endpoint, &crypto.HMACAuth{
			Key:    cfg.Custody.APIKey,
			Secret: cfg.Custody.APISecret,
		})
	default:
		ledger := custody.NewLedger()
		deps.Custody, deps.Funder = ledger, ledger
	}

	// --- Redis, or in-process equivalents ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Cache = redis.NewMarketCache(redisClient)
		deps.Feeds = redis.NewFeedStore(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		logger.WarnContext(ctx, "redis disabled; locks and events are local to this process")
		deps.Locks = memory.NewLockManager()
		deps.Bus = memory.NewBus()
		deps.Cache = memory.NewMarketCache()
		deps.Feeds = memory.NewFeedStore()
		deps.Limiter = memory.NewRateLimiter()
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Oracle ---
	if cfg.Oracle.RequireSignature {
		deps.Verifier = oracle.NewVerifier(cfg.Oracle.ChainID, cfg.Oracle.TrustedSigners)
	} else {
		logger.WarnContext(ctx, "oracle signatures not required; any caller may publish readings")
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Metrics ---
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New(cfg.Settlement.AssetDecimals)
	}

	return deps, cleanup, nil
}
