package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/binaryoptions/internal/blob/s3"
	"github.com/alanyoungcy/binaryoptions/internal/cache/redis"
	"github.com/alanyoungcy/binaryoptions/internal/config"
	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/notify"
	"github.com/alanyoungcy/binaryoptions/internal/server/handler"
	"github.com/alanyoungcy/binaryoptions/internal/store/memory"
	"github.com/alanyoungcy/binaryoptions/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	Tx            domain.TxManager
	OrderStore    domain.BinaryOrderStore
	MarketStore   domain.MarketStore
	Notifications domain.NotificationStore
	UserStore     domain.UserStore
	AuditStore    domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	BanGuard    domain.BanGuard
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Archiver is nil unless archive.enabled is set.
	Archiver domain.Archiver

	// Notifications
	Notifier *notify.Notifier
	Mailer   *notify.Mailer // nil without smtp.host

	// Pingers feeds /api/health.
	Pingers map[string]handler.Pinger
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

	deps := &Dependencies{Pingers: make(map[string]handler.Pinger)}

	// --- Order and ledger storage ---
	switch cfg.Storage.Driver {
	case "memory":
		logger.WarnContext(ctx, "using in-memory storage; orders and balances are lost on restart")
		store := memory.New()
		deps.Tx = store
		deps.OrderStore = store.Orders()
		deps.MarketStore = store.Markets()
		deps.Notifications = store.Notifications()
		deps.UserStore = store.Users()
		deps.AuditStore = store.Audit()
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Tx = postgres.NewTxManager(pool)
		deps.OrderStore = postgres.NewBinaryOrderStore(pool)
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.Notifications = postgres.NewNotificationStore(pool)
		deps.UserStore = postgres.NewUserStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Pingers["postgres"] = pgClient
	}

	if err := seedMarkets(ctx, deps.MarketStore, cfg.Binary.Markets); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: seed markets: %w", err)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Exchange.PriceCacheTTL.Duration)
	deps.BanGuard = redis.NewBanGuard(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Pingers["redis"] = redisClient

	// --- S3 archive ---
	if cfg.Archive.Enabled {
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			deps.OrderStore,
			s3blob.NewWriter(s3Client, 0),
			s3blob.NewReader(s3Client),
			deps.AuditStore,
		)
		deps.Pingers["s3"] = s3Client
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
	deps.Mailer = notify.NewMailer(notify.MailConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	return deps, cleanup, nil
}

// seedMarkets upserts the markets listed in the configuration. Markets that
// exist only in the store are left untouched.
func seedMarkets(ctx context.Context, store domain.MarketStore, markets []config.MarketConfig) error {
	now := time.Now().UTC()
	for _, m := range markets {
		market := domain.Market{
			Currency:      strings.ToUpper(m.Currency),
			Pair:          strings.ToUpper(m.Pair),
			MinAmount:     decimal.NewFromFloat(m.MinAmount),
			MaxAmount:     decimal.NewFromFloat(m.MaxAmount),
			ProfitPercent: decimal.NewFromFloat(m.ProfitPercent),
			Enabled:       true,
			UpdatedAt:     now,
		}
		if err := store.Upsert(ctx, market); err != nil {
			return fmt.Errorf("%s: %w", market.Symbol(), err)
		}
	}
	return nil
}
