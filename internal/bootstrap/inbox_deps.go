package bootstrap

import (
	"context"
	"fmt"
	"time"

	"inbox_server/adapter/out/llm"
	"inbox_server/adapter/out/mongodb"
	"inbox_server/adapter/out/persistence"
	"inbox_server/adapter/out/provider"
	"inbox_server/config"
	"inbox_server/core/port/out"
	"inbox_server/core/service/auth"
	"inbox_server/core/service/category"
	"inbox_server/core/service/classification"
	"inbox_server/core/service/mail"
	"inbox_server/core/service/notification"
	"inbox_server/infra/database"
	"inbox_server/pkg/crypto"
	"inbox_server/pkg/keylock"
	"inbox_server/pkg/logger"
	"inbox_server/pkg/session"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const connectTimeout = 15 * time.Second

// Mode selects which halves of the service a process runs.
type Mode string

const (
	ModeAPI    Mode = "api"
	ModeWorker Mode = "worker"
	ModeAll    Mode = "all"
)

// ParseMode validates a -mode flag value.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAPI, ModeWorker, ModeAll:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want api, worker or all)", s)
}

// Split reports whether another process may sync the same accounts.
func (m Mode) Split() bool { return m != ModeAll }

// checkSharedLocks rejects a split deployment whose account locks would be process-local.
func checkSharedLocks(mode Mode, redisURL string, redisErr error) error {
	if !mode.Split() {
		return nil
	}
	if redisURL == "" {
		return fmt.Errorf("mode %s requires REDIS_URL for cross-process account locks", mode)
	}
	if redisErr != nil {
		return fmt.Errorf("mode %s requires redis for account locks: %w", mode, redisErr)
	}
	return nil
}

// Dependencies is shared by the API and the worker so both see one lock scope.
type Dependencies struct {
	Config *config.Config
	DB     *sqlx.DB
	Redis  *redis.Client
	Mongo  *mongo.Client

	// Repositories
	Accounts    *persistence.AccountAdapter
	Credentials *persistence.CredentialAdapter
	Emails      *persistence.EmailAdapter
	Categories  *persistence.CategoryAdapter
	OAuthStates out.OAuthStateStore
	Locker      out.AccountLocker
	Archive     *mongodb.FailureArchive

	// Providers
	Gmail       *provider.GmailAdapter
	GoogleOAuth *provider.GoogleOAuth
	Classifier  *llm.OpenAIClassifier

	// Services
	Refresher       *auth.TokenRefresher
	AccountService  *auth.AccountService
	ConnectService  *auth.ConnectService
	SyncCoordinator *mail.SyncCoordinator
	Categorizer     *classification.Categorizer
	CategoryService *category.Service
	PushService     *notification.PushService
	WatchService    *notification.WatchService
	Sessions        *session.Manager
}

// NewDependencies connects the stores and wires every service. The returned
// cleanup waits for background syncs and closes connections.
// In split modes Redis is mandatory; only ModeAll falls back to in-process locks.
func NewDependencies(ctx context.Context, cfg *config.Config, mode Mode) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	// PostgreSQL
	pgCfg := database.DefaultPostgresConfig()
	if cfg.DBMaxOpenConns > 0 {
		pgCfg.MaxOpenConns = cfg.DBMaxOpenConns
	}
	if cfg.DBMaxIdleConns > 0 {
		pgCfg.MaxIdleConns = cfg.DBMaxIdleConns
	}
	db, err := database.NewPostgres(connectCtx, cfg.DatabaseURL, pgCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	deps.DB = db
	closers = append(closers, func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("[Bootstrap] closing postgres")
		}
	})
	if cfg.DBAutoMigrate {
		if err := database.RunMigrations(connectCtx, db); err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("[Bootstrap] migrations applied")
	}

	// Redis (optional in ModeAll)
	var redisErr error
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedis(connectCtx, cfg.RedisURL, database.DefaultRedisConfig())
		if err != nil {
			redisErr = err
		} else {
			deps.Redis = rdb
			closers = append(closers, func() { _ = rdb.Close() })
		}
	}
	if err := checkSharedLocks(mode, cfg.RedisURL, redisErr); err != nil {
		cleanup()
		return nil, nil, err
	}
	if redisErr != nil {
		logger.WithError(redisErr).Warn("[Bootstrap] redis unavailable, using in-process locks")
	}

	// MongoDB (optional)
	if cfg.MongoDBURL != "" {
		mc, err := mongodb.NewClient(connectCtx, cfg.MongoDBURL)
		if err != nil {
			logger.WithError(err).Warn("[Bootstrap] mongodb unavailable, parse failures are only logged")
		} else {
			deps.Mongo = mc
			closers = append(closers, func() {
				dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer dcancel()
				_ = mc.Disconnect(dctx)
			})
			deps.Archive = mongodb.NewFailureArchive(mc.Database(cfg.MongoDBName))
			if err := deps.Archive.EnsureIndexes(connectCtx); err != nil {
				logger.WithError(err).Warn("[Bootstrap] parse failure indexes")
			}
		}
	}

	cipher, err := crypto.FromKey(cfg.EncryptionKey)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("token cipher: %w", err)
	}
	if _, plain := cipher.(crypto.Plain); plain {
		logger.Warn("[Bootstrap] ENCRYPTION_KEY not set, tokens are stored unencrypted")
	}

	deps.Accounts = persistence.NewAccountAdapter(db)
	deps.Credentials = persistence.NewCredentialAdapter(db, cipher)
	deps.Emails = persistence.NewEmailAdapter(db)
	deps.Categories = persistence.NewCategoryAdapter(db)

	if deps.Redis != nil {
		deps.Locker = persistence.NewRedisAccountLocker(deps.Redis, persistence.SyncLockTTL)
		deps.OAuthStates = persistence.NewRedisOAuthStateStore(deps.Redis)
	} else {
		deps.Locker = keylock.New()
		deps.OAuthStates = persistence.NewMemoryOAuthStateStore()
	}

	initServices(deps)

	closers = append(closers, func() {
		deps.PushService.Wait()
		deps.ConnectService.Wait()
	})

	return deps, cleanup, nil
}

func initServices(deps *Dependencies) {
	cfg := deps.Config

	deps.Gmail = provider.NewGmailAdapter(cfg.GmailFetchTimeout)
	deps.GoogleOAuth = provider.NewGoogleOAuth(provider.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Timeout:      cfg.GmailFetchTimeout,
	})

	if cfg.OpenAIAPIKey == "" {
		logger.Warn("[Bootstrap] OPENAI_API_KEY not set, categorization will leave emails uncategorized")
	}
	deps.Classifier = llm.NewOpenAIClassifier(llm.ClassifierConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		RatePerSec:  cfg.LLMRatePerSec,
		Timeout:     cfg.LLMTimeout,
	})

	deps.Refresher = auth.NewTokenRefresher(deps.Credentials, deps.GoogleOAuth, cfg.TokenRefreshMargin)
	deps.AccountService = auth.NewAccountService(deps.Accounts)

	deps.Categorizer = classification.NewCategorizer(
		deps.Emails, deps.Categories, deps.Classifier, deps.Locker, cfg.CategorizeHardCap,
	)

	deps.SyncCoordinator = mail.NewSyncCoordinator(
		deps.Credentials,
		deps.Accounts,
		deps.Emails,
		deps.Refresher,
		deps.Gmail,
		mail.NewNormalizer(),
		deps.Locker,
		mail.SyncConfig{
			FetchTimeout:  cfg.GmailFetchTimeout,
			CategorizeCap: cfg.CategorizeHardCap,
		},
	)
	deps.SyncCoordinator.SetCategorizer(deps.Categorizer)
	if deps.Archive != nil {
		deps.SyncCoordinator.SetFailureArchive(deps.Archive)
	}

	deps.CategoryService = category.NewService(deps.Categories, deps.Emails)

	deps.PushService = notification.NewPushService(
		deps.Accounts, deps.SyncCoordinator, cfg.WebhookMaxMessages, cfg.WebhookLogCapacity,
	)
	if deps.Redis != nil {
		deps.PushService.SetDeduper(persistence.NewRedisDeliveryDeduper(deps.Redis, cfg.WebhookDedupTTL))
	}

	deps.WatchService = notification.NewWatchService(
		deps.Credentials, deps.Accounts, deps.Refresher, deps.Gmail, deps.Locker, cfg.GmailPubSubTopic,
	)

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("[Bootstrap] JWT_SECRET not set, sessions will not survive a restart")
	}
	deps.Sessions = session.NewManager(secret, cfg.SessionTTL)

	deps.ConnectService = auth.NewConnectService(
		deps.GoogleOAuth,
		deps.OAuthStates,
		deps.Accounts,
		deps.Credentials,
		deps.CategoryService,
		deps.SyncCoordinator,
		deps.Sessions,
	)
}
