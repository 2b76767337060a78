package server

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet-ledger/internal/auth"
	"github.com/congo-pay/wallet-ledger/internal/config"
	"github.com/congo-pay/wallet-ledger/internal/fee"
	"github.com/congo-pay/wallet-ledger/internal/hold"
	"github.com/congo-pay/wallet-ledger/internal/identity"
	"github.com/congo-pay/wallet-ledger/internal/ledger"
	"github.com/congo-pay/wallet-ledger/internal/logging"
	"github.com/congo-pay/wallet-ledger/internal/notification"
	"github.com/congo-pay/wallet-ledger/internal/processor"
	"github.com/congo-pay/wallet-ledger/internal/savings"
	"github.com/congo-pay/wallet-ledger/internal/transaction"
	"github.com/congo-pay/wallet-ledger/internal/wallet"
	"github.com/congo-pay/wallet-ledger/internal/webhook"
)

type components struct {
	identity   *identity.Service
	tokens     *auth.Service
	wallet     *wallet.Service
	savings    *savings.Engine
	holds      *hold.Manager
	reconciler *webhook.Reconciler
	webhooks   *webhook.Handler
	closers    []func() error
}

// repositories groups the storage backends; Postgres when a pool is
// configured, in-memory otherwise.
type repositories struct {
	ledger       ledger.Store
	holds        hold.Repository
	transactions transaction.Repository
	savings      savings.Repository
	events       webhook.Repository
	identities   identity.Repository
}

func newRepositories(cfg config.Config, db *pgxpool.Pool) repositories {
	if db != nil {
		return repositories{
			ledger:       ledger.NewPostgresStore(db, cfg.StartingBalance),
			holds:        hold.NewPostgresRepository(db),
			transactions: transaction.NewPostgresRepository(db),
			savings:      savings.NewPostgresRepository(db),
			events:       webhook.NewPostgresRepository(db),
			identities:   identity.NewPostgresRepository(db),
		}
	}
	return repositories{
		ledger:       ledger.NewInMemory(ledger.WithStartingBalance(cfg.StartingBalance)),
		holds:        hold.NewMemoryRepository(),
		transactions: transaction.NewMemoryRepository(),
		savings:      savings.NewMemoryRepository(),
		events:       webhook.NewMemoryRepository(),
		identities:   identity.NewMemoryRepository(),
	}
}

func build(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*components, error) {
	repos := newRepositories(cfg, db)
	comps := &components{}

	notifiers := notification.Multi{notification.NewLoggerNotifier(logging.Component(logger, "notification"))}
	if cache != nil {
		notifiers = append(notifiers, notification.NewRedisNotifier(cache))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := notification.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		notifiers = append(notifiers, kafka)
		comps.closers = append(comps.closers, kafka.Close)
	}

	dispatcher, err := processor.NewDispatcher(processor.Config{
		Routing: processor.Routing(cfg.ProcessorRouting),
		Default: processor.Network(cfg.ProcessorDefault),
		Timeout: cfg.ProcessorTimeout,
	}, logging.Component(logger, "processor"),
		processor.NewNetworkA(), processor.NewNetworkB(), processor.NewNetworkC())
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	fees := fee.Default().WithWithdrawalFee(cfg.WithdrawalFlatFee)
	comps.holds = hold.NewManager(repos.holds, repos.ledger, cfg.HoldTTL, logging.Component(logger, "hold"))
	orch := transaction.NewOrchestrator(repos.transactions, repos.ledger, comps.holds, dispatcher, fees,
		logging.Component(logger, "transaction"),
		transaction.WithNotifier(notifiers),
		transaction.WithHouseAccount(cfg.HouseUserID))

	comps.wallet = wallet.NewService(repos.ledger, orch)
	comps.savings = savings.NewEngine(repos.savings, orch, fees, logging.Component(logger, "savings"),
		savings.WithHouseAccount(cfg.HouseUserID))
	comps.reconciler = webhook.NewReconciler(repos.events, orch, dispatcher, logging.Component(logger, "webhook"))
	if cfg.WebhookSecret != "" {
		comps.webhooks = webhook.NewHandler(comps.reconciler, cfg.WebhookSecret, dispatcher.Networks())
	} else {
		logger.Warn("WEBHOOK_SECRET not set; settlement callbacks disabled")
	}

	comps.identity = identity.NewService(repos.identities)
	comps.tokens = auth.NewService(cfg.JWTSecret, cfg.JWTTTL, repos.identities)
	return comps, nil
}
