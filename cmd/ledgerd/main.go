package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paper-ledger/internal/config"
	"paper-ledger/internal/db"
	"paper-ledger/internal/events"
	"paper-ledger/internal/httpserver"
	"paper-ledger/internal/idempotency"
	"paper-ledger/internal/lock"
	"paper-ledger/internal/logging"
	"paper-ledger/internal/marketdata"
	"paper-ledger/internal/orders"
	"paper-ledger/internal/portfolio"
	"paper-ledger/internal/pricing"
	"paper-ledger/internal/retry"
	"paper-ledger/internal/scheduler"
	"paper-ledger/internal/store"
	"paper-ledger/internal/store/memstore"
	"paper-ledger/internal/store/pgstore"
	"paper-ledger/internal/symbols"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const redisPricePrefix = "price:"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, closer, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Error("ledgerd stopped", "error", err)
	}
	_ = closer.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	rules, err := staticRules(cfg.Symbols)
	if err != nil {
		return err
	}
	commission, err := pricing.NewCommission(cfg.CommissionRate)
	if err != nil {
		return err
	}
	slippage, err := pricing.NewSlippage(cfg.SlippagePercent)
	if err != nil {
		return err
	}
	policy := retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		MinBackoff:  cfg.RetryMinBackoff,
		MaxBackoff:  cfg.RetryMaxBackoff,
	}
	deps := map[string]httpserver.Pinger{}

	var st store.Store
	var ruleSource symbols.Source = symbols.NewStaticSource(rules)
	if cfg.DBDSN != "" {
		pool, err := db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		pg := pgstore.New(pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		pairs := symbols.NewPgSource(pool)
		if err := pairs.Seed(ctx, rules); err != nil {
			return err
		}
		st, ruleSource = pg, pairs
		deps["postgres"] = pool
		log.Info("using postgres store")
	} else {
		st = memstore.New()
		log.Warn("DB_DSN not set, using in-memory store")
	}
	ruleCache := symbols.NewCache(ruleSource, cfg.SymbolCacheTTL)

	bus := events.NewBus()
	publishers := events.Multi{bus}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logging.Component(log, "kafka"))
		defer kafka.Close()
		publishers = append(publishers, kafka)
	}

	var (
		oracle      marketdata.PriceOracle
		locker      lock.Locker = lock.NewLocal()
		feed        *marketdata.RandomWalkFeed
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		redisClient = client
		oracle = marketdata.NewRedisOracle(client, redisPricePrefix, logging.Component(log, "oracle"))
		locker = lock.NewRedis(client, "paper-ledger:lock:")
		deps["redis"] = httpserver.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
		log.Info("reading prices from redis", "addr", cfg.RedisAddr)
	} else {
		quotes := marketdata.NewQuoteCache(cfg.QuoteMaxAge)
		feed = marketdata.NewRandomWalkFeed(quotes, publishers, cfg.SeedPrices, cfg.QuoteInterval, logging.Component(log, "feed"))
		oracle = quotes
	}
	oracle = marketdata.WithTimeout(oracle, cfg.PriceTimeout, logging.Component(log, "oracle"))

	ledger := portfolio.NewLedger(st, oracle, cfg.InitialBalance, policy, logging.Component(log, "portfolio"))
	engine := orders.NewEngine(st, ruleCache, oracle, ledger, publishers, orders.Config{
		Commission: commission,
		Slippage:   slippage,
		Retry:      policy,
	}, logging.Component(log, "orders"))
	keys, localKeys := idempotencyStore(redisClient)
	api := orders.NewIdempotentEngine(engine, idempotency.NewGuard(keys, cfg.IdempotencyTTL, logging.Component(log, "idempotency")))

	jobsLog := logging.Component(log, "scheduler")
	jobs := scheduler.New(locker, jobsLog)
	jobs.Add(scheduler.SweepJob(api, cfg.SweepInterval, jobsLog))
	jobs.Add(scheduler.RecalcJob(api, cfg.RecalcInterval, jobsLog))
	if localKeys != nil {
		jobs.Add(scheduler.IdempotencyExpiryJob(localKeys, cfg.IdempotencySweep, jobsLog))
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpserver.NewRouter(httpserver.RouterDeps{
			Health: httpserver.NewHealthHandler(time.Now(), deps),
			Log:    logging.Component(log, "http"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		jobs.Start(ctx)
		return nil
	})
	if feed != nil {
		g.Go(func() error {
			feed.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		traceEvents(ctx, bus, logging.Component(log, "events"))
		return nil
	})
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// idempotencyStore shares keys through Redis when a client is configured so
// a retry landing on another instance is still deduplicated. Otherwise keys
// live in process memory and the returned MemoryStore needs periodic expiry.
func idempotencyStore(client *redis.Client) (idempotency.Store, *idempotency.MemoryStore) {
	if client != nil {
		return idempotency.NewRedisStore(client, "paper-ledger:idem:"), nil
	}
	local := idempotency.NewMemoryStore()
	return local, local
}

// traceEvents logs every published event at debug level.
func traceEvents(ctx context.Context, bus *events.Bus, log *slog.Logger) {
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			log.Debug("event", "type", evt.Type, "key", evt.Key)
		}
	}
}

func staticRules(syms []config.Symbol) ([]symbols.Rule, error) {
	out := make([]symbols.Rule, 0, len(syms))
	for _, s := range syms {
		r := symbols.Rule{Symbol: symbols.Normalize(s.Symbol), Status: s.Status}
		if r.Status == "" {
			r.Status = "active"
		}
		var err error
		if r.StepSize, err = optionalDecimal(s.StepSize); err != nil {
			return nil, fmt.Errorf("symbol %s step_size: %w", s.Symbol, err)
		}
		if r.MinQty, err = optionalDecimal(s.MinQty); err != nil {
			return nil, fmt.Errorf("symbol %s min_qty: %w", s.Symbol, err)
		}
		if r.MinNotional, err = optionalDecimal(s.MinNotional); err != nil {
			return nil, fmt.Errorf("symbol %s min_notional: %w", s.Symbol, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func optionalDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
