package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bot-core/internal/account"
	"bot-core/internal/api"
	"bot-core/internal/bootstrap"
	"bot-core/internal/connector"
	"bot-core/internal/events"
	"bot-core/internal/market"
	"bot-core/internal/order"
	"bot-core/internal/safety"
	"bot-core/internal/scheduler"
	"bot-core/internal/strategy"
	"bot-core/internal/template"
	"bot-core/pkg/cache"
	"bot-core/pkg/config"
	"bot-core/pkg/crypto"
	"bot-core/pkg/logger"
	"bot-core/pkg/store"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		Output:     cfg.LogOutput,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer logger.Sync()

	log := logger.S()
	log.Infow("bot core starting", "version", version, "mock_feed", cfg.UseMockFeed, "pairs", cfg.Pairs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalw("open store", "path", cfg.DBPath, "error", err)
	}
	defer st.Close()

	enc, err := buildEncryptor(cfg)
	if err != nil {
		log.Fatalw("credential encryption", "error", err)
	}

	bus := events.NewBus()
	prices := cache.NewPrices()
	agg := market.NewAggregator(cfg.CandleWidth, bus)
	hub := market.NewHub(prices, agg)

	// Connectors. The demo simulator is always registered; live connectors
	// are only exercised when an account selects them.
	demo := connector.NewDemo(connector.DemoConfig{
		InitialBalance: cfg.DemoInitialBalance,
		FeeRate:        cfg.DemoFeeRate,
		SlippageBps:    cfg.DemoSlippageBps,
	})
	registry := connector.NewRegistry(demo, connector.NewBinance(false), connector.NewMEXC())

	accounts := account.NewService(st, enc)
	templates := template.NewService(st)
	router := order.NewRouter(accounts, templates, registry, st, bus, prices)
	orders := order.NewService(accounts, registry, st, bus, prices)
	locker := safety.NewLocker(st)
	disp := &strategy.Dispatcher{Router: router, Orders: orders, Locker: locker, Bus: bus}

	grid := strategy.NewGridService(st, disp, hub)
	dca := strategy.NewDCAService(st, disp, hub)
	momentum := strategy.NewMomentumService(st, disp, hub)
	rsi := strategy.NewRSIService(st, disp, hub)
	candle := strategy.NewCandleStrikeService(st, disp, hub)

	sup := strategy.NewSupervisor(st, bus)
	sup.Add(grid, cfg.GridInterval)
	sup.Add(dca, cfg.DCAInterval)
	sup.Add(momentum, cfg.MomentumInterval)
	sup.Add(rsi, cfg.RSIInterval)
	sup.Add(candle, cfg.CandleStrikeInterval)

	// Market data feed.
	if cfg.UseMockFeed {
		feed := &market.MockFeed{
			Bus:    bus,
			Prices: prices,
			Agg:    agg,
			Pairs:  cfg.Pairs,
			Start:  startPrices(cfg.Pairs),
		}
		// Seed the cache so bots created before the first tick see a price.
		for pair, price := range feed.Start {
			prices.Set(pair, price)
		}
		feed.Run(ctx)
	} else {
		feed := &market.LiveFeed{
			URL:      cfg.FeedWSURL,
			Bus:      bus,
			Prices:   prices,
			Agg:      agg,
			Pairs:    cfg.Pairs,
			Interval: klineInterval(cfg.CandleWidth),
		}
		go feed.Run(ctx)
	}

	if cfg.BootstrapPath != "" {
		if err := seed(ctx, cfg, st, accounts, templates, grid, dca); err != nil {
			log.Warnw("bootstrap", "path", cfg.BootstrapPath, "error", err)
		}
	}

	sup.Run(ctx)

	sched := scheduler.New(st, orders, demo, prices)
	if err := sched.Start(); err != nil {
		log.Fatalw("scheduler", "error", err)
	}
	defer sched.Stop()

	srv := api.NewServer(&api.Server{
		Bus:        bus,
		Store:      st,
		Accounts:   accounts,
		Registry:   registry,
		Templates:  templates,
		Orders:     orders,
		Executor:   router,
		Grid:       grid,
		DCA:        dca,
		Momentum:   momentum,
		RSI:        rsi,
		Candle:     candle,
		Locker:     locker,
		Hub:        hub,
		JWTSecret:  cfg.JWTSecret,
		LockManual: cfg.LockAppliesToManual,
		Meta: api.SystemMeta{
			UseMockFeed: cfg.UseMockFeed,
			Pairs:       cfg.Pairs,
			Version:     version,
		},
	})

	errCh := make(chan error, 1)
	go func() {
		log.Infow("http server listening", "port", cfg.Port)
		errCh <- srv.Start(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Errorw("http server stopped", "error", err)
	}
	log.Info("bot core stopped")
}

// buildEncryptor returns the credential encryptor. Without a configured key
// an ephemeral one is generated; stored credentials then do not survive a
// restart, which is fine for demo-only use.
func buildEncryptor(cfg *config.Config) (*crypto.Encryptor, error) {
	if cfg.EncryptionKey != "" {
		return crypto.NewEncryptorHex(cfg.EncryptionKey, cfg.KeyVersion)
	}
	logger.S().Warn("CREDENTIAL_KEY not set, using an ephemeral key")
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return crypto.NewEncryptor(key, cfg.KeyVersion)
}

// startPrices picks plausible anchors for the mock random walk.
func startPrices(pairs []string) map[string]float64 {
	defaults := map[string]float64{
		"BTCUSDT": 60000,
		"ETHUSDT": 3000,
		"SOLUSDT": 150,
	}
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		if v, ok := defaults[strings.ToUpper(p)]; ok {
			out[p] = v
		} else {
			out[p] = 100
		}
	}
	return out
}

// klineInterval maps a candle width to exchange stream notation.
func klineInterval(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return "1m"
	}
}

// seed applies the optional YAML bootstrap under a local dev user, creating
// the user on first run.
func seed(ctx context.Context, cfg *config.Config, st *store.Store,
	accounts *account.Service, templates *template.Service,
	grid *strategy.GridService, dca *strategy.DCAService) error {

	userID, err := ensureSeedUser(ctx, st)
	if err != nil {
		return err
	}
	return bootstrap.Apply(ctx, bootstrap.Services{
		Store:     st,
		Accounts:  accounts,
		Templates: templates,
		Grid:      grid,
		DCA:       dca,
	}, userID, cfg.BootstrapPath)
}

func ensureSeedUser(ctx context.Context, st *store.Store) (string, error) {
	const email = "dev@local"

	users, err := store.List[api.User](ctx, st, store.Users)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if u.Email == email {
			return u.ID, nil
		}
	}

	password := os.Getenv("BOOTSTRAP_PASSWORD")
	if password == "" {
		password = uuid.NewString()
		logger.S().Infow("seed user created", "email", email, "password", password)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	u := api.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := store.PutTyped(ctx, st, store.Users, u.ID, u); err != nil {
		return "", err
	}
	return u.ID, nil
}
