package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fi44er/email_attestation_bot/config"
	"github.com/Fi44er/email_attestation_bot/db"
	"github.com/Fi44er/email_attestation_bot/internal/bot"
	"github.com/Fi44er/email_attestation_bot/internal/i18n"
	"github.com/Fi44er/email_attestation_bot/internal/ledger"
	"github.com/Fi44er/email_attestation_bot/internal/mailer"
	"github.com/Fi44er/email_attestation_bot/internal/metrics"
	"github.com/Fi44er/email_attestation_bot/internal/rates"
	"github.com/Fi44er/email_attestation_bot/internal/repository"
	"github.com/Fi44er/email_attestation_bot/internal/service"
	"github.com/Fi44er/email_attestation_bot/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := utils.InitLogger()

	configPath := ".env"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid config: ", err)
	}
	logger.SetLevelName(cfg.LogLevel)

	database, err := db.ConnectDb(cfg.DB_URL, logger)
	if err != nil {
		logger.Fatal(err)
	}
	if err := db.Migrate(database, true, logger); err != nil {
		logger.Fatal(err)
	}
	repo := repository.NewRepository(database, logger)

	params, err := ledger.NetParams(cfg.Network)
	if err != nil {
		logger.Fatal(err)
	}
	keys, err := ledger.NewKeychain(cfg.MasterKeySeed, params)
	if err != nil {
		logger.Fatal("Failed to load master key: ", err)
	}
	client, err := ledger.Dial(ledger.RPCConfig{
		Host:    cfg.BTCRPCHost,
		User:    cfg.BTCRPCUser,
		Pass:    cfg.BTCRPCPass,
		TLS:     cfg.BTCRPCTLS,
		FeeRate: cfg.FeeRate,
	}, keys, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer client.Close()

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	attestor, err := client.IssueAddress(startCtx, ledger.BranchService, ledger.IndexAttestor)
	if err != nil {
		logger.Fatal("Failed to load attestor address: ", err)
	}
	distribution, err := client.IssueAddress(startCtx, ledger.BranchService, ledger.IndexDistribution)
	if err != nil {
		logger.Fatal("Failed to load distribution address: ", err)
	}
	cancelStart()
	logger.Infof("Attestor address: %s", attestor)
	logger.Infof("Distribution address: %s", distribution)

	whitelist, err := cfg.RewardWhitelist()
	if err != nil {
		logger.Fatal(err)
	}

	telegramBot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Fatal("Failed to create bot API: ", err)
	}
	chat := bot.NewBot(telegramBot, cfg.SendRate, logger)

	sender := mailer.NewSender(mailer.Config{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		User:      cfg.SMTPUser,
		Password:  cfg.SMTPPassword,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
		PerSecond: 1,
	}, logger)
	notifiers := []mailer.Notifier{mailer.NewAdminMail(sender, cfg.AdminEmail)}
	if cfg.AdminChatID != 0 {
		notifiers = append(notifiers, bot.NewAdminChat(chat, cfg.AdminChatID))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	btcRates := rates.NewService("", logger)
	svc, err := service.NewService(service.Config{
		AttestorAddress:     attestor,
		DistributionAddress: distribution,
		PriceSatoshi:        cfg.PriceSatoshi,
		RewardUSD:           cfg.RewardUSD,
		ReferralRewardUSD:   cfg.ReferralRewardUSD,
		Whitelist:           whitelist,
		MaxReferralDepth:    cfg.MaxReferralDepth,
		MaxAttempts:         cfg.MaxAttempts,
		CodeLength:          cfg.CodeLength,
		Salt:                cfg.Salt,
		DeviceName:          cfg.DeviceName,
		ExplorerURL:         cfg.ExplorerURL,
		MaxSweepAddresses:   cfg.MaxSweepAddresses,
		StableConfirmations: cfg.StableConfirmations,
	}, service.Dependencies{
		Repo:      repo,
		Ledger:    client,
		Messenger: chat,
		Mailer:    sender,
		Notifier:  mailer.NewFanout(logger, notifiers...),
		Rates:     btcRates,
		Texts:     i18n.New(cfg.Languages()...),
		Metrics:   metrics.New(registry),
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Failed to create attestation service: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := ledger.NewWatcher(client, cfg.StableConfirmations, cfg.PollInterval, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return btcRates.Run(ctx, cfg.RatesRefreshInterval) })
	g.Go(func() error { return watcher.Run(ctx, svc.HandleLedgerEvent) })
	g.Go(func() error { return svc.RunSweeper(ctx, cfg.RetryInterval) })
	g.Go(func() error { return chat.Run(ctx, svc) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, registry, logger) })
	}

	if err := g.Wait(); err != nil {
		logger.Fatal(err)
	}
	logger.Info("Bye")
}

func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger *utils.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Infof("Serving metrics on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
