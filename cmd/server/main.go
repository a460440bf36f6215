package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/api"
	"github.com/carecircle/carecircle/internal/app"
	"github.com/carecircle/carecircle/internal/auth"
	"github.com/carecircle/carecircle/internal/database"
	"github.com/carecircle/carecircle/internal/notifications"
	"github.com/carecircle/carecircle/internal/permissions"
	"github.com/carecircle/carecircle/internal/scheduler"
	"github.com/carecircle/carecircle/internal/services"
	"github.com/carecircle/carecircle/pkg/logger"
	"github.com/carecircle/carecircle/pkg/push"
	"github.com/carecircle/carecircle/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("carecircle-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	sender, err := push.NewWebPushSender(push.Settings{
		Enabled:         cfg.Push.Enabled,
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
		TTL:             cfg.Push.TTL,
		Timeout:         cfg.Push.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initialise push sender: %w", err)
	}

	blobs, err := storage.NewLocalStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("initialise blob store: %w", err)
	}

	hub := notifications.NewHub()

	resolver, err := permissions.NewResolver(db)
	if err != nil {
		return fmt.Errorf("initialise permission resolver: %w", err)
	}

	notificationSvc, err := services.NewNotificationService(db, hub, sender)
	if err != nil {
		return fmt.Errorf("initialise notification service: %w", err)
	}
	membershipSvc, err := services.NewMembershipService(db, resolver, notificationSvc)
	if err != nil {
		return fmt.Errorf("initialise membership service: %w", err)
	}
	recipientSvc, err := services.NewCareRecipientService(db, resolver, blobs)
	if err != nil {
		return fmt.Errorf("initialise care recipient service: %w", err)
	}
	medicationSvc, err := services.NewMedicationService(db, resolver)
	if err != nil {
		return fmt.Errorf("initialise medication service: %w", err)
	}
	appointmentSvc, err := services.NewAppointmentService(db, resolver)
	if err != nil {
		return fmt.Errorf("initialise appointment service: %w", err)
	}
	documentSvc, err := services.NewDocumentService(db, resolver, blobs)
	if err != nil {
		return fmt.Errorf("initialise document service: %w", err)
	}
	pushSvc, err := services.NewPushSubscriptionService(db)
	if err != nil {
		return fmt.Errorf("initialise push subscription service: %w", err)
	}

	reminders, err := scheduler.New(db, notificationSvc,
		scheduler.WithMedicationSchedule(cfg.Scheduler.MedicationSpec),
		scheduler.WithAppointmentSchedule(cfg.Scheduler.AppointmentSpec),
		scheduler.WithSweepSchedule(cfg.Scheduler.SweepSpec),
		scheduler.WithWeeklySchedule(cfg.Scheduler.WeeklySpec),
		scheduler.WithRetentionSchedule(cfg.Scheduler.RetentionSpec),
		scheduler.WithRetentionDays(cfg.Scheduler.RetentionDays),
	)
	if err != nil {
		return fmt.Errorf("initialise scheduler: %w", err)
	}
	if err := reminders.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		<-reminders.Stop().Done()
	}()

	router, err := api.NewRouter(api.Deps{
		Config:            cfg,
		JWT:               jwtService,
		Hub:               hub,
		CareRecipients:    recipientSvc,
		Memberships:       membershipSvc,
		Medications:       medicationSvc,
		Appointments:      appointmentSvc,
		Documents:         documentSvc,
		Notifications:     notificationSvc,
		PushSubscriptions: pushSvc,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = cfg.Database.Postgres.Password
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = cfg.Database.MySQL.Password
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("acquire database handle", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
