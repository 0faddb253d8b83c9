package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"aruba-auth/internal/config"
	apphttp "aruba-auth/internal/http"
	"aruba-auth/internal/mail"
	"aruba-auth/internal/password"
	"aruba-auth/internal/ratelimit"
	"aruba-auth/internal/repository"
	"aruba-auth/internal/repository/memory"
	"aruba-auth/internal/repository/sqlite"
	"aruba-auth/internal/service"
	"aruba-auth/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	users, closeRepo, err := buildUserRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	limiter, closeLimiter, err := buildLimiter(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	mailer, err := buildMailer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	userService, err := service.NewUserService(users, service.Options{
		Hasher: password.NewBcrypt(cfg.Auth.BcryptCost),
		Mailer: mailer,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("setup user service: %w", err)
	}

	switch cfg.Server.Environment {
	case config.EnvProduction:
		gin.SetMode(gin.ReleaseMode)
	case config.EnvTest:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	handler := apphttp.NewHandler(apphttp.Options{
		Users:          userService,
		Sessions:       session.NewIssuer(cfg.Auth.SessionSecret, cfg.Production()),
		Limiter:        limiter,
		Logger:         logger,
		Development:    cfg.Server.Environment == config.EnvDevelopment,
		CORSOrigins:    cfg.Server.CORSOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
	})
	if err := handler.RegisterRoutes(router); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s (%s)", cfg.Server.Addr, cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
	return nil
}

func buildUserRepository(ctx context.Context, cfg config.Config, logger *logrus.Logger) (repository.UserRepository, func(), error) {
	var (
		repo    repository.UserRepository
		closeFn = func() {}
	)
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		repo = sqlite.NewUserRepository(db, logger)
		closeFn = func() { _ = db.Close() }
		logger.Infof("using sqlite user directory at %s", cfg.Database.Path)
	default:
		repo = memory.NewUserRepository()
		logger.Warn("using in-memory user directory; accounts are lost on restart")
	}

	if err := repo.Init(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("init user repository: %w", err)
	}
	return repo, closeFn, nil
}

func buildLimiter(cfg config.Config, logger *logrus.Logger) (ratelimit.Limiter, func(), error) {
	limits := ratelimit.Config{
		Window:  cfg.RateLimit.Window,
		Limit:   cfg.RateLimit.Limit,
		MaxKeys: cfg.RateLimit.MaxKeys,
	}
	if cfg.RateLimit.RedisURL == "" {
		return ratelimit.NewMemory(limits), func() {}, nil
	}

	limiter, err := ratelimit.NewRedisFromURL(cfg.RateLimit.RedisURL, limits, "auth")
	if err != nil {
		return nil, nil, fmt.Errorf("setup redis rate limiter: %w", err)
	}
	logger.Info("using redis rate limiter")
	return limiter, func() { _ = limiter.Close() }, nil
}

func buildMailer(ctx context.Context, cfg config.Config, logger *logrus.Logger) (mail.Sender, error) {
	baseURL := mail.ResolveBaseURL(mail.BaseURLConfig{
		BaseURL:     cfg.Mail.BaseURL,
		PublicHost:  cfg.Mail.PublicHost,
		PreviewHost: cfg.Mail.PreviewHost,
	})

	switch cfg.Mail.Provider {
	case config.MailSMTP:
		logger.Infof("sending verification emails via %s:%d", cfg.Mail.SMTPHost, cfg.Mail.SMTPPort)
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			From:     cfg.Mail.From,
			BaseURL:  baseURL,
			Timeout:  cfg.Mail.SMTPTimeout,
		}, logger), nil
	case config.MailSES:
		var loadOpts []func(*awscfg.LoadOptions) error
		if cfg.Mail.SESRegion != "" {
			loadOpts = append(loadOpts, awscfg.WithRegion(cfg.Mail.SESRegion))
		}
		awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}

		client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if cfg.Mail.SESEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Mail.SESEndpoint)
			}
		})
		logger.Infof("sending verification emails via ses (region %s)", awsCfg.Region)
		return mail.NewSESSender(client, cfg.Mail.From, baseURL, logger), nil
	case config.MailLog:
		return mail.NewLogSender(baseURL, logger), nil
	default:
		logger.Warn("email delivery is not configured; verification emails will not be sent")
		return mail.Disabled{}, nil
	}
}
