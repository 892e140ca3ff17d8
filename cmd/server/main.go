package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/access-control-api/internal/config"
	"github.com/iliyamo/access-control-api/internal/database"
	"github.com/iliyamo/access-control-api/internal/handler"
	"github.com/iliyamo/access-control-api/internal/jobs"
	"github.com/iliyamo/access-control-api/internal/logging"
	"github.com/iliyamo/access-control-api/internal/middleware"
	"github.com/iliyamo/access-control-api/internal/queue"
	"github.com/iliyamo/access-control-api/internal/repository"
	"github.com/iliyamo/access-control-api/internal/router"
	"github.com/iliyamo/access-control-api/internal/service"
	"github.com/iliyamo/access-control-api/internal/utils"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	log := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	openCtx, cancelOpen := context.WithTimeout(context.Background(), 5*time.Second)
	db, err := database.Open(openCtx, cfg.DB.DSN())
	cancelOpen()
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()
	if cfg.RunMigrations {
		if err := database.Migrate(db); err != nil {
			log.WithError(err).Fatal("database migration failed")
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, rate limiting and response caching disabled")
	} else {
		defer rdb.Close()
	}

	var pub service.Publisher
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.AMQPURL != "" {
		pub = queue.NewPublisher(cfg.AMQPURL, log)
		consumer := queue.NewAuditConsumer(cfg.AMQPURL, cfg.AuditLogDir, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("audit consumer stopped")
			}
		}()
	} else {
		log.Warn("AMQP_URL not set, events are not published")
	}

	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	privileges := repository.NewPrivilegeRepo(db)
	invitationRepo := repository.NewInvitationRepo(db)
	resetRepo := repository.NewResetTokenRepo(db)
	policyRepo := repository.NewPolicyRepo(db)
	tokenRepo := repository.NewTokenRepo(db)

	tokens := utils.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.TTL,
	}
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log)
	limiter := middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb, log)

	sessions := service.NewSessions(tokens, cfg.RefreshTTL, tokenRepo, users)
	accounts := service.NewAccounts(users, roles, sessions, pub, log, service.AccountsConfig{
		BcryptCost:    cfg.BcryptCost,
		DefaultRoleID: cfg.DefaultRoleID,
	})
	provisioning := service.NewProvisioning(users, invitationRepo, sessions, pub, log, service.ProvisioningConfig{
		BcryptCost: cfg.BcryptCost,
		TopRoleID:  cfg.TopRoleID,
	})
	invitations := service.NewInvitations(invitationRepo, roles, pub, log, cfg.InvitationExpiryDays)
	rbac := service.NewRBAC(roles, privileges, users, invitationRepo, log)
	resets := service.NewPasswordReset(resetRepo, users, accounts, pub, log, cfg.ResetCodeTTL)
	policies := service.NewPolicies(policyRepo, cache, log)

	var redisPing func(context.Context) error
	if rdb != nil {
		redisPing = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewDBStatsCollector(db, cfg.DB.Name))

	e := router.New(router.Deps{
		Log:      log,
		Tokens:   tokens,
		Limiter:  limiter,
		Cache:    cache,
		Registry: registry,
		Auth: &handler.AuthHandler{
			Provisioning:    provisioning,
			Accounts:        accounts,
			Sessions:        sessions,
			Reset:           resets,
			Authz:           service.NewAuthorizer(users),
			ExposeResetCode: cfg.ExposeResetCode,
		},
		Users:       &handler.UserHandler{Accounts: accounts},
		RBAC:        &handler.RBACHandler{RBAC: rbac},
		Invitations: &handler.InvitationHandler{Invitations: invitations},
		Policies:    &handler.PolicyHandler{Policies: policies},
		Status:      &handler.StatusHandler{DB: db, Redis: redisPing, Version: version, Env: cfg.Env},
	})

	sched, err := jobs.NewScheduler(cfg.CleanupSchedule, resets, log)
	if err != nil {
		log.WithError(err).Fatal("invalid cleanup schedule")
	}
	sched.Start()

	go func() {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "version": version}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	sched.Stop(shutdownCtx)
}
