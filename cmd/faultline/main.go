package main

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	alarmapi "github.com/ispops/faultline/internal/alarming/api"
	adb "github.com/ispops/faultline/internal/alarming/database"
	"github.com/ispops/faultline/internal/alarming/events"
	"github.com/ispops/faultline/internal/alarming/service/alarmsvc"
	"github.com/ispops/faultline/internal/alarming/service/correlation"
	"github.com/ispops/faultline/internal/alarming/service/rules"
	"github.com/ispops/faultline/internal/alarming/service/scheduler"
	"github.com/ispops/faultline/internal/alarming/service/sla"
	"github.com/ispops/faultline/internal/config"
)

func main() {
	log.Info().Msg("Starting faultline api server")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := adb.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	// compliance cache is optional: a missing redis degrades to recomputation
	var complianceCache sla.Cache = sla.NoopCache{}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, compliance cache disabled")
	} else {
		complianceCache = sla.NewRedisCache(rdb)
	}

	alarmStore := alarmsvc.NewPgAlarmStore(db)
	maintenanceStore := alarmsvc.NewPgMaintenanceStore(db)
	ruleStore := rules.NewPgStore(db)
	slaStore := sla.NewPgStore(db)

	dispatcher := events.NewDispatcher(cfg.Alarming.EventBuffer)
	go dispatcher.Start(ctx, events.LogHandler)

	correlator := correlation.NewEngine(alarmStore, ruleStore, dispatcher, correlation.Config{
		SimilarityWindow: parseDuration(cfg.Alarming.Correlation.SimilarityWindow, 5*time.Minute),
		FlapThreshold:    cfg.Alarming.Correlation.FlapThreshold,
	})
	slaEngine := sla.NewEngine(slaStore, alarmStore, maintenanceStore, complianceCache, dispatcher, sla.Config{
		CacheTTL:     parseDuration(cfg.Alarming.SLA.CacheTTL, 5*time.Minute),
		MaxRangeDays: cfg.Alarming.SLA.MaxRangeDays,
	})
	alarmService := alarmsvc.NewService(alarmStore, maintenanceStore, correlator, slaEngine, dispatcher, complianceCache)

	sched := scheduler.New(scheduler.Deps{
		Correlator:  correlator,
		Maintenance: maintenanceStore,
		Cache:       complianceCache,
		Interval:    parseDuration(cfg.Alarming.Scheduler.Interval, 30*time.Second),
	})
	ruleManager := rules.NewManager(ruleStore, sched.MarkDirty)
	go sched.Start(ctx)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	alarmapi.New(router, alarmapi.Deps{
		Alarms:      alarmService,
		Rules:       ruleManager,
		Correlation: correlator,
		SLA:         slaEngine,
		SLAStore:    slaStore,
		AuthToken:   cfg.Alarming.API.Token,
	})

	log.Info().Msgf("Starting server on %s", cfg.Server.BindAddr)
	if err := router.Run(cfg.Server.BindAddr); err != nil {
		log.Fatal().Err(err).Msg("start faultline api server failed.")
	}
	log.Info().Msg("faultline api server exit...")
}

func parseDuration(s string, d time.Duration) time.Duration {
	if s == "" {
		return d
	}
	if v, err := time.ParseDuration(s); err == nil {
		return v
	}
	return d
}
