package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ZacMelendez/passporter/config"
	"github.com/ZacMelendez/passporter/internal/aws_s3"
	"github.com/ZacMelendez/passporter/internal/broker"
	cacheClient "github.com/ZacMelendez/passporter/internal/cache"
	"github.com/ZacMelendez/passporter/internal/discovery"
	"github.com/ZacMelendez/passporter/internal/importer"
	"github.com/ZacMelendez/passporter/internal/metrics"
	"github.com/ZacMelendez/passporter/internal/model"
	"github.com/ZacMelendez/passporter/internal/persistence"
	"github.com/ZacMelendez/passporter/internal/scheduler"
	"github.com/ZacMelendez/passporter/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cfg         *config.Config
	log         *slog.Logger
	db          *sql.DB
	resultCache cacheClient.ResultCache
	snapshots   aws_s3.SnapshotClient
	entryRepo   persistence.EntryStorage
	discoverer  *discovery.DiscoveryService
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	log = setupLogger()
	db = setupDatabase()
	defer closeDatabase()
	entryRepo = persistence.NewEntryRepository(db, log)
	resultCache = setupCache()
	defer resultCache.Close()
	if cfg.S3Settings.Enabled {
		snapshots = aws_s3.NewS3SnapshotClient(cfg.S3Settings, log)
	}
	fetcher := discovery.NewPageFetcher(cfg.DiscoverySettings, log)
	discoverer = discovery.NewDiscoveryService(cfg.DiscoverySettings, fetcher, resultCache, snapshots, log)
	registry := prometheus.NewRegistry()
	discoveryMetrics := metrics.NewDiscoveryMetrics(registry)
	log.Info("starting application on port "+cfg.Port, slog.String("env", cfg.Env))

	var eventChan chan *model.DiscoveryEvent
	kafkaWg := &sync.WaitGroup{}
	if cfg.KafkaSettings.Enabled {
		eventChan = make(chan *model.DiscoveryEvent, 100)
		kafkaWg.Add(1)
		go broker.NewKafkaProducer(kafkaWg, eventChan, log, cfg.KafkaSettings.Producer)
	}

	sched := scheduler.NewBatchScheduler(cfg.SchedulerSettings, entryRepo, discoverer, eventChan,
		discoveryMetrics, log)

	if strings.ToLower(cfg.Env) != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := server.NewEntryHandler(entryRepo, sched, discoverer, importer.NewCSVImporter(entryRepo, log), log)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.NewRouter(handler, registry, log),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed.", slog.String("err", err.Error()))
			stop()
		}
	}()

	// Graceful shutdown.
	// 1. Stop the HTTP server by system call. No new batches or entries come in
	// 2. Stop the Scheduler. Workers finish in-flight discoveries; queued ids keep their status
	// 3. Close eventChan. Wait till Producer drains the remaining events and write to kafka
	// 4. Close database and cache connections
	<-ctx.Done()
	log.Info("stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop http server.", slog.String("err", err.Error()))
	}
	sched.Stop()
	if eventChan != nil {
		close(eventChan)
		log.Info("close eventChan.")
	}
	kafkaWg.Wait()
}

func setupLogger() *slog.Logger {
	resolvedLogLevel := func() slog.Level {
		envLogLevel := strings.ToLower(cfg.LogLevel)
		switch envLogLevel {
		case "info":
			return slog.LevelInfo
		case "error":
			return slog.LevelError
		default:
			return slog.LevelDebug
		}
	}

	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	var logger *slog.Logger
	if strings.ToLower(cfg.LogType) == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource:   true,
			Level:       resolvedLogLevel(),
			ReplaceAttr: replaceAttrs}))
	} else {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       resolvedLogLevel(),
			ReplaceAttr: replaceAttrs,
			NoColor:     false}))
	}

	slog.SetDefault(logger)
	logger.Debug("debug messages are enabled.")

	return logger
}

func setupDatabase() *sql.DB {
	log.Info("connecting to the database...")
	sqlCfg := mysql.Config{
		User:                 cfg.DbSettings.User,
		Passwd:               cfg.DbSettings.Password,
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%s", cfg.DbSettings.Host, cfg.DbSettings.Port),
		DBName:               cfg.DbSettings.Name,
		AllowNativePasswords: true,
		ParseTime:            true,
	}
	database, err := sql.Open("mysql", sqlCfg.FormatDSN())
	if err != nil {
		log.Error("failed to establish database connection.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	database.SetConnMaxLifetime(cfg.DbSettings.ConnMaxLifetime)
	database.SetMaxOpenConns(cfg.DbSettings.MaxOpenConns)
	database.SetMaxIdleConns(cfg.DbSettings.MaxIdleConns)

	maxRetry := 6
	for i := 1; i <= maxRetry; i++ {
		log.Info("ping the database.", slog.String("attempt", fmt.Sprintf("%d/%d", i, maxRetry)))
		pingErr := database.Ping()
		if pingErr != nil {
			log.Error("not responding.", slog.String("err", pingErr.Error()))
			if i == maxRetry {
				log.Error("failed to establish database connection.")
				os.Exit(1)
			}
			log.Info(fmt.Sprintf("wait %d seconds", 5*i))
			time.Sleep(time.Duration(5*i) * time.Second)
		} else {
			break
		}
	}
	log.Info("connected to the database!")

	return database
}

func setupCache() cacheClient.ResultCache {
	if strings.ToLower(cfg.CacheSettings.Type) == "memcached" {
		return cacheClient.NewMemcachedClient(cfg.CacheSettings, log)
	}
	return cacheClient.NewLocalCache(cfg.CacheSettings, log)
}

func closeDatabase() {
	log.Info("closing database connection.")
	err := db.Close()
	if err != nil {
		log.Error("failed to close database connection.", slog.String("err", err.Error()))
	}
}
