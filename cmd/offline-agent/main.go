package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	cachefirst "github.com/cache-first/cache-first"
	"github.com/cache-first/cache-first/cache"

	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	originFlag         string
	versionFlag        string
	providerFlag       string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config)")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&versionFlag, "cache-version", "", "Cache version name (overrides config)")
	flag.StringVar(&providerFlag, "provider", "", "Cache provider: sqlite, memory, bigcache or redis")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Cache DB file name (use 'memory' for in-memory db)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	config, err := getConfig(configFilenameFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read config")
	}
	if originFlag != "" {
		config.Origin = originFlag
	}
	if versionFlag != "" {
		config.CacheVersion = versionFlag
	}
	if providerFlag != "" {
		config.Provider = providerFlag
	}
	if config.Port == 0 {
		config.Port = portFlag
	}
	if config.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	if config.CacheVersion == "" {
		config.CacheVersion = "static-cache-v1"
	}

	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	store := createStore(config)
	defer store.Close()

	coordinator := cachefirst.CreateCoordinator(cachefirst.Config{
		Store:         store,
		Version:       config.CacheVersion,
		OriginURL:     *originURL,
		OriginHost:    config.Host,
		AppHost:       config.AppHost,
		Assets:        config.Assets,
		OfflinePath:   config.OfflinePath,
		SyncTags:      config.SyncTags,
		CacheMessages: config.CacheMessages,
		EntryURL:      config.EntryURL,
		Transmitter:   &httpTransmitter{endpoints: config.SyncEndpoints},
		Clients:       logClients{},
		Notifier:      logNotifier{},
		Logger:        &log.Logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := coordinator.OnInstall(ctx); err != nil {
		log.Fatal().Err(err).Msg("Install failed")
	}
	if err := coordinator.OnActivate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Activate failed")
	}

	if config.PeriodicSync != "" {
		interval, err := time.ParseDuration(config.PeriodicSync)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not parse periodicSync interval")
		}
		go runPeriodicSync(ctx, coordinator, interval, syncTags(config))
	}

	r := chi.NewRouter()
	r.Post("/-/message", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := coordinator.OnMessage(req.Context(), body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	r.Post("/-/sync/{tag}", func(w http.ResponseWriter, req *http.Request) {
		if err := coordinator.OnSyncTag(req.Context(), chi.URLParam(req, "tag")); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/-/push", func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		if err := coordinator.OnPush(req.Context(), body); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	r.Post("/-/notification/{action}", func(w http.ResponseWriter, req *http.Request) {
		action := cachefirst.Action(chi.URLParam(req, "action"))
		if err := coordinator.OnNotificationAction(req.Context(), action); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/*", coordinator)

	log.Info().Msgf("Serving port %v with origin %s (cache version '%s')",
		config.Port, config.Origin, config.CacheVersion)
	server := &http.Server{Addr: fmt.Sprintf(":%d", config.Port), Handler: r}
	if err := runServer(ctx, server, coordinator); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// runServer serves until ctx is cancelled (i.e. on SIGINT/SIGTERM), then
// shuts the listener down gracefully and drains pending cache writes.
func runServer(ctx context.Context, server *http.Server, coordinator *cachefirst.Coordinator) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Shutdown did not finish cleanly")
		}
	}()
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		err = nil
	}
	coordinator.Wait()
	return err
}

func createStore(config Config) cache.Store {
	switch config.Provider {
	case "sqlite", "":
		dbFilename := config.DB
		if dbFilename == "" {
			dbFilename = dbFilenameFlag
		}
		if dbFilename == "memory" {
			dbFilename = ""
		}
		store, err := cache.NewSQLiteStore(dbFilename)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open sqlite store")
		}
		return store
	case "memory":
		return cache.NewMemStore()
	case "bigcache":
		store, err := cache.NewBigCacheStore(cache.BigCacheConfig{})
		if err != nil {
			log.Fatal().Err(err).Msg("Could not create bigcache store")
		}
		return store
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: config.RedisAddr})
		store, err := cache.NewRedisStore(cache.RedisConfig{Client: client, CloseClient: true})
		if err != nil {
			log.Fatal().Err(err).Msg("Could not create redis store")
		}
		return store
	default:
		log.Fatal().Msgf("Unsupported cache provider: %s", config.Provider)
		return nil
	}
}

// runPeriodicSync triggers every configured sync tag on a fixed interval.
// Failed flushes stay pending and are retried on the next tick.
func runPeriodicSync(ctx context.Context, coordinator *cachefirst.Coordinator, interval time.Duration, tags map[string]string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for tag := range tags {
				if err := coordinator.OnSyncTag(ctx, tag); err != nil {
					log.Warn().Err(err).Str("tag", tag).Msg("Periodic sync failed")
				}
			}
		}
	}
}

func syncTags(config Config) map[string]string {
	if config.SyncTags != nil {
		return config.SyncTags
	}
	return map[string]string{
		cachefirst.EmergencyDataSyncTag: cachefirst.EmergencyDataKey,
		cachefirst.StudentScansSyncTag:  cachefirst.StudentScansKey,
	}
}

// httpTransmitter posts pending payloads to the per-tag endpoint.
type httpTransmitter struct {
	endpoints map[string]string
	client    http.Client
}

func (t *httpTransmitter) Transmit(ctx context.Context, tag string, payload json.RawMessage) error {
	endpoint, ok := t.endpoints[tag]
	if !ok {
		return fmt.Errorf("no sync endpoint configured for tag %q", tag)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("sync endpoint %s returned %d", endpoint, res.StatusCode)
	}
	return nil
}

// logNotifier writes notifications to the log. A real deployment plugs in a
// push gateway here.
type logNotifier struct{}

func (logNotifier) Show(_ context.Context, n cachefirst.Notification) error {
	log.Info().
		Str("id", n.ID.String()).
		Str("title", n.Title).
		Str("body", n.Body).
		Msg("Notification")
	return nil
}

// logClients records client-routing actions. A real deployment plugs in a
// connection registry here.
type logClients struct{}

func (logClients) ClaimAll(context.Context) error {
	log.Debug().Msg("Claimed open clients")
	return nil
}

func (logClients) Focus(context.Context) (bool, error) {
	return false, nil
}

func (logClients) OpenWindow(_ context.Context, url string) error {
	log.Info().Str("url", url).Msg("Opening client window")
	return nil
}
