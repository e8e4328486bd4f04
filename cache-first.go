package cachefirst

import (
	"crypto/tls"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"

	"github.com/cache-first/cache-first/cache"
	codec "github.com/cache-first/cache-first/pkg/response-codec"
	tee "github.com/cache-first/cache-first/pkg/response-writer-tee"

	"github.com/rs/zerolog"
)

// Reserved cache keys forming the contract between the application and the
// agent. Request-keyed entries use "METHOD:URI" keys, so the two keyspaces
// cannot collide.
const (
	DefaultOfflinePath   = "/offline.html"
	EmergencyDataKey     = "/emergency-data.json"
	StudentScansKey      = "/student-scans.json"
	DefaultEntryURL      = "/?emergency=true"
	EmergencyDataSyncTag = "emergency-data-sync"
	StudentScansSyncTag  = "student-scans-sync"
)

type Config struct {
	// Storage for cache entries.
	Store cache.Store
	// Name of the current cache version. Superseded versions are pruned on
	// activation.
	Version string
	// URL of the origin server.
	// Origins with paths are not supported.
	OriginURL url.URL
	// Hostname to use for HTTP requests and TLS negotiation.
	// Use if needed if e.g. the origin URL is just an IP address.
	OriginHost string
	// Hostname the application is served under. Requests addressed to any
	// other host are passed through without touching the cache.
	// Empty means every request is treated as same-origin.
	AppHost string
	// Ordered list of asset paths to pre-load on install.
	Assets []string
	// Path of the offline fallback page. Defaults to DefaultOfflinePath.
	OfflinePath string
	// Sync tag to reserved key. Defaults cover the emergency-data and
	// student-scans mailboxes.
	SyncTags map[string]string
	// Message type to reserved key for cache-write messages.
	CacheMessages map[string]string
	// URL opened on a notification interaction when no application instance
	// is available. Defaults to DefaultEntryURL.
	EntryURL string
	// Collaborator that transmits pending sync payloads. Owns retry policy.
	Transmitter Transmitter
	// Registry of open application instances.
	Clients ClientRegistry
	// Notification sink.
	Notifier Notifier
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

type Coordinator struct {
	store         cache.Store
	handle        cache.Handle
	assets        []string
	offlinePath   string
	syncTags      map[string]string
	cacheMessages map[string]string
	entryURL      string
	appHost       string
	transmitter   Transmitter
	clients       ClientRegistry
	notifier      Notifier
	log           zerolog.Logger
	reverseproxy  httputil.ReverseProxy
	passproxy     httputil.ReverseProxy

	stateMutex sync.Mutex
	state      State

	background sync.WaitGroup
}

// CreateCoordinator initializes the offline-cache coordinator.
// One instance is constructed per cache version at startup; there is no
// process-wide state.
func CreateCoordinator(config Config) *Coordinator {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Str("version", config.Version).
		Logger()

	if config.OfflinePath == "" {
		config.OfflinePath = DefaultOfflinePath
	}
	if config.EntryURL == "" {
		config.EntryURL = DefaultEntryURL
	}
	if config.SyncTags == nil {
		config.SyncTags = map[string]string{
			EmergencyDataSyncTag: EmergencyDataKey,
			StudentScansSyncTag:  StudentScansKey,
		}
	}
	if config.CacheMessages == nil {
		config.CacheMessages = map[string]string{
			MessageCacheEmergencyData: EmergencyDataKey,
			MessageCacheStudentScans:  StudentScansKey,
		}
	}

	c := &Coordinator{
		store:         config.Store,
		handle:        cache.Open(config.Store, config.Version),
		assets:        config.Assets,
		offlinePath:   config.OfflinePath,
		syncTags:      config.SyncTags,
		cacheMessages: config.CacheMessages,
		entryURL:      config.EntryURL,
		appHost:       config.AppHost,
		transmitter:   config.Transmitter,
		clients:       config.Clients,
		notifier:      config.Notifier,
		log:           logger,
	}

	host := config.OriginURL.Host
	hostHeader := host
	transport := http.DefaultTransport
	if config.OriginHost != "" {
		hostHeader = config.OriginHost
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				ServerName: config.OriginHost,
			},
		}
	}

	c.reverseproxy = httputil.ReverseProxy{
		Director:     createDirector(config.OriginURL.Scheme, host, hostHeader),
		Transport:    transport,
		ErrorHandler: saverErrorHandler,
	}
	c.passproxy = httputil.ReverseProxy{
		Director: func(req *http.Request) {
			if req.URL.Scheme == "" {
				req.URL.Scheme = "https"
			}
			if req.URL.Host == "" {
				req.URL.Host = req.Host
			}
		},
	}

	return c
}

// ServeHTTP implements the http.Handler interface. It is the fetch
// interception point: cache-first for same-origin GET requests, network
// otherwise, offline fallback for failed HTML navigations.
func (c *Coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !c.sameOrigin(r) {
		c.log.Trace().Str("host", r.Host).Msg("Passing through cross-origin request")
		c.passproxy.ServeHTTP(w, r)
		return
	}
	if r.Method == http.MethodGet {
		if stored, ok := c.lookup(requestKey(r)); ok {
			c.sendStored(w, r, stored, hitStatus())
			return
		}
	}
	c.forward(w, r)
}

// Wait blocks until all spawned background cache writes have finished.
// The host calls this before shutting down, preserving the "handler work
// completes before the host proceeds" contract.
func (c *Coordinator) Wait() {
	c.background.Wait()
}

// lookup fetches and decodes a stored response. A corrupt entry is treated as
// a miss.
func (c *Coordinator) lookup(key string) (codec.StoredResponse, bool) {
	b, ok, err := c.handle.Get(key)
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("Could not retrieve from cache")
		return codec.StoredResponse{}, false
	}
	if !ok {
		return codec.StoredResponse{}, false
	}
	stored, err := codec.Decode(b)
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("Could not decode stored response")
		return codec.StoredResponse{}, false
	}
	return stored, true
}

func (c *Coordinator) sendStored(w http.ResponseWriter, r *http.Request, stored codec.StoredResponse, cs CacheStatus) {
	w.Header().Add("Cache-Status", cs.String())
	if err := stored.Write(w); err != nil {
		c.log.Error().Err(err).Msg("Could not write response body to client")
	}
	c.logRequest(r, cs)
}

// forward issues the network request. The origin response is buffered so a
// transport failure can still be recovered with the offline fallback.
func (c *Coordinator) forward(w http.ResponseWriter, r *http.Request) {
	c.log.Trace().Msgf("forwarding %s", r.URL.String())
	rw := tee.NewResponseSaver()
	c.reverseproxy.ServeHTTP(rw, r)

	if rw.Err() != nil {
		c.sendOffline(w, r, rw.Err())
		return
	}

	cs := missStatus()
	w.Header().Add("Cache-Status", cs.String())
	if _, err := rw.WriteTo(w); err != nil {
		c.log.Error().Err(err).Msg("Could not write response body to client")
	}
	c.logRequest(r, cs)

	// save to cache in background (do not slow down the response);
	// a failed write is logged and never surfaces to the caller
	if cacheable(r, rw.StatusCode(), isBasic(rw)) {
		key := requestKey(r)
		c.background.Add(1)
		go func() {
			defer c.background.Done()
			if err := c.storeResponse(key, rw); err != nil {
				c.log.Error().Err(err).Str("key", key).Msg("Could not store response")
			}
		}()
	}
}

func (c *Coordinator) storeResponse(key string, rw *tee.ResponseSaver) error {
	b, err := codec.Encode(codec.StoredResponse{
		Status:      rw.StatusCode(),
		Header:      rw.Header(),
		Body:        rw.Body(),
		RequestedAt: rw.CreatedAt,
		ReceivedAt:  timeNow(),
	})
	if err != nil {
		return err
	}
	c.log.Trace().Str("key", key).Msg("Writing to cache")
	return c.handle.Put(key, b)
}

// sendOffline recovers a failed navigation with the cached offline page, or a
// minimal synthesized one if the cached page is missing too. Non-HTML
// requests propagate the failure.
func (c *Coordinator) sendOffline(w http.ResponseWriter, r *http.Request, cause error) {
	if !acceptsHTML(r) {
		c.log.Debug().Err(cause).Str("url", r.URL.String()).Msg("Origin unreachable")
		http.Error(w, "origin unreachable", http.StatusBadGateway)
		return
	}
	c.log.Debug().Err(cause).Str("url", r.URL.String()).Msg("Origin unreachable, serving offline page")

	offlineReq, err := http.NewRequest(http.MethodGet, c.offlinePath, nil)
	if err == nil {
		if stored, ok := c.lookup(requestKey(offlineReq)); ok {
			c.sendStored(w, r, stored, fallbackStatus())
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Add("Cache-Status", fallbackStatus().String())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(offlinePage)); err != nil {
		c.log.Error().Err(err).Msg("Could not write offline page to client")
	}
}

// offlinePage is served when the network is down and the cached fallback is
// missing as well. It only needs to render equivalently to the cached page.
const offlinePage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Offline</title>
</head>
<body>
<h1>You are offline</h1>
<p>This page is not available right now. Reconnect and try again.</p>
</body>
</html>
`

func (c *Coordinator) sameOrigin(r *http.Request) bool {
	if c.appHost == "" {
		return true
	}
	return r.Host == c.appHost
}

// requestKey is the canonical cache key for a request.
func requestKey(r *http.Request) string {
	return r.Method + ":" + r.URL.RequestURI()
}

// isBasic classifies a proxied response. Responses relayed from the
// configured origin are "basic"; a transport failure or a response synthesized
// by the proxy itself is not.
func isBasic(rw *tee.ResponseSaver) bool {
	return rw.Err() == nil && rw.StatusCode() != 0
}

func saverErrorHandler(rw http.ResponseWriter, r *http.Request, err error) {
	if saver, ok := rw.(*tee.ResponseSaver); ok {
		saver.Fail(err)
		return
	}
	rw.WriteHeader(http.StatusBadGateway)
}

func createDirector(scheme, host, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		if hostHeader != "" {
			req.Host = hostHeader
		}
	}
}

func (c *Coordinator) logRequest(r *http.Request, cs CacheStatus) {
	isHit := 0
	if cs.hit {
		isHit = 1
	}
	c.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("status", cs.String()).
		Int("hit", isHit).
		Msg("Sending response to client")
}
