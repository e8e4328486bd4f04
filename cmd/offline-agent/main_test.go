package main

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	cachefirst "github.com/cache-first/cache-first"
	"github.com/cache-first/cache-first/cache"

	"github.com/rs/zerolog"
)

func TestRunServerDrainsOnShutdown(t *testing.T) {
	logger := zerolog.New(io.Discard)
	originURL, err := url.Parse("http://127.0.0.1:9")
	if err != nil {
		t.Fatal(err)
	}
	coordinator := cachefirst.CreateCoordinator(cachefirst.Config{
		Store:     cache.NewMemStore(),
		Version:   "v1",
		OriginURL: *originURL,
		Logger:    &logger,
	})
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, server, coordinator) }()

	// let the listener come up, then ask for shutdown
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server kept running after shutdown was requested")
	}
}
