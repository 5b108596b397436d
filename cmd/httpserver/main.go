// Command httpserver is a demo composition root wiring oakhttp's
// public façade: a default host with a few routes, a static file
// context, and the standard middleware stack.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	oak "github.com/oakhttp/oakhttp/http"
	"github.com/oakhttp/oakhttp/staticfiles"
)

func main() {
	logger := &oak.DefaultLogger{}
	metrics := oak.NewMetrics()
	limiter := oak.NewRateLimiter(100, time.Minute)

	host := oak.NewHost("")

	oak.HandleFunc(host, "/home", "GET", handleHome)
	oak.HandleFunc(host, "/health", "GET", handleHealth)
	oak.Handle(host, "/api/v1/data", "GET", oak.Use(oak.HandlerFunc(handleAPIData),
		oak.WithRateLimit(limiter),
		oak.WithMetrics(metrics),
	))
	oak.HandleFunc(host, "/api/metrics", "GET", func(ctx *oak.Context) int {
		return ctx.JSON(200, metrics.Snapshot())
	})

	static := staticfiles.New("./public")
	oak.Handle(host, "/static", "GET", oak.Use(static,
		oak.WithRecovery(logger),
		oak.WithLogging(logger),
	))

	table := oak.NewTable()
	oak.AddHost(table, host)

	srv, err := oak.ListenAndServe(oak.Config{
		Addr:           ":8080",
		ReusePort:      true,
		ReadTimeout:    30 * time.Second,
		MaxHeaderLines: 100,
		Hosts:          table,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		logger.Error("failed to start server", oak.F("error", err.Error()))
		os.Exit(1)
	}
	fmt.Printf("listening on %s\n", srv.Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	if err := srv.Close(); err != nil {
		logger.Error("shutdown error", oak.F("error", err.Error()))
	}
}

func handleHome(ctx *oak.Context) int {
	return ctx.HTML(200, `<!DOCTYPE html>
<html><head><title>oakhttp</title></head>
<body><h1>oakhttp</h1>
<ul>
<li><a href="/health">health</a></li>
<li><a href="/api/v1/data">api data</a></li>
<li><a href="/static/">static files</a></li>
</ul>
</body></html>`)
}

func handleHealth(ctx *oak.Context) int {
	return ctx.JSON(200, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func handleAPIData(ctx *oak.Context) int {
	return ctx.JSON(200, map[string]interface{}{
		"data":      []string{"item1", "item2", "item3"},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
