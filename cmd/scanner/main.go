package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"remindr/internal/app"
	"remindr/internal/config"
	"remindr/internal/httpserver"
	"remindr/internal/ledger"
	"remindr/internal/logging"
	"remindr/internal/observability"
	"remindr/internal/quota"
	"remindr/internal/scanner"
)

func main() {
	cfg := config.LoadScanner()
	logging.Init("scanner", cfg.LogFormat, cfg.LogLevel)
	observability.Register(prometheus.DefaultRegisterer)

	ctx, stop := app.SignalContext()
	defer stop()

	st, closeStore, err := app.OpenStore(ctx, cfg.Common, cfg.DB)
	if err != nil {
		app.Fatal("scanner store init failed", err)
	}
	defer closeStore()

	counter, quotaPing, closeQuota, err := app.OpenQuota(ctx, cfg.Quota, st)
	if err != nil {
		app.Fatal("scanner quota init failed", err)
	}
	defer closeQuota()

	sc := &scanner.Scanner{
		Store:       st,
		Ledger:      ledger.New(st),
		Quota:       quota.NewGuard(counter),
		Gateway:     app.Gateway(cfg.Twilio),
		Remediation: st,
		Config:      cfg.Scanner(),
	}

	// health + metrics
	hs := httpserver.New()
	hs.Ready(2*time.Second, st.Ping, quotaPing)
	healthSrv := &http.Server{Addr: ":" + cfg.Port, Handler: httpserver.Logging(hs.Mux)}
	healthErrCh := app.Serve("scanner health", healthSrv)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- sc.Run(ctx) }()

	select {
	case err := <-runErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			app.Fatal("scanner run failed", err)
		}
	case err := <-healthErrCh:
		if err != nil {
			app.Fatal("scanner health server failed", err)
		}
	case <-ctx.Done():
	}
	stop()
	app.Shutdown(healthSrv)
	<-runErrCh
}
