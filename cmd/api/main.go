package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"remindr/internal/app"
	"remindr/internal/config"
	"remindr/internal/httpserver"
	"remindr/internal/logging"
	"remindr/internal/observability"
	"remindr/internal/quota"
	"remindr/internal/service"
	"remindr/internal/util"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat, cfg.LogLevel)
	observability.Register(prometheus.DefaultRegisterer)

	ctx, stop := app.SignalContext()
	defer stop()

	st, closeStore, err := app.OpenStore(ctx, cfg.Common, cfg.DB)
	if err != nil {
		app.Fatal("api store init failed", err)
	}
	defer closeStore()

	counter, quotaPing, closeQuota, err := app.OpenQuota(ctx, cfg.Quota, st)
	if err != nil {
		app.Fatal("api quota init failed", err)
	}
	defer closeQuota()

	api := &httpserver.API{
		Svc:   &service.ReminderService{Store: st, IDGen: util.NewReminderID, Now: util.NowUTC},
		Quota: quota.NewGuard(counter),
	}
	if opener, ok := counter.(quota.PeriodOpener); ok {
		api.Periods = opener
	}

	s := httpserver.New()
	s.Ready(2*time.Second, st.Ping, quotaPing)
	api.Register(s.Mux)

	s.Mux.Use(httpserver.Metrics(observability.APIRequests))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(s.Mux),
	}
	errCh := app.Serve("api", srv)

	select {
	case err := <-errCh:
		if err != nil {
			app.Fatal("api server failed", err)
		}
	case <-ctx.Done():
	}
	app.Shutdown(srv)
}
