package main

import (
	"net/http"

	"remindr/internal/app"
	"remindr/internal/config"
	"remindr/internal/httpserver"
	"remindr/internal/logging"
)

func main() {
	cfg := config.LoadMockCarrier()
	logging.Init("mock-carrier", cfg.LogFormat, cfg.LogLevel)

	ctx, stop := app.SignalContext()
	defer stop()

	s := newServer(cfg)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: httpserver.Logging(s.routes())}
	errCh := app.Serve("mock carrier", srv)

	select {
	case err := <-errCh:
		if err != nil {
			app.Fatal("mock carrier server failed", err)
		}
	case <-ctx.Done():
	}
	app.Shutdown(srv)
	s.wg.Wait()
}
