package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"remindr/internal/app"
	"remindr/internal/awsutil"
	"remindr/internal/classify"
	"remindr/internal/config"
	"remindr/internal/httpserver"
	"remindr/internal/inbound"
	"remindr/internal/logging"
	"remindr/internal/observability"
	"remindr/internal/providers/twilio"
	sqsqueue "remindr/internal/queue/sqs"
)

func main() {
	cfg := config.LoadWebhook()
	logging.Init("webhook", cfg.LogFormat, cfg.LogLevel)
	observability.Register(prometheus.DefaultRegisterer)

	ctx, stop := app.SignalContext()
	defer stop()

	wh := &httpserver.Webhook{
		VerifySignature: twilio.VerifySignature,
		AuthToken:       cfg.TwilioAuthToken,
		PublicURL:       cfg.PublicWebhookURL,
	}
	s := httpserver.New()

	if cfg.SQSQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			app.Fatal("webhook sqs client init failed", err)
		}
		wh.Queue = &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL, FIFO: cfg.SQSFIFO}
		s.Ready(2 * time.Second)
	} else {
		// No queue: classify and record inline.
		st, closeStore, err := app.OpenStore(ctx, cfg.Common, cfg.DB)
		if err != nil {
			app.Fatal("webhook store init failed", err)
		}
		defer closeStore()

		vocab, err := loadVocabulary(cfg.VocabularyPath)
		if err != nil {
			app.Fatal("webhook vocabulary load failed", err)
		}
		wh.Inbound = &inbound.Processor{
			Lookup:        st,
			Classifier:    classify.New(vocab),
			Sink:          &inbound.StoreSink{Store: st},
			PendingWindow: cfg.PendingWindow,
		}
		wh.Status = &inbound.StatusHandler{Store: st, Categorize: twilio.CategorizeCode}
		s.Ready(2*time.Second, st.Ping)
	}
	wh.Register(s.Mux)

	s.Mux.Use(httpserver.Metrics(observability.APIRequests))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(s.Mux),
	}
	errCh := app.Serve("webhook", srv)

	select {
	case err := <-errCh:
		if err != nil {
			app.Fatal("webhook server failed", err)
		}
	case <-ctx.Done():
	}
	app.Shutdown(srv)
}

func loadVocabulary(path string) (classify.Vocabulary, error) {
	if path == "" {
		return classify.DefaultVocabulary(), nil
	}
	return classify.LoadVocabulary(path)
}
