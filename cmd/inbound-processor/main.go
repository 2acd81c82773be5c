package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/prometheus/client_golang/prometheus"

	"remindr/internal/app"
	"remindr/internal/awsutil"
	"remindr/internal/classify"
	"remindr/internal/config"
	"remindr/internal/domain"
	"remindr/internal/httpserver"
	"remindr/internal/inbound"
	"remindr/internal/logging"
	"remindr/internal/observability"
	"remindr/internal/providers/twilio"
	sqsqueue "remindr/internal/queue/sqs"
)

func main() {
	cfg := config.LoadInboundProcessor()
	logging.Init("inbound-processor", cfg.LogFormat, cfg.LogLevel)
	observability.Register(prometheus.DefaultRegisterer)

	ctx, stop := app.SignalContext()
	defer stop()

	st, closeStore, err := app.OpenStore(ctx, cfg.Common, cfg.DB)
	if err != nil {
		app.Fatal("inbound-processor store init failed", err)
	}
	defer closeStore()

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		app.Fatal("inbound-processor sqs client init failed", err)
	}
	queueReady := func(c context.Context) error {
		_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
			QueueUrl:       &cfg.SQSQueueURL,
			AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
		})
		return err
	}
	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := queueReady(startupCtx); err != nil {
		app.Fatal("sqs not reachable", err)
	}
	startupCancel()

	vocab := classify.DefaultVocabulary()
	if cfg.VocabularyPath != "" {
		if vocab, err = classify.LoadVocabulary(cfg.VocabularyPath); err != nil {
			app.Fatal("inbound-processor vocabulary load failed", err)
		}
	}

	processor := &inbound.Processor{
		Lookup:        st,
		Classifier:    classify.New(vocab),
		Sink:          &inbound.StoreSink{Store: st},
		PendingWindow: cfg.PendingWindow,
	}
	statuses := &inbound.StatusHandler{Store: st, Categorize: twilio.CategorizeCode}
	// Callbacks without a status are reconciled against the carrier.
	if cfg.TwilioAccountSID != "" {
		statuses.Gateway = app.Gateway(cfg.Twilio)
	}

	consumer := &sqsqueue.Consumer{
		SQS:               sqsClient,
		QueueURL:          cfg.SQSQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}

	hs := httpserver.New()
	hs.Ready(2*time.Second, st.Ping, queueReady)
	healthSrv := &http.Server{Addr: ":" + cfg.Port, Handler: httpserver.Logging(hs.Mux)}
	healthErrCh := app.Serve("inbound-processor health", healthSrv)

	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("inbound-processor starting poll", "queue_url", cfg.SQSQueueURL, "workers", cfg.WorkerConcurrency)
		pollErrCh <- consumer.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, ev sqsqueue.WebhookEvent) (err error) {
			start := time.Now()
			defer func() {
				if err != nil {
					slog.Info("inbound event finish", "kind", ev.Kind, "carrier_msg_id", ev.CarrierMsgID,
						"status", "error", "duration", time.Since(start), "err", err)
					return
				}
				slog.Info("inbound event finish", "kind", ev.Kind, "carrier_msg_id", ev.CarrierMsgID,
					"status", "ok", "duration", time.Since(start))
			}()
			switch ev.Kind {
			case sqsqueue.KindInbound:
				_, err = processor.Handle(ctx, ev.Inbound())
			case sqsqueue.KindStatus:
				err = statuses.Handle(ctx, ev.Delivery())
			default:
				err = fmt.Errorf("%w: unknown event kind %q", domain.ErrMissingFields, ev.Kind)
			}
			// Malformed events never succeed on redelivery.
			if errors.Is(err, domain.ErrMissingFields) {
				slog.Warn("inbound event dropped", "kind", ev.Kind, "carrier_msg_id", ev.CarrierMsgID, "err", err)
				return nil
			}
			return err
		})
	}()

	select {
	case err := <-pollErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			app.Fatal("inbound-processor poll failed", err)
		}
	case err := <-healthErrCh:
		if err != nil {
			app.Fatal("inbound-processor health server failed", err)
		}
	case <-ctx.Done():
		slog.Info("inbound-processor shutdown")
	}
	stop()
	app.Shutdown(healthSrv)

	select {
	case <-pollErrCh:
	case <-time.After(app.ShutdownTimeout):
		slog.Info("inbound-processor shutdown timeout waiting for poll loop")
	}
}
