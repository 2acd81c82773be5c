package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cespare/xxhash/v2"

	"remindr/internal/observability"
)

// API is the subset of *sqs.Client the queue uses.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

const defaultGroupBuckets = 1024

type Producer struct {
	SQS      API
	QueueURL string

	// FIFO queues keep replies from one sender in order. Senders are hashed
	// into GroupBuckets message groups.
	FIFO         bool
	GroupBuckets int
}

func (p *Producer) Enqueue(ctx context.Context, ev WebhookEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	}
	if p.FIFO {
		key := ev.From
		if key == "" {
			key = ev.CarrierMsgID
		}
		in.MessageGroupId = str(messageGroupIDBucketed(string(ev.Kind), key, p.GroupBuckets))
		in.MessageDeduplicationId = str(string(ev.Kind) + ":" + ev.CarrierMsgID + ":" + ev.Status)
	}

	if _, err := p.SQS.SendMessage(ctx, in); err != nil {
		observability.Enqueues.WithLabelValues("error").Inc()
		return fmt.Errorf("enqueue %s event: %w", ev.Kind, err)
	}
	observability.Enqueues.WithLabelValues("ok").Inc()
	return nil
}

func messageGroupIDBucketed(kind, key string, buckets int) string {
	if buckets <= 0 {
		buckets = defaultGroupBuckets
	}
	b := xxhash.Sum64String(key) % uint64(buckets)
	return kind + ":" + strconv.FormatUint(b, 10)
}

func str(s string) *string { return &s }
