package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	conf "github.com/trunov/mediaforge/internal/config"
)

// SQSBroker drives a single SQS queue. The visibility timeout is the only
// retry mechanism; there is no per-message retry counter here.
type SQSBroker struct {
	client     *sqs.Client
	queueURL   string
	wait       time.Duration
	visibility time.Duration
}

func NewSQSBroker(client *sqs.Client, cfg conf.SQSConfig) *SQSBroker {
	b := &SQSBroker{
		client:     client,
		queueURL:   cfg.QueueURL,
		wait:       cfg.WaitTime * time.Second,
		visibility: cfg.VisibilityTimeout * time.Second,
	}
	if b.wait <= 0 {
		b.wait = 20 * time.Second
	}
	if b.visibility <= 0 {
		b.visibility = 120 * time.Second
	}
	return b
}

func (b *SQSBroker) Enqueue(ctx context.Context, task Task) error {
	if b.queueURL == "" {
		return ErrUnconfigured
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	_, err = b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(b.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("enqueue %s %q: %w", task.Type, task.Key, err)
	}
	log.Printf("[sqs] enqueued: %s %s", task.Type, task.Key)
	return nil
}

// ReceiveOne returns at most one message per call.
func (b *SQSBroker) ReceiveOne(ctx context.Context) (*Delivery, error) {
	if b.queueURL == "" {
		return nil, ErrUnconfigured
	}
	out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(b.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     int32(b.wait / time.Second),
		VisibilityTimeout:   int32(b.visibility / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	m := out.Messages[0]
	d := &Delivery{}
	if m.ReceiptHandle != nil {
		d.Receipt = *m.ReceiptHandle
	}
	if m.Body != nil {
		if err := json.Unmarshal([]byte(*m.Body), &d.Task); err != nil {
			// Leave the task zeroed; the worker treats it as an unknown
			// type and the queue's receive policy decides its fate.
			log.Printf("[sqs] bad message body: %v", err)
		}
	}
	return d, nil
}

// Acknowledge removes the message permanently. An expired receipt is a
// lost acknowledgement, not a failure.
func (b *SQSBroker) Acknowledge(ctx context.Context, receipt string) error {
	if b.queueURL == "" {
		return ErrUnconfigured
	}
	if receipt == "" {
		return nil
	}
	_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}
	return nil
}
