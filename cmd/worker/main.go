package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/getsentry/sentry-go"
	"github.com/trunov/mediaforge/internal/awsconf"
	"github.com/trunov/mediaforge/internal/config"
	"github.com/trunov/mediaforge/internal/metastore"
	"github.com/trunov/mediaforge/internal/queue"
	"github.com/trunov/mediaforge/internal/s3store"
	"github.com/trunov/mediaforge/internal/transcoder"
)

const file = "config.json"

func main() {
	cfg := config.NewConfig()
	if err := cfg.Read(file); err != nil {
		log.Fatal(err)
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.SentryDSN,
		Environment: cfg.Sentry.Environment,
		Release:     "v1",
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	objects, err := s3store.NewStorage(&cfg.S3)
	if err != nil {
		log.Fatal(err)
	}
	defer objects.Close()

	awsCfg, err := awsconf.Load(ctx, cfg.S3.Region, cfg.S3.AccessKeyID, cfg.S3.SecretKey)
	if err != nil {
		log.Fatal(err)
	}

	meta := metastore.New(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDB.Table)
	broker := queue.NewSQSBroker(sqs.NewFromConfig(awsCfg), cfg.SQS)
	engine := transcoder.New(cfg.Transcode)

	worker := queue.NewWorker(broker, objects, meta, engine, cfg.Worker)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker stopped: %v", err)
	}
	log.Printf("worker stopped")
}
