package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/trunov/mediaforge/cmd/migrate"
	"github.com/trunov/mediaforge/internal/awsconf"
	"github.com/trunov/mediaforge/internal/cache"
	"github.com/trunov/mediaforge/internal/config"
	"github.com/trunov/mediaforge/internal/jobtracker"
	"github.com/trunov/mediaforge/internal/linker"
	"github.com/trunov/mediaforge/internal/metastore"
	"github.com/trunov/mediaforge/internal/params"
	"github.com/trunov/mediaforge/internal/queue"
	"github.com/trunov/mediaforge/internal/redisholder"
	"github.com/trunov/mediaforge/internal/repository/storage"
	"github.com/trunov/mediaforge/internal/s3store"
	"github.com/trunov/mediaforge/internal/secrets"
	"github.com/trunov/mediaforge/internal/transcoder"
	"github.com/trunov/mediaforge/internal/transport/handler"
	"github.com/trunov/mediaforge/internal/transport/router"
	use_case "github.com/trunov/mediaforge/internal/use-case"
)

type App struct {
	HttpServer *http.Server
	tracker    *jobtracker.Tracker
	objects    *s3store.Storage
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	if err := migrate.Run(ctx, cfg.Database.DSN); err != nil {
		return nil, err
	}

	repo, err := storage.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	holder, err := redisholder.Build(ctx, &cfg.Redis)
	if err != nil {
		return nil, err
	}

	rc := holder.Get()
	links := linker.NewManager(rc)
	urlCache := cache.NewCache("mediaforge:urls", rc)

	objects, err := s3store.NewStorage(&cfg.S3)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconf.Load(ctx, cfg.S3.Region, cfg.S3.AccessKeyID, cfg.S3.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	meta := metastore.New(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDB.Table)
	broker := queue.NewSQSBroker(sqs.NewFromConfig(awsCfg), cfg.SQS)
	producer := queue.NewProducer(broker, meta)

	webhookSecrets := secrets.NewCache(secretsmanager.NewFromConfig(awsCfg), cfg.Secrets.WebhookSecretID, cfg.Secrets.CacheTTL*time.Second)
	publicBase := params.NewCache(ssm.NewFromConfig(awsCfg), cfg.Secrets.PublicBaseParam, cfg.Secrets.CacheTTL*time.Second)

	engine := transcoder.New(cfg.Transcode)
	executor := jobtracker.NewExecutor(objects, engine, cfg.Transcode.WorkDir)
	tracker := jobtracker.New(executor, cfg.Transcode.Workers, cfg.Transcode.QueueSize)

	uc := use_case.New(repo, objects, producer, tracker, meta, links, urlCache, publicBase, cfg.S3.DownloadURLTTL*time.Second)

	h := handler.New(uc, webhookSecrets, repo, cfg)
	r := router.NewRouter(h)

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
	}

	return &App{
		HttpServer: s,
		tracker:    tracker,
		objects:    objects,
	}, nil
}

func (a *App) Run() error {
	log.Printf("starting server")
	return a.HttpServer.ListenAndServe()
}

// Shutdown drains the job pool and the upload pool after the listener stops.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.HttpServer.Shutdown(ctx)
	a.tracker.Close()
	a.objects.Close()
	return err
}
