package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Upload    UploadConfig    `json:"upload"`
	Database  Database        `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	S3        S3Config        `json:"s3"`
	SQS       SQSConfig       `json:"sqs"`
	DynamoDB  DynamoDBConfig  `json:"dynamodb"`
	Transcode TranscodeConfig `json:"transcode"`
	Worker    WorkerConfig    `json:"worker"`
	Secrets   SecretsConfig   `json:"secrets"`
	Sentry    SentryConfig    `json:"sentry"`
}

type ServerConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type UploadConfig struct {
	MaxRequestBodyMB     int64 `json:"max_request_body"`
	MaxMultipartMemoryMB int64 `json:"max_multipart_memory"`
}

type Database struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Password            string        `json:"password"`
	DatabaseID          int           `json:"database_id"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	PoolSize            int           `json:"pool_size"`
	Nodes               []RedisNode   `json:"nodes"`
}

type RedisNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

type S3Config struct {
	Region         string        `json:"region"`
	Bucket         string        `json:"bucket"`
	AccessKeyID    string        `json:"access_key_id"`
	SecretKey      string        `json:"secret_key"`
	Endpoint       string        `json:"endpoint"`         // optional, for localstack/minio
	UploadURLTTL   time.Duration `json:"upload_url_ttl"`   // seconds
	DownloadURLTTL time.Duration `json:"download_url_ttl"` // seconds
}

type SQSConfig struct {
	QueueURL          string        `json:"queue_url"`
	WaitTime          time.Duration `json:"wait_time"`          // long-poll window, seconds
	VisibilityTimeout time.Duration `json:"visibility_timeout"` // seconds
}

type DynamoDBConfig struct {
	Table string `json:"table"`
}

type TranscodeConfig struct {
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
	WorkDir     string `json:"work_dir"`
	Workers     int    `json:"workers"`    // job pool size
	QueueSize   int    `json:"queue_size"` // job pool backlog
}

type WorkerConfig struct {
	TempDir       string `json:"temp_dir"`
	ThumbMaxWidth int    `json:"thumb_max_width"`
}

type SecretsConfig struct {
	WebhookSecretID string        `json:"webhook_secret_id"`
	PublicBaseParam string        `json:"public_base_param"`
	CacheTTL        time.Duration `json:"cache_ttl"` // seconds
}

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}
