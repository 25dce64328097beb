package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Client is the slice of the Secrets Manager API this package needs.
type Client interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Cache memoizes one Secrets Manager value with a staleness window. The
// cached value lives on the instance, refreshed on access when stale.
type Cache struct {
	client   Client
	secretID string
	ttl      time.Duration

	mu        sync.Mutex
	value     string
	fetchedAt time.Time

	now func() time.Time
}

func NewCache(client Client, secretID string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{
		client:   client,
		secretID: secretID,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WebhookSecret returns the shared secret, hitting AWS only when the
// cached copy is stale. Secrets stored as JSON are expected to carry the
// value under "value"; plain strings pass through unchanged.
func (c *Cache) WebhookSecret(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value != "" && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.value, nil
	}

	if c.secretID == "" {
		return "", errors.New("secret id is empty")
	}

	out, err := c.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(c.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %q: %w", c.secretID, err)
	}

	raw := ""
	if out.SecretString != nil {
		raw = *out.SecretString
	}
	value, err := extractValue(raw)
	if err != nil {
		return "", err
	}

	c.value = value
	c.fetchedAt = c.now()
	return value, nil
}

func extractValue(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("secret is empty")
	}
	if raw[0] != '{' {
		return raw, nil
	}

	var obj map[string]string
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return "", fmt.Errorf("parse secret json: %w", err)
	}
	if v := obj["value"]; v != "" {
		return v, nil
	}
	for _, v := range obj {
		if v != "" {
			return v, nil
		}
	}
	return "", errors.New("secret has no usable value")
}
