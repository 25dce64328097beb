package params

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Client is the slice of the SSM API this package needs.
type Client interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Cache memoizes one SSM parameter with a staleness window, same shape as
// the secrets cache.
type Cache struct {
	client Client
	name   string
	ttl    time.Duration

	mu        sync.Mutex
	value     string
	fetchedAt time.Time

	now func() time.Time
}

func NewCache(client Client, name string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{
		client: client,
		name:   name,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Value returns the parameter, refreshing it when the cached copy is stale.
func (c *Cache) Value(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value != "" && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.value, nil
	}

	if c.name == "" {
		return "", errors.New("parameter name is empty")
	}

	out, err := c.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(c.name),
		WithDecryption: aws.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %q: %w", c.name, err)
	}

	value := ""
	if out.Parameter != nil && out.Parameter.Value != nil {
		value = *out.Parameter.Value
	}

	c.value = value
	c.fetchedAt = c.now()
	return value, nil
}
