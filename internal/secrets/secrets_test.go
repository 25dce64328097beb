package secrets

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	calls  int
	secret string
}

func (s *stubClient) GetSecretValue(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	s.calls++
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(s.secret)}, nil
}

func TestWebhookSecretCachesWithinWindow(t *testing.T) {
	client := &stubClient{secret: "s3cret"}
	c := NewCache(client, "webhook", 60*time.Second)

	now := time.Now()
	c.now = func() time.Time { return now }

	got, err := c.WebhookSecret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	// Within the window the cached copy is served.
	now = now.Add(59 * time.Second)
	_, err = c.WebhookSecret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)

	// Past the window the value is refetched.
	now = now.Add(2 * time.Second)
	client.secret = "rotated"
	got, err = c.WebhookSecret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated", got)
	assert.Equal(t, 2, client.calls)
}

func TestExtractValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain string", "s3cret", "s3cret"},
		{"json with value key", `{"value":"s3cret"}`, "s3cret"},
		{"json without value key", `{"webhook_secret":"s3cret"}`, "s3cret"},
		{"value key wins", `{"value":"right"}`, "right"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractValue(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractValueErrors(t *testing.T) {
	_, err := extractValue("")
	assert.Error(t, err)

	_, err = extractValue("{not json")
	assert.Error(t, err)

	_, err = extractValue(`{"value":""}`)
	assert.Error(t, err)
}
