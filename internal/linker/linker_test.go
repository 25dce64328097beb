package linker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateTokenIsURLSafe(t *testing.T) {
	token := GenerateToken()

	assert.Len(t, token, 27) // sha1 digest, unpadded base64
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "=")
	assert.False(t, strings.ContainsAny(token, " \t\n"))
}
