package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartmail/internal/config"
	"smartmail/pkg/auth"
	pkgconfig "smartmail/pkg/config"
)

func stubConfig(t *testing.T, cfg *config.Config) {
	t.Helper()
	prev := loadConfig
	loadConfig = func() (*config.Config, error) { return cfg, nil }
	t.Cleanup(func() { loadConfig = prev })
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := NewRoot()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "fetch", "classify", "respond", "responses", "token"} {
		assert.Contains(t, names, want)
	}

	classify, _, err := root.Find([]string{"classify"})
	require.NoError(t, err)
	assert.NotNil(t, classify.Flags().Lookup("limit"))
	assert.NotNil(t, classify.Flags().Lookup("delay"))

	respond, _, err := root.Find([]string{"respond"})
	require.NoError(t, err)
	assert.Equal(t, "false", respond.Flags().Lookup("send").DefValue)
}

func TestRespondRequiresID(t *testing.T) {
	_, err := run(t, "respond")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	stubConfig(t, &config.Config{JWT: pkgconfig.JWTConfig{Secret: "s3cret"}})

	out, err := run(t, "token", "--subject", "ops", "--ttl", "1h")
	require.NoError(t, err)

	sub, err := auth.ParseToken(strings.TrimSpace(out), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ops", sub)
}

func TestTokenWithoutSecret(t *testing.T) {
	stubConfig(t, &config.Config{})
	_, err := run(t, "token")
	assert.ErrorContains(t, err, "jwt.secret")
}

func TestResponsesCommandEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	stubConfig(t, &config.Config{
		Env:   "test",
		Store: pkgconfig.StoreConfig{Driver: "sqlite", SQLitePath: path},
	})

	out, err := run(t, "responses")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestFetchFailsOnInvalidConfig(t *testing.T) {
	stubConfig(t, &config.Config{
		Store: pkgconfig.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "x.db")},
		LLM:   pkgconfig.LLMConfig{Timeout: time.Second},
	})
	_, err := run(t, "fetch")
	assert.ErrorContains(t, err, "llm.api_key")
}
