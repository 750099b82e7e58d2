package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpinfra "relink/internal/infra/http"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenIssuesVerifiableJWT(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("AUTH_JWT_ISSUER", "relink")

	out, err := run(t, "token", "user-1", "--email", "a@example.com")
	require.NoError(t, err)

	id, err := httpinfra.NewTokenVerifier("secret", "relink").Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "a@example.com", id.Email)
}

func TestTokenRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	_, err := run(t, "token", "user-1")
	assert.Error(t, err)
}

func TestPurgeRequiresConfirmation(t *testing.T) {
	_, err := run(t, "purge")
	assert.ErrorContains(t, err, "--yes")
}

func TestReconcileOnMemoryStorage(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("QUEUE_DRIVER", "none")
	t.Setenv("CACHE_DRIVER", "memory")

	out, err := run(t, "reconcile")
	require.NoError(t, err)

	var report map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Contains(t, report, "pointers")
	assert.Contains(t, report, "connections")
}

func TestMigrateRequiresPostgres(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	_, err := run(t, "migrate", "up")
	assert.ErrorContains(t, err, "postgres")
}
