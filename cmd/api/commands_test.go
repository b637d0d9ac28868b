package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", dir+"/app.db")
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("PATH_TO_USER_CONTEXT_DATA", dir+"/data")
	t.Setenv("PATH_TO_PROJECT_RESOURCES", dir+"/resources")
	t.Setenv("ENGINE_BACKEND", "webhook")
	t.Setenv("ENGINE_WEBHOOK_URL", "http://localhost:7860/api/v1/webhook/flow")
}

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	setRequiredEnv(t)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--user", "user-42"})
	require.NoError(t, root.Execute())

	raw := strings.TrimSpace(out.String())
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte("cli-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims["user_id"])
}

func TestTokenCommandRequiresUser(t *testing.T) {
	setRequiredEnv(t)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token"})
	assert.Error(t, root.Execute())
}

func TestTokenCommandFailsOnBadConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--user", "user-42"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}
