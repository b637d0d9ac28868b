package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	db "github.com/markdave123-py/samurai-chat/internal/core/database"
	"github.com/markdave123-py/samurai-chat/internal/models"
)

type testEnv struct {
	db      *db.DatabaseClient
	root    string
	convs   *ConversationService
	catalog *CatalogService
	users   *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tmp := t.TempDir()

	client, err := db.OpenSQLite(context.Background(), filepath.Join(tmp, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	root := filepath.Join(tmp, "userdata")
	return &testEnv{
		db:      client,
		root:    root,
		convs:   NewConversationService(client, nil),
		catalog: NewCatalogService(client, NewDirectoryBootstrapper(root), 1000, nil),
		users:   NewUserService(client),
	}
}

func (e *testEnv) user(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := e.users.Signup(context.Background(), email, "correct-horse", "Test")
	require.NoError(t, err)
	return u
}

// fakeEngine records payloads and answers with a fixed acknowledgment or error.
type fakeEngine struct {
	mu       sync.Mutex
	payloads []*models.EnginePayload
	ack      models.Acknowledgment
	err      error
}

func (f *fakeEngine) Dispatch(_ context.Context, p *models.EnginePayload) (models.Acknowledgment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	if f.err != nil {
		return nil, f.err
	}
	return f.ack, nil
}
