package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"portal-chat/internal/store"
)

func TestNewDB_CreatesDataDir(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "data", "portal-chat.db")
	d, err := NewDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, d.Migrate(context.Background()))
	_, err = d.CreateChatSession(context.Background(), &store.ChatSession{SessionID: "s1", Principal: "alice", Agent: "a", Created: 1, LastActivity: 1})
	require.NoError(t, err)

	_, err = os.Stat(dsn)
	require.NoError(t, err)
}

func TestEnsureDir_SkipsSpecialDSNs(t *testing.T) {
	require.NoError(t, ensureDir(":memory:"))
	require.NoError(t, ensureDir("file:/nonexistent/dir/x.db?mode=memory"))
	require.NoError(t, ensureDir("local.db"))
}
