package timeliner

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	t.Setenv("TIMELINER_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	cfg, err := ParseConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "@every 1h", cfg.Maintenance.PurgeSchedule)
	require.Equal(t, 80, cfg.Realtime.FrameBurst)
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("TIMELINER_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("TIMELINER_SOCIAL_REDIRECTS", "https://a.example/,https://b.example/")
	cfg, err := ParseConfig()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.HTTPAddr)
	require.Equal(t, []string{"https://a.example/", "https://b.example/"}, cfg.Social.RedirectAllowlist)
}

func TestMigrateDryRunThenApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "timeliner.db")
	ctx := context.Background()

	pending, err := Migrate(ctx, path, true)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	applied, err := Migrate(ctx, path, false)
	require.NoError(t, err)
	require.Equal(t, pending, applied)

	pending, err = Migrate(ctx, path, true)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestMigrateCommandOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeliner.db")
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"migrate", "--db", path})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "applied ")

	out.Reset()
	root = NewRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"migrate", "--db", path})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "schema is up to date")
}

func TestAdminGrantRequiresEmail(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"admin", "grant"})
	require.Error(t, root.ExecuteContext(context.Background()))
}
