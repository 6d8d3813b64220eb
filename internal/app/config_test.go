package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqlchat/internal/chat"
	"gqlchat/internal/session"
)

func TestResolveDerivesEndpoints(t *testing.T) {
	cfg, err := ClientConfig{APIURL: "https://chat.example.com/", DBPath: "x.db"}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", cfg.APIURL)
	assert.Equal(t, "https://chat.example.com/graphql", cfg.GraphQLURL)
	assert.Equal(t, "wss://chat.example.com/graphql", cfg.SubscriptionURL)
	assert.Equal(t, "x.db", cfg.DBPath)
}

func TestResolveDefaults(t *testing.T) {
	t.Setenv("GQLCHAT_DB_PATH", "/tmp/custom.db")
	cfg, err := ClientConfig{}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, "http://localhost:8080/graphql", cfg.GraphQLURL)
	assert.Equal(t, "ws://localhost:8080/graphql", cfg.SubscriptionURL)
	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
}

func TestResolveKeepsExplicitEndpoints(t *testing.T) {
	cfg, err := ClientConfig{
		APIURL:          "http://auth.local:4000",
		GraphQLURL:      "http://gql.local:4001/query",
		SubscriptionURL: "ws://gql.local:4001/subscriptions",
		DBPath:          "x.db",
	}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "http://gql.local:4001/query", cfg.GraphQLURL)
	assert.Equal(t, "ws://gql.local:4001/subscriptions", cfg.SubscriptionURL)
}

func TestResolveRejectsBadURLs(t *testing.T) {
	cases := map[string]ClientConfig{
		"api scheme":          {APIURL: "ftp://host"},
		"api host":            {APIURL: "http://"},
		"graphql scheme":      {GraphQLURL: "ws://host/graphql"},
		"subscription scheme": {SubscriptionURL: "http://host/graphql"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			cfg.DBPath = "x.db"
			_, err := cfg.Resolve()
			assert.Error(t, err)
		})
	}
}

func TestDefaultDBPath(t *testing.T) {
	t.Setenv("GQLCHAT_DB_PATH", "")
	t.Setenv("GQLCHAT_DATA_DIR", "/data")
	assert.Equal(t, filepath.Join("/data", "gqlchat.db"), DefaultDBPath())

	t.Setenv("GQLCHAT_DATA_DIR", "")
	t.Setenv("XDG_DATA_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "gqlchat", "gqlchat.db"), DefaultDBPath())
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("GQLCHAT_TEST_A=from-file\nGQLCHAT_TEST_B=from-file\n"), 0o600))
	t.Setenv("GQLCHAT_TEST_A", "from-env")
	t.Setenv("GQLCHAT_TEST_B", "")
	require.NoError(t, os.Unsetenv("GQLCHAT_TEST_B"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv("GQLCHAT_TEST_A"))
	assert.Equal(t, "from-file", os.Getenv("GQLCHAT_TEST_B"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestWhoAmIAndLogout(t *testing.T) {
	ctx := context.Background()
	cfg := ClientConfig{DBPath: filepath.Join(t.TempDir(), "nested", "gqlchat.db")}

	_, ok, err := WhoAmI(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, ok)

	store, sess, err := OpenSession(ctx, cfg.DBPath)
	require.NoError(t, err)
	alice := chat.User{ID: "u1", Username: "alice"}
	require.NoError(t, sess.Login(ctx, "tok", alice))
	require.Equal(t, session.ViewRoomSelection, sess.View())
	require.NoError(t, store.Close())

	user, ok, err := WhoAmI(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, alice, user)

	require.NoError(t, Logout(ctx, cfg))
	_, ok, err = WhoAmI(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, ok)
}
