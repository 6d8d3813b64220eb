package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	intrnl "gqlchat/internal"
	"gqlchat/internal/api"
	"gqlchat/internal/chat"
	"gqlchat/internal/graphql"
	"gqlchat/internal/session"
	"gqlchat/internal/storage"
)

// OpenSession opens the session database at dbPath and restores any stored
// session. The caller closes the returned store.
func OpenSession(ctx context.Context, dbPath string) (*storage.Store, *session.Session, error) {
	if isFilePath(dbPath) {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open session db: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("migrate session db: %w", err)
	}
	sess := session.New(store)
	if err := sess.Restore(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, sess, nil
}

func isFilePath(dbPath string) bool {
	for _, prefix := range []string{"sqlite://", "file:", ":memory:"} {
		if strings.HasPrefix(dbPath, prefix) {
			return false
		}
	}
	return dbPath != ""
}

// RunClient launches the Bubble Tea TUI with the provided configuration.
func RunClient(ctx context.Context, cfg ClientConfig) error {
	cfg, err := cfg.Resolve()
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file or nowhere.
	if cfg.LogFile != "" {
		logFile, err := tea.LogToFile(cfg.LogFile, "gqlchat")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	store, sess, err := OpenSession(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Printf("gqlchat: api %s, graphql %s, subscriptions %s, db %s", cfg.APIURL, cfg.GraphQLURL, cfg.SubscriptionURL, cfg.DBPath)

	gql := graphql.NewClient(cfg.GraphQLURL, cfg.SubscriptionURL, sess.Token)
	return intrnl.RunClient(ctx, intrnl.ClientDeps{
		Session:  sess,
		Auth:     api.NewIdentity(cfg.APIURL),
		Backend:  intrnl.NewBackend(api.NewMessaging(gql)),
		Server:   cfg.APIURL,
		Username: cfg.Username,
	})
}

// Logout clears the stored session.
func Logout(ctx context.Context, cfg ClientConfig) error {
	cfg, err := cfg.Resolve()
	if err != nil {
		return err
	}
	store, sess, err := OpenSession(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return sess.Logout(ctx)
}

// WhoAmI reports the user of the stored session, if any.
func WhoAmI(ctx context.Context, cfg ClientConfig) (chat.User, bool, error) {
	cfg, err := cfg.Resolve()
	if err != nil {
		return chat.User{}, false, err
	}
	store, sess, err := OpenSession(ctx, cfg.DBPath)
	if err != nil {
		return chat.User{}, false, err
	}
	defer store.Close()
	user, ok := sess.User()
	return user, ok, nil
}
