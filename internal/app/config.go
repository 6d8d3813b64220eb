package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"

	"gqlchat/internal/graphql"
)

const (
	DefaultAPIURL = "http://localhost:8080"
	graphQLPath   = "/graphql"
)

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	APIURL          string
	GraphQLURL      string
	SubscriptionURL string
	DBPath          string
	Username        string
	LogFile         string
}

// LoadDotEnv loads variables from the given files (default ".env") without
// overriding ones already set. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Resolve fills derived endpoints and validates the result. The GraphQL
// endpoint defaults to APIURL + /graphql and the subscription endpoint to
// the GraphQL endpoint with a ws/wss scheme.
func (c ClientConfig) Resolve() (ClientConfig, error) {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if err := checkURL(c.APIURL, "http", "https"); err != nil {
		return c, fmt.Errorf("api url: %w", err)
	}
	if c.GraphQLURL == "" {
		c.GraphQLURL = c.APIURL + graphQLPath
	}
	if err := checkURL(c.GraphQLURL, "http", "https"); err != nil {
		return c, fmt.Errorf("graphql url: %w", err)
	}
	if c.SubscriptionURL == "" {
		c.SubscriptionURL = graphql.WebsocketURL(c.GraphQLURL)
	}
	if err := checkURL(c.SubscriptionURL, "ws", "wss"); err != nil {
		return c, fmt.Errorf("subscription url: %w", err)
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath()
	}
	return c, nil
}

func checkURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("invalid scheme %q, want one of %s", parsed.Scheme, strings.Join(schemes, ", "))
}

// DefaultDBPath returns a per-user data path for the session database.
func DefaultDBPath() string {
	if env := os.Getenv("GQLCHAT_DB_PATH"); env != "" {
		return env
	}
	if env := os.Getenv("GQLCHAT_DATA_DIR"); env != "" {
		return filepath.Join(env, "gqlchat.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "gqlchat", "gqlchat.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "gqlchat", "gqlchat.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "gqlchat", "gqlchat.db")
		}
		return filepath.Join(home, ".local", "share", "gqlchat", "gqlchat.db")
	}
	return filepath.Join(".", ".gqlchat", "gqlchat.db")
}
