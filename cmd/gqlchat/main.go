package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	intrnl "gqlchat/internal"
	"gqlchat/internal/app"
)

const (
	modeChat    = "chat"
	modeLogout  = "logout"
	modeWhoAmI  = "whoami"
	modeVersion = "version"
)

func main() {
	if err := app.LoadDotEnv(); err != nil {
		log.Printf("warning: %v", err)
	}

	mode, args := parseMode(os.Args[1:])
	flagSet := flag.NewFlagSet("gqlchat", flag.ExitOnError)
	apiURL := flagSet.String("api-url", envOrDefault("GQLCHAT_API_URL", app.DefaultAPIURL), "identity service base URL")
	graphQLURL := flagSet.String("graphql-url", envOrDefault("GQLCHAT_GRAPHQL_URL", ""), "GraphQL endpoint (defaults to <api-url>/graphql)")
	subscriptionURL := flagSet.String("ws-url", envOrDefault("GQLCHAT_WS_URL", ""), "GraphQL subscription endpoint (defaults to the GraphQL endpoint over ws)")
	db := flagSet.String("db", envOrDefault("GQLCHAT_DB_PATH", ""), "sqlite session database path (defaults to a per-user path)")
	username := flagSet.String("user", envOrDefault("GQLCHAT_USER", ""), "default username for the login prompt")
	logFile := flagSet.String("log-file", envOrDefault("GQLCHAT_LOG", ""), "write debug logs to this file")
	quiet := flagSet.Bool("quiet", false, "suppress informational output")
	flagSet.Parse(args)

	cfg := app.ClientConfig{
		APIURL:          *apiURL,
		GraphQLURL:      *graphQLURL,
		SubscriptionURL: *subscriptionURL,
		DBPath:          *db,
		Username:        *username,
		LogFile:         *logFile,
	}

	infof := func(format string, args ...interface{}) {
		if *quiet {
			return
		}
		fmt.Printf(format+"\n", args...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch mode {
	case modeVersion:
		fmt.Println(intrnl.VersionString())
	case modeLogout:
		err = runLogoutMode(ctx, cfg, infof)
	case modeWhoAmI:
		err = runWhoAmIMode(ctx, cfg, infof)
	default:
		err = app.RunClient(ctx, cfg)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "gqlchat: %v\n", err)
		os.Exit(1)
	}
}

func runLogoutMode(ctx context.Context, cfg app.ClientConfig, infof func(string, ...interface{})) error {
	if err := app.Logout(ctx, cfg); err != nil {
		return err
	}
	infof("Stored session cleared.")
	return nil
}

func runWhoAmIMode(ctx context.Context, cfg app.ClientConfig, infof func(string, ...interface{})) error {
	user, ok, err := app.WhoAmI(ctx, cfg)
	if err != nil {
		return err
	}
	if !ok {
		infof("Not logged in.")
		return nil
	}
	fmt.Printf("%s (%s, id %s)\n", user.Name(), user.Username, user.ID)
	return nil
}

func parseMode(args []string) (string, []string) {
	if len(args) == 0 {
		return modeChat, args
	}
	switch strings.ToLower(args[0]) {
	case modeChat, modeLogout, modeWhoAmI, modeVersion:
		return strings.ToLower(args[0]), args[1:]
	}
	return modeChat, args
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
