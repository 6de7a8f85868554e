// Command tally-token issues a session token for local runs, standing in for
// the external sign-in provider.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"tally/internal/cli"
	"tally/internal/identity"
	"tally/internal/log"
)

func main() {
	user := flag.String("user", "", "user id to sign in as")
	flag.Parse()

	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig()

	userID := strings.TrimSpace(*user)
	if userID == "" {
		fmt.Fprintln(os.Stderr, "usage: tally-token -user <id>")
		os.Exit(2)
	}

	tokens, err := identity.NewTokens(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		logger.Error("Set TOKEN_SECRET to the server's secret", log.FieldError, err)
		os.Exit(1)
	}
	token, err := tokens.Issue(userID)
	if err != nil {
		logger.Error("Failed to issue token", log.FieldError, err, log.FieldUserID, userID)
		os.Exit(1)
	}
	fmt.Println(token)
}
