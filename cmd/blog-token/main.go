// Command blog-token prints an HS256 access token for deployments that
// verify tokens with JWT_SECRET instead of an OIDC provider.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/mantica/blog/backend/go-services/internal/config"
	"github.com/mantica/blog/backend/go-services/internal/tokens"
	"github.com/mantica/blog/backend/go-services/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	flags := pflag.NewFlagSet("blog-token", pflag.ExitOnError)
	sub := flags.String("sub", "", "subject of the token")
	name := flags.String("name", "", "display name")
	roles := flags.StringSlice("role", nil, "granted role, repeatable (admin unlocks the author catalog)")
	ttl := flags.Duration("ttl", cfg.JWT.AccessTokenTTL, "token lifetime")
	_ = flags.Parse(os.Args[1:])

	if *sub == "" {
		logger.Fatalf("--sub is required")
	}
	tok, err := tokens.GenerateAccessToken(cfg.JWT.Secret, tokens.Identity{Subject: *sub, Name: *name, Roles: *roles}, *ttl)
	if err != nil {
		logger.Fatalf("generate token: %v", err)
	}
	fmt.Println(tok)
}
