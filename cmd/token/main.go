// Command token mints a signed access token for local testing against the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	pkgAuth "github.com/angelmondragon/bidhaven-backend/pkg/auth"
	"github.com/angelmondragon/bidhaven-backend/pkg/config"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "token"})

	_ = godotenv.Load()

	userFlag := flag.String("user", "", "user id to embed (random when empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	if cfg.App.IsProd() {
		logg.Error(ctx, "refusing to mint tokens in production", fmt.Errorf("env=%s", cfg.App.Env))
		os.Exit(1)
	}

	userID := uuid.New()
	if *userFlag != "" {
		userID, err = uuid.Parse(*userFlag)
		if err != nil {
			logg.Error(ctx, "invalid -user", err)
			os.Exit(2)
		}
	}

	signer, err := pkgAuth.NewSigner(cfg.JWT)
	if err != nil {
		logg.Error(ctx, "invalid jwt config", err)
		os.Exit(1)
	}
	token, err := signer.Mint(time.Now(), userID)
	if err != nil {
		logg.Error(ctx, "failed to mint token", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "user_id", userID.String()), "minted access token")
	fmt.Println(token)
}
