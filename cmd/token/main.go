// Command token issues an admin API token for a user id.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/pkg/utils"
)

func main() {
	userID := flag.String("user", "", "user id to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file", "error", err)
	}
	cfg := config.LoadConfig()

	if *userID == "" || cfg.SecretKey == "" {
		fmt.Fprintln(os.Stderr, "usage: token -user <id> [-ttl 24h] (SECRET_KEY must be set)")
		os.Exit(2)
	}

	token, err := utils.GenerateToken(cfg.SecretKey, *userID, *ttl)
	if err != nil {
		slog.Error("failed to sign token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
