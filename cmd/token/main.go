// Command token prints a bearer token for the API. It only needs JWT_SECRET,
// so it does not load the full server configuration.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mamadbah2/herdbook/internal/auth"
)

func main() {
	var (
		envFile = flag.String("env", "", "optional .env file")
		actorID = flag.String("actor", "", "actor id carried as the token subject")
		ttl     = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" || *actorID == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET and -actor are required")
		os.Exit(2)
	}

	token, err := auth.NewTokenManager(secret, *ttl).Issue(*actorID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
