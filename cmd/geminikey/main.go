package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/infra"
	"server/internal/infra/credentials"
)

func main() {
	var (
		addFlag      string
		revokeFlag   string
		priorityFlag int
		listFlag     bool
	)
	flag.StringVar(&addFlag, "add", "", "API key to add to the Gemini pool (fallbacks to GEMINI_API_KEY)")
	flag.StringVar(&revokeFlag, "revoke", "", "API key to revoke from the Gemini pool")
	flag.IntVar(&priorityFlag, "priority", 100, "Retry priority for -add; lower keys are tried first")
	flag.BoolVar(&listFlag, "list", false, "List the pooled Gemini keys in retry order")
	flag.Parse()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "geminikey").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	execCtx, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()

	switch {
	case listFlag:
		keys, err := store.GeminiKeys(execCtx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list keys: %v\n", err)
			os.Exit(1)
		}
		if len(keys) == 0 {
			fmt.Println("no pooled keys")
			return
		}
		for i, key := range keys {
			fmt.Printf("%2d. %s\n", i+1, maskKey(key))
		}
	case revokeFlag != "":
		if err := store.RevokeKey(execCtx, credentials.ProviderGemini, revokeFlag); err != nil {
			fmt.Fprintf(os.Stderr, "failed to revoke key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("key revoked")
	default:
		key := strings.TrimSpace(addFlag)
		if key == "" {
			key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		}
		if key == "" {
			fmt.Fprintln(os.Stderr, "an API key is required via -add or GEMINI_API_KEY")
			os.Exit(1)
		}
		if err := store.AddKey(execCtx, credentials.ProviderGemini, key, priorityFlag); err != nil {
			fmt.Fprintf(os.Stderr, "failed to store key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("key added to pool")
	}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
