// Command seed-db prepares a fresh database for local development: it runs
// migrations, seeds a handful of discount coupons, and registers an admin
// API key.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zplayer-tv/checkout-api/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or ZPLAYER_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ZPLAYER_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ZPLAYER_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or ZPLAYER_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("ZPLAYER_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding discount coupons")

	coupons := []struct {
		code    string
		percent int
		plan    string
	}{
		{code: "SAVE30", percent: 30, plan: "all"},
		{code: "BEMVINDO10", percent: 10, plan: "monthly"},
		{code: "TRIMESTRE20", percent: 20, plan: "quarterly"},
	}

	const upsertSQL = `INSERT INTO coupons (code, discount_percent, valid_for_plan)
SELECT $1, $2, $3
WHERE NOT EXISTS (SELECT 1 FROM coupons WHERE UPPER(code) = $1)`

	for _, c := range coupons {
		if _, err := pool.Exec(ctx, upsertSQL, c.code, c.percent, c.plan); err != nil {
			return errors.Wrapf(err, "seed coupon %s", c.code)
		}

		slog.Info("seeded coupon",
			slog.String("code", c.code),
			slog.Int("discount_percent", c.percent),
			slog.String("plan", c.plan))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	const upsertSQL = `INSERT INTO api_keys (key_hash, name, scopes, active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (key_hash) DO UPDATE SET name = EXCLUDED.name, scopes = EXCLUDED.scopes, active = TRUE`

	if _, err := pool.Exec(ctx, upsertSQL, keyHash, "Admin key", []string{"admin"}); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("seeded API key", slog.String("name", "Admin key"))

	return nil
}
