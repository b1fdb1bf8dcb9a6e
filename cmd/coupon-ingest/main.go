// Command coupon-ingest bulk-loads giveaway coupon codes from gzip-compressed
// code lists into the database. Files are streamed concurrently; a bloom
// filter deduplicates codes across files before they hit PostgreSQL, and
// inserts are idempotent so the tool can be re-run safely.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/zplayer-tv/checkout-api/internal/domain/coupon"
	"github.com/zplayer-tv/checkout-api/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	batchSize     = 1_000
	progressEvery = 100_000
	minCodeLen    = 6
	maxCodeLen    = 32
)

func main() {
	var (
		databaseURL string
		discount    int
		plan        string
		validDays   int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&discount, "discount", 30, "discount percent for ingested codes (1-100)")
	flag.StringVar(&plan, "plan", "all", "plan restriction for ingested codes (all, monthly, quarterly)")
	flag.IntVar(&validDays, "valid-days", 0, "validity window in days (0 = no expiry)")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("at least one .gz code list is required as a positional argument")
		os.Exit(1)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if discount < 1 || discount > 100 {
		slog.Error("discount must be between 1 and 100", slog.Int("discount", discount))
		os.Exit(1)
	}
	switch coupon.Plan(plan) {
	case coupon.PlanAll, coupon.PlanMonthly, coupon.PlanQuarterly:
	default:
		slog.Error("invalid plan", slog.String("plan", plan))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files, discount, coupon.Plan(plan), validDays); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, discount int, plan coupon.Plan, validDays int) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	var validUntil *time.Time
	if validDays > 0 {
		t := time.Now().AddDate(0, 0, validDays)
		validUntil = &t
	}

	codes := make(chan string, batchSize)

	g, ctx := errgroup.WithContext(ctx)

	// Producers: one streaming goroutine per file.
	producers, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		producers.Go(streamFile(ctx, f, codes))
	}
	g.Go(func() error {
		defer close(codes)
		return producers.Wait()
	})

	// Consumer: dedup with a bloom filter, insert in batches.
	g.Go(func() error {
		return insertCodes(ctx, pool, codes, discount, plan, validUntil)
	})

	return g.Wait()
}

// streamFile reads one gzip-compressed code list line by line and sends
// normalized codes to out.
func streamFile(ctx context.Context, path string, out chan<- string) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()

		var count uint64
		scanner := bufio.NewScanner(gz)
		for scanner.Scan() {
			code := coupon.NormalizeCode(scanner.Text())
			if len(code) < minCodeLen || len(code) > maxCodeLen || strings.ContainsRune(code, ' ') {
				continue
			}

			select {
			case out <- code:
			case <-ctx.Done():
				return ctx.Err()
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("stream progress", slog.String("file", path), slog.Uint64("codes", count))
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("stream complete", slog.String("file", path), slog.Uint64("codes", count))
		return nil
	}
}

// insertCodes drains the code channel, skips codes the bloom filter has seen
// before, and writes the rest in batches. The filter can report false
// positives, so a tiny fraction of fresh codes may be skipped; the insert
// itself also skips codes already present in the table.
func insertCodes(
	ctx context.Context,
	pool *pgxpool.Pool,
	codes <-chan string,
	discount int,
	plan coupon.Plan,
	validUntil *time.Time,
) error {
	const insertSQL = `INSERT INTO coupons (code, discount_percent, valid_until, valid_for_plan)
SELECT $1, $2, $3, $4
WHERE NOT EXISTS (SELECT 1 FROM coupons WHERE UPPER(code) = $1)`

	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	batch := &pgx.Batch{}
	var total, skipped uint64

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "send batch")
		}
		batch = &pgx.Batch{}
		return nil
	}

	for code := range codes {
		if seen.TestAndAddString(code) {
			skipped++
			continue
		}

		batch.Queue(insertSQL, code, discount, validUntil, string(plan))
		total++

		if batch.Len() >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
		if total%progressEvery == 0 {
			slog.Info("insert progress", slog.Uint64("inserted", total), slog.Uint64("duplicates", skipped))
		}
	}
	if err := flush(); err != nil {
		return err
	}

	slog.Info("insert complete", slog.Uint64("inserted", total), slog.Uint64("duplicates", skipped))
	return nil
}
