// Command catalog-ingest loads vendor catalog feeds into the products table.
//
// Feeds are gzip-compressed JSONL files, one product per line. Because each
// vendor exports its own feed, the same SKU can appear in more than one file
// with conflicting data; those SKUs are skipped and reported instead of
// letting the last feed silently win. Cross-file duplicate detection runs in
// two passes: pass 1 builds a bloom filter per feed concurrently, pass 2
// re-streams each feed and tests its SKUs against the other feeds' filters.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Jungeey/ArtVibe-sub000/internal/repository"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

// feedProduct is one JSONL record in a vendor feed.
type feedProduct struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Stock    int             `json:"stockQuantity"`
	Image    struct {
		Thumbnail string `json:"thumbnail"`
		Full      string `json:"full"`
	} `json:"image"`
}

func main() {
	var (
		feedDir     string
		databaseURL string
	)

	flag.StringVar(&feedDir, "feed-dir", "feeds", "directory containing *.jsonl.gz vendor feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, feedDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, feedDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(feedDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "glob feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz feeds in %s", feedDir)
	}
	sort.Strings(files)

	slog.Info("pass 1: building per-feed bloom filters", slog.Int("feeds", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: detecting cross-feed duplicate SKUs")

	conflicted, err := findConflictedSKUs(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find conflicted SKUs")
	}
	for sku := range conflicted {
		slog.Warn("skipping SKU present in multiple feeds", slog.String("sku", sku))
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	var total int
	for _, f := range files {
		n, err := ingestFeed(ctx, pool, f, conflicted)
		if err != nil {
			return errors.Wrapf(err, "ingest %s", f)
		}
		total += n
	}

	slog.Info("ingest summary",
		slog.Int("products", total),
		slog.Int("conflicted_skus", len(conflicted)))
	return nil
}

// buildBloomFilters creates one bloom filter of SKUs per feed, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64

			err := streamFeed(ctx, f, func(p feedProduct) error {
				filter.AddString(p.SKU)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("feed", f), slog.Uint64("records", count))
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "filter for %s", f)
			}

			slog.Info("pass 1 complete", slog.String("feed", f), slog.Uint64("records", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findConflictedSKUs re-streams each feed and tests SKUs against the OTHER
// feeds' filters. Bloom positives can be false, so a hit only makes a SKU a
// candidate; since every true duplicate is found from both sides, candidates
// are exactly the SKUs to exclude.
func findConflictedSKUs(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	perFeed := make([]map[string]struct{}, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			candidates := make(map[string]struct{})

			err := streamFeed(ctx, f, func(p feedProduct) error {
				for j, other := range filters {
					if j == i {
						continue
					}
					if other.TestString(p.SKU) {
						candidates[p.SKU] = struct{}{}
						break
					}
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", f)
			}

			slog.Info("pass 2 complete", slog.String("feed", f), slog.Int("candidates", len(candidates)))
			perFeed[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]struct{})
	for _, c := range perFeed {
		for sku := range c {
			merged[sku] = struct{}{}
		}
	}
	return merged, nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, price, category, image_thumbnail, image_full, stock_quantity, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, CASE WHEN $7 > 0 THEN 'active' ELSE 'delisted' END)
ON CONFLICT (id) DO UPDATE SET
    name            = EXCLUDED.name,
    price           = EXCLUDED.price,
    category        = EXCLUDED.category,
    image_thumbnail = EXCLUDED.image_thumbnail,
    image_full      = EXCLUDED.image_full,
    stock_quantity  = EXCLUDED.stock_quantity,
    status          = EXCLUDED.status,
    updated_at      = now()`

// ingestFeed upserts every non-conflicted product from one feed and returns
// the number written.
func ingestFeed(ctx context.Context, pool *pgxpool.Pool, path string, conflicted map[string]struct{}) (int, error) {
	slog.Info("ingesting feed", slog.String("feed", path))

	var written int
	err := streamFeed(ctx, path, func(p feedProduct) error {
		if _, skip := conflicted[p.SKU]; skip {
			return nil
		}
		if p.SKU == "" || p.Name == "" {
			slog.Warn("skipping malformed record", slog.String("feed", path))
			return nil
		}

		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.SKU, p.Name, p.Price, p.Category, p.Image.Thumbnail, p.Image.Full, p.Stock,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.SKU)
		}

		written++
		if written%progressEvery == 0 {
			slog.Info("ingest progress", slog.String("feed", path), slog.Int("written", written))
		}
		return nil
	})
	if err != nil {
		return written, err
	}

	slog.Info("feed ingested", slog.String("feed", path), slog.Int("written", written))
	return written, nil
}

// streamFeed opens a gzip-compressed JSONL feed and calls fn per record.
func streamFeed(ctx context.Context, path string, fn func(p feedProduct) error) error {
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

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var p feedProduct
		if err := json.Unmarshal(line, &p); err != nil {
			return errors.Wrapf(err, "decode record in %s", path)
		}
		if err := fn(p); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
