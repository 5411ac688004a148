// Command seed-db prepares a development database: it runs migrations,
// upserts the product catalog from a JSON file, and registers a pair of
// session tokens (one customer, one admin) so the API can be exercised
// immediately.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Jungeey/ArtVibe-sub000/internal/repository"
)

type productJSON struct {
	ID       string          `json:"id"`
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
		databaseURL  string
		productsFile string
		customerTok  string
		adminTok     string
		pepper       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&customerTok, "customer-token", "", "customer session token to seed (or ARTVIBE_SEED_CUSTOMER_TOKEN env)")
	flag.StringVar(&adminTok, "admin-token", "", "admin session token to seed (or ARTVIBE_SEED_ADMIN_TOKEN env)")
	flag.StringVar(&pepper, "session-pepper", "", "HMAC pepper for session token hashing (or ARTVIBE_SESSION_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if customerTok == "" {
		customerTok = os.Getenv("ARTVIBE_SEED_CUSTOMER_TOKEN")
	}
	if customerTok == "" {
		slog.Error("customer token is required: set --customer-token or ARTVIBE_SEED_CUSTOMER_TOKEN")
		os.Exit(1)
	}
	if adminTok == "" {
		adminTok = os.Getenv("ARTVIBE_SEED_ADMIN_TOKEN")
	}
	if pepper == "" {
		pepper = os.Getenv("ARTVIBE_SESSION_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, customerTok, adminTok, pepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, customerTok, adminTok, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedSession(ctx, pool, customerTok, "seed-customer", "customer", pepper); err != nil {
		return errors.Wrap(err, "seed customer session")
	}
	if adminTok != "" {
		if err := seedSession(ctx, pool, adminTok, "seed-admin", "admin", pepper); err != nil {
			return errors.Wrap(err, "seed admin session")
		}
	}

	return nil
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

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, p.Category, p.Image.Thumbnail, p.Image.Full, p.Stock,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("name", p.Name),
			slog.Int("stock", p.Stock))
	}

	return nil
}

const upsertSessionSQL = `
INSERT INTO sessions (token_hash, user_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (token_hash) DO UPDATE SET user_id = EXCLUDED.user_id, role = EXCLUDED.role`

func seedSession(ctx context.Context, pool *pgxpool.Pool, token, userID, role, pepper string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(token))
	tokenHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertSessionSQL, tokenHash, userID, role); err != nil {
		return errors.Wrapf(err, "upsert session for %s", userID)
	}

	slog.Info("upserted session", slog.String("user_id", userID), slog.String("role", role))
	return nil
}
