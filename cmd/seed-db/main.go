// Command seed-db loads products, users, and API keys into PostgreSQL
// from a gzip-compressed JSON export and runs migrations first.
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
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/storage/postgres"
)

type seedFile struct {
	Products []productJSON `json:"products"`
	Users    []userJSON    `json:"users"`
	APIKeys  []apiKeyJSON  `json:"apiKeys"`
}

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image"`
	Category string          `json:"category"`
	Stock    int             `json:"stock"`
}

type userJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	Role      string          `json:"role"`
	Addresses json.RawMessage `json:"addresses"`
}

type apiKeyJSON struct {
	ID     string   `json:"id"`
	UserID string   `json:"userId"`
	Key    string   `json:"key"`
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/seed.json.gz", "path to gzipped seed JSON file")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CLOUTH_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CLOUTH_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, pepper string) error {
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

	seed, err := readSeed(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}

	if err := seedProducts(ctx, pool, seed.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedUsers(ctx, pool, seed.Users); err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedAPIKeys(ctx, pool, seed.APIKeys, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

func readSeed(path string) (*seedFile, error) {
	slog.Info("reading seed file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "open gzip stream")
	}
	defer gz.Close()

	var seed seedFile
	if err := json.NewDecoder(gz).Decode(&seed); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}
	return &seed, nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, products []productJSON) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		_, err := pool.Exec(ctx,
			`INSERT INTO products (id, name, price, image, category, stock)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = $2, price = $3, image = $4, category = $5, stock = $6`,
			p.ID, p.Name, p.Price, p.Image, p.Category, p.Stock,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, users []userJSON) error {
	slog.Info("upserting users", slog.Int("count", len(users)))

	for _, u := range users {
		addrs := u.Addresses
		if len(addrs) == 0 {
			addrs = json.RawMessage("[]")
		}
		role := u.Role
		if role == "" {
			role = "customer"
		}
		_, err := pool.Exec(ctx,
			`INSERT INTO users (id, name, email, phone, role, addresses)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = $2, email = $3, phone = $4, role = $5, addresses = $6`,
			u.ID, u.Name, u.Email, u.Phone, role, addrs,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert user %s", u.ID)
		}
	}
	return nil
}

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, keys []apiKeyJSON, pepper string) error {
	slog.Info("upserting api keys", slog.Int("count", len(keys)))

	for _, k := range keys {
		mac := hmac.New(sha256.New, []byte(pepper))
		mac.Write([]byte(k.Key))
		keyHash := hex.EncodeToString(mac.Sum(nil))

		_, err := pool.Exec(ctx,
			`INSERT INTO api_keys (id, key_hash, user_id, name, scopes, active)
			VALUES ($1, $2, $3, $4, $5, TRUE)
			ON CONFLICT (id) DO UPDATE SET
				key_hash = $2, user_id = $3, name = $4, scopes = $5, active = TRUE`,
			k.ID, keyHash, k.UserID, k.Name, k.Scopes,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert api key %s", k.ID)
		}

		slog.Info("upserted api key", slog.String("id", k.ID), slog.String("name", k.Name))
	}
	return nil
}
