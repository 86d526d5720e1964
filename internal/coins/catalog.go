package coins

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/asce0110/aimagica-sub002/internal/models"
)

// Catalog is the read path over purchasable coin packages. The ledger never
// writes packages; they are managed elsewhere.
type Catalog interface {
	ListActivePackages(ctx context.Context) ([]models.CoinPackage, error)
	GetPackage(ctx context.Context, id string) (*models.CoinPackage, error)
}

const (
	packagesCacheKey = "coins:packages:active"
	packagesCacheTTL = 5 * time.Minute
)

type PostgresCatalog struct {
	db    *sql.DB
	redis *redis.Client // nil disables caching
}

func NewPostgresCatalog(db *sql.DB, redisClient *redis.Client) *PostgresCatalog {
	return &PostgresCatalog{db: db, redis: redisClient}
}

func (c *PostgresCatalog) ListActivePackages(ctx context.Context) ([]models.CoinPackage, error) {
	if c.redis != nil {
		cached, err := c.redis.Get(ctx, packagesCacheKey).Result()
		if err == nil {
			var packages []models.CoinPackage
			if err := json.Unmarshal([]byte(cached), &packages); err == nil {
				return packages, nil
			}
		} else if err != redis.Nil {
			log.Printf("[CATALOG] Cache read failed, falling back to database: %v", err)
		}
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, coin_amount, price, currency, is_active, sort_order, created_at
		FROM coin_packages
		WHERE is_active = TRUE
		ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list coin packages: %w", err)
	}
	defer rows.Close()

	packages := []models.CoinPackage{}
	for rows.Next() {
		var pkg models.CoinPackage
		if err := rows.Scan(&pkg.ID, &pkg.Name, &pkg.CoinAmount, &pkg.Price, &pkg.Currency,
			&pkg.IsActive, &pkg.SortOrder, &pkg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan coin package: %w", err)
		}
		packages = append(packages, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if c.redis != nil {
		if data, err := json.Marshal(packages); err == nil {
			if err := c.redis.Set(ctx, packagesCacheKey, data, packagesCacheTTL).Err(); err != nil {
				log.Printf("[CATALOG] Cache write failed: %v", err)
			}
		}
	}

	return packages, nil
}

func (c *PostgresCatalog) GetPackage(ctx context.Context, id string) (*models.CoinPackage, error) {
	var pkg models.CoinPackage
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, coin_amount, price, currency, is_active, sort_order, created_at
		FROM coin_packages
		WHERE id = $1`, id).
		Scan(&pkg.ID, &pkg.Name, &pkg.CoinAmount, &pkg.Price, &pkg.Currency,
			&pkg.IsActive, &pkg.SortOrder, &pkg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch coin package %s: %w", id, err)
	}

	return &pkg, nil
}
