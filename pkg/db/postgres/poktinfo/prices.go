package poktinfo

import (
	"context"

	"github.com/jackc/pgx/v5"
	dbpkg "github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/db/postgres"
)

// ReplacePrice stores the price of a coin at a height, replacing an earlier observation at that height.
func (db *DB) ReplacePrice(ctx context.Context, price models.CoinPrice) error {
	err := db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM coin_prices WHERE coin = $1 AND vs_currency = $2 AND height = $3`,
			price.Coin, price.VsCurrency, price.Height)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO coin_prices (coin, vs_currency, price, height) VALUES ($1, $2, $3, $4)`,
			price.Coin, price.VsCurrency, price.Price, price.Height)
		return err
	})
	return dbpkg.WriteFailed("replace", models.CoinPricesTableName, err)
}

// PriceAt returns the latest price recorded at or below height.
func (db *DB) PriceAt(ctx context.Context, coin, currency string, height uint64) (*models.CoinPrice, error) {
	query := `
		SELECT coin, vs_currency, price, height
		FROM coin_prices
		WHERE coin = $1 AND vs_currency = $2 AND height <= $3
		ORDER BY height DESC
		LIMIT 1
	`
	var p models.CoinPrice
	err := db.QueryRow(ctx, query, coin, currency, height).Scan(&p.Coin, &p.VsCurrency, &p.Price, &p.Height)
	if postgres.IsNoRows(err) {
		return nil, dbpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
