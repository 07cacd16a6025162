package poktinfo

import (
	"context"
	"errors"
	"fmt"

	dbpkg "github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/db/postgres"
)

const locationColumns = `id, address, ip, height, start_height, end_height, city, continent, country, region,
	lat, lon, isp, org, as_, ran_from, date_created`

func locationKey(address, ranFrom string) versionKey {
	return versionKey{
		table:   models.LocationInfoTableName,
		columns: []string{"address", "ran_from"},
		values:  []any{address, ranFrom},
	}
}

func scanLocation(row interface{ Scan(...any) error }) (*models.LocationInfo, error) {
	var l models.LocationInfo
	err := row.Scan(&l.ID, &l.Address, &l.IP, &l.Height, &l.StartHeight, &l.EndHeight,
		&l.City, &l.Continent, &l.Country, &l.Region, &l.Lat, &l.Lon,
		&l.ISP, &l.Org, &l.AS, &l.RanFrom, &l.DateCreated)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetCurrentLocation returns the open location of address observed from ranFrom.
func (db *DB) GetCurrentLocation(ctx context.Context, address, ranFrom string) (*models.LocationInfo, error) {
	query := `SELECT ` + locationColumns + ` FROM location_info WHERE address = $1 AND ran_from = $2 AND end_height IS NULL`
	l, err := scanLocation(db.QueryRow(ctx, query, address, ranFrom))
	if postgres.IsNoRows(err) {
		return nil, fmt.Errorf("location %s: %w", address, dbpkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get current location %s: %w", address, err)
	}
	return l, nil
}

// HasLocationChanged reports whether city, ip or isp differ from the current version.
// A missing current version is not a change.
func (db *DB) HasLocationChanged(ctx context.Context, address, ranFrom, city, ip, isp string) (bool, error) {
	current, err := db.GetCurrentLocation(ctx, address, ranFrom)
	if errors.Is(err, dbpkg.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return current.City != city || current.IP != ip || current.ISP != isp, nil
}

// AppendLocationVersion closes the current location of loc.Address and opens loc at height.
func (db *DB) AppendLocationVersion(ctx context.Context, loc *models.LocationInfo, height uint64) error {
	query := `
		INSERT INTO location_info (address, ip, height, start_height, end_height, city, continent, country,
			region, lat, lon, isp, org, as_, ran_from)
		VALUES ($1, $2, $3, $4, NULL, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	return db.appendVersion(ctx, locationKey(loc.Address, loc.RanFrom), height, query,
		loc.Address, loc.IP, loc.Height, height, loc.City, loc.Continent, loc.Country,
		loc.Region, loc.Lat, loc.Lon, loc.ISP, loc.Org, loc.AS, loc.RanFrom)
}

// CloseLocation ends the current location of address at endHeight.
func (db *DB) CloseLocation(ctx context.Context, address, ranFrom string, endHeight uint64) error {
	return db.closeVersion(ctx, locationKey(address, ranFrom), endHeight)
}

// OpenLocations lists current locations observed from ranFrom whose address starts with prefix.
func (db *DB) OpenLocations(ctx context.Context, prefix, ranFrom string) ([]models.LocationInfo, error) {
	query := `
		SELECT ` + locationColumns + `
		FROM location_info
		WHERE end_height IS NULL
		  AND ran_from = $2
		  AND ($1::text = '' OR address LIKE $1::text || '%')
		ORDER BY address
	`
	return db.queryLocations(ctx, query, prefix, ranFrom)
}

// CurrentLocations returns the open locations of the given addresses.
func (db *DB) CurrentLocations(ctx context.Context, addresses []string, ranFrom string) ([]models.LocationInfo, error) {
	query := `
		SELECT ` + locationColumns + `
		FROM location_info
		WHERE end_height IS NULL
		  AND ran_from = $2
		  AND address = ANY($1)
		ORDER BY address
	`
	return db.queryLocations(ctx, query, addresses, ranFrom)
}

func (db *DB) queryLocations(ctx context.Context, query string, args ...any) ([]models.LocationInfo, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	var out []models.LocationInfo
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}
