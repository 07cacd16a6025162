package geo

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/thunderhead-labs/poktinfo/pkg/metrics"
	"go.uber.org/zap"
)

// MaxMind geolocates offline from GeoLite2 City and ASN databases. The ASN organisation
// stands in for both ISP and org.
type MaxMind struct {
	logger *zap.Logger
	cityDB *geoip2.Reader
	asnDB  *geoip2.Reader
	lookup func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// OpenMaxMind opens the database files. asnPath may be empty.
func OpenMaxMind(logger *zap.Logger, cityPath, asnPath string) (*MaxMind, error) {
	cityDB, err := geoip2.Open(cityPath)
	if err != nil {
		return nil, fmt.Errorf("open city db: %w", err)
	}
	var asnDB *geoip2.Reader
	if asnPath != "" {
		asnDB, err = geoip2.Open(asnPath)
		if err != nil {
			_ = cityDB.Close()
			return nil, fmt.Errorf("open asn db: %w", err)
		}
	}
	return NewMaxMind(logger, cityDB, asnDB)
}

// NewMaxMind wraps already opened readers.
func NewMaxMind(logger *zap.Logger, cityDB, asnDB *geoip2.Reader) (*MaxMind, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}
	if cityDB == nil {
		return nil, fmt.Errorf("cityDB is nil")
	}
	return &MaxMind{
		logger: logger,
		cityDB: cityDB,
		asnDB:  asnDB,
		lookup: net.DefaultResolver.LookupIPAddr,
	}, nil
}

// Close closes the databases.
func (m *MaxMind) Close() error {
	err := m.cityDB.Close()
	if m.asnDB != nil {
		if aerr := m.asnDB.Close(); err == nil {
			err = aerr
		}
	}
	return err
}

// Locate resolves query to an IP when it is a host name and looks it up.
func (m *MaxMind) Locate(ctx context.Context, query string) (*Location, error) {
	loc, err := m.locate(ctx, query)
	outcome := "success"
	if err != nil {
		outcome = "fail"
	}
	metrics.GeoLookups.WithLabelValues(ProviderMaxMind, outcome).Inc()
	return loc, err
}

func (m *MaxMind) locate(ctx context.Context, query string) (*Location, error) {
	ip := net.ParseIP(query)
	if ip == nil {
		addrs, err := m.lookup(ctx, query)
		if err != nil {
			return nil, lookupFailed(query, err.Error())
		}
		if len(addrs) == 0 {
			return nil, lookupFailed(query, "no addresses")
		}
		ip = addrs[0].IP
	}

	loc := &Location{IP: ip.String()}
	rec, err := m.cityDB.City(ip)
	if err != nil {
		m.logger.Debug("geoip city lookup failed", zap.String("ip", ip.String()), zap.Error(err))
	} else {
		loc.Continent = rec.Continent.Names["en"]
		loc.Country = rec.Country.Names["en"]
		if len(rec.Subdivisions) > 0 {
			loc.Region = rec.Subdivisions[0].Names["en"]
		}
		loc.City = rec.City.Names["en"]
		loc.Lat = rec.Location.Latitude
		loc.Lon = rec.Location.Longitude
	}

	if m.asnDB != nil {
		asn, err := m.asnDB.ASN(ip)
		if err != nil {
			m.logger.Debug("geoip asn lookup failed", zap.String("ip", ip.String()), zap.Error(err))
		} else if asn.AutonomousSystemNumber != 0 {
			loc.ISP = asn.AutonomousSystemOrganization
			loc.Org = asn.AutonomousSystemOrganization
			loc.AS = fmt.Sprintf("AS%d %s", asn.AutonomousSystemNumber, asn.AutonomousSystemOrganization)
		}
	}

	if loc.Country == "" && loc.AS == "" {
		return nil, lookupFailed(query, "not in database")
	}
	maskCloudflare(loc)
	return loc, nil
}
