package poktinfo

type tableDDL struct {
	name string
	ddl  []string
}

// schema is applied in order; every statement is idempotent.
// The partial unique indexes on end_height IS NULL keep at most one current version per key.
var schema = []tableDDL{
	{name: "nodes_info", ddl: []string{`
		CREATE TABLE IF NOT EXISTS nodes_info (
			id BIGSERIAL PRIMARY KEY,
			address VARCHAR(64) NOT NULL,
			url VARCHAR(255) NOT NULL DEFAULT '',
			domain VARCHAR(255) NOT NULL DEFAULT '',
			subdomain VARCHAR(255) NOT NULL DEFAULT '',
			chains TEXT[] NOT NULL DEFAULT '{}',
			height BIGINT NOT NULL,
			start_height BIGINT NOT NULL,
			end_height BIGINT,
			is_staked BOOLEAN NOT NULL DEFAULT TRUE,
			date_created TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS nodes_info_current_idx ON nodes_info (address) WHERE end_height IS NULL`,
		`CREATE INDEX IF NOT EXISTS nodes_info_address_idx ON nodes_info (address, start_height)`,
	}},
	{name: "location_info", ddl: []string{`
		CREATE TABLE IF NOT EXISTS location_info (
			id BIGSERIAL PRIMARY KEY,
			address VARCHAR(64) NOT NULL,
			ip VARCHAR(64) NOT NULL DEFAULT '',
			height BIGINT NOT NULL,
			start_height BIGINT NOT NULL,
			end_height BIGINT,
			city VARCHAR(255) NOT NULL DEFAULT '',
			continent VARCHAR(255) NOT NULL DEFAULT '',
			country VARCHAR(255) NOT NULL DEFAULT '',
			region VARCHAR(255) NOT NULL DEFAULT '',
			lat DOUBLE PRECISION NOT NULL DEFAULT 0,
			lon DOUBLE PRECISION NOT NULL DEFAULT 0,
			isp VARCHAR(255) NOT NULL DEFAULT '',
			org VARCHAR(255) NOT NULL DEFAULT '',
			as_ VARCHAR(255) NOT NULL DEFAULT '',
			ran_from VARCHAR(64) NOT NULL DEFAULT '',
			date_created TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS location_info_current_idx ON location_info (address, ran_from) WHERE end_height IS NULL`,
	}},
	{name: "cache_set", ddl: []string{`
		CREATE TABLE IF NOT EXISTS cache_set (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			set_name VARCHAR(255) NOT NULL,
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			is_internal BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			UNIQUE (user_id, set_name)
		)`,
	}},
	{name: "cache_set_node", ddl: []string{`
		CREATE TABLE IF NOT EXISTS cache_set_node (
			cache_set_id BIGINT NOT NULL REFERENCES cache_set (id),
			address VARCHAR(64) NOT NULL,
			start_height BIGINT NOT NULL,
			end_height BIGINT,
			PRIMARY KEY (cache_set_id, address, start_height)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS cache_set_node_current_idx ON cache_set_node (cache_set_id, address) WHERE end_height IS NULL`,
	}},
	{name: "rewards_info", ddl: []string{`
		CREATE TABLE IF NOT EXISTS rewards_info (
			tx_hash VARCHAR(64) PRIMARY KEY,
			height BIGINT NOT NULL,
			address VARCHAR(64) NOT NULL,
			rewards DOUBLE PRECISION NOT NULL,
			chain VARCHAR(16) NOT NULL,
			relays BIGINT NOT NULL,
			token_multiplier DOUBLE PRECISION NOT NULL,
			percentage DOUBLE PRECISION NOT NULL,
			stake_weight DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS rewards_info_address_height_idx ON rewards_info (address, height)`,
	}},
	{name: "services_state", ddl: []string{`
		CREATE TABLE IF NOT EXISTS services_state (
			service VARCHAR(64) NOT NULL,
			height BIGINT NOT NULL,
			status VARCHAR(16) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (service, height)
		)`,
	}},
	{name: "services_state_range", ddl: []string{`
		CREATE TABLE IF NOT EXISTS services_state_range (
			service VARCHAR(64) NOT NULL,
			start_height BIGINT NOT NULL,
			end_height BIGINT NOT NULL,
			status VARCHAR(16) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (service, start_height, end_height)
		)`,
	}},
	{name: "cache_set_state_range_entry", ddl: []string{`
		CREATE TABLE IF NOT EXISTS cache_set_state_range_entry (
			cache_set_id BIGINT NOT NULL,
			service VARCHAR(64) NOT NULL,
			start_height BIGINT NOT NULL,
			end_height BIGINT NOT NULL,
			interval_label VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (cache_set_id, service, start_height, end_height, interval_label)
		)`,
	}},
	{name: "latency_cache", ddl: []string{`
		CREATE TABLE IF NOT EXISTS latency_cache (
			start_height BIGINT NOT NULL,
			end_height BIGINT NOT NULL,
			address VARCHAR(64) NOT NULL,
			chain VARCHAR(16) NOT NULL,
			region VARCHAR(64) NOT NULL,
			total_success BIGINT NOT NULL,
			total_failure BIGINT NOT NULL,
			median_success_latency DOUBLE PRECISION NOT NULL,
			weighted_success_latency DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (start_height, end_height, address, chain, region)
		)`,
	}},
	{name: "errors_cache", ddl: []string{`
		CREATE TABLE IF NOT EXISTS errors_cache (
			start_height BIGINT NOT NULL,
			end_height BIGINT NOT NULL,
			address VARCHAR(64) NOT NULL,
			chain VARCHAR(16) NOT NULL,
			msg TEXT NOT NULL,
			count BIGINT NOT NULL,
			PRIMARY KEY (start_height, end_height, address, chain, msg)
		)`,
	}},
	{name: "rewards_cache_set", ddl: []string{`
		CREATE TABLE IF NOT EXISTS rewards_cache_set (
			cache_set_id BIGINT NOT NULL,
			start_height BIGINT NOT NULL,
			end_height BIGINT NOT NULL,
			interval_label VARCHAR(32) NOT NULL,
			chain VARCHAR(16) NOT NULL,
			rewards DOUBLE PRECISION NOT NULL,
			relays BIGINT NOT NULL,
			per_15k DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (cache_set_id, start_height, end_height, interval_label, chain)
		)`,
	}},
	{name: "node_count_cache_set", ddl: []string{`
		CREATE TABLE IF NOT EXISTS node_count_cache_set (
			cache_set_id BIGINT NOT NULL,
			start_height BIGINT NOT NULL,
			end_height BIGINT NOT NULL,
			interval_label VARCHAR(32) NOT NULL,
			chain VARCHAR(16) NOT NULL,
			count BIGINT NOT NULL,
			PRIMARY KEY (cache_set_id, start_height, end_height, interval_label, chain)
		)`,
	}},
	{name: "latency_cache_set", ddl: []string{`
		CREATE TABLE IF NOT EXISTS latency_cache_set (
			cache_set_id BIGINT NOT NULL,
			start_height BIGINT NOT NULL,
			end_height BIGINT NOT NULL,
			interval_label VARCHAR(32) NOT NULL,
			chain VARCHAR(16) NOT NULL,
			region VARCHAR(64) NOT NULL,
			total_success BIGINT NOT NULL,
			total_failure BIGINT NOT NULL,
			weighted_success_latency DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (cache_set_id, start_height, end_height, interval_label, chain, region)
		)`,
	}},
	{name: "errors_cache_set", ddl: []string{`
		CREATE TABLE IF NOT EXISTS errors_cache_set (
			cache_set_id BIGINT NOT NULL,
			start_height BIGINT NOT NULL,
			end_height BIGINT NOT NULL,
			interval_label VARCHAR(32) NOT NULL,
			chain VARCHAR(16) NOT NULL,
			msg TEXT NOT NULL,
			count BIGINT NOT NULL,
			PRIMARY KEY (cache_set_id, start_height, end_height, interval_label, chain, msg)
		)`,
	}},
	{name: "location_cache_set", ddl: []string{`
		CREATE TABLE IF NOT EXISTS location_cache_set (
			cache_set_id BIGINT NOT NULL,
			start_height BIGINT NOT NULL,
			end_height BIGINT NOT NULL,
			interval_label VARCHAR(32) NOT NULL,
			continent VARCHAR(255) NOT NULL,
			country VARCHAR(255) NOT NULL,
			city VARCHAR(255) NOT NULL,
			isp VARCHAR(255) NOT NULL,
			count BIGINT NOT NULL,
			PRIMARY KEY (cache_set_id, start_height, end_height, interval_label, continent, country, city, isp)
		)`,
	}},
	{name: "coin_prices", ddl: []string{`
		CREATE TABLE IF NOT EXISTS coin_prices (
			id BIGSERIAL PRIMARY KEY,
			coin VARCHAR(32) NOT NULL,
			vs_currency VARCHAR(16) NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			height BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS coin_prices_lookup_idx ON coin_prices (coin, vs_currency, height)`,
	}},
	{name: "rpc_endpoints", ddl: []string{`
		CREATE TABLE IF NOT EXISTS rpc_endpoints (
			endpoint TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'unknown',
			height BIGINT NOT NULL DEFAULT 0,
			latency_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}},
}
