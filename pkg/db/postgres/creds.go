package postgres

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
)

// Credential files, one per logical database, looked up under <dir>/<env>/.
const (
	PoktInfoCreds = "poktinfo_creds.json"
	LatencyCreds  = "latency_creds.json"
	ErrorsCreds   = "errors_creds.json"
)

// Credentials is the JSON document stored for each logical database.
type Credentials struct {
	User     string      `json:"user"`
	Password string      `json:"password"`
	Host     string      `json:"host"`
	Port     json.Number `json:"port"`
	Database string      `json:"database"`
}

// LoadCredentials reads <dir>/<env>/<file>.
func LoadCredentials(dir, env, file string) (Credentials, error) {
	if env == "" {
		env = "dev"
	}
	path := filepath.Join(dir, env, file)
	raw, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials %s: %w", path, err)
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials %s: %w", path, err)
	}
	if creds.Host == "" || creds.Database == "" {
		return Credentials{}, fmt.Errorf("credentials %s: host and database are required", path)
	}
	return creds, nil
}

// DSN renders the credentials as a postgres:// URL.
func (c Credentials) DSN() string {
	port := c.Port.String()
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, port),
		Path:   "/" + c.Database,
	}
	return u.String()
}
