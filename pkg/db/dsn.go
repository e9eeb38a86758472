package db

import (
	"fmt"
	"net"
	"sort"
	"strings"

	mysql "github.com/go-sql-driver/mysql"

	"github.com/credrotate/credrotate/pkg/creds"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// buildDSN renders a driver-specific DSN from the snapshot. The snapshot's
// endpoint is host:port; postgres defaults the port when it is omitted.
func buildDSN(driverName string, c *creds.Credentials, cfg Config) (string, error) {
	switch driverName {
	case DriverMySQL:
		return mysqlDSN(c, cfg), nil
	case DriverPostgres:
		return postgresDSN(c, cfg), nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driverName)
	}
}

func mysqlDSN(c *creds.Credentials, cfg Config) string {
	mc := mysql.NewConfig()
	mc.User = c.Principal
	mc.Passwd = c.Secret
	mc.Net = "tcp"
	mc.Addr = c.Endpoint
	mc.DBName = cfg.Database
	mc.ParseTime = true
	if len(cfg.Params) > 0 {
		mc.Params = cfg.Params
	}
	return mc.FormatDSN()
}

func postgresDSN(c *creds.Credentials, cfg Config) string {
	host, port, err := net.SplitHostPort(c.Endpoint)
	if err != nil {
		host, port = c.Endpoint, "5432"
	}

	kv := map[string]string{
		"host":     host,
		"port":     port,
		"user":     c.Principal,
		"password": c.Secret,
		"dbname":   cfg.Database,
	}
	for k, v := range cfg.Params {
		kv[k] = v
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		if kv[k] != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, pqQuote(kv[k])))
	}
	return strings.Join(parts, " ")
}

// pqQuote single-quotes a keyword/value parameter the way lib/pq expects,
// escaping backslashes and quotes.
func pqQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
