package client

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
	_ "modernc.org/sqlite"             // registers "sqlite"

	"github.com/AbdelilahOu/dbroute/internal/config"
)

const (
	FamilyPostgres = "postgres"
	FamilyMySQL    = "mysql"
	FamilySQLite   = "sqlite"
)

// Driver pairs the database/sql driver name with its SQL family.
type Driver struct {
	Name   string
	Family string
}

// ErrUnknownClient is returned for client names with no registered driver.
type ErrUnknownClient struct {
	Client string
}

func (e ErrUnknownClient) Error() string {
	return fmt.Sprintf("unsupported database client %q", e.Client)
}

func ResolveDriver(client string) (Driver, error) {
	switch strings.ToLower(client) {
	case "pg", "postgres", "postgresql":
		return Driver{Name: "postgres", Family: FamilyPostgres}, nil
	case "pgx":
		return Driver{Name: "pgx", Family: FamilyPostgres}, nil
	case "mysql", "mysql2":
		return Driver{Name: "mysql", Family: FamilyMySQL}, nil
	case "sqlite", "sqlite3", "better-sqlite3", "libsql":
		return Driver{Name: "sqlite", Family: FamilySQLite}, nil
	}
	return Driver{}, ErrUnknownClient{Client: client}
}

// DSN renders connection parameters in the driver's native format. A URL in
// the parameters is returned as-is.
func DSN(d Driver, p config.ConnParams) (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}

	switch d.Family {
	case FamilyPostgres:
		return postgresDSN(p)
	case FamilyMySQL:
		return mysqlDSN(p)
	case FamilySQLite:
		return sqliteDSN(p)
	}
	return "", fmt.Errorf("no DSN format for driver family %q", d.Family)
}

func postgresDSN(p config.ConnParams) (string, error) {
	if p.Host == "" {
		return "", fmt.Errorf("postgres connection requires a host")
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(port)),
		Path:   "/" + p.Database,
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	u.RawQuery = encodeOptions(p.Options)
	return u.String(), nil
}

func mysqlDSN(p config.ConnParams) (string, error) {
	if p.Host == "" {
		return "", fmt.Errorf("mysql connection requires a host")
	}
	port := p.Port
	if port == 0 {
		port = 3306
	}

	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(port))
	cfg.DBName = p.Database
	if len(p.Options) > 0 {
		cfg.Params = make(map[string]string, len(p.Options))
		for k, v := range p.Options {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN(), nil
}

func sqliteDSN(p config.ConnParams) (string, error) {
	filename := p.Filename
	if filename == "" {
		filename = p.Database
	}
	if filename == "" {
		return "", fmt.Errorf("sqlite connection requires a filename")
	}
	if q := encodeOptions(p.Options); q != "" {
		return filename + "?" + q, nil
	}
	return filename, nil
}

// encodeOptions renders options in a stable key order.
func encodeOptions(opts map[string]string) string {
	if len(opts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(opts[k]))
	}
	return b.String()
}
