package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"os"
	"os/exec"
	"testing"

	"storefront/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "Storefront defaults",
			cfg: config.Config{
				DBHost: "postgres", DBPort: "5432",
				DBUser: "storefront", DBPassword: "storefront", DBName: "storefront",
			},
			want: "host=postgres port=5432 user=storefront password=storefront dbname=storefront sslmode=disable",
		},
		{
			name: "Managed instance with TLS",
			cfg: config.Config{
				DBHost: "db.internal", DBPort: "6432",
				DBUser: "shop_rw", DBPassword: "s3cret", DBName: "catalog", DBSSLMode: "verify-full",
			},
			want: "host=db.internal port=6432 user=shop_rw password=s3cret dbname=catalog sslmode=verify-full",
		},
		{
			name: "Password needing quotes",
			cfg: config.Config{
				DBHost: "localhost", DBUser: "storefront", DBPassword: `it's a p\ss`, DBName: "storefront",
			},
			want: `host=localhost user=storefront password='it\'s a p\\ss' dbname=storefront sslmode=disable`,
		},
		{
			name: "Unset values fall back to driver defaults",
			cfg:  config.Config{DBHost: "localhost"},
			want: "host=localhost sslmode=disable",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, buildDSN(&tc.cfg))
		})
	}
}

func TestNewDatabase_ConnectionFailure(t *testing.T) {
	cfg := &config.Config{DBHost: "storefront-db.invalid", DBPort: "5432", DBName: "storefront"}

	db, err := NewDatabase(cfg)

	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to ping DB")
}

func TestNewDatabase_UnknownDriver(t *testing.T) {
	db, err := newDatabaseWithDriver(&config.Config{DBHost: "localhost"}, "cockroach")

	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to connect to DB")
}

func TestInitDB_ExitsWhenUnreachable(t *testing.T) {
	if os.Getenv("STOREFRONT_INITDB_CHILD") == "1" {
		InitDB(&config.Config{DBHost: "storefront-db.invalid", DBPort: "5432"})
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestInitDB_ExitsWhenUnreachable")
	cmd.Env = append(os.Environ(), "STOREFRONT_INITDB_CHILD=1", "APP_ENV=production")
	err := cmd.Run()

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "want non-zero exit, got %v", err)
	assert.False(t, exitErr.Success())
}

// pingDriver hands out connections whose Ping returns pingErr and records
// the DSN it was opened with.
type pingDriver struct {
	dsn     string
	pingErr error
}

func (d *pingDriver) Open(name string) (driver.Conn, error) {
	d.dsn = name
	return &pingConn{err: d.pingErr}, nil
}

type pingConn struct{ err error }

func (c *pingConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *pingConn) Close() error                        { return nil }
func (c *pingConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }
func (c *pingConn) Ping(context.Context) error          { return c.err }

var (
	healthyDriver = &pingDriver{}
	downDriver    = &pingDriver{pingErr: errors.New("connection refused")}
)

func init() {
	sql.Register("storefront_healthy", healthyDriver)
	sql.Register("storefront_down", downDriver)
}

func TestNewDatabase_Success(t *testing.T) {
	cfg := &config.Config{DBHost: "postgres", DBUser: "storefront", DBName: "storefront", DBSSLMode: "require"}

	db, err := newDatabaseWithDriver(cfg, "storefront_healthy")
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, maxOpenConns, db.Stats().MaxOpenConnections)
	assert.Equal(t, "host=postgres user=storefront dbname=storefront sslmode=require", healthyDriver.dsn)
}

func TestNewDatabase_PingRejected(t *testing.T) {
	db, err := newDatabaseWithDriver(&config.Config{DBHost: "postgres"}, "storefront_down")

	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to ping DB")
}
