package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"testing"

	"github.com/credrotate/credrotate/pkg/creds"
)

type fakeDriver struct {
	opened []string
}

func (d *fakeDriver) Open(dsn string) (driver.Conn, error) {
	d.opened = append(d.opened, dsn)
	return &fakeConn{}, nil
}

type fakeConn struct{}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *fakeConn) Close() error                              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)                 { return nil, driver.ErrSkip }

func testConnector(store *creds.Store, drv driver.Driver) *Connector {
	return &Connector{store: store, drv: drv, cfg: Config{Driver: DriverMySQL, Database: "orders"}}
}

func TestConnectUsesCurrentCredentials(t *testing.T) {
	store := creds.NewStore(&creds.Credentials{Endpoint: "db:3306", Principal: "app", Secret: "old"})
	drv := &fakeDriver{}
	connector := testConnector(store, drv)

	conn, err := connector.Connect(context.Background())
	if err != nil {
		t.Fatalf("error connecting: %v", err)
	}
	defer conn.Close()

	if len(drv.opened) != 1 || !strings.Contains(drv.opened[0], "old") {
		t.Errorf("dial should use the current secret got: %v", drv.opened)
	}
}

func TestRotationInvalidatesConnections(t *testing.T) {
	store := creds.NewStore(&creds.Credentials{Endpoint: "db:3306", Principal: "app", Secret: "old"})
	drv := &fakeDriver{}
	connector := testConnector(store, drv)

	raw, err := connector.Connect(context.Background())
	if err != nil {
		t.Fatalf("error connecting: %v", err)
	}
	stale := raw.(*conn)

	if !stale.IsValid() {
		t.Error("a fresh connection should be valid")
	}
	if err := stale.ResetSession(context.Background()); err != nil {
		t.Errorf("resetting a fresh connection should succeed got: %v", err)
	}

	store.Replace(&creds.Credentials{Endpoint: "db:3306", Principal: "app", Secret: "new"})

	if stale.IsValid() {
		t.Error("a connection dialed before rotation should be invalid")
	}
	if err := stale.ResetSession(context.Background()); err != driver.ErrBadConn {
		t.Errorf("resetting a stale connection should return ErrBadConn got: %v", err)
	}

	fresh, err := connector.Connect(context.Background())
	if err != nil {
		t.Fatalf("error connecting: %v", err)
	}
	defer fresh.Close()

	if !strings.Contains(drv.opened[len(drv.opened)-1], "new") {
		t.Errorf("redial should use the rotated secret got: %v", drv.opened)
	}
}

func TestPoolRedialsAfterRotation(t *testing.T) {
	store := creds.NewStore(&creds.Credentials{Endpoint: "db:3306", Principal: "app", Secret: "old"})
	drv := &fakeDriver{}
	connector := testConnector(store, drv)

	pool := sql.OpenDB(connector)
	defer pool.Close()
	pool.SetMaxOpenConns(1)

	if err := pool.Ping(); err != nil {
		t.Fatalf("error pinging: %v", err)
	}

	store.Replace(&creds.Credentials{Endpoint: "db:3306", Principal: "app", Secret: "new"})

	if err := pool.Ping(); err != nil {
		t.Fatalf("error pinging after rotation: %v", err)
	}

	last := drv.opened[len(drv.opened)-1]
	if !strings.Contains(last, "new") {
		t.Errorf("the pool should have redialed with the rotated secret got: %v", drv.opened)
	}
}

func TestNewConnectorRejectsUnknownDriver(t *testing.T) {
	store := creds.NewStore(&creds.Credentials{})
	_, err := NewConnector(store, Config{Driver: "oracle"})
	if err == nil {
		t.Error("unknown driver should error")
	}
}
