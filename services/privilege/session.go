// Package privilege runs an in-memory MySQL server whose grant tables are
// seeded from account descriptions. It stands in for a real MySQL target in
// local end-to-end runs and in adapter tests.
package privilege

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	sqle "github.com/dolthub/go-mysql-server"
	"github.com/dolthub/go-mysql-server/memory"
	"github.com/dolthub/go-mysql-server/server"
	"github.com/dolthub/go-mysql-server/sql"

	"dbaccountsync/models"
	"dbaccountsync/pkg/logger"
)

// FixtureUser is the login the fixture accepts. Authentication is not enforced.
const FixtureUser = "root"

// Fixture is a running in-memory MySQL server.
type Fixture struct {
	Server   *server.Server
	Engine   *sqle.Engine
	Provider *memory.DbProvider
	Port     int
	cancel   context.CancelFunc
}

// StartFixture starts a server on port (0 picks a free port) and seeds it.
// It returns once the server accepts TCP connections.
func StartFixture(ctx context.Context, port int, seed *Seed) (*Fixture, error) {
	if port == 0 {
		p, err := GetFreePort()
		if err != nil {
			return nil, fmt.Errorf("failed to get free port: %w", err)
		}
		port = p
	}

	mysqlDB := memory.NewDatabase("mysql")
	provider := memory.NewDBProvider(mysqlDB)
	engine := sqle.NewDefault(provider)
	createGrantTables(mysqlDB)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	s, err := server.NewServer(server.Config{Protocol: "tcp", Address: addr}, engine, sql.NewContext, memory.NewSessionBuilder(provider), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	f := &Fixture{Server: s, Engine: engine, Provider: provider, Port: port, cancel: cancel}

	go func() {
		if err := s.Start(); err != nil {
			logger.Debugf("Fixture server on %s stopped: %v", addr, err)
		}
	}()
	go func() {
		<-serverCtx.Done()
		if err := s.Close(); err != nil {
			logger.Warnf("Failed to close fixture server on %s: %v", addr, err)
		}
	}()

	if err := waitReady(ctx, addr); err != nil {
		cancel()
		return nil, err
	}
	if seed != nil {
		if err := f.Load(seed.Accounts); err != nil {
			cancel()
			return nil, err
		}
	}
	logger.Infof("Started MySQL fixture on %s", addr)
	return f, nil
}

func waitReady(ctx context.Context, addr string) error {
	readyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-readyCtx.Done():
			return fmt.Errorf("fixture server on %s did not start: %w", addr, readyCtx.Err())
		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
			if err == nil {
				conn.Close()
				return nil
			}
		}
	}
}

// Close stops the server.
func (f *Fixture) Close() error {
	f.cancel()
	return nil
}

// Instance returns an instance record pointing at the fixture.
func (f *Fixture) Instance(name string) *models.Instance {
	return &models.Instance{
		Name:     name,
		DBType:   models.DBTypeMySQL,
		Host:     "127.0.0.1",
		Port:     f.Port,
		IsActive: true,
		Credential: &models.Credential{
			Name:     name + "-fixture",
			DBType:   models.DBTypeMySQL,
			Username: FixtureUser,
			IsActive: true,
		},
	}
}

// Load replaces the content of mysql.user and mysql.db with accounts.
func (f *Fixture) Load(accounts []Account) error {
	stmts := []string{"DELETE FROM mysql.user", "DELETE FROM mysql.db"}
	for _, a := range accounts {
		stmts = append(stmts, a.userInsert())
		stmts = append(stmts, a.dbInserts()...)
	}
	for _, q := range stmts {
		if err := f.exec(q); err != nil {
			return fmt.Errorf("seed fixture: %w", err)
		}
	}
	logger.Debugf("Loaded %d fixture accounts", len(accounts))
	return nil
}

func (f *Fixture) exec(query string) error {
	session := memory.NewSession(sql.NewBaseSession(), f.Provider)
	ctx := sql.NewContext(context.Background(), sql.WithSession(session))
	ctx.SetCurrentDatabase("mysql")

	_, iter, _, err := f.Engine.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("%s: %w", firstWords(query), err)
	}
	defer iter.Close(ctx)
	for {
		if _, err := iter.Next(ctx); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("%s: %w", firstWords(query), err)
		}
	}
}

func firstWords(q string) string {
	parts := strings.Fields(q)
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, " ")
}

// GetFreePort finds an available TCP port.
func GetFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port, nil
}
