package connection

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dbaccountsync/config"
	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/repository"
	"dbaccountsync/utils"

	"github.com/go-sql-driver/mysql"
	"github.com/godror/godror"
	"github.com/godror/godror/dsn"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	go_ora "github.com/sijms/go-ora/v2"
)

// Default timeouts applied when the factory is built without configuration.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultQueryTimeout   = 60 * time.Second
)

// TestResult is the outcome of a version probe.
type TestResult struct {
	Success         bool   `json:"success"`
	Version         string `json:"version,omitempty"`
	MainVersion     string `json:"main_version,omitempty"`
	DetailedVersion string `json:"detailed_version,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Factory opens connections to instances.
type Factory interface {
	Open(ctx context.Context, inst *models.Instance) (Conn, error)
	TestConnection(ctx context.Context, inst *models.Instance) (*TestResult, error)
}

// opener builds a *sql.DB for one dialect. It must not return before the
// connection has been verified.
type opener func(ctx context.Context, inst *models.Instance, cred *models.Credential) (*sql.DB, error)

type factory struct {
	connectTimeout time.Duration
	queryTimeout   time.Duration
	instanceRepo   repository.InstanceRepository
	openers        map[string]opener
}

// NewFactory creates a factory with timeouts from config.Cfg.
func NewFactory() Factory {
	return NewFactoryWith(config.Cfg.ConnectTimeout, config.Cfg.QueryTimeout, repository.NewInstanceRepository())
}

// NewFactoryWith creates a factory with explicit timeouts. instanceRepo may be nil,
// in which case TestConnection does not persist last_connected_at.
func NewFactoryWith(connectTimeout, queryTimeout time.Duration, instanceRepo repository.InstanceRepository) Factory {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	f := &factory{
		connectTimeout: connectTimeout,
		queryTimeout:   queryTimeout,
		instanceRepo:   instanceRepo,
	}
	f.openers = map[string]opener{
		models.DBTypeMySQL:      f.openMySQL,
		models.DBTypePostgreSQL: f.openPostgres,
		models.DBTypeSQLServer:  f.openSQLServer,
		models.DBTypeOracle:     f.openOracle,
	}
	return f
}

func (f *factory) Open(ctx context.Context, inst *models.Instance) (Conn, error) {
	open, ok := f.openers[inst.DBType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedDialect, inst.DBType)
	}
	if inst.Credential == nil {
		return nil, fmt.Errorf("%w: instance %s has no credential", errs.ErrConnectFailed, inst.Name)
	}

	logger.Debugf("Opening %s connection to %s (%s:%d)", inst.DBType, inst.Name, inst.Host, inst.Port)
	db, err := open(ctx, inst, inst.Credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrConnectFailed, inst.Name, err)
	}
	return Wrap(db, inst.DBType, f.queryTimeout), nil
}

func (f *factory) TestConnection(ctx context.Context, inst *models.Instance) (*TestResult, error) {
	conn, err := f.Open(ctx, inst)
	if err != nil {
		if !models.IsSupportedDBType(inst.DBType) {
			return nil, err
		}
		return &TestResult{Success: false, Error: err.Error()}, nil
	}
	defer conn.Close()

	version, err := ProbeVersion(ctx, conn)
	if err != nil {
		return &TestResult{Success: false, Error: err.Error()}, nil
	}
	main, detailed := utils.ParseDatabaseVersion(inst.DBType, version)

	if f.instanceRepo != nil && inst.ID != 0 {
		if err := f.instanceRepo.TouchConnected(nil, inst.ID, time.Now().UTC()); err != nil {
			logger.Warnf("Failed to record last_connected_at for instance %s: %v", inst.Name, err)
		}
	}
	logger.Infof("Connection test succeeded for instance=%s db_type=%s version=%s", inst.Name, inst.DBType, detailed)
	return &TestResult{Success: true, Version: version, MainVersion: main, DetailedVersion: detailed}, nil
}

var versionProbes = map[string]string{
	models.DBTypeMySQL:      "SELECT VERSION() AS version",
	models.DBTypePostgreSQL: "SELECT version() AS version",
	models.DBTypeSQLServer:  "SELECT @@VERSION AS version",
	models.DBTypeOracle:     "SELECT * FROM v$version WHERE rownum = 1",
}

// ProbeVersion runs the dialect's version query and returns the raw version string.
func ProbeVersion(ctx context.Context, conn Conn) (string, error) {
	q, ok := versionProbes[conn.Dialect()]
	if !ok {
		return "", fmt.Errorf("%w: %q", errs.ErrUnsupportedDialect, conn.Dialect())
	}
	rows, err := conn.Query(ctx, q)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("%w: version probe returned no rows", errs.ErrQueryFailed)
	}
	for _, key := range []string{"version", "banner", "banner_full"} {
		if v := rows[0].String(key); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: version probe returned no version column", errs.ErrQueryFailed)
}

func (f *factory) ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, f.connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}
	return nil
}

func (f *factory) openMySQL(ctx context.Context, inst *models.Instance, cred *models.Credential) (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = cred.Username
	cfg.Passwd = cred.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(inst.Host, strconv.Itoa(inst.Port))
	cfg.DBName = inst.DatabaseName
	cfg.Timeout = f.connectTimeout
	cfg.ReadTimeout = f.queryTimeout

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	return db, f.ping(ctx, db)
}

func (f *factory) openPostgres(ctx context.Context, inst *models.Instance, cred *models.Credential) (*sql.DB, error) {
	dbName := inst.DatabaseName
	if dbName == "" {
		dbName = "postgres"
	}
	params := []string{
		"host=" + pqQuote(inst.Host),
		"port=" + strconv.Itoa(inst.Port),
		"user=" + pqQuote(cred.Username),
		"password=" + pqQuote(cred.Password),
		"dbname=" + pqQuote(dbName),
		"sslmode=disable",
		"connect_timeout=" + strconv.Itoa(int(f.connectTimeout/time.Second)),
	}
	db, err := sql.Open("postgres", strings.Join(params, " "))
	if err != nil {
		return nil, err
	}
	return db, f.ping(ctx, db)
}

// pqQuote quotes a value for a libpq key/value connection string.
func pqQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func (f *factory) openSQLServer(ctx context.Context, inst *models.Instance, cred *models.Credential) (*sql.DB, error) {
	q := url.Values{}
	if inst.DatabaseName != "" {
		q.Set("database", inst.DatabaseName)
	}
	q.Set("dial timeout", strconv.Itoa(int(f.connectTimeout/time.Second)))
	q.Set("encrypt", "disable")
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cred.Username, cred.Password),
		Host:     net.JoinHostPort(inst.Host, strconv.Itoa(inst.Port)),
		RawQuery: q.Encode(),
	}
	db, err := sql.Open("sqlserver", u.String())
	if err != nil {
		return nil, err
	}
	return db, f.ping(ctx, db)
}

// openOracle tries the pure-Go thin driver first and falls back to the OCI based thick driver.
func (f *factory) openOracle(ctx context.Context, inst *models.Instance, cred *models.Credential) (*sql.DB, error) {
	service := inst.DatabaseName
	if service == "" {
		service = "ORCL"
	}
	sysdba := strings.EqualFold(cred.Username, "SYS")

	options := map[string]string{
		"TIMEOUT": strconv.Itoa(int(f.connectTimeout / time.Second)),
	}
	if sysdba {
		options["DBA PRIVILEGE"] = "SYSDBA"
	}
	thinURL := go_ora.BuildUrl(inst.Host, inst.Port, service, cred.Username, cred.Password, options)
	db, thinErr := sql.Open("oracle", thinURL)
	if thinErr == nil {
		if thinErr = f.ping(ctx, db); thinErr == nil {
			return db, nil
		}
	}
	logger.Warnf("Oracle thin connect to %s failed, trying thick driver: %v", inst.Name, thinErr)

	var params godror.ConnectionParams
	params.Username = cred.Username
	params.Password = godror.NewPassword(cred.Password)
	params.ConnectString = fmt.Sprintf("%s:%d/%s", inst.Host, inst.Port, service)
	if sysdba {
		params.AdminRole = dsn.SysDBA
	}
	thick := sql.OpenDB(godror.NewConnector(params))
	if err := f.ping(ctx, thick); err != nil {
		return nil, fmt.Errorf("thin: %v; thick: %w", thinErr, err)
	}
	return thick, nil
}
