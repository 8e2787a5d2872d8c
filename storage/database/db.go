package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/trezcool/clubhub/core"
	appfs "github.com/trezcool/clubhub/fs"
)

// Engines
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

const migrationsDir = "migrations"

func init() {
	sqlx.BindDriver(SQLite, sqlx.QUESTION)
	goose.SetBaseFS(appfs.FS)
}

func dsn(dbName string, admin bool, conf *core.Config) (string, error) {
	dbUser, dbPwd := conf.Database.User, conf.Database.Password
	if admin && conf.Database.AdminUser != "" {
		dbUser, dbPwd = conf.Database.AdminUser, conf.Database.AdminPassword
	}

	switch conf.Database.Engine {
	case Postgres:
		sslMode := "require"
		if conf.Database.DisableTLS {
			sslMode = "disable"
		}
		q := make(url.Values)
		q.Set("sslmode", sslMode)
		q.Set("timezone", "utc")

		u := url.URL{
			Scheme:   Postgres,
			User:     url.UserPassword(dbUser, dbPwd),
			Host:     conf.Database.Address(),
			Path:     dbName,
			RawQuery: q.Encode(),
		}
		return u.String(), nil

	case MySQL:
		mc := mysql.NewConfig()
		mc.User = dbUser
		mc.Passwd = dbPwd
		mc.Net = "tcp"
		mc.Addr = conf.Database.Address()
		mc.DBName = dbName
		mc.ParseTime = true
		mc.Loc = time.UTC
		if !conf.Database.DisableTLS {
			mc.TLSConfig = "true"
		}
		return mc.FormatDSN(), nil

	case SQLite:
		// Name is a file path, or ":memory:"
		q := make(url.Values)
		q.Add("_pragma", "foreign_keys(1)")
		q.Add("_pragma", "busy_timeout(5000)")
		q.Set("_time_format", "sqlite")
		return "file:" + conf.Database.Name + "?" + q.Encode(), nil
	}
	return "", fmt.Errorf("%q: unsupported database engine", conf.Database.Engine)
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	dataSource, err := dsn(dbName, admin, conf)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(conf.Database.Engine, dataSource)
	if err != nil {
		return nil, err
	}
	if conf.Database.Engine == SQLite {
		db.SetMaxOpenConns(1) // one writer; also keeps a ":memory:" database alive
	}
	return db, nil
}

// Open opens the application database and waits for it to be ready.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sqlx.DB, q string, args ...interface{}) (bool, error) {
	var n int
	if err := db.Get(&n, db.Rebind(q), args...); err != nil {
		return false, err
	}
	return n > 0, nil
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	ok, err := exists(db, "SELECT COUNT(*) FROM pg_roles WHERE rolname = ?", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !ok {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createPostgresDB(db *sqlx.DB, conf *core.Config) error {
	ok, err := exists(db, "SELECT COUNT(*) FROM pg_database WHERE datname = ?", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !ok {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the application database (and its postgres role). It is a no-op for sqlite.
func CreateIfNotExist(conf *core.Config) error {
	switch conf.Database.Engine {
	case SQLite:
		return nil

	case MySQL:
		db, err := open("", true, conf)
		if err != nil {
			return errors.Wrap(err, "opening database")
		}
		defer func() { _ = db.Close() }()
		if err = ping(db.DB); err != nil {
			return errors.Wrap(err, "pinging database")
		}
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db.DB); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return createPostgresDB(appDB, conf)
}

// RunMigration runs a goose command against the embedded migrations.
func RunMigration(db *sqlx.DB, command string, args ...string) error {
	if err := goose.SetDialect(db.DriverName()); err != nil {
		return errors.Wrap(err, "setting migration dialect")
	}
	return goose.Run(command, db.DB, migrationsDir, args...)
}

func Migrate(db *sqlx.DB) error {
	if err := RunMigration(db, "up"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
