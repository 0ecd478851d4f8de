package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"pixelpie/internal/domain"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

func init() {
	// modernc регистрируется как "sqlite", sqlx по умолчанию знает только "sqlite3"
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type DB struct {
	*sqlx.DB
	driver string
}

// Open создает новое подключение к базе данных.
// driver: "sqlite" (файл) или "postgres".
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("неизвестный драйвер базы данных: %s", driver)
	}

	if driver == "sqlite" {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}

	if driver == "sqlite" {
		// одна запись за раз, иначе SQLITE_BUSY под нагрузкой
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("база данных недоступна: %w", err)
	}

	return &DB{DB: db, driver: driver}, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "pixelpie.db"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Migrate применяет встроенные миграции goose, вывод goose идет в log (nil: без вывода)
func (db *DB) Migrate(ctx context.Context, log goose.Logger) error {
	dialect, dir := "sqlite3", "migrations/sqlite"
	if db.driver == "postgres" {
		dialect, dir = "postgres", "migrations/postgres"
	}

	if log == nil {
		log = goose.NopLogger()
	}
	goose.SetLogger(log)
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("ошибка установки диалекта: %w", err)
	}

	if err := goose.UpContext(ctx, db.DB.DB, dir); err != nil {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}
	return nil
}

// q переводит плейсхолдеры ? в формат драйвера
func (db *DB) q(query string) string {
	return db.Rebind(query)
}

// expectOne возвращает ErrAlreadyProcessed, если условный UPDATE ничего не изменил
func expectOne(res sql.Result, notMatched error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notMatched
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func now() time.Time {
	return time.Now().UTC()
}

var (
	_ domain.UserRepository      = (*UserRepository)(nil)
	_ domain.PaymentRepository   = (*PaymentRepository)(nil)
	_ domain.AvatarRepository    = (*AvatarRepository)(nil)
	_ domain.TaskRepository      = (*TaskRepository)(nil)
	_ domain.BroadcastRepository = (*BroadcastRepository)(nil)
)
