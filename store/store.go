package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/lavraseats/lavraseats/config"
	"github.com/lavraseats/lavraseats/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateReview   = errors.New("user already reviewed this restaurant")
	ErrDuplicateUser     = errors.New("email or cpf already registered")
	ErrConsistency       = errors.New("restaurant vanished while updating its aggregate")
	ErrSearchUnavailable = errors.New("semantic search requires postgres")
)

type Pg struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Pg {
	return &Pg{db: db}
}

func gormConfig(logQueries bool) *gorm.Config {
	level := logger.Silent
	if logQueries {
		level = logger.Info
	}

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	return &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	}
}

// Open connects to the database selected by cfg.Database.Driver.
func Open(cfg *config.Config) (*Pg, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.SQLitePath)
	default:
		dialector = postgres.Open(cfg.Postgres.ConnStr())
	}

	return OpenDialector(dialector, cfg.Database.LogQueries)
}

func OpenDialector(dialector gorm.Dialector, logQueries bool) (*Pg, error) {
	db, err := gorm.Open(dialector, gormConfig(logQueries))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}

	if dialector.Name() == "sqlite" {
		// A single connection serialises writers and keeps in-memory
		// databases alive for the lifetime of the pool.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return New(db), nil
}

func (p *Pg) Dialect() string {
	return p.db.Dialector.Name()
}

func (p *Pg) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Pg) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *Pg) Migrate(ctx context.Context) error {
	db := p.db.WithContext(ctx)
	if p.Dialect() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create vector extension: %w", err)
		}
	}

	if err := db.AutoMigrate(&models.User{}, &models.Restaurant{}, &models.Review{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// containsPattern builds an ILIKE pattern matching s anywhere, with the LIKE
// wildcards in s escaped.
func containsPattern(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}
