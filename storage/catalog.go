package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"arena-platform/apperr"
	"arena-platform/config"
	"arena-platform/models"
)

// StatementTimeout bounds every storage call so a stalled partition or a
// wedged catalog surfaces as a fault instead of a hang.
const StatementTimeout = 5 * time.Second

func WithStatementTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, StatementTimeout)
}

const (
	mysqlErrDeadlock  = 1213
	mysqlErrDuplicate = 1062

	dispenseAttempts = 100
)

// Catalog is the Global Catalog: tenant identity, visit events and the id
// generator. One physical MySQL store shared by all tenants.
type Catalog struct {
	DB *gorm.DB
}

func OpenCatalog(cfg *config.Config) (*Catalog, error) {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = cfg.CatalogHost + ":" + cfg.CatalogPort
	mc.User = cfg.CatalogUser
	mc.Passwd = cfg.CatalogPassword
	mc.DBName = cfg.CatalogName
	mc.ParseTime = true

	db, err := gorm.Open(gormmysql.Open(mc.FormatDSN()), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	return &Catalog{DB: db}, nil
}

func (c *Catalog) Migrate() error {
	return c.DB.AutoMigrate(
		&models.Tenant{},
		&models.VisitEvent{},
		&models.IDGenerator{},
	)
}

func (c *Catalog) TenantByName(ctx context.Context, name string) (*models.Tenant, error) {
	tctx, cancel := WithStatementTimeout(ctx)
	defer cancel()

	var t models.Tenant
	if err := c.DB.WithContext(tctx).First(&t, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("tenant not found: " + name)
		}
		return nil, apperr.Internal("select tenant by name", err)
	}
	return &t, nil
}

func (c *Catalog) TenantByID(ctx context.Context, id uint64) (*models.Tenant, error) {
	tctx, cancel := WithStatementTimeout(ctx)
	defer cancel()

	var t models.Tenant
	if err := c.DB.WithContext(tctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("tenant not found")
		}
		return nil, apperr.Internal("select tenant by id", err)
	}
	return &t, nil
}

// DispenseID returns the next globally unique, monotonically increasing
// identifier. The shared counter row is bumped with REPLACE INTO and the
// generated key read back; only a deadlock on that row is retried, up to
// dispenseAttempts times.
func (c *Catalog) DispenseID(ctx context.Context) (string, error) {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return "", apperr.Internal("catalog connection", err)
	}

	var lastErr error
	for i := 0; i < dispenseAttempts; i++ {
		tctx, cancel := WithStatementTimeout(ctx)
		res, err := sqlDB.ExecContext(tctx, "REPLACE INTO id_generator (stub) VALUES (?)", "a")
		cancel()
		if err != nil {
			var merr *mysql.MySQLError
			if errors.As(err, &merr) && merr.Number == mysqlErrDeadlock {
				lastErr = err
				continue
			}
			return "", apperr.Internal("bump id_generator", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return "", apperr.Internal("read generated id", err)
		}
		if id == 0 {
			return "", apperr.Internal("id_generator returned zero key", nil)
		}
		return strconv.FormatInt(id, 10), nil
	}
	return "", apperr.Internal("id_generator contention not resolved", lastErr)
}

// IsDuplicateEntry reports a MySQL unique-key violation, used to map a
// duplicate tenant name to Conflict.
func IsDuplicateEntry(err error) bool {
	var merr *mysql.MySQLError
	return errors.As(err, &merr) && merr.Number == mysqlErrDuplicate
}
