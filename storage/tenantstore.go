package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"arena-platform/apperr"
	"arena-platform/config"
)

// TenantStores manages the lifecycle of per-tenant physical partitions:
// one sqlite file per tenant under a configured directory, bootstrapped
// from a schema template.
type TenantStores struct {
	Dir        string
	SchemaFile string
}

func NewTenantStores(cfg *config.Config) *TenantStores {
	return &TenantStores{
		Dir:        cfg.TenantDBDir,
		SchemaFile: cfg.TenantSchemaFile,
	}
}

func (m *TenantStores) PartitionPath(tenantID uint64) string {
	return filepath.Join(m.Dir, fmt.Sprintf("%d.db", tenantID))
}

func (m *TenantStores) lockPath(tenantID uint64) string {
	return filepath.Join(m.Dir, fmt.Sprintf("%d.lock", tenantID))
}

// Create provisions a new partition with the fixed schema. It is invoked
// once, right after the tenant row commits in the catalog, and is safe to
// retry: the template only uses IF NOT EXISTS statements.
func (m *TenantStores) Create(tenantID uint64) error {
	schema, err := os.ReadFile(m.SchemaFile)
	if err != nil {
		return apperr.Internal("read tenant schema template", err)
	}

	db, err := gorm.Open(sqlite.Open(m.PartitionPath(tenantID)), &gorm.Config{})
	if err != nil {
		return apperr.Internal("create tenant partition", err)
	}
	defer m.Release(db)

	for _, stmt := range strings.Split(string(schema), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := db.Exec(stmt).Error; err != nil {
			return apperr.Internal("bootstrap tenant schema", err)
		}
	}
	return nil
}

// Resolve opens the partition of an existing tenant. A missing file means
// the catalog and the store drifted apart, which is an integrity fault,
// not a transient one: the catalog insert happens before store creation.
func (m *TenantStores) Resolve(tenantID uint64) (*gorm.DB, error) {
	p := m.PartitionPath(tenantID)
	if _, err := os.Stat(p); err != nil {
		return nil, apperr.Internal(
			fmt.Sprintf("tenant partition missing: id=%d, catalog/store desynchronization", tenantID), err)
	}

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?_busy_timeout=5000", p)), &gorm.Config{})
	if err != nil {
		return nil, apperr.Internal("open tenant partition", err)
	}
	return db, nil
}

// Release closes a handle obtained from Resolve or Create. Handles are
// scoped per request, opened and released on every exit path.
func (m *TenantStores) Release(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Lock takes the tenant's exclusive critical section. Score replacement
// and the billing/ranking multi-reads run under it so no caller observes
// a half-replaced score set. The lock is a file lock next to the
// partition, which also coordinates multiple processes on the same host.
// Acquisition is bounded like every other storage call, so a wedged lock
// holder surfaces as a fault instead of a hang.
func (m *TenantStores) Lock(ctx context.Context, tenantID uint64) (io.Closer, error) {
	lctx, cancel := WithStatementTimeout(ctx)
	defer cancel()

	fl := flock.New(m.lockPath(tenantID))
	locked, err := fl.TryLockContext(lctx, 10*time.Millisecond)
	if err != nil {
		return nil, apperr.Internal("lock tenant partition", err)
	}
	if !locked {
		return nil, apperr.Internal("tenant partition lock not acquired", nil)
	}
	return fl, nil
}
