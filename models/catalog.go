package models

import (
	"fmt"
	"regexp"
	"time"
)

// tenant name doubles as the subdomain component for request routing, so
// it must be a valid lowercase DNS label of at least two characters
var tenantNameRegexp = regexp.MustCompile(`^[a-z][a-z0-9-]{0,61}[a-z0-9]$`)

// AdminTenantName is the reserved name of the synthetic operator tenant.
// It is never persisted in the catalog.
const AdminTenantName = "admin"

// Tenant lives in the Global Catalog, shared by all tenants. The numeric
// id is authoritative and names the tenant's physical partition.
type Tenant struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"uniqueIndex;size:64;not null"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func ValidateTenantName(name string) error {
	if tenantNameRegexp.MatchString(name) {
		return nil
	}
	return fmt.Errorf("invalid tenant name: %s", name)
}

// VisitEvent is appended to the Global Catalog every time an authenticated,
// non-disqualified player views a competition ranking. It is the sole
// signal for visitor billing and is never updated.
type VisitEvent struct {
	ID            uint64    `json:"-" gorm:"primaryKey;autoIncrement"`
	PlayerID      string    `json:"player_id" gorm:"index:idx_visit_tenant_comp,priority:3;size:64"`
	TenantID      uint64    `json:"tenant_id" gorm:"index:idx_visit_tenant_comp,priority:1"`
	CompetitionID string    `json:"competition_id" gorm:"index:idx_visit_tenant_comp,priority:2;size:64"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (VisitEvent) TableName() string {
	return "visit_history"
}

// VisitSummary is the MIN(created_at)-per-player reduction of VisitEvent
// rows for one competition.
type VisitSummary struct {
	PlayerID     string    `gorm:"column:player_id"`
	MinCreatedAt time.Time `gorm:"column:min_created_at"`
}

// IDGenerator backs the Global ID Dispenser: a single row bumped via
// REPLACE INTO, its auto-increment key read back as the dispensed id.
type IDGenerator struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Stub string `gorm:"uniqueIndex;size:64;not null"`
}

func (IDGenerator) TableName() string {
	return "id_generator"
}

// TenantDetail is the wire shape for tenant payloads.
type TenantDetail struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// TenantWithBilling is one row of the operator billing listing.
type TenantWithBilling struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	BillingYen  int64  `json:"billing"`
}
