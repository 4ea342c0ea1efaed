package services

import (
	"fmt"
	"os/exec"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"arena-platform/apperr"
	"arena-platform/logger"
	"arena-platform/middleware"
	"arena-platform/models"
	"arena-platform/storage"
)

const tenantBillingPageSize = 20

// TenantService owns the operator surface: tenant creation, the
// cross-tenant billing listing and the bench reset seam.
type TenantService struct {
	Catalog          *storage.Catalog
	Stores           *storage.TenantStores
	Billing          *BillingService
	AdminHostname    string
	InitializeScript string
}

func NewTenantService(catalog *storage.Catalog, stores *storage.TenantStores, billing *BillingService, adminHostname, initializeScript string) *TenantService {
	return &TenantService{
		Catalog:          catalog,
		Stores:           stores,
		Billing:          billing,
		AdminHostname:    adminHostname,
		InitializeScript: initializeScript,
	}
}

// CreateTenant registers a tenant in the Global Catalog and provisions
// its partition. The partition is created only after the catalog row
// commits; that ordering is what makes a missing partition a fatal
// integrity error later.
func (s *TenantService) CreateTenant(c *fiber.Ctx) error {
	v := middleware.GetViewer(c)
	if v.TenantName != models.AdminTenantName {
		return apperr.NotFound("not found")
	}

	displayName := c.FormValue("display_name")
	name := c.FormValue("name")
	if name == "" && displayName != "" {
		name = slug.Make(displayName)
	}
	if err := models.ValidateTenantName(name); err != nil {
		return apperr.BadRequest(err.Error())
	}

	tenant := models.Tenant{Name: name, DisplayName: displayName}
	tctx, cancel := storage.WithStatementTimeout(c.UserContext())
	err := s.Catalog.DB.WithContext(tctx).Create(&tenant).Error
	cancel()
	if err != nil {
		if storage.IsDuplicateEntry(err) {
			return apperr.Conflict("tenant name already exists: " + name)
		}
		return apperr.Internal("insert tenant", err)
	}

	if err := s.Stores.Create(tenant.ID); err != nil {
		return err
	}

	logger.L().Info("tenant created",
		zap.Uint64("tenant_id", tenant.ID),
		zap.String("name", name),
	)
	return ok(c, fiber.Map{
		"tenant": models.TenantDetail{Name: name, DisplayName: displayName},
	})
}

// ListTenantBilling returns settled billing per tenant, newest tenant
// first, paged with a `before` tenant-id cursor. Only reachable through
// the configured admin hostname.
func (s *TenantService) ListTenantBilling(c *fiber.Ctx) error {
	if c.Hostname() != s.AdminHostname {
		return apperr.NotFound("not found")
	}
	ctx := c.UserContext()

	var beforeID uint64
	if before := c.Query("before"); before != "" {
		var err error
		if beforeID, err = strconv.ParseUint(before, 10, 64); err != nil {
			return apperr.BadRequest("before must be a tenant id")
		}
	}

	tctx, cancel := storage.WithStatementTimeout(ctx)
	var tenants []models.Tenant
	err := s.Catalog.DB.WithContext(tctx).Order("id DESC").Find(&tenants).Error
	cancel()
	if err != nil {
		return apperr.Internal("select tenants", err)
	}

	rows := make([]models.TenantWithBilling, 0, tenantBillingPageSize)
	for _, t := range tenants {
		if beforeID != 0 && beforeID <= t.ID {
			continue
		}
		total, err := s.Billing.TenantBillingYen(ctx, t.ID)
		if err != nil {
			return err
		}
		rows = append(rows, models.TenantWithBilling{
			ID:          strconv.FormatUint(t.ID, 10),
			Name:        t.Name,
			DisplayName: t.DisplayName,
			BillingYen:  total,
		})
		if len(rows) >= tenantBillingPageSize {
			break
		}
	}
	return ok(c, fiber.Map{"tenants": rows})
}

// Initialize invokes the external reset routine used by the benchmark and
// test harnesses. The routine's internals are not ours.
func (s *TenantService) Initialize(c *fiber.Ctx) error {
	out, err := exec.Command(s.InitializeScript).CombinedOutput()
	if err != nil {
		return apperr.Internal(fmt.Sprintf("initialize script failed: %s", string(out)), err)
	}
	return ok(c, fiber.Map{"lang": "go"})
}
