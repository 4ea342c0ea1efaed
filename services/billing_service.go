package services

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"arena-platform/apperr"
	"arena-platform/middleware"
	"arena-platform/models"
	"arena-platform/storage"
)

// Pricing: 100 yen per player, 10 yen per visitor-only. Billing settles
// on finish; open competitions always report zeros.
const (
	playerPriceYen  = 100
	visitorPriceYen = 10
)

// BillingService reconciles catalog visit events with tenant store score
// rows into a consistent monetary figure per competition and tenant.
type BillingService struct {
	Catalog *storage.Catalog
	Stores  *storage.TenantStores
}

func NewBillingService(catalog *storage.Catalog, stores *storage.TenantStores) *BillingService {
	return &BillingService{Catalog: catalog, Stores: stores}
}

// settleBilling classifies every billable player for one competition.
// Players with at least one score entry bill as players; players who only
// visited (earliest visit not after the finish time) bill as visitors.
func settleBilling(comp *models.Competition, visits []models.VisitSummary, scoredPlayerIDs []string) models.BillingReport {
	report := models.BillingReport{
		CompetitionID:    comp.ID,
		CompetitionTitle: comp.Title,
	}
	if !comp.IsFinished() {
		return report
	}

	scored := make(map[string]struct{}, len(scoredPlayerIDs))
	for _, id := range scoredPlayerIDs {
		scored[id] = struct{}{}
	}

	var visitors int64
	for _, vh := range visits {
		// a first visit after the finish time is not billable activity
		if vh.MinCreatedAt.After(*comp.FinishedAt) {
			continue
		}
		// visited and scored bills once, as a player
		if _, ok := scored[vh.PlayerID]; ok {
			continue
		}
		visitors++
	}

	report.PlayerCount = int64(len(scored))
	report.VisitorCount = visitors
	report.BillingPlayerYen = playerPriceYen * report.PlayerCount
	report.BillingVisitorYen = visitorPriceYen * report.VisitorCount
	report.BillingYen = report.BillingPlayerYen + report.BillingVisitorYen
	return report
}

// reportForCompetition reads visit events from the Global Catalog and the
// scored-player set from the tenant store. The score read runs inside the
// tenant's critical section so a concurrent score re-upload cannot leak a
// half-replaced set into the figures.
func (s *BillingService) reportForCompetition(ctx context.Context, tenantDB *gorm.DB, tenantID uint64, competitionID string) (*models.BillingReport, error) {
	comp, err := retrieveCompetition(ctx, tenantDB, competitionID)
	if err != nil {
		return nil, err
	}

	tctx, cancel := storage.WithStatementTimeout(ctx)
	var visits []models.VisitSummary
	err = s.Catalog.DB.WithContext(tctx).
		Model(&models.VisitEvent{}).
		Select("player_id, MIN(created_at) AS min_created_at").
		Where("tenant_id = ? AND competition_id = ?", tenantID, competitionID).
		Group("player_id").
		Scan(&visits).Error
	cancel()
	if err != nil {
		return nil, apperr.Internal("aggregate visit history", err)
	}

	lock, err := s.Stores.Lock(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer lock.Close()

	tctx, cancel = storage.WithStatementTimeout(ctx)
	defer cancel()
	var scoredPlayerIDs []string
	if err := tenantDB.WithContext(tctx).
		Model(&models.ScoreEntry{}).
		Where("tenant_id = ? AND competition_id = ?", tenantID, competitionID).
		Distinct().
		Pluck("player_id", &scoredPlayerIDs).Error; err != nil {
		return nil, apperr.Internal("select scored players", err)
	}

	report := settleBilling(comp, visits, scoredPlayerIDs)
	return &report, nil
}

// TenantBillingYen sums settled billing across every competition of one
// tenant. Used by the operator listing and the reconciliation job.
func (s *BillingService) TenantBillingYen(ctx context.Context, tenantID uint64) (int64, error) {
	tenantDB, err := s.Stores.Resolve(tenantID)
	if err != nil {
		return 0, err
	}
	defer s.Stores.Release(tenantDB)

	tctx, cancel := storage.WithStatementTimeout(ctx)
	var comps []models.Competition
	err = tenantDB.WithContext(tctx).Where("tenant_id = ?", tenantID).Find(&comps).Error
	cancel()
	if err != nil {
		return 0, apperr.Internal("select competitions", err)
	}

	var total int64
	for _, comp := range comps {
		report, err := s.reportForCompetition(ctx, tenantDB, tenantID, comp.ID)
		if err != nil {
			return 0, err
		}
		total += report.BillingYen
	}
	return total, nil
}

// OrganizerBilling returns billing reports for every competition of the
// viewer's tenant, newest competition first.
func (s *BillingService) OrganizerBilling(c *fiber.Ctx) error {
	ctx := c.UserContext()
	v := middleware.GetViewer(c)

	tenantDB, err := s.Stores.Resolve(v.TenantID)
	if err != nil {
		return err
	}
	defer s.Stores.Release(tenantDB)

	tctx, cancel := storage.WithStatementTimeout(ctx)
	var comps []models.Competition
	err = tenantDB.WithContext(tctx).
		Where("tenant_id = ?", v.TenantID).
		Order("created_at DESC").
		Find(&comps).Error
	cancel()
	if err != nil {
		return apperr.Internal("select competitions", err)
	}

	reports := make([]models.BillingReport, 0, len(comps))
	for _, comp := range comps {
		report, err := s.reportForCompetition(ctx, tenantDB, v.TenantID, comp.ID)
		if err != nil {
			return err
		}
		reports = append(reports, *report)
	}
	return ok(c, fiber.Map{"reports": reports})
}
