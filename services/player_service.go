package services

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"arena-platform/apperr"
	"arena-platform/middleware"
	"arena-platform/models"
	"arena-platform/storage"
)

// PlayerService owns player lifecycle inside one tenant partition.
type PlayerService struct {
	Catalog *storage.Catalog
	Stores  *storage.TenantStores
}

func NewPlayerService(catalog *storage.Catalog, stores *storage.TenantStores) *PlayerService {
	return &PlayerService{Catalog: catalog, Stores: stores}
}

func playerDetail(p *models.Player) models.PlayerDetail {
	return models.PlayerDetail{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		IsDisqualified: p.IsDisqualified,
	}
}

// formValues collects every value of a repeated form key, for both
// urlencoded and multipart bodies.
func formValues(c *fiber.Ctx, key string) []string {
	if form, err := c.MultipartForm(); err == nil && form != nil {
		if vals, ok := form.Value[key]; ok {
			return vals
		}
	}
	var vals []string
	for _, v := range c.Request().PostArgs().PeekMulti(key) {
		vals = append(vals, string(v))
	}
	return vals
}

// ListPlayers returns the tenant's players, newest first.
func (s *PlayerService) ListPlayers(c *fiber.Ctx) error {
	v := middleware.GetViewer(c)

	tenantDB, err := s.Stores.Resolve(v.TenantID)
	if err != nil {
		return err
	}
	defer s.Stores.Release(tenantDB)

	tctx, cancel := storage.WithStatementTimeout(c.UserContext())
	defer cancel()
	var players []models.Player
	if err := tenantDB.WithContext(tctx).
		Where("tenant_id = ?", v.TenantID).
		Order("created_at DESC").
		Find(&players).Error; err != nil {
		return apperr.Internal("select players", err)
	}

	details := make([]models.PlayerDetail, 0, len(players))
	for i := range players {
		details = append(details, playerDetail(&players[i]))
	}
	return ok(c, fiber.Map{"players": details})
}

// AddPlayers creates players in bulk from repeated display_name values,
// each with a freshly dispensed id.
func (s *PlayerService) AddPlayers(c *fiber.Ctx) error {
	ctx := c.UserContext()
	v := middleware.GetViewer(c)

	displayNames := formValues(c, "display_name")
	if len(displayNames) == 0 {
		return apperr.BadRequest("display_name is required")
	}

	tenantDB, err := s.Stores.Resolve(v.TenantID)
	if err != nil {
		return err
	}
	defer s.Stores.Release(tenantDB)

	details := make([]models.PlayerDetail, 0, len(displayNames))
	for _, displayName := range displayNames {
		id, err := s.Catalog.DispenseID(ctx)
		if err != nil {
			return err
		}

		player := models.Player{
			ID:          id,
			TenantID:    v.TenantID,
			DisplayName: displayName,
		}
		tctx, cancel := storage.WithStatementTimeout(ctx)
		err = tenantDB.WithContext(tctx).Create(&player).Error
		cancel()
		if err != nil {
			return apperr.Internal("insert player", err)
		}
		details = append(details, playerDetail(&player))
	}
	return ok(c, fiber.Map{"players": details})
}

// DisqualifyPlayer flips is_disqualified to true. The transition is
// monotonic; there is no way back.
func (s *PlayerService) DisqualifyPlayer(c *fiber.Ctx) error {
	ctx := c.UserContext()
	v := middleware.GetViewer(c)

	playerID := c.Params("player_id")
	if playerID == "" {
		return apperr.BadRequest("player_id is required")
	}

	tenantDB, err := s.Stores.Resolve(v.TenantID)
	if err != nil {
		return err
	}
	defer s.Stores.Release(tenantDB)

	if _, err := retrievePlayer(ctx, tenantDB, playerID); err != nil {
		return err
	}

	tctx, cancel := storage.WithStatementTimeout(ctx)
	err = tenantDB.WithContext(tctx).
		Model(&models.Player{}).
		Where("id = ?", playerID).
		Updates(map[string]any{"is_disqualified": true, "updated_at": time.Now()}).Error
	cancel()
	if err != nil {
		return apperr.Internal("update player", err)
	}

	p, err := retrievePlayer(ctx, tenantDB, playerID)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"player": playerDetail(p)})
}

// GetPlayer returns a player's detail plus their current score per
// competition, competitions in creation order. The score read runs under
// the tenant lock for the same reason the ranking read does.
func (s *PlayerService) GetPlayer(c *fiber.Ctx) error {
	ctx := c.UserContext()
	v := middleware.GetViewer(c)

	tenantDB, err := s.Stores.Resolve(v.TenantID)
	if err != nil {
		return err
	}
	defer s.Stores.Release(tenantDB)

	if _, err := ensureNotDisqualified(ctx, tenantDB, v.Subject); err != nil {
		return err
	}

	playerID := c.Params("player_id")
	if playerID == "" {
		return apperr.BadRequest("player_id is required")
	}
	p, err := retrievePlayer(ctx, tenantDB, playerID)
	if err != nil {
		return err
	}

	tctx, cancel := storage.WithStatementTimeout(ctx)
	var comps []models.Competition
	err = tenantDB.WithContext(tctx).
		Where("tenant_id = ?", v.TenantID).
		Order("created_at ASC").
		Find(&comps).Error
	cancel()
	if err != nil {
		return apperr.Internal("select competitions", err)
	}

	lock, err := s.Stores.Lock(ctx, v.TenantID)
	if err != nil {
		return err
	}
	defer lock.Close()

	tctx, cancel = storage.WithStatementTimeout(ctx)
	var entries []models.ScoreEntry
	err = tenantDB.WithContext(tctx).
		Where("tenant_id = ? AND player_id = ?", v.TenantID, p.ID).
		Find(&entries).Error
	cancel()
	if err != nil {
		return apperr.Internal("select score entries", err)
	}

	// current score per competition is the entry with the highest row_num
	latest := make(map[string]models.ScoreEntry, len(entries))
	for _, e := range entries {
		if cur, ok := latest[e.CompetitionID]; !ok || e.RowNum > cur.RowNum {
			latest[e.CompetitionID] = e
		}
	}

	scores := make([]models.PlayerScoreDetail, 0, len(latest))
	for _, comp := range comps {
		e, ok := latest[comp.ID]
		if !ok {
			continue
		}
		scores = append(scores, models.PlayerScoreDetail{
			CompetitionTitle: comp.Title,
			Score:            e.Score,
		})
	}

	return ok(c, fiber.Map{
		"player": playerDetail(p),
		"scores": scores,
	})
}
