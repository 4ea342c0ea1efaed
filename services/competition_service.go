package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"arena-platform/apperr"
	"arena-platform/middleware"
	"arena-platform/models"
	"arena-platform/storage"
)

// CompetitionService owns competition lifecycle, score ingestion and the
// ranking read path.
type CompetitionService struct {
	Catalog *storage.Catalog
	Stores  *storage.TenantStores
}

func NewCompetitionService(catalog *storage.Catalog, stores *storage.TenantStores) *CompetitionService {
	return &CompetitionService{Catalog: catalog, Stores: stores}
}

func competitionDetail(comp *models.Competition) models.CompetitionDetail {
	return models.CompetitionDetail{
		ID:         comp.ID,
		Title:      comp.Title,
		IsFinished: comp.IsFinished(),
	}
}

// AddCompetition creates an open competition with a dispensed id.
func (s *CompetitionService) AddCompetition(c *fiber.Ctx) error {
	ctx := c.UserContext()
	v := middleware.GetViewer(c)

	title := c.FormValue("title")
	if title == "" {
		return apperr.BadRequest("title is required")
	}

	tenantDB, err := s.Stores.Resolve(v.TenantID)
	if err != nil {
		return err
	}
	defer s.Stores.Release(tenantDB)

	id, err := s.Catalog.DispenseID(ctx)
	if err != nil {
		return err
	}

	comp := models.Competition{
		ID:       id,
		TenantID: v.TenantID,
		Title:    title,
	}
	tctx, cancel := storage.WithStatementTimeout(ctx)
	err = tenantDB.WithContext(tctx).Create(&comp).Error
	cancel()
	if err != nil {
		return apperr.Internal("insert competition", err)
	}

	return ok(c, fiber.Map{"competition": competitionDetail(&comp)})
}

// FinishCompetition stamps finished_at. The transition happens once and
// cannot be reversed or repeated.
func (s *CompetitionService) FinishCompetition(c *fiber.Ctx) error {
	ctx := c.UserContext()
	v := middleware.GetViewer(c)

	id := c.Params("competition_id")
	if id == "" {
		return apperr.BadRequest("competition_id is required")
	}

	tenantDB, err := s.Stores.Resolve(v.TenantID)
	if err != nil {
		return err
	}
	defer s.Stores.Release(tenantDB)

	comp, err := retrieveCompetition(ctx, tenantDB, id)
	if err != nil {
		return err
	}
	if comp.IsFinished() {
		return apperr.BadRequest("competition is already finished")
	}

	now := time.Now()
	tctx, cancel := storage.WithStatementTimeout(ctx)
	err = tenantDB.WithContext(tctx).
		Model(&models.Competition{}).
		Where("id = ?", id).
		Updates(map[string]any{"finished_at": now, "updated_at": now}).Error
	cancel()
	if err != nil {
		return apperr.Internal("update competition", err)
	}

	return ok(c, nil)
}

// ListCompetitions returns the tenant's competitions for a player, newest
// first.
func (s *CompetitionService) ListCompetitions(c *fiber.Ctx) error {
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

	tctx, cancel := storage.WithStatementTimeout(ctx)
	defer cancel()
	var comps []models.Competition
	if err := tenantDB.WithContext(tctx).
		Where("tenant_id = ?", v.TenantID).
		Order("created_at DESC").
		Find(&comps).Error; err != nil {
		return apperr.Internal("select competitions", err)
	}

	details := make([]models.CompetitionDetail, 0, len(comps))
	for i := range comps {
		details = append(details, competitionDetail(&comps[i]))
	}
	return ok(c, fiber.Map{"competitions": details})
}

type scoreUpload struct {
	PlayerID string
	Score    int64
}

// parseScoreCSV validates the bulk score format: a header of exactly
// player_id,score and two columns per row.
func parseScoreCSV(f io.Reader) ([]scoreUpload, error) {
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, apperr.BadRequest("scores file is empty")
	}
	if len(header) != 2 || header[0] != "player_id" || header[1] != "score" {
		return nil, apperr.BadRequest("scores header must be player_id,score")
	}

	var uploads []scoreUpload
	for {
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, apperr.BadRequest("malformed scores row")
		}
		if len(row) != 2 {
			return nil, apperr.BadRequest("scores row must have two columns")
		}
		score, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil {
			return nil, apperr.BadRequest("score must be an integer: " + row[1])
		}
		uploads = append(uploads, scoreUpload{PlayerID: row[0], Score: score})
	}
	return uploads, nil
}

type dispenseFunc func(context.Context) (string, error)

// replaceScores swaps the score set of an open competition with the
// uploaded batch. The whole batch is validated before anything is
// written; every row gets a dispensed id and a 1-based row_num, and the
// delete and insert run as one unit under the tenant lock so a racing
// ranking or billing read never sees a half-replaced set.
func replaceScores(ctx context.Context, stores *storage.TenantStores, tenantDB *gorm.DB, tenantID uint64, comp *models.Competition, uploads []scoreUpload, dispense dispenseFunc) (int, error) {
	if comp.IsFinished() {
		return 0, apperr.BadRequest("competition is finished")
	}

	ids := make([]string, 0, len(uploads))
	for _, u := range uploads {
		ids = append(ids, u.PlayerID)
	}
	known := make(map[string]struct{}, len(ids))
	if len(ids) > 0 {
		tctx, cancel := storage.WithStatementTimeout(ctx)
		var players []models.Player
		err := tenantDB.WithContext(tctx).
			Where("tenant_id = ? AND id IN ?", tenantID, ids).
			Find(&players).Error
		cancel()
		if err != nil {
			return 0, apperr.Internal("select players for upload", err)
		}
		for _, p := range players {
			known[p.ID] = struct{}{}
		}
	}
	for _, u := range uploads {
		if _, ok := known[u.PlayerID]; !ok {
			return 0, apperr.BadRequest("player not found: " + u.PlayerID)
		}
	}

	now := time.Now()
	entries := make([]models.ScoreEntry, 0, len(uploads))
	for i, u := range uploads {
		id, err := dispense(ctx)
		if err != nil {
			return 0, err
		}
		entries = append(entries, models.ScoreEntry{
			ID:            id,
			TenantID:      tenantID,
			PlayerID:      u.PlayerID,
			CompetitionID: comp.ID,
			Score:         u.Score,
			RowNum:        uint64(i + 1),
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	lock, err := stores.Lock(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	defer lock.Close()

	tctx, cancel := storage.WithStatementTimeout(ctx)
	defer cancel()
	err = tenantDB.WithContext(tctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("tenant_id = ? AND competition_id = ?", tenantID, comp.ID).
			Delete(&models.ScoreEntry{}).Error; err != nil {
			return fmt.Errorf("delete score entries: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(entries, 200).Error; err != nil {
			return fmt.Errorf("insert score entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Internal("replace score entries", err)
	}
	return len(entries), nil
}

// UploadScores handles the CSV score upload for one competition.
func (s *CompetitionService) UploadScores(c *fiber.Ctx) error {
	ctx := c.UserContext()
	v := middleware.GetViewer(c)

	competitionID := c.Params("competition_id")
	if competitionID == "" {
		return apperr.BadRequest("competition_id is required")
	}

	tenantDB, err := s.Stores.Resolve(v.TenantID)
	if err != nil {
		return err
	}
	defer s.Stores.Release(tenantDB)

	comp, err := retrieveCompetition(ctx, tenantDB, competitionID)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("scores")
	if err != nil {
		return apperr.BadRequest("scores file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.Internal("open scores upload", err)
	}
	defer f.Close()

	uploads, err := parseScoreCSV(f)
	if err != nil {
		return err
	}

	rows, err := replaceScores(ctx, s.Stores, tenantDB, v.TenantID, comp, uploads, s.Catalog.DispenseID)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"rows": rows})
}

// Ranking returns one page of the competition's current ranking and
// records the player's visit in the Global Catalog.
func (s *CompetitionService) Ranking(c *fiber.Ctx) error {
	ctx := c.UserContext()
	v := middleware.GetViewer(c)

	competitionID := c.Params("competition_id")
	if competitionID == "" {
		return apperr.BadRequest("competition_id is required")
	}

	tenantDB, err := s.Stores.Resolve(v.TenantID)
	if err != nil {
		return err
	}
	defer s.Stores.Release(tenantDB)

	if _, err := retrieveCompetition(ctx, tenantDB, competitionID); err != nil {
		return err
	}
	player, err := ensureNotDisqualified(ctx, tenantDB, v.Subject)
	if err != nil {
		return err
	}

	visit := models.VisitEvent{
		PlayerID:      player.ID,
		TenantID:      v.TenantID,
		CompetitionID: competitionID,
	}
	tctx, cancel := storage.WithStatementTimeout(ctx)
	err = s.Catalog.DB.WithContext(tctx).Create(&visit).Error
	cancel()
	if err != nil {
		return apperr.Internal("insert visit event", err)
	}

	var rankAfter int64
	if ra := c.Query("rank_after"); ra != "" {
		if rankAfter, err = strconv.ParseInt(ra, 10, 64); err != nil {
			return apperr.BadRequest("rank_after must be an integer")
		}
	}

	lock, err := s.Stores.Lock(ctx, v.TenantID)
	if err != nil {
		return err
	}
	defer lock.Close()

	tctx, cancel = storage.WithStatementTimeout(ctx)
	var entries []models.ScoreEntry
	err = tenantDB.WithContext(tctx).
		Where("tenant_id = ? AND competition_id = ?", v.TenantID, competitionID).
		Order("row_num DESC").
		Find(&entries).Error
	cancel()
	if err != nil {
		return apperr.Internal("select score entries", err)
	}

	displayNames, err := s.displayNames(ctx, tenantDB, v.TenantID, entries)
	if err != nil {
		return err
	}

	ranks := pageRanks(computeRanks(entries, displayNames), rankAfter)
	return ok(c, fiber.Map{"ranks": ranks})
}

func (s *CompetitionService) displayNames(ctx context.Context, tenantDB *gorm.DB, tenantID uint64, entries []models.ScoreEntry) (map[string]string, error) {
	ids := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.PlayerID]; ok {
			continue
		}
		seen[e.PlayerID] = struct{}{}
		ids = append(ids, e.PlayerID)
	}
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	tctx, cancel := storage.WithStatementTimeout(ctx)
	defer cancel()
	var players []models.Player
	if err := tenantDB.WithContext(tctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&players).Error; err != nil {
		return nil, apperr.Internal("select players for ranking", err)
	}
	for _, p := range players {
		names[p.ID] = p.DisplayName
	}
	return names, nil
}
