package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"arena-platform/apperr"
	"arena-platform/models"
	"arena-platform/storage"
)

func retrievePlayer(ctx context.Context, tenantDB *gorm.DB, id string) (*models.Player, error) {
	tctx, cancel := storage.WithStatementTimeout(ctx)
	defer cancel()

	var p models.Player
	if err := tenantDB.WithContext(tctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("player not found: " + id)
		}
		return nil, apperr.Internal("select player", err)
	}
	return &p, nil
}

func retrieveCompetition(ctx context.Context, tenantDB *gorm.DB, id string) (*models.Competition, error) {
	tctx, cancel := storage.WithStatementTimeout(ctx)
	defer cancel()

	var comp models.Competition
	if err := tenantDB.WithContext(tctx).First(&comp, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("competition not found: " + id)
		}
		return nil, apperr.Internal("select competition", err)
	}
	return &comp, nil
}

// ensureNotDisqualified loads the viewing player and rejects disqualified
// ones. Player-facing reads all pass through this gate.
func ensureNotDisqualified(ctx context.Context, tenantDB *gorm.DB, playerID string) (*models.Player, error) {
	p, err := retrievePlayer(ctx, tenantDB, playerID)
	if err != nil {
		return nil, err
	}
	if p.IsDisqualified {
		return nil, apperr.Forbidden("player is disqualified")
	}
	return p, nil
}
