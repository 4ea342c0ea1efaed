package services

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"arena-platform/apperr"
	"arena-platform/models"
	"arena-platform/storage"
)

const testTenantID = 7

func newPartition(t *testing.T) (*storage.TenantStores, *gorm.DB) {
	t.Helper()
	stores := &storage.TenantStores{
		Dir:        t.TempDir(),
		SchemaFile: filepath.Join("..", "sql", "tenant_schema.sql"),
	}
	require.NoError(t, stores.Create(testTenantID))

	db, err := stores.Resolve(testTenantID)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Release(db) })
	return stores, db
}

func seedPlayers(t *testing.T, db *gorm.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		p := models.Player{ID: id, TenantID: testTenantID, DisplayName: "player " + id}
		require.NoError(t, db.Create(&p).Error)
	}
}

func seedCompetition(t *testing.T, db *gorm.DB, id string, finishedAt *time.Time) *models.Competition {
	t.Helper()
	comp := models.Competition{ID: id, TenantID: testTenantID, Title: "cup " + id, FinishedAt: finishedAt}
	require.NoError(t, db.Create(&comp).Error)
	return &comp
}

// countingDispenser hands out sequential ids, optionally failing from the
// nth call on.
func countingDispenser(failAfter int) dispenseFunc {
	n := 0
	return func(context.Context) (string, error) {
		n++
		if failAfter > 0 && n > failAfter {
			return "", apperr.Internal("id dispenser unavailable", errors.New("gone"))
		}
		return strconv.Itoa(n), nil
	}
}

func scoreRows(t *testing.T, db *gorm.DB, competitionID string) []models.ScoreEntry {
	t.Helper()
	var entries []models.ScoreEntry
	require.NoError(t, db.
		Where("competition_id = ?", competitionID).
		Order("row_num ASC").
		Find(&entries).Error)
	return entries
}

func TestReplaceScoresReplacesWholeSet(t *testing.T) {
	stores, db := newPartition(t)
	ctx := context.Background()
	seedPlayers(t, db, "p1", "p2")
	comp := seedCompetition(t, db, "c1", nil)

	first := []scoreUpload{
		{PlayerID: "p1", Score: 10},
		{PlayerID: "p2", Score: 20},
		{PlayerID: "p1", Score: 30},
	}
	rows, err := replaceScores(ctx, stores, db, testTenantID, comp, first, countingDispenser(0))
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	entries := scoreRows(t, db, "c1")
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.RowNum)
	}

	second := []scoreUpload{
		{PlayerID: "p2", Score: 99},
	}
	rows, err = replaceScores(ctx, stores, db, testTenantID, comp, second, countingDispenser(0))
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	// nothing of the first batch survives
	entries = scoreRows(t, db, "c1")
	require.Len(t, entries, 1)
	assert.Equal(t, "p2", entries[0].PlayerID)
	assert.Equal(t, int64(99), entries[0].Score)
	assert.Equal(t, uint64(1), entries[0].RowNum)
}

func TestReplaceScoresFinishedCompetitionRejected(t *testing.T) {
	stores, db := newPartition(t)
	ctx := context.Background()
	seedPlayers(t, db, "p1")

	open := seedCompetition(t, db, "c1", nil)
	existing := []scoreUpload{{PlayerID: "p1", Score: 10}}
	_, err := replaceScores(ctx, stores, db, testTenantID, open, existing, countingDispenser(0))
	require.NoError(t, err)

	finished := time.Now()
	open.FinishedAt = &finished
	require.NoError(t, db.Model(&models.Competition{}).
		Where("id = ?", "c1").
		Update("finished_at", finished).Error)

	_, err = replaceScores(ctx, stores, db, testTenantID, open, []scoreUpload{{PlayerID: "p1", Score: 50}}, countingDispenser(0))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, http.StatusBadRequest))

	// the existing set is untouched
	entries := scoreRows(t, db, "c1")
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].Score)
}

func TestReplaceScoresUnknownPlayerRejected(t *testing.T) {
	stores, db := newPartition(t)
	ctx := context.Background()
	seedPlayers(t, db, "p1")
	comp := seedCompetition(t, db, "c1", nil)

	uploads := []scoreUpload{
		{PlayerID: "p1", Score: 10},
		{PlayerID: "ghost", Score: 20},
	}
	_, err := replaceScores(ctx, stores, db, testTenantID, comp, uploads, countingDispenser(0))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, http.StatusBadRequest))
	assert.Contains(t, err.Error(), "ghost")

	assert.Empty(t, scoreRows(t, db, "c1"))
}

func TestReplaceScoresDispenseFailureLeavesSetIntact(t *testing.T) {
	stores, db := newPartition(t)
	ctx := context.Background()
	seedPlayers(t, db, "p1", "p2")
	comp := seedCompetition(t, db, "c1", nil)

	first := []scoreUpload{
		{PlayerID: "p1", Score: 10},
		{PlayerID: "p2", Score: 20},
	}
	_, err := replaceScores(ctx, stores, db, testTenantID, comp, first, countingDispenser(0))
	require.NoError(t, err)

	// the dispenser dies mid-batch; the previous set must survive whole
	second := []scoreUpload{
		{PlayerID: "p2", Score: 1},
		{PlayerID: "p1", Score: 2},
		{PlayerID: "p2", Score: 3},
	}
	_, err = replaceScores(ctx, stores, db, testTenantID, comp, second, countingDispenser(1))
	require.Error(t, err)

	entries := scoreRows(t, db, "c1")
	require.Len(t, entries, 2)
	assert.Equal(t, int64(10), entries[0].Score)
	assert.Equal(t, int64(20), entries[1].Score)
}
