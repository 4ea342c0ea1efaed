package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-platform/models"
)

func entry(player string, score int64, rowNum uint64) models.ScoreEntry {
	return models.ScoreEntry{PlayerID: player, Score: score, RowNum: rowNum}
}

func TestComputeRanksDedupsByHighestRowNum(t *testing.T) {
	// ordered by row_num descending, as the ranking read delivers them
	entries := []models.ScoreEntry{
		entry("p1", 5, 4),
		entry("p2", 30, 3),
		entry("p1", 100, 2), // stale, p1 re-scored in row 4
		entry("p2", 1, 1),   // stale
	}
	names := map[string]string{"p1": "Alice", "p2": "Bob"}

	ranks := computeRanks(entries, names)
	require.Len(t, ranks, 2)

	assert.Equal(t, int64(1), ranks[0].Rank)
	assert.Equal(t, "p2", ranks[0].PlayerID)
	assert.Equal(t, int64(30), ranks[0].Score)
	assert.Equal(t, "Bob", ranks[0].PlayerDisplayName)

	assert.Equal(t, int64(2), ranks[1].Rank)
	assert.Equal(t, "p1", ranks[1].PlayerID)
	assert.Equal(t, int64(5), ranks[1].Score)
}

func TestComputeRanksTieBreak(t *testing.T) {
	entries := []models.ScoreEntry{
		entry("p2", 10, 2),
		entry("p1", 10, 1),
	}

	ranks := computeRanks(entries, nil)
	require.Len(t, ranks, 2)

	// equal scores: the earlier upload row wins, and ranks stay dense
	assert.Equal(t, "p1", ranks[0].PlayerID)
	assert.Equal(t, int64(1), ranks[0].Rank)
	assert.Equal(t, "p2", ranks[1].PlayerID)
	assert.Equal(t, int64(2), ranks[1].Rank)
}

func TestComputeRanksEmpty(t *testing.T) {
	assert.Empty(t, computeRanks(nil, nil))
}

func TestPageRanks(t *testing.T) {
	ranks := make([]models.CompetitionRank, 250)
	for i := range ranks {
		ranks[i] = models.CompetitionRank{Rank: int64(i + 1)}
	}

	page := pageRanks(ranks, 0)
	require.Len(t, page, rankingPageSize)
	assert.Equal(t, int64(1), page[0].Rank)
	assert.Equal(t, int64(100), page[99].Rank)

	page = pageRanks(ranks, 200)
	require.Len(t, page, 50)
	assert.Equal(t, int64(201), page[0].Rank)

	assert.Empty(t, pageRanks(ranks, 250))
	assert.Len(t, pageRanks(ranks, -5), rankingPageSize)
}
