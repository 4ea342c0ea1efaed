package services

import (
	"sort"

	"arena-platform/models"
)

const rankingPageSize = 100

// computeRanks reduces the append-only score log of one competition to its
// current ranking. entries must be ordered by row_num descending, so the
// first entry seen per player is that player's current score. The
// deduplicated set is sorted score descending, ties broken by row_num
// ascending (the score recorded earlier in upload order wins). Ranks are
// dense: equal scores do not share a rank.
func computeRanks(entries []models.ScoreEntry, displayNames map[string]string) []models.CompetitionRank {
	seen := make(map[string]struct{}, len(entries))
	ranks := make([]models.CompetitionRank, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.PlayerID]; ok {
			continue
		}
		seen[e.PlayerID] = struct{}{}
		ranks = append(ranks, models.CompetitionRank{
			Score:             e.Score,
			PlayerID:          e.PlayerID,
			PlayerDisplayName: displayNames[e.PlayerID],
			RowNum:            e.RowNum,
		})
	}

	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Score != ranks[j].Score {
			return ranks[i].Score > ranks[j].Score
		}
		return ranks[i].RowNum < ranks[j].RowNum
	})
	for i := range ranks {
		ranks[i].Rank = int64(i + 1)
	}
	return ranks
}

// pageRanks slices the ranking starting at the 0-based rankAfter index,
// returning at most one page.
func pageRanks(ranks []models.CompetitionRank, rankAfter int64) []models.CompetitionRank {
	if rankAfter < 0 {
		rankAfter = 0
	}
	paged := make([]models.CompetitionRank, 0, rankingPageSize)
	for i := rankAfter; i < int64(len(ranks)) && len(paged) < rankingPageSize; i++ {
		paged = append(paged, ranks[i])
	}
	return paged
}
