package models

import (
	"time"
)

// Competition is scoped to one tenant partition. It is created open and
// transitions exactly once to finished.
type Competition struct {
	ID         string     `json:"id" gorm:"primaryKey;size:64"`
	TenantID   uint64     `json:"tenant_id" gorm:"not null;index"`
	Title      string     `json:"title"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// IsFinished treats a missing finish time as open. An epoch-zero stamp is
// a serialization artifact, not a real finish time.
func (c *Competition) IsFinished() bool {
	return c.FinishedAt != nil && !c.FinishedAt.IsZero() && c.FinishedAt.Unix() > 0
}

// Player is scoped to one tenant partition. is_disqualified only ever
// moves false to true.
type Player struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64"`
	TenantID       uint64    `json:"tenant_id" gorm:"not null;index"`
	DisplayName    string    `json:"display_name"`
	IsDisqualified bool      `json:"is_disqualified" gorm:"default:false"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ScoreEntry is one row of a score upload batch, append-only per upload.
// A re-upload replaces all prior entries for the competition; within the
// surviving set the entry with the highest row_num is a player's current
// score.
type ScoreEntry struct {
	ID            string    `json:"id" gorm:"primaryKey;size:64"`
	TenantID      uint64    `json:"tenant_id" gorm:"not null;index:idx_score_tenant_comp,priority:1"`
	PlayerID      string    `json:"player_id" gorm:"size:64;index"`
	CompetitionID string    `json:"competition_id" gorm:"size:64;index:idx_score_tenant_comp,priority:2"`
	Score         int64     `json:"score"`
	RowNum        uint64    `json:"row_num" gorm:"column:row_num"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

type PlayerDetail struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	IsDisqualified bool   `json:"is_disqualified"`
}

type CompetitionDetail struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	IsFinished bool   `json:"is_finished"`
}

// PlayerScoreDetail is a player's current score in one competition.
type PlayerScoreDetail struct {
	CompetitionTitle string `json:"competition_title"`
	Score            int64  `json:"score"`
}

// CompetitionRank is one ranking row. Ranks are dense: equal scores do
// not share a rank.
type CompetitionRank struct {
	Rank              int64  `json:"rank"`
	Score             int64  `json:"score"`
	PlayerID          string `json:"player_id"`
	PlayerDisplayName string `json:"player_display_name"`

	// carried through ranking computation, not serialized
	RowNum uint64 `json:"-"`
}

// BillingReport is the settled figure for one competition. All counts are
// zero while the competition is open.
type BillingReport struct {
	CompetitionID     string `json:"competition_id"`
	CompetitionTitle  string `json:"competition_title"`
	PlayerCount       int64  `json:"player_count"`
	VisitorCount      int64  `json:"visitor_count"`
	BillingPlayerYen  int64  `json:"billing_player_yen"`
	BillingVisitorYen int64  `json:"billing_visitor_yen"`
	BillingYen        int64  `json:"billing_yen"`
}
