package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateTenantName(t *testing.T) {
	valid := []string{
		"abc-1",
		"ab",
		"a0",
		"tenant-with-dashes-42",
	}
	for _, name := range valid {
		assert.NoError(t, ValidateTenantName(name), "expected %q to be valid", name)
	}

	invalid := []string{
		"",
		"a",    // too short, at least two characters
		"Abc",  // uppercase
		"1abc", // must start with a letter
		"abc-", // must end alphanumeric
		"a-------------------------------------------------------------z", // 64 chars, exceeds the 63-char DNS label bound
	}
	for _, name := range invalid {
		assert.Error(t, ValidateTenantName(name), "expected %q to be invalid", name)
	}
}

func TestCompetitionIsFinished(t *testing.T) {
	now := time.Now()
	epoch := time.Unix(0, 0)
	var zero time.Time

	open := Competition{ID: "1"}
	assert.False(t, open.IsFinished())

	finished := Competition{ID: "2", FinishedAt: &now}
	assert.True(t, finished.IsFinished())

	// epoch-zero stamps are serialization artifacts, not finish times
	sentinel := Competition{ID: "3", FinishedAt: &epoch}
	assert.False(t, sentinel.IsFinished())

	zeroed := Competition{ID: "4", FinishedAt: &zero}
	assert.False(t, zeroed.IsFinished())
}
