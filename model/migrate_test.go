package model_test

import (
	"testing"

	"github.com/kasuganosora/battlesim/model"
	"github.com/kasuganosora/battlesim/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	r := &model.OutcomeReport{
		ID:           "3f1c4f0e-0000-4000-8000-000000000001",
		Scenario:     "duel",
		ScenarioHash: "abc",
		Terminals:    12,
		Coverage:     0.75,
		Summary:      datatypes.JSON(`{"outcomes":{"team-1":{"weight":0.75,"count":12}}}`),
	}
	require.NoError(t, db.Create(r).Error)
	assert.False(t, r.CreatedAt.IsZero())

	var found model.OutcomeReport
	require.NoError(t, db.First(&found, "id = ?", r.ID).Error)
	assert.Equal(t, "duel", found.Scenario)
	assert.Equal(t, int64(12), found.Terminals)
	assert.JSONEq(t, string(r.Summary), string(found.Summary))
}
