package report

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kasuganosora/battlesim/model"
	"github.com/kasuganosora/battlesim/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func sample(id, scenario string) *model.OutcomeReport {
	return &model.OutcomeReport{
		ID:           id,
		Scenario:     scenario,
		ScenarioHash: "hash-" + scenario,
		Terminals:    4,
		Coverage:     1,
		Summary:      datatypes.JSON(`{"terminals":4}`),
	}
}

func TestNew_StartsWorker(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.Logger(t), Options{})
	require.NotNil(t, svc)
	svc.Stop(context.Background())
	svc.Stop(context.Background())
}

func TestSave_FlushedOnStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.Logger(t), Options{FlushEvery: time.Hour})

	svc.Save(sample("r-1", "duel"))
	svc.Stop(context.Background())

	r, err := svc.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "duel", r.Scenario)
	assert.Equal(t, int64(4), r.Terminals)
	assert.JSONEq(t, `{"terminals":4}`, string(r.Summary))
}

func TestSave_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.Logger(t), Options{BatchSize: 5, FlushEvery: time.Hour})
	defer svc.Stop(context.Background())

	for i := 0; i < 5; i++ {
		svc.Save(sample(fmt.Sprintf("b-%d", i), "batch"))
	}

	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&model.OutcomeReport{}).Count(&count)
		return count == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSave_TickerFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.Logger(t), Options{FlushEvery: 10 * time.Millisecond})
	defer svc.Stop(context.Background())

	svc.Save(sample("t-1", "tick"))
	assert.Eventually(t, func() bool {
		_, err := svc.Get(context.Background(), "t-1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSave_AfterStopDropped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.Logger(t), Options{})
	svc.Stop(context.Background())

	svc.Save(sample("late", "x"))
	_, err := svc.Get(context.Background(), "late")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.Logger(t), Options{})
	defer svc.Stop(context.Background())

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.Logger(t), Options{FlushEvery: time.Hour})

	svc.Save(sample("a", "duel"))
	svc.Save(sample("b", "raid"))
	svc.Save(sample("c", "duel"))
	svc.Stop(context.Background())

	all, err := svc.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	duels, err := svc.List(context.Background(), "duel", 10)
	require.NoError(t, err)
	require.Len(t, duels, 2)
	for _, r := range duels {
		assert.Equal(t, "duel", r.Scenario)
	}
}
