package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/battlesim/config"
	dbadapter "github.com/kasuganosora/battlesim/db"
	"github.com/kasuganosora/battlesim/game/battle"
	"github.com/kasuganosora/battlesim/sim"
	"github.com/kasuganosora/battlesim/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(t *testing.T, mutate func(cfg *config.Config)) *app {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.Workers = 2
	cfg.Engine.ProgressLog = 0
	cfg.Database.Mode = dbadapter.ModeMemory
	if mutate != nil {
		mutate(cfg)
	}
	a, err := newApp(cfg, testutil.Logger(t))
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

const duelYAML = `
name: duel
damage_formula: raw
heroes:
  - name: a
    team: 0
    stats: {max_hp: 100, atk: 60, spd: 100}
  - name: b
    team: 1
    stats: {max_hp: 100, atk: 10, spd: 110}
`

func TestEvalFiles(t *testing.T) {
	a := testApp(t, nil)
	path := filepath.Join(t.TempDir(), "duel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(duelYAML), 0o644))

	var out bytes.Buffer
	require.NoError(t, a.evalFiles(context.Background(), &out, []string{path}, false))

	var sum sim.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &sum))
	assert.Equal(t, "duel", sum.Scenario)
	assert.InDelta(t, 1.0, sum.WinChance(0), 1e-9)
}

func TestEvalFiles_Missing(t *testing.T) {
	a := testApp(t, nil)
	err := a.evalFiles(context.Background(), &bytes.Buffer{}, []string{filepath.Join(t.TempDir(), "none.yaml")}, true)
	assert.Error(t, err)
}

func TestNewApp_NoDatabase(t *testing.T) {
	a := testApp(t, func(cfg *config.Config) { cfg.Database.Mode = dbadapter.ModeNone })
	assert.Nil(t, a.reports)

	h, limiter := a.router()
	defer limiter.Stop()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNewApp_BadFormula(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Mode = dbadapter.ModeNone
	cfg.Battle.DamageFormula = "a.atk *"
	_, err := newApp(cfg, testutil.Logger(t))
	assert.Error(t, err)
}

func TestDamagePolicy(t *testing.T) {
	p, err := damagePolicy("", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, battle.NoDamage{}, p)

	p, err = damagePolicy(" RAW ", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, battle.RawDamage{}, p)

	p, err = damagePolicy("a.atk - b.def", nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &battle.FormulaPolicy{}, p)
}

func TestRouter_Health(t *testing.T) {
	a := testApp(t, nil)
	h, limiter := a.router()
	defer limiter.Stop()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
