// Package sim evaluates battle scenarios: it builds the initial state,
// enumerates every outcome on the shared worker pool and turns the weighted
// terminals into a Summary that is cached, published and persisted.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/battlesim/cache"
	"github.com/kasuganosora/battlesim/game/battle"
	"github.com/kasuganosora/battlesim/game/script"
	"github.com/kasuganosora/battlesim/model"
	"github.com/kasuganosora/battlesim/observer"
	"github.com/kasuganosora/battlesim/plugin/hook"
	"github.com/kasuganosora/battlesim/scheduler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// EventsChannel is the pub/sub channel completed evaluations are announced on.
const EventsChannel = "battlesim:evaluations"

const cachePrefix = "battlesim:summary:"

// Options are the service defaults. MaxDepth and MaxTurns are also upper
// bounds: a scenario may lower them but asking for more is invalid.
type Options struct {
	MaxDepth int
	MaxTurns int
	// WaitTimeout bounds each evaluation from the moment it starts. On expiry
	// the execution is cancelled; work already running finishes its current
	// step before the remaining paths are dropped.
	WaitTimeout time.Duration
	Parallel    int
	ResultTTL   time.Duration
	ProgressLog time.Duration

	// Damage is the policy for scenarios without a damage_formula.
	Damage battle.DamagePolicy
}

// ReportSink receives finished reports. *report.Service implements it.
type ReportSink interface {
	Save(r *model.OutcomeReport)
}

// Deps are the collaborators of a Service. Only Pool is required.
type Deps struct {
	Pool    scheduler.Submitter
	Cache   cache.Cache
	PubSub  cache.PubSub
	Reports ReportSink
	Sandbox *script.Sandbox
	Hooks   *hook.Center
	Metrics *scheduler.Metrics
	Logger  *zap.Logger
}

// Service runs evaluations. It is safe for concurrent use.
type Service struct {
	deps     Deps
	opts     Options
	logger   *zap.Logger
	policies sync.Map // formula -> battle.DamagePolicy
}

// NewService creates a Service.
func NewService(deps Deps, opts Options) *Service {
	if deps.Pool == nil {
		deps.Pool = scheduler.Inline{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 16
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 30
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 4
	}
	if opts.Damage == nil {
		opts.Damage = battle.NoDamage{}
	}
	return &Service{deps: deps, opts: opts, logger: deps.Logger}
}

// Summary is the result of one evaluation. MeanHP is each hero's expected HP
// over the covered terminals.
type Summary struct {
	ID        string                      `json:"id"`
	Scenario  string                      `json:"scenario"`
	Hash      string                      `json:"hash"`
	Outcomes  map[string]observer.Outcome `json:"outcomes"`
	Labels    map[string]int64            `json:"labels,omitempty"`
	Depths    map[int]float64             `json:"depths,omitempty"`
	MeanHP    map[string]float64          `json:"mean_hp"`
	Coverage  float64                     `json:"coverage"`
	Abandoned float64                     `json:"abandoned"`
	Failed    float64                     `json:"failed"`
	Terminals int64                       `json:"terminals"`
	Branches  int64                       `json:"branches"`
	MaxDepth  int                         `json:"max_depth"`
	MaxTurns  int                         `json:"max_turns"`
	Duration  time.Duration               `json:"duration"`
	Errors    []string                    `json:"errors,omitempty"`
	Cached    bool                        `json:"cached"`
}

// WinChance returns the weight of "team-N" outcomes for team.
func (s *Summary) WinChance(team int) float64 {
	return s.Outcomes[fmt.Sprintf("team-%d", team)].Weight
}

type traceKey struct{}

// WithTraceID tags ctx so reports of evaluations run under it carry id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

func (s *Service) withDefaults(sc Scenario) Scenario {
	if sc.MaxDepth == 0 {
		sc.MaxDepth = s.opts.MaxDepth
	}
	if sc.MaxTurns == 0 {
		sc.MaxTurns = s.opts.MaxTurns
	}
	if sc.Name == "" {
		sc.Name = "scenario"
	}
	return sc
}

func (s *Service) checkLimits(sc Scenario) error {
	if sc.MaxDepth > s.opts.MaxDepth {
		return invalid("max_depth %d exceeds limit %d", sc.MaxDepth, s.opts.MaxDepth)
	}
	if sc.MaxTurns > s.opts.MaxTurns {
		return invalid("max_turns %d exceeds limit %d", sc.MaxTurns, s.opts.MaxTurns)
	}
	return nil
}

// policy resolves the damage policy named by formula.
func (s *Service) policy(formula string) (battle.DamagePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(formula)) {
	case "":
		return s.opts.Damage, nil
	case "none":
		return battle.NoDamage{}, nil
	case "raw":
		return battle.RawDamage{}, nil
	}
	if p, ok := s.policies.Load(formula); ok {
		return p.(battle.DamagePolicy), nil
	}
	p, err := battle.NewFormulaPolicy(formula, s.deps.Sandbox, s.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	actual, _ := s.policies.LoadOrStore(formula, p)
	return actual.(battle.DamagePolicy), nil
}

// Evaluate enumerates every outcome of sc. Identical scenarios are served
// from the cache while their summary lives there.
func (s *Service) Evaluate(ctx context.Context, sc Scenario) (*Summary, error) {
	sc = s.withDefaults(sc)
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkLimits(sc); err != nil {
		return nil, err
	}
	hash, err := sc.Hash()
	if err != nil {
		return nil, fmt.Errorf("sim: hash scenario: %w", err)
	}
	if sum, ok := s.cached(ctx, hash); ok {
		return sum, nil
	}

	damage, err := s.policy(sc.DamageFormula)
	if err != nil {
		return nil, err
	}
	rules := &battle.Rules{Damage: damage, Hooks: s.deps.Hooks}
	ss, err := sc.Build(rules)
	if err != nil {
		return nil, err
	}

	col := observer.NewCollector[battle.Snapshot](battle.Outcome, hpMeasures(sc))
	sched := scheduler.New[battle.Snapshot](scheduler.Config[battle.Snapshot]{
		Pool:     s.deps.Pool,
		Observer: col,
		MaxDepth: sc.MaxDepth,
		Logger:   s.logger,
		Metrics:  s.deps.Metrics,
	})

	start := time.Now()
	exec := sched.Start(battle.BattleNode(sc.MaxTurns), ss)
	stopProgress := s.progress(exec, sc.Name)
	defer stopProgress()

	waitCtx := ctx
	if s.opts.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.opts.WaitTimeout)
		defer cancel()
	}
	if err := exec.WaitContext(waitCtx); err != nil {
		exec.Cancel()
		exec.Wait()
		s.logger.Warn("evaluation abandoned",
			zap.String("scenario", sc.Name),
			zap.Int64("terminals", exec.Stats().Terminals),
			zap.Error(err))
		return nil, fmt.Errorf("sim: evaluate %q: %w", sc.Name, err)
	}

	sum := s.summarize(sc, hash, col.Result(), exec.Stats(), time.Since(start))
	s.logger.Info("evaluation finished",
		zap.String("id", sum.ID),
		zap.String("scenario", sum.Scenario),
		zap.Int64("terminals", sum.Terminals),
		zap.Float64("coverage", sum.Coverage),
		zap.Duration("duration", sum.Duration))
	s.store(ctx, sum)
	return sum, nil
}

func hpMeasures(sc Scenario) map[string]func(battle.Snapshot) float64 {
	m := make(map[string]func(battle.Snapshot) float64, len(sc.Heroes))
	for i, h := range sc.Heroes {
		id := battle.HeroID(i)
		m[h.Name] = func(ss battle.Snapshot) float64 { return ss.Hero(id).Stats.HP }
	}
	return m
}

func (s *Service) summarize(sc Scenario, hash string, res observer.Result, st scheduler.Stats, d time.Duration) *Summary {
	return &Summary{
		ID:        uuid.NewString(),
		Scenario:  sc.Name,
		Hash:      hash,
		Outcomes:  res.Outcomes,
		Labels:    res.Labels,
		Depths:    res.Depths,
		MeanHP:    res.Measures,
		Coverage:  st.TerminalWeight,
		Abandoned: st.AbandonedWeight,
		Failed:    st.FailedWeight,
		Terminals: st.Terminals,
		Branches:  st.Branches,
		MaxDepth:  sc.MaxDepth,
		MaxTurns:  sc.MaxTurns,
		Duration:  d,
		Errors:    res.Errors,
	}
}

// progress logs running counters until the execution finishes or the
// returned stop function is called.
func (s *Service) progress(exec *scheduler.Execution, name string) (stop func()) {
	if s.opts.ProgressLog <= 0 {
		return func() {}
	}
	quit := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.opts.ProgressLog)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				st := exec.Stats()
				s.logger.Info("evaluation progress",
					zap.String("scenario", name),
					zap.Int64("terminals", st.Terminals),
					zap.Int64("branches", st.Branches),
					zap.Float64("covered", st.TerminalWeight))
			case <-exec.Done():
				return
			case <-quit:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(quit) }) }
}

func (s *Service) cached(ctx context.Context, hash string) (*Summary, bool) {
	if s.deps.Cache == nil {
		return nil, false
	}
	raw, err := s.deps.Cache.Get(ctx, cachePrefix+hash)
	if err != nil {
		if !cache.IsNotFound(err) {
			s.logger.Warn("summary cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var sum Summary
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		s.logger.Warn("summary cache entry corrupt", zap.String("hash", hash), zap.Error(err))
		return nil, false
	}
	sum.Cached = true
	return &sum, true
}

// event is the payload published on EventsChannel.
type event struct {
	ID        string  `json:"id"`
	Scenario  string  `json:"scenario"`
	Hash      string  `json:"hash"`
	Terminals int64   `json:"terminals"`
	Coverage  float64 `json:"coverage"`
}

func (s *Service) store(ctx context.Context, sum *Summary) {
	body, err := json.Marshal(sum)
	if err != nil {
		s.logger.Error("summary encode failed", zap.Error(err))
		return
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(ctx, cachePrefix+sum.Hash, string(body), s.opts.ResultTTL); err != nil {
			s.logger.Warn("summary cache write failed", zap.Error(err))
		}
	}
	if s.deps.PubSub != nil {
		s.publish(ctx, sum)
	}
	if s.deps.Reports != nil {
		s.deps.Reports.Save(&model.OutcomeReport{
			ID:           sum.ID,
			Scenario:     sum.Scenario,
			ScenarioHash: sum.Hash,
			TraceID:      traceID(ctx),
			Terminals:    sum.Terminals,
			Coverage:     sum.Coverage,
			Abandoned:    sum.Abandoned,
			MaxDepth:     sum.MaxDepth,
			DurationMs:   sum.Duration.Milliseconds(),
			Summary:      datatypes.JSON(body),
		})
	}
}

func (s *Service) publish(ctx context.Context, sum *Summary) {
	ev, err := json.Marshal(event{ID: sum.ID, Scenario: sum.Scenario, Hash: sum.Hash, Terminals: sum.Terminals, Coverage: sum.Coverage})
	if err != nil {
		s.logger.Error("evaluation event encode failed", zap.Error(err))
		return
	}
	if err := s.deps.PubSub.Publish(ctx, EventsChannel, string(ev)); err != nil {
		s.logger.Warn("evaluation event publish failed", zap.Error(err))
	}
}

// EvaluateAll evaluates scenarios concurrently, at most Options.Parallel at
// a time, on the shared pool. Results are in input order. The first error
// cancels the evaluations still waiting.
func (s *Service) EvaluateAll(ctx context.Context, scenarios []Scenario) ([]*Summary, error) {
	out := make([]*Summary, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallel)
	for i, sc := range scenarios {
		g.Go(func() error {
			sum, err := s.Evaluate(gctx, sc)
			if err != nil {
				return fmt.Errorf("scenario %d: %w", i, err)
			}
			out[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
