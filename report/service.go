package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kasuganosora/battlesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned by Get for an unknown report ID.
var ErrNotFound = errors.New("report: not found")

// Options tunes the batch writer. Zero values pick defaults.
type Options struct {
	BatchSize  int
	FlushEvery time.Duration
	QueueSize  int
}

// Service persists outcome reports asynchronously in batches.
type Service struct {
	db     *gorm.DB
	ch     chan *model.OutcomeReport
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
	opts   Options
}

// New creates a report Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 2 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	svc := &Service{
		db:     db,
		ch:     make(chan *model.OutcomeReport, opts.QueueSize),
		stopCh: make(chan struct{}),
		logger: logger,
		opts:   opts,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Save enqueues r for an async DB write. It never blocks; a full queue drops
// the report with a warning.
func (svc *Service) Save(r *model.OutcomeReport) {
	select {
	case <-svc.stopCh:
		svc.logger.Warn("report service stopped, dropping report", zap.String("id", r.ID))
		return
	default:
	}
	select {
	case svc.ch <- r:
	default:
		svc.logger.Warn("report queue full, dropping report",
			zap.String("id", r.ID), zap.String("scenario", r.Scenario))
	}
}

// Get loads a persisted report. Reports still queued are not visible.
func (svc *Service) Get(ctx context.Context, id string) (*model.OutcomeReport, error) {
	var r model.OutcomeReport
	err := svc.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns the newest reports, optionally only those of scenario.
func (svc *Service) List(ctx context.Context, scenario string, limit int) ([]model.OutcomeReport, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := svc.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if scenario != "" {
		q = q.Where("scenario = ?", scenario)
	}
	var out []model.OutcomeReport
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Stop flushes remaining reports and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.once.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.opts.FlushEvery)
	defer ticker.Stop()

	batch := make([]*model.OutcomeReport, 0, svc.opts.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("report batch write failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case r := <-svc.ch:
			batch = append(batch, r)
			if len(batch) >= svc.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case r := <-svc.ch:
					batch = append(batch, r)
				default:
					flush()
					return
				}
			}
		}
	}
}
