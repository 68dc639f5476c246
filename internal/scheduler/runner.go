// Package scheduler delivers scheduled group messages when they fall due.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/wagroups/wagroups/internal/config"
	"github.com/wagroups/wagroups/internal/store"
	"github.com/wagroups/wagroups/internal/whatsapp"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Store is the part of the database the runner needs.
type Store interface {
	ClaimDueMessages(ctx context.Context, at time.Time, limit int) ([]store.ScheduledMessage, error)
	MarkScheduledSent(ctx context.Context, id string) error
	MarkScheduledFailed(ctx context.Context, id, reason string) error
	FailStaleClaims(ctx context.Context, before time.Time) (int64, error)
}

// settleTimeout bounds the final status write, which runs even after the
// tick's context is cancelled.
const settleTimeout = 10 * time.Second

// Sender delivers text to a group or to every group of a category.
type Sender interface {
	SendToGroup(ctx context.Context, orgID, groupID, text string) error
	SendToCategory(ctx context.Context, orgID, categoryID, text string) ([]whatsapp.Delivery, error)
}

// Runner claims due messages on a cron schedule and sends them on a worker pool.
type Runner struct {
	db     Store
	sender Sender
	spec   string
	batch  int
	lease  time.Duration
	pool   *ants.Pool
	sched  *cron.Cron
	log    *zap.Logger
	now    func() time.Time
}

// NewRunner validates the schedule and sizes the pool.
func NewRunner(db Store, sender Sender, cfg config.SchedulerConfig, log *zap.Logger) (*Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("scheduler")
	if cfg.Spec == "" {
		cfg.Spec = "@every 30s"
	}
	if _, err := cronParser.Parse(cfg.Spec); err != nil {
		return nil, errors.Wrapf(err, "scheduler spec %q", cfg.Spec)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 10 * time.Minute
	}
	pool, err := ants.NewPool(cfg.Workers, ants.WithPanicHandler(func(p interface{}) {
		log.Error("delivery panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, errors.Wrap(err, "scheduler pool")
	}
	return &Runner{
		db:     db,
		sender: sender,
		spec:   cfg.Spec,
		batch:  cfg.BatchSize,
		lease:  cfg.ClaimLease,
		pool:   pool,
		log:    log,
		now:    time.Now,
	}, nil
}

// Run ticks until ctx is done, then waits for the running tick and releases the pool.
func (r *Runner) Run(ctx context.Context) error {
	r.sched = cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cronLogger{r.log.Sugar()}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{r.log.Sugar()})),
	)
	if _, err := r.sched.AddFunc(r.spec, func() { r.Tick(ctx) }); err != nil {
		return errors.Wrap(err, "schedule tick")
	}
	r.sched.Start()
	r.log.Info("started", zap.String("spec", r.spec), zap.Int("workers", r.pool.Cap()))

	<-ctx.Done()
	<-r.sched.Stop().Done()
	r.pool.Release()
	r.log.Info("stopped")
	return nil
}

// Tick claims one batch of due messages and delivers it. It returns once
// every claimed message is marked sent or failed.
func (r *Runner) Tick(ctx context.Context) int {
	if n, err := r.db.FailStaleClaims(ctx, r.now().Add(-r.lease)); err != nil {
		r.log.Error("fail stale claims", zap.Error(err))
	} else if n > 0 {
		r.log.Warn("failed interrupted deliveries", zap.Int64("count", n))
	}

	due, err := r.db.ClaimDueMessages(ctx, r.now(), r.batch)
	if err != nil {
		r.log.Error("claim due messages", zap.Error(err))
	}
	if len(due) == 0 {
		return 0
	}
	r.log.Info("delivering", zap.Int("count", len(due)))

	var wg sync.WaitGroup
	for _, m := range due {
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			r.deliver(ctx, m)
		})
		if err != nil {
			wg.Done()
			r.fail(ctx, m, "scheduler busy: "+err.Error())
		}
	}
	wg.Wait()
	return len(due)
}

func (r *Runner) deliver(ctx context.Context, m store.ScheduledMessage) {
	var sendErr error
	switch {
	case m.GroupID != nil:
		sendErr = r.sender.SendToGroup(ctx, m.OrganizationID, *m.GroupID, m.Text)
	case m.CategoryID != nil:
		sendErr = r.sendCategory(ctx, m)
	default:
		sendErr = errors.New("scheduled message has no target")
	}
	if sendErr != nil {
		r.fail(ctx, m, sendErr.Error())
		return
	}
	settle, cancel := settleContext(ctx)
	defer cancel()
	if err := r.db.MarkScheduledSent(settle, m.ID); err != nil {
		r.log.Error("mark sent", zap.String("id", m.ID), zap.Error(err))
		return
	}
	r.log.Info("sent", zap.String("id", m.ID), zap.String("organization_id", m.OrganizationID))
}

// sendCategory succeeds when at least one group of the category received the text.
func (r *Runner) sendCategory(ctx context.Context, m store.ScheduledMessage) error {
	deliveries, err := r.sender.SendToCategory(ctx, m.OrganizationID, *m.CategoryID, m.Text)
	if err != nil {
		return err
	}
	if len(deliveries) == 0 {
		return errors.New("category has no groups")
	}
	var failures []string
	for _, d := range deliveries {
		if d.Error != "" {
			failures = append(failures, d.Name+": "+d.Error)
		}
	}
	if len(failures) == len(deliveries) {
		return errors.New(strings.Join(failures, "; "))
	}
	if len(failures) > 0 {
		r.log.Warn("partial category delivery",
			zap.String("id", m.ID),
			zap.Int("failed", len(failures)),
			zap.Int("total", len(deliveries)),
			zap.Strings("errors", failures),
		)
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, m store.ScheduledMessage, reason string) {
	r.log.Warn("delivery failed", zap.String("id", m.ID), zap.Int("attempts", m.Attempts), zap.String("error", reason))
	settle, cancel := settleContext(ctx)
	defer cancel()
	if err := r.db.MarkScheduledFailed(settle, m.ID, reason); err != nil {
		r.log.Error("mark failed", zap.String("id", m.ID), zap.Error(err))
	}
}

// settleContext outlives ctx's cancellation so a claimed message always
// leaves "sending".
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// cronLogger routes cron's logging to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
