package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/healthlog/internal/observability"
	"github.com/ent0n29/healthlog/internal/records"
	"github.com/ent0n29/healthlog/internal/reliability"
	"github.com/ent0n29/healthlog/internal/store"
)

const (
	OpBackfillIDs    = "backfill_ids"
	OpDeleteAccounts = "delete_accounts"
)

type Config struct {
	Concurrency int
	MaxAttempts int
	RetryBase   time.Duration
	RetryCap    time.Duration
}

// AccountFailure records why one account could not be processed.
type AccountFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
	err    error
}

// BatchError lists every account that failed in a batch. The other accounts
// in the batch were still processed.
type BatchError struct {
	Op       string
	Failures []AccountFailure
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.UserID)
	}
	return fmt.Sprintf("%s failed for %d account(s): %s", e.Op, len(e.Failures), strings.Join(ids, ", "))
}

func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.err)
	}
	return out
}

type Report struct {
	Op          string           `json:"op"`
	Processed   int              `json:"processed"`
	Updated     int              `json:"updated"`
	AssignedIDs int              `json:"assigned_ids,omitempty"`
	Failed      []AccountFailure `json:"failed_accounts,omitempty"`
}

type Service struct {
	store   store.Store
	cfg     Config
	metrics *observability.Metrics
	log     logrus.FieldLogger
	newID   func() string
}

func New(cfg Config, st store.Store, metrics *observability.Metrics, log logrus.FieldLogger) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 2 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:   st,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
		newID:   uuid.NewString,
	}
}

// BackfillIDs assigns an id to every record that lacks one, across all
// accounts. Accounts with nothing to assign are not written.
func (s *Service) BackfillIDs(ctx context.Context) (Report, error) {
	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return Report{Op: OpBackfillIDs}, fmt.Errorf("list accounts: %w", err)
	}

	var assigned, updated int
	var mu sync.Mutex
	report, err := s.fanOut(ctx, OpBackfillIDs, ids, func(ctx context.Context, userID string) error {
		n := 0
		err := s.store.UpdateRecords(ctx, userID, func(c *records.Collection) bool {
			n = s.assignMissingIDs(c)
			return n > 0
		})
		if err != nil || n == 0 {
			return err
		}
		mu.Lock()
		assigned += n
		updated++
		mu.Unlock()
		return nil
	})
	report.AssignedIDs = assigned
	report.Updated = updated
	return report, err
}

// DeleteAccounts removes the given accounts, or every account when userIDs is empty.
func (s *Service) DeleteAccounts(ctx context.Context, userIDs []string) (Report, error) {
	ids := userIDs
	if len(ids) == 0 {
		all, err := s.store.ListUserIDs(ctx)
		if err != nil {
			return Report{Op: OpDeleteAccounts}, fmt.Errorf("list accounts: %w", err)
		}
		ids = all
	}
	report, err := s.fanOut(ctx, OpDeleteAccounts, ids, func(ctx context.Context, userID string) error {
		return s.store.DeleteUser(ctx, userID)
	})
	report.Updated = report.Processed - len(report.Failed)
	return report, err
}

func (s *Service) assignMissingIDs(c *records.Collection) int {
	n := 0
	for _, k := range records.Kinds {
		list := *c.List(k)
		for i := range list {
			if strings.TrimSpace(list[i].ID) == "" {
				list[i].ID = s.newID()
				n++
			}
		}
	}
	return n
}

// fanOut runs fn for every account with bounded concurrency. A failing
// account never cancels the others; failures are collected into a BatchError.
func (s *Service) fanOut(ctx context.Context, op string, userIDs []string, fn func(context.Context, string) error) (Report, error) {
	report := Report{Op: op}
	var (
		mu       sync.Mutex
		failures []AccountFailure
	)

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, userID := range userIDs {
		if strings.TrimSpace(userID) == "" {
			continue
		}
		report.Processed++
		userID := userID
		g.Go(func() error {
			err := reliability.Retry(ctx, s.cfg.MaxAttempts, s.cfg.RetryBase, s.cfg.RetryCap, func(ctx context.Context) error {
				return fn(ctx, userID)
			})
			if err != nil {
				s.log.WithFields(logrus.Fields{"op": op, "user_id": userID}).WithError(err).Warn("account update failed")
				s.observe(op, "failed")
				mu.Lock()
				failures = append(failures, AccountFailure{UserID: userID, Error: err.Error(), err: err})
				mu.Unlock()
				return nil
			}
			s.observe(op, "ok")
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		s.log.WithFields(logrus.Fields{"op": op, "processed": report.Processed}).Info("batch complete")
		return report, nil
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].UserID < failures[j].UserID })
	report.Failed = failures
	s.log.WithFields(logrus.Fields{"op": op, "processed": report.Processed, "failed": len(failures)}).Warn("batch completed with failures")
	return report, &BatchError{Op: op, Failures: failures}
}

func (s *Service) observe(op, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.AdminAccounts.WithLabelValues(op, outcome).Inc()
}

// IsBatchError reports whether err carries per-account failures.
func IsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
