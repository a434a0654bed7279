package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"genstudio/internal/entity"
	"genstudio/internal/model"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CreditRenewal resets every active account to its tier allotment on a cron
// schedule.
type CreditRenewal struct {
	repo model.Repository
	cron *cron.Cron
}

// NewCreditRenewal validates the schedule; standard five-field specs and
// descriptors such as @monthly are accepted.
func NewCreditRenewal(repo model.Repository, schedule string) (*CreditRenewal, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil, fmt.Errorf("credit renewal schedule is empty")
	}
	r := &CreditRenewal{repo: repo, cron: cron.New()}
	if _, err := r.cron.AddFunc(schedule, r.runScheduled); err != nil {
		return nil, fmt.Errorf("invalid credit renewal schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *CreditRenewal) Start() {
	r.cron.Start()
	logrus.Info("credit renewal scheduler started")
}

// Stop waits for a running renewal to finish or ctx to end.
func (r *CreditRenewal) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (r *CreditRenewal) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		logrus.WithError(err).Error("credit renewal failed")
	}
}

// RunOnce applies the plan allotments immediately.
func (r *CreditRenewal) RunOnce(ctx context.Context) (int64, error) {
	updated, err := r.repo.ResetCreditsForTiers(ctx, entity.PlanAllotments)
	if err != nil {
		return 0, err
	}
	logrus.WithField("accounts", updated).Info("credits renewed")
	return updated, nil
}
