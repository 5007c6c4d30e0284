package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/0xlunar/roundup/internal/controllers"
)

// Scheduler manages the periodic reconciliation and tracking jobs
type Scheduler struct {
	cron              *cron.Cron
	reconcileCtrl     *controllers.ReconcileController
	trackerCtrl       *controllers.TrackerController
	reconcileInterval time.Duration
	trackerInterval   time.Duration
	logger            *logrus.Logger

	reconcileRunning atomic.Bool
	trackerRunning   atomic.Bool
}

// NewScheduler creates a new scheduler
func NewScheduler(
	reconcileCtrl *controllers.ReconcileController,
	trackerCtrl *controllers.TrackerController,
	reconcileInterval time.Duration,
	trackerInterval time.Duration,
	logger *logrus.Logger,
) *Scheduler {
	return &Scheduler{
		cron:              cron.New(),
		reconcileCtrl:     reconcileCtrl,
		trackerCtrl:       trackerCtrl,
		reconcileInterval: reconcileInterval,
		trackerInterval:   trackerInterval,
		logger:            logger,
	}
}

// Start starts the scheduler and kicks off an immediate first reconcile
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.reconcileInterval), func() {
		s.runReconcile()
	})
	if err != nil {
		return fmt.Errorf("failed to add reconcile job: %w", err)
	}

	_, err = s.cron.AddFunc(fmt.Sprintf("@every %s", s.trackerInterval), func() {
		s.runTracker()
	})
	if err != nil {
		return fmt.Errorf("failed to add tracker job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	// First cycle right away so a fresh deployment does not sit idle
	go s.runReconcile()

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

func (s *Scheduler) runReconcile() {
	// A slow cycle must not stack behind itself
	if !s.reconcileRunning.CompareAndSwap(false, true) {
		s.logger.Warn("Previous reconcile cycle still running, skipping")
		return
	}
	defer s.reconcileRunning.Store(false)

	s.logger.Info("Running scheduled reconcile")
	if err := s.reconcileCtrl.Run(context.Background()); err != nil {
		s.logger.WithError(err).Error("Reconcile cycle failed")
	} else {
		s.logger.Info("Reconcile cycle completed")
	}
}

func (s *Scheduler) runTracker() {
	if !s.trackerRunning.CompareAndSwap(false, true) {
		s.logger.Warn("Previous tracker pass still running, skipping")
		return
	}
	defer s.trackerRunning.Store(false)

	s.logger.Debug("Running scheduled tracker pass")
	if err := s.trackerCtrl.Run(context.Background()); err != nil {
		s.logger.WithError(err).Error("Tracker pass failed")
	}
}
