// Package scheduler runs recurring background jobs.
package scheduler

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/assessment"
	"github.com/trezcool/academia/core/user"
)

type Scheduler struct {
	scheduler     *gocron.Scheduler
	assessmentSvc assessment.Service
	userSvc       user.Service
	mailSvc       core.EmailService
	logger        core.Logger
	conf          *core.Config
}

func New(
	assessmentSvc assessment.Service,
	userSvc user.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Scheduler {
	return &Scheduler{
		scheduler:     gocron.NewScheduler(time.UTC),
		assessmentSvc: assessmentSvc,
		userSvc:       userSvc,
		mailSvc:       mailSvc,
		logger:        logger,
		conf:          conf,
	}
}

// Start registers the jobs and runs them in the background.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.conf.Assessment.SweepEvery).Do(s.expireOverdueSessions); err != nil {
		return err
	}
	digestAt := fmt.Sprintf("%02d:00", s.conf.Assessment.DigestHour)
	if _, err := s.scheduler.Every(1).Day().At(digestAt).Do(s.sendPlacementDigest); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// expireOverdueSessions flips in-progress sessions past their deadline to
// expired, so abandoned sessions do not linger in reporting views waiting for
// a test-taker who never comes back.
func (s *Scheduler) expireOverdueSessions() {
	sessions, err := s.assessmentSvc.QuerySessions(assessment.SessionFilter{Status: assessment.StatusInProgress})
	if err != nil {
		s.logger.Error(fmt.Sprintf("querying in-progress sessions for sweep: %v", err), err)
		return
	}

	now := time.Now().UTC()
	var expired int
	for _, sess := range sessions {
		if !sess.IsPastDeadline(now) {
			continue
		}
		// loading the session expires it in passing
		if _, err = s.assessmentSvc.GetSession(sess.ID, ""); err != nil {
			s.logger.Error(fmt.Sprintf("expiring session %s: %v", sess.ID, err), err)
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info(fmt.Sprintf("session sweep: expired %d overdue sessions", expired))
	}
}

// sendPlacementDigest mails admins a summary of the placements computed over
// the past day.
func (s *Scheduler) sendPlacementDigest() {
	since := time.Now().UTC().Add(-24 * time.Hour)
	results, err := s.assessmentSvc.QueryResults(assessment.ResultFilter{ComputedFrom: since})
	if err != nil {
		s.logger.Error(fmt.Sprintf("querying results for digest: %v", err), err)
		return
	}
	if len(results) == 0 {
		return
	}

	admins, err := s.userSvc.Filter(&user.QueryFilter{Roles: []string{user.RoleAdmin}})
	if err != nil {
		s.logger.Error(fmt.Sprintf("querying admins for digest: %v", err), err)
		return
	}
	if len(admins) == 0 {
		return
	}

	to := make([]mail.Address, 0, len(admins))
	for _, adm := range admins {
		to = append(to, mail.Address{Name: adm.Name, Address: adm.Email})
	}

	s.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "Daily Placement Digest",
		TemplateName: "placement-digest",
		TemplateData: struct {
			Count   int
			Results []assessment.SessionResult
		}{len(results), results},
	})
	s.logger.Info(fmt.Sprintf("placement digest sent: %d results, %d recipients", len(results), len(to)))
}
