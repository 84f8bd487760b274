package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/smmtools/vk-insight-bot/internal/models"
	"github.com/smmtools/vk-insight-bot/internal/store"
)

// GroupResolver resolves a community identifier against VK.
type GroupResolver interface {
	GroupByName(ctx context.Context, name string) (models.GroupInfo, error)
}

// Service periodically refreshes the stored metadata (name, screen
// name) of every tracked group so that listings stay accurate even if
// the VK side renames a community.
type Service struct {
	store    *store.Store
	resolver GroupResolver
	schedule string
	cron     *cron.Cron
}

// NewService creates a scheduler running the group metadata refresh on
// the given cron expression (with seconds field).
func NewService(st *store.Store, resolver GroupResolver, schedule string) *Service {
	return &Service{
		store:    st,
		resolver: resolver,
		schedule: schedule,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Start begins the scheduled refresh.
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.RefreshGroups(); err != nil {
			logrus.Errorf("Scheduled group refresh failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started, group refresh on %q", s.schedule)
	return nil
}

// Stop stops the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}

// RefreshGroups re-resolves every tracked group and updates its stored
// name and screen name. Individual failures are logged and skipped.
func (s *Service) RefreshGroups() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	groups, err := s.store.AllGroups(ctx)
	if err != nil {
		return err
	}

	refreshed := 0
	for _, grp := range groups {
		info, err := s.resolver.GroupByName(ctx, grp.ScreenName)
		if err != nil {
			logrus.Warnf("Skipping refresh of group %q: %v", grp.ScreenName, err)
			continue
		}
		if info.Name == grp.Name && info.ScreenName == grp.ScreenName {
			continue
		}
		if err := s.store.UpdateGroupInfo(ctx, grp.ID, info.Name, info.ScreenName); err != nil {
			logrus.Errorf("Failed to update group %d: %v", grp.ID, err)
			continue
		}
		refreshed++
	}

	logrus.Infof("Group refresh completed: %d of %d updated", refreshed, len(groups))
	return nil
}
