package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alpinisme/formation-sync/internal/course"
)

// Service bundles the full notification pass: load today's new courses,
// build per-user digests, dispatch them.
type Service struct {
	store     course.Store
	processor *Processor
	notifier  *Notifier
	clock     course.Clock
	logger    *zap.Logger
}

// NewService wires a Service.
func NewService(store course.Store, processor *Processor, notifier *Notifier, clock course.Clock, logger *zap.Logger) *Service {
	return &Service{store: store, processor: processor, notifier: notifier, clock: clock, logger: logger}
}

// DispatchToday notifies subscribers about courses first seen on the
// current calendar day. Running it twice on the same day is safe: the
// per-user cooldown suppresses the second round of emails.
func (s *Service) DispatchToday(ctx context.Context) (course.NotificationResult, error) {
	now := s.clock.Now()

	records, err := s.store.FirstSeenOn(ctx, now)
	if err != nil {
		return course.NotificationResult{}, fmt.Errorf("load today's courses: %w", err)
	}
	if len(records) == 0 {
		s.logger.Info("no new courses today, nothing to dispatch")
		return course.NotificationResult{}, nil
	}

	digests, err := s.processor.Build(ctx, records, now)
	if err != nil {
		return course.NotificationResult{}, err
	}
	return s.notifier.Dispatch(ctx, digests, now), nil
}
