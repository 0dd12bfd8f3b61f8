// Package notify builds and dispatches per-user digests for newly-seen
// courses.
package notify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/alpinisme/formation-sync/internal/course"
)

// Cooldown is the minimum elapsed time between two notifications to the
// same user for the same discipline. The comparison is strict: exactly 24h
// elapsed is still inside the cooldown.
const Cooldown = 24 * time.Hour

// Processor decides who gets notified about which courses.
//
// Two distinct temporal rules apply on purpose: candidate records are
// scoped to the calendar day of now ("what's new today", independent of
// when the job runs), while the per-(user, discipline) cooldown uses
// strict elapsed time. Both are driven by the single injected now so a
// long batch cannot skew eligibility.
type Processor struct {
	prefs  course.PreferenceStore
	logger *zap.Logger
}

// NewProcessor builds a Processor.
func NewProcessor(prefs course.PreferenceStore, logger *zap.Logger) *Processor {
	return &Processor{prefs: prefs, logger: logger}
}

// Build maps eligible users to their digest for this run. A user
// subscribed to several disciplines receives one digest spanning all of
// them, never one email per discipline.
func (p *Processor) Build(ctx context.Context, records []course.Course, now time.Time) (map[int64]*course.Digest, error) {
	byDiscipline := map[string][]course.Course{}
	for _, rec := range records {
		if rec.Discipline == "" {
			continue
		}
		byDiscipline[rec.Discipline] = append(byDiscipline[rec.Discipline], rec)
	}

	disciplines := make([]string, 0, len(byDiscipline))
	for d := range byDiscipline {
		disciplines = append(disciplines, d)
	}
	sort.Strings(disciplines)

	digests := map[int64]*course.Digest{}
	for _, discipline := range disciplines {
		var fresh []course.Course
		for _, rec := range byDiscipline[discipline] {
			if sameDay(rec.FirstSeenAt, now) {
				fresh = append(fresh, rec)
			}
		}
		// Nothing new today for this discipline: skip it entirely,
		// without even querying subscribers.
		if len(fresh) == 0 {
			continue
		}

		subs, err := p.prefs.SubscribersForDiscipline(ctx, discipline)
		if err != nil {
			return nil, fmt.Errorf("subscribers for %s: %w", discipline, err)
		}
		for _, sub := range subs {
			last, err := p.prefs.LastNotifiedAt(ctx, sub.UserID, discipline)
			if err != nil {
				return nil, fmt.Errorf("last notified for user %d: %w", sub.UserID, err)
			}
			if !eligible(last, now) {
				continue
			}
			d, ok := digests[sub.UserID]
			if !ok {
				d = &course.Digest{UserID: sub.UserID, Email: sub.Email}
				digests[sub.UserID] = d
			}
			d.Sections = append(d.Sections, course.DigestSection{
				Discipline: discipline,
				Courses:    fresh,
			})
		}
	}

	p.logger.Info("digests built",
		zap.Int("candidate_records", len(records)),
		zap.Int("disciplines", len(disciplines)),
		zap.Int("users", len(digests)),
	)
	return digests, nil
}

func eligible(last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) > Cooldown
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
