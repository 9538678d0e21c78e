// Package scheduler runs the background loops: periodic conversation
// summaries, a daily reflection, and reminder delivery. Each loop is a
// goroutine that stops through context cancellation; Stop cancels and
// awaits all of them before returning.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/casualjim/mycelia/bus"
	"github.com/casualjim/mycelia/events"
	"github.com/casualjim/mycelia/graph"
	"github.com/casualjim/mycelia/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

const (
	defaultSummaryInterval = time.Minute
	defaultDailyInterval   = 24 * time.Hour
	defaultTick            = time.Second

	summaryFactCount = 10
	dailyFactCount   = 50
)

// Reminder is one scheduled reminder.
type Reminder struct {
	Message string
	When    time.Time
	ID      string
}

// Scheduler owns the three background loops. Create it with New,
// start it once, stop it once; a stopped scheduler is not restartable.
type Scheduler struct {
	publisher  *bus.Publisher
	dal        graph.DAL
	summarizer Summarizer

	summaryInterval time.Duration
	dailyInterval   time.Duration
	tick            time.Duration
	now             func() time.Time

	mu        sync.Mutex
	reminders []Reminder
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

var (
	// SummaryInterval sets the period of the summary loop.
	SummaryInterval = opts.ForName[Scheduler, time.Duration]("summaryInterval")

	// DailyInterval sets the period of the reflection loop.
	DailyInterval = opts.ForName[Scheduler, time.Duration]("dailyInterval")

	// Tick sets the reminder polling interval.
	Tick = opts.ForName[Scheduler, time.Duration]("tick")

	// Now injects the clock used for due-reminder checks and node
	// timestamps.
	Now = opts.ForName[Scheduler, func() time.Time]("now")
)

// New creates a scheduler publishing through broker and persisting
// summaries through dal.
func New(broker bus.Broker, dal graph.DAL, summarizer Summarizer, options ...opts.Option[Scheduler]) (*Scheduler, error) {
	s := &Scheduler{
		publisher:       bus.NewPublisher(broker),
		dal:             dal,
		summarizer:      summarizer,
		summaryInterval: defaultSummaryInterval,
		dailyInterval:   defaultDailyInterval,
		tick:            defaultTick,
		now:             func() time.Time { return time.Now().UTC() },
	}
	if err := opts.Apply(s, options); err != nil {
		return nil, err
	}
	return s, nil
}

// ScheduleReminder queues a reminder to fire at when. Reminders are
// kept sorted by due time; scheduling in the past fires on the next
// tick.
func (s *Scheduler) ScheduleReminder(message string, when time.Time, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders = append(s.reminders, Reminder{Message: message, When: when, ID: id})
	sort.SliceStable(s.reminders, func(i, j int) bool {
		return s.reminders[i].When.Before(s.reminders[j].When)
	})
}

// Start launches the three loops. It returns false when the scheduler
// is already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return false
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(3)
	go s.loop(ctx, s.summaryInterval, s.generateSummary)
	go s.loop(ctx, s.dailyInterval, s.generateDailySummary)
	go s.loop(ctx, s.tick, s.fireDueReminders)
	slog.Info("scheduler started",
		slog.Duration("summary_interval", s.summaryInterval),
		slog.Duration("daily_interval", s.dailyInterval),
	)
	return true
}

// Stop cancels every loop and waits for them to exit. Safe to call
// repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, work func(ctx context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			work(ctx)
		}
	}
}

func (s *Scheduler) generateSummary(ctx context.Context) {
	s.summarize(ctx, summaryFactCount, graph.LabelNote, s.summarizer.Summarize)
}

func (s *Scheduler) generateDailySummary(ctx context.Context) {
	s.summarize(ctx, dailyFactCount, graph.LabelDailySummary, s.summarizer.Reflect)
}

func (s *Scheduler) summarize(ctx context.Context, factCount int, label string, condense func(context.Context, string) (string, error)) {
	facts, err := s.dal.RecentFacts(ctx, factCount)
	if err != nil {
		slog.Error("failed to read recent facts", slogx.Error(err))
		return
	}
	if len(facts) == 0 {
		return
	}

	summary, err := condense(ctx, strings.Join(facts, " "))
	if err != nil {
		slog.Error("failed to summarize", slog.String("label", label), slogx.Error(err))
		return
	}
	if summary == "" {
		return
	}

	err = s.dal.MergeNode(ctx, label, map[string]any{
		"text":      summary,
		"timestamp": strfmt.DateTime(s.now()).String(),
	})
	if err != nil {
		slog.Error("failed to persist summary", slog.String("label", label), slogx.Error(err))
	}
}

// fireDueReminders removes every reminder whose due time has passed and
// publishes one ReminderTriggered per reminder. A failed publish puts
// the reminder back so the next tick retries it.
func (s *Scheduler) fireDueReminders(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	cut := sort.Search(len(s.reminders), func(i int) bool {
		return s.reminders[i].When.After(now)
	})
	due := s.reminders[:cut:cut]
	s.reminders = s.reminders[cut:]
	s.mu.Unlock()

	for _, r := range due {
		payload := events.ReminderTriggered{
			Message:    r.Message,
			ReminderID: r.ID,
			Timestamp:  strfmt.DateTime(now),
		}
		if _, err := s.publisher.PublishPayload(ctx, payload, true); err != nil {
			slog.Error("failed to publish reminder, rescheduling",
				slog.String("reminder_id", r.ID),
				slogx.Error(err),
			)
			s.ScheduleReminder(r.Message, r.When, r.ID)
			continue
		}
		slog.Info("reminder triggered", slog.String("reminder_id", r.ID))
	}
}
