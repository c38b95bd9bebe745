package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aropan/raic-cli/lib/scrapers/raicup/games"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// GameCreator submits one resolved game to the service.
type GameCreator interface {
	Create(ctx context.Context, participants []games.Participant, format string) error
}

// Quota is the creation rate limit: at most Games successes per
// sliding Window. The service may correct it at any time through a
// rejection message, and its word wins over configuration.
type Quota struct {
	Games  int
	Window time.Duration
}

// Clock abstracts waiting so the scheduler can be tested without
// spending wall-clock time.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// countdownClock sleeps in one-second steps, rendering a waiting
// countdown over the current terminal line.
type countdownClock struct{}

func (countdownClock) Now() time.Time { return time.Now() }

func (countdownClock) Sleep(ctx context.Context, d time.Duration) error {
	finish := time.Now().Add(d)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	defer fmt.Fprint(os.Stderr, "\r\033[K")

	for {
		left := time.Until(finish)
		if left <= 0 {
			return nil
		}
		total := int(left.Seconds())
		fmt.Fprintf(os.Stderr, "\rwaiting... %d:%02d", total/60, total%60)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// quotaPattern matches the service's quota enforcement message, e.g.
// "You can not create more than 4 games in 20 minutes".
var quotaPattern = regexp.MustCompile(`(?i)can\s?not create more than (\d+) games? in (\d+) minutes?`)

// ParseQuotaMessage extracts the announced limit from a rejection
// message, if the message carries one.
func ParseQuotaMessage(messages []string) (Quota, bool) {
	for _, message := range messages {
		groups := quotaPattern.FindStringSubmatch(message)
		if groups == nil {
			continue
		}
		n, err1 := strconv.Atoi(groups[1])
		m, err2 := strconv.Atoi(groups[2])
		if err1 != nil || err2 != nil || n <= 0 || m <= 0 {
			continue
		}
		return Quota{Games: n, Window: time.Duration(m) * time.Minute}, true
	}
	return Quota{}, false
}

// fallback suspension when a rejection carries no recognizable quota.
// The message text alone cannot tell a transient rejection from a
// permanent one, so both retry with this backoff. A permanent
// validation error therefore retries forever, which is a known risk.
const fallbackBackoff = time.Hour

type SchedulerOptions struct {
	Specs   []ParticipantSpec
	Formats []string
	Quota   Quota
	// optional, defaults to a countdown-rendering wall clock
	Clock Clock
}

// Scheduler drives repeated game creation under the quota.
type Scheduler struct {
	resolver *Resolver
	creator  GameCreator
	specs    []ParticipantSpec
	formats  []string
	quota    Quota
	clock    Clock

	// timestamps of recent successes, oldest first, at most
	// quota.Games entries
	window []time.Time
}

func NewScheduler(resolver *Resolver, creator GameCreator, opts SchedulerOptions) *Scheduler {
	clock := opts.Clock
	if clock == nil {
		clock = countdownClock{}
	}
	return &Scheduler{
		resolver: resolver,
		creator:  creator,
		specs:    opts.Specs,
		formats:  opts.Formats,
		quota:    opts.Quota,
		clock:    clock,
	}
}

// Quota reports the currently enforced limit, which may have been
// learned from the service.
func (s *Scheduler) Quota() Quota {
	return s.quota
}

func (s *Scheduler) pickFormat() (string, error) {
	if len(s.formats) == 0 {
		return "", errors.New("no game formats configured")
	}
	i := 0
	if len(s.formats) > 1 {
		var err error
		i, err = random.IntRange(0, len(s.formats))
		if err != nil {
			return "", err
		}
	}
	return s.formats[i], nil
}

func (s *Scheduler) waitUntil(ctx context.Context, t time.Time) error {
	d := t.Sub(s.clock.Now())
	if d <= 0 {
		return nil
	}
	slog.Debug("quota window full, suspending", "until", t, "for", d)
	return s.clock.Sleep(ctx, d)
}

// failureBackoff adopts any quota announced in the rejection and
// returns how long to suspend before retrying the attempt.
func (s *Scheduler) failureBackoff(rejection *games.CreateGameError) time.Duration {
	quota, ok := ParseQuotaMessage(rejection.Messages)
	if !ok {
		slog.Warn(
			"game creation rejected without a recognizable quota",
			"messages", rejection.Messages,
			"backoff", fallbackBackoff,
		)
		return fallbackBackoff
	}

	// the service is the authority on the true limit
	s.quota = quota
	backoff := quota.Window / time.Duration(quota.Games)
	slog.Info(
		"quota learned from rejection",
		"games", quota.Games,
		"window", quota.Window,
		"backoff", backoff,
	)
	return backoff
}

// Run creates games until limit successes (0 means unbounded). Quota
// rejections suspend and retry without consuming the limit; resolution
// failures and non-rejection errors are fatal.
func (s *Scheduler) Run(ctx context.Context, limit int) error {
	ctx, span := tracer.Start(ctx, "scheduler:Run")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))

	created := 0
	for {
		// Games <= 0 means no rate limit
		if s.quota.Games > 0 && len(s.window) >= s.quota.Games {
			oldest := s.window[0]
			s.window = s.window[1:]
			if err := s.waitUntil(ctx, oldest.Add(s.quota.Window)); err != nil {
				return err
			}
		}

		for {
			participants, err := s.resolver.Resolve(ctx, s.specs)
			if err != nil {
				span.SetStatus(codes.Error, "resolution failed")
				return err
			}
			format, err := s.pickFormat()
			if err != nil {
				return err
			}

			versus := make([]string, len(participants))
			for i, p := range participants {
				versus[i] = p.String()
			}
			slog.Info(strings.Join(versus, " vs "), "format", format)

			err = s.creator.Create(ctx, participants, format)
			var rejection *games.CreateGameError
			if errors.As(err, &rejection) {
				if err := s.clock.Sleep(ctx, s.failureBackoff(rejection)); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				span.SetStatus(codes.Error, "creation failed")
				return err
			}

			s.window = append(s.window, s.clock.Now())
			created++
			slog.Info("game created", "count", created)
			break
		}

		if limit > 0 && created >= limit {
			span.SetAttributes(attribute.Int("created", created))
			return nil
		}
	}
}
