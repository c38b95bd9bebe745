package matchmaker

import (
	"context"
	"fmt"

	"github.com/aropan/raic-cli/lib/scrapers/raicup/games"
	"github.com/aropan/raic-cli/lib/scrapers/raicup/standings"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("matchmaker")

// OpponentSource is the slice of the game service the resolver needs.
type OpponentSource interface {
	SuggestedOpponents(ctx context.Context, basedOn string) ([]string, error)
	StrategyCount(ctx context.Context, username string) (int, error)
}

// LeaderboardSource samples ranked usernames from contest standings.
type LeaderboardSource interface {
	TopUsers(ctx context.Context, src standings.Source) ([]string, error)
}

type Resolver struct {
	Opponents OpponentSource
	Boards    LeaderboardSource
	// when set, the same username may fill several slots of one game
	AllowDuplicates bool
}

// attemptCache holds the candidate pools of a single creation attempt.
// A fresh one is built per Resolve call: suggestion and leaderboard
// state moves between games, so pools must never leak across attempts.
type attemptCache struct {
	suggestions  map[string][]string
	leaderboards map[string][]string
}

func sourcesKey(sources []standings.Source) string {
	key := ""
	for _, src := range sources {
		key += fmt.Sprintf("%s\x00%d\x00%s\x00", src.Contest, src.Count, src.ExcludeContest)
	}
	return key
}

func shuffle(pool []string) error {
	for i := len(pool) - 1; i > 0; i-- {
		j, err := random.IntRange(0, i+1)
		if err != nil {
			return err
		}
		pool[i], pool[j] = pool[j], pool[i]
	}
	return nil
}

// draw removes and returns a uniformly random element of the pool.
func draw(pool *[]string) (string, error) {
	p := *pool
	if len(p) == 0 {
		return "", ErrPoolExhausted
	}
	i := 0
	if len(p) > 1 {
		var err error
		i, err = random.IntRange(0, len(p))
		if err != nil {
			return "", err
		}
	}
	picked := p[i]
	p[i] = p[len(p)-1]
	*pool = p[:len(p)-1]
	return picked, nil
}

func (r *Resolver) suggestionPool(ctx context.Context, cache *attemptCache, basedOn string) (*[]string, error) {
	if _, ok := cache.suggestions[basedOn]; !ok {
		users, err := r.Opponents.SuggestedOpponents(ctx, basedOn)
		if err != nil {
			return nil, err
		}
		if err := shuffle(users); err != nil {
			return nil, err
		}
		cache.suggestions[basedOn] = users
	}
	pool := cache.suggestions[basedOn]
	return &pool, nil
}

func (r *Resolver) leaderboardPool(ctx context.Context, cache *attemptCache, sources []standings.Source) (*[]string, error) {
	key := sourcesKey(sources)
	if _, ok := cache.leaderboards[key]; !ok {
		var pool []string
		for _, src := range sources {
			users, err := r.Boards.TopUsers(ctx, src)
			if err != nil {
				return nil, err
			}
			pool = append(pool, users...)
		}
		cache.leaderboards[key] = pool
	}
	pool := cache.leaderboards[key]
	return &pool, nil
}

func (r *Resolver) drawCandidate(pool *[]string, taken map[string]bool) (string, error) {
	for {
		username, err := draw(pool)
		if err != nil {
			return "", err
		}
		if r.AllowDuplicates || !taken[username] {
			return username, nil
		}
		// collision, redraw from what is left of the pool
	}
}

// Resolve turns the participant chain into concrete participants for
// one game. Candidate pools live only for this attempt.
func (r *Resolver) Resolve(ctx context.Context, specs []ParticipantSpec) ([]games.Participant, error) {
	ctx, span := tracer.Start(ctx, "resolver:Resolve")
	defer span.End()

	if err := ValidateSpecs(specs); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	cache := &attemptCache{
		suggestions:  map[string][]string{},
		leaderboards: map[string][]string{},
	}
	taken := map[string]bool{}
	lastExplicit := ""

	participants := make([]games.Participant, 0, len(specs))
	for i, spec := range specs {
		var username string
		switch spec.Query {
		case QueryExplicit:
			username = spec.Username
			lastExplicit = username
		case QuerySuggest:
			pool, err := r.suggestionPool(ctx, cache, lastExplicit)
			if err != nil {
				return nil, fmt.Errorf("participant %d: %w", i+1, err)
			}
			username, err = r.drawCandidate(pool, taken)
			cache.suggestions[lastExplicit] = *pool
			if err != nil {
				return nil, fmt.Errorf("participant %d: %w", i+1, err)
			}
		case QueryLeaderboard:
			pool, err := r.leaderboardPool(ctx, cache, spec.Sources)
			if err != nil {
				return nil, fmt.Errorf("participant %d: %w", i+1, err)
			}
			username, err = r.drawCandidate(pool, taken)
			cache.leaderboards[sourcesKey(spec.Sources)] = *pool
			if err != nil {
				return nil, fmt.Errorf("participant %d: %w", i+1, err)
			}
		case QueryRandom:
			pool := append([]string(nil), spec.Candidates...)
			var err error
			username, err = r.drawCandidate(&pool, taken)
			if err != nil {
				return nil, fmt.Errorf("participant %d: %w", i+1, err)
			}
		default:
			return nil, fmt.Errorf("participant %d: %w: %q", i+1, ErrUnknownQuery, spec.Query)
		}
		taken[username] = true

		strategy := spec.Strategy
		if strategy == 0 {
			count, err := r.Opponents.StrategyCount(ctx, username)
			if err != nil {
				return nil, fmt.Errorf("participant %d: %w", i+1, err)
			}
			strategy = count
		}

		participants = append(participants, games.Participant{
			Username: username,
			Strategy: strategy,
		})
	}

	span.SetAttributes(attribute.Int("participants", len(participants)))
	return participants, nil
}
