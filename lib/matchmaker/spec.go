// Package matchmaker turns declarative participant specs into concrete
// game participants and drives the quota-limited creation loop.
package matchmaker

import (
	"errors"
	"fmt"

	"github.com/aropan/raic-cli/lib/scrapers/raicup/standings"
)

// Participant selection policies, discriminated by the Query field.
const (
	// explicit username, the zero value
	QueryExplicit = ""
	// random opponent suggested by the service for the most recent
	// explicit participant
	QuerySuggest = "suggest"
	// sampled from the top of one or more contest leaderboards
	QueryLeaderboard = "leaderboard"
	// drawn from a fixed candidate list
	QueryRandom = "random"
)

// ParticipantSpec declares how one game slot gets filled. It comes
// straight from configuration and is resolved anew for every creation
// attempt.
type ParticipantSpec struct {
	Query    string `json:"query" validate:"omitempty,oneof=suggest leaderboard random"`
	Username string `json:"username"`
	// 1-based strategy version pin, 0 means latest
	Strategy   int                `json:"strategy" validate:"gte=0"`
	Sources    []standings.Source `json:"sources" validate:"dive"`
	Candidates []string           `json:"candidates"`
}

var (
	ErrNoSuggestBase = errors.New("suggest spec must follow a spec with an explicit username")
	ErrUnknownQuery  = errors.New("unknown participant query")
	ErrPoolExhausted = errors.New("candidate pool exhausted")
)

// ValidateSpecs rejects malformed participant chains before any
// network traffic happens. Config defects surface here, once, instead
// of failing halfway through a creation attempt.
func ValidateSpecs(specs []ParticipantSpec) error {
	if len(specs) == 0 {
		return errors.New("no participants configured")
	}

	haveExplicit := false
	for i, spec := range specs {
		switch spec.Query {
		case QueryExplicit:
			if spec.Username == "" {
				return fmt.Errorf("participant %d: explicit spec needs a username", i+1)
			}
			haveExplicit = true
		case QuerySuggest:
			if !haveExplicit {
				return fmt.Errorf("participant %d: %w", i+1, ErrNoSuggestBase)
			}
		case QueryLeaderboard:
			if len(spec.Sources) == 0 {
				return fmt.Errorf("participant %d: leaderboard spec needs at least one source", i+1)
			}
		case QueryRandom:
			if len(spec.Candidates) == 0 {
				return fmt.Errorf("participant %d: random spec needs candidates", i+1)
			}
		default:
			return fmt.Errorf("participant %d: %w: %q", i+1, ErrUnknownQuery, spec.Query)
		}
	}
	return nil
}
