package matchmaker

import (
	"context"
	"testing"

	"github.com/aropan/raic-cli/lib/scrapers/raicup/standings"
	"github.com/aropan/raic-cli/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type fakeService struct {
	suggestions map[string][]string
	strategies  map[string]int
	boards      map[string][]string

	suggestCalls  int
	strategyCalls int
	boardCalls    int
}

func (f *fakeService) SuggestedOpponents(ctx context.Context, basedOn string) ([]string, error) {
	f.suggestCalls++
	return f.suggestions[basedOn], nil
}

func (f *fakeService) StrategyCount(ctx context.Context, username string) (int, error) {
	f.strategyCalls++
	return f.strategies[username], nil
}

func (f *fakeService) TopUsers(ctx context.Context, src standings.Source) ([]string, error) {
	f.boardCalls++
	users := f.boards[src.Contest]
	if src.Count < len(users) {
		users = users[:src.Count]
	}
	return users, nil
}

func newResolver(service *fakeService) *Resolver {
	return &Resolver{Opponents: service, Boards: service}
}

func TestResolveSuggestWithoutExplicitBase(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:matchmaker")
	defer cleanup()

	service := &fakeService{}
	resolver := newResolver(service)

	_, err := resolver.Resolve(context.Background(), []ParticipantSpec{
		{Query: QuerySuggest},
	})
	require.ErrorIs(t, err, ErrNoSuggestBase)
	// the chain is rejected before any network traffic
	require.Zero(t, service.suggestCalls)
	require.Zero(t, service.strategyCalls)
	require.Zero(t, service.boardCalls)
}

func TestResolveUnknownQuery(t *testing.T) {
	service := &fakeService{}
	resolver := newResolver(service)

	_, err := resolver.Resolve(context.Background(), []ParticipantSpec{
		{Query: "telepathy", Username: "alice"},
	})
	require.ErrorIs(t, err, ErrUnknownQuery)
}

func TestResolveExplicitAndSuggest(t *testing.T) {
	service := &fakeService{
		suggestions: map[string][]string{
			"alice": {"bob", "carol", "dave"},
		},
		strategies: map[string]int{"bob": 4, "carol": 4, "dave": 4},
	}
	resolver := newResolver(service)

	participants, err := resolver.Resolve(context.Background(), []ParticipantSpec{
		{Username: "alice", Strategy: 2},
		{Query: QuerySuggest},
	})
	require.NoError(t, err)
	require.Len(t, participants, 2)

	require.Equal(t, "alice", participants[0].Username)
	require.Equal(t, 2, participants[0].Strategy)
	require.Contains(t, []string{"bob", "carol", "dave"}, participants[1].Username)
	// latest version for the unpinned participant
	require.Equal(t, 4, participants[1].Strategy)

	require.Equal(t, 1, service.suggestCalls)
	// the pinned participant never triggers a strategy count query
	require.Equal(t, 1, service.strategyCalls)
}

func TestResolveSuggestPoolSharedWithinAttempt(t *testing.T) {
	service := &fakeService{
		suggestions: map[string][]string{
			"alice": {"bob", "carol"},
		},
		strategies: map[string]int{"bob": 1, "carol": 1},
	}
	resolver := newResolver(service)

	participants, err := resolver.Resolve(context.Background(), []ParticipantSpec{
		{Username: "alice", Strategy: 1},
		{Query: QuerySuggest},
		{Query: QuerySuggest},
	})
	require.NoError(t, err)
	// one fetch feeds both suggest slots, drawn without replacement
	require.Equal(t, 1, service.suggestCalls)
	require.ElementsMatch(t,
		[]string{"bob", "carol"},
		[]string{participants[1].Username, participants[2].Username},
	)
}

func TestResolveNoDuplicates(t *testing.T) {
	service := &fakeService{strategies: map[string]int{"bob": 1, "carol": 1}}
	resolver := newResolver(service)

	for i := 0; i < 20; i++ {
		participants, err := resolver.Resolve(context.Background(), []ParticipantSpec{
			{Username: "bob", Strategy: 1},
			{Query: QueryRandom, Candidates: []string{"bob", "carol"}},
		})
		require.NoError(t, err)
		require.Equal(t, "carol", participants[1].Username)
	}
}

func TestResolveDuplicatesAllowed(t *testing.T) {
	service := &fakeService{strategies: map[string]int{"bob": 1}}
	resolver := newResolver(service)
	resolver.AllowDuplicates = true

	participants, err := resolver.Resolve(context.Background(), []ParticipantSpec{
		{Username: "bob", Strategy: 1},
		{Query: QueryRandom, Candidates: []string{"bob"}},
	})
	require.NoError(t, err)
	require.Equal(t, "bob", participants[1].Username)
}

func TestResolvePoolExhausted(t *testing.T) {
	service := &fakeService{strategies: map[string]int{"bob": 1}}
	resolver := newResolver(service)

	_, err := resolver.Resolve(context.Background(), []ParticipantSpec{
		{Username: "bob", Strategy: 1},
		{Query: QueryRandom, Candidates: []string{"bob"}},
	})
	require.ErrorIs(t, err, ErrPoolExhausted)
}

func TestResolveLeaderboardCachePerSource(t *testing.T) {
	service := &fakeService{
		boards:     map[string][]string{"1": {"alice", "bob", "carol"}},
		strategies: map[string]int{"alice": 2, "bob": 2, "carol": 2},
	}
	resolver := newResolver(service)

	sources := []standings.Source{{Contest: "1", Count: 3}}
	participants, err := resolver.Resolve(context.Background(), []ParticipantSpec{
		{Query: QueryLeaderboard, Sources: sources},
		{Query: QueryLeaderboard, Sources: sources},
	})
	require.NoError(t, err)
	require.NotEqual(t, participants[0].Username, participants[1].Username)
	// same source tuple, one crawl
	require.Equal(t, 1, service.boardCalls)
}

func TestValidateSpecs(t *testing.T) {
	err := ValidateSpecs(nil)
	require.Error(t, err)

	err = ValidateSpecs([]ParticipantSpec{{Query: QueryLeaderboard}})
	require.Error(t, err)

	err = ValidateSpecs([]ParticipantSpec{{Query: QueryRandom}})
	require.Error(t, err)

	err = ValidateSpecs([]ParticipantSpec{
		{Username: "alice"},
		{Query: QuerySuggest},
	})
	require.NoError(t, err)
}
