package standings

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aropan/raic-cli/lib/scrapers/raicup/core"
	"github.com/aropan/raic-cli/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func standingsPage(total int, users ...string) string {
	rows := ""
	for _, user := range users {
		rows += fmt.Sprintf(`<tr><td class="contestant"><a href="/profile/%s">%s</a></td></tr>`, user, user)
	}
	pagination := ""
	for i := 1; i <= total; i++ {
		pagination += fmt.Sprintf(`<span class="page-index" pageindex="%d">%d</span>`, i, i)
	}
	return fmt.Sprintf(
		`<html><body><table class="standings">%s</table>%s</body></html>`,
		rows, pagination,
	)
}

func newTestClient(t *testing.T, baseUrl string) Client {
	coreClient, err := core.NewClient(context.Background(), core.ClientOptions{
		BaseUrl:          baseUrl,
		StatusRetryDelay: time.Millisecond,
		TransportBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return NewClient(coreClient)
}

func TestTopUsers(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/raicup/standings")
	defer cleanup()

	pagesFetched := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesFetched++
		switch r.URL.Path {
		case "/contest/1/standings/page/1":
			fmt.Fprint(w, standingsPage(3, "alice", "bob"))
		case "/contest/1/standings/page/2":
			fmt.Fprint(w, standingsPage(3, "carol", "dave"))
		case "/contest/1/standings/page/3":
			fmt.Fprint(w, standingsPage(3, "erin", "frank"))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	users, err := client.TopUsers(context.Background(), Source{Contest: "1", Count: 3})
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob", "carol"}, users)
	// the count was filled on page 2, page 3 never got fetched
	require.Equal(t, 2, pagesFetched)
}

func TestTopUsersWithExclusion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/contest/1/standings/page/1":
			fmt.Fprint(w, standingsPage(1, "alice", "bob", "carol", "dave"))
		case "/contest/2/standings/page/1":
			fmt.Fprint(w, standingsPage(1, "bob", "dave"))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	users, err := client.TopUsers(context.Background(), Source{
		Contest:        "1",
		Count:          2,
		ExcludeContest: "2",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "carol"}, users)
}

func TestTopUsersEmptyStandings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, standingsPage(1))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	users, err := client.TopUsers(context.Background(), Source{Contest: "1", Count: 5})
	require.NoError(t, err)
	require.Empty(t, users)
}
