// Package gamearchive keeps a per-user on-disk cache of fetched game
// records. The remote service stays the source of truth, the archive
// only has to be cheap to extend and safe to resume.
package gamearchive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aropan/raic-cli/lib/scrapers/raicup/games"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("gamearchive")

const (
	paddedIdLength = 8
	shardLength    = 4
	stateFileName  = "state.json"
)

// Cursor bounds the next incremental sync. It is an optimization
// hint: wiping it only costs a full re-crawl, never archive contents.
type Cursor struct {
	LastGameId    string `json:"last_game_id"`
	LastPageCount int    `json:"last_page_count"`
	UserId        string `json:"user_id,omitempty"`
}

type Archive struct {
	Root string
	// concurrent detail fetches during sync, 0 picks a default
	FetchWorkers int
	// concurrent file decodes during iteration, 0 picks a default
	DecodeWorkers int
}

// PadId zero-pads a numeric game id to the fixed storage width.
func PadId(id string) string {
	if len(id) >= paddedIdLength {
		return id
	}
	return strings.Repeat("0", paddedIdLength-len(id)) + id
}

func (a Archive) userDir(username string) string {
	return filepath.Join(a.Root, username)
}

// gamePath places a game file under its shard directory: the first
// four characters of the padded id. The sharding keeps directory
// scans fast at archive scale and must stay stable, existing archives
// depend on it.
func (a Archive) gamePath(username, id string) string {
	padded := PadId(id)
	return filepath.Join(a.userDir(username), padded[:shardLength], padded)
}

// Has reports whether a game is already archived. Checked before every
// fetch so an interrupted sync re-runs cheaply.
func (a Archive) Has(username, id string) bool {
	_, err := os.Stat(a.gamePath(username, id))
	return err == nil
}

func (a Archive) writeRecord(username string, record games.Record) error {
	path := a.gamePath(username, record.Id)
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}
	contents, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return os.WriteFile(path, contents, 0644)
}

func (a Archive) readRecord(path string) (games.Record, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return games.Record{}, err
	}
	var record games.Record
	err = json.Unmarshal(contents, &record)
	if err != nil {
		return games.Record{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return record, nil
}

func (a Archive) statePath(username string) string {
	return filepath.Join(a.userDir(username), stateFileName)
}

// Cursor loads the user's archive cursor. A user never synced before
// gets the zero cursor.
func (a Archive) Cursor(username string) (Cursor, error) {
	contents, err := os.ReadFile(a.statePath(username))
	if os.IsNotExist(err) {
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, err
	}
	var cursor Cursor
	err = json.Unmarshal(contents, &cursor)
	if err != nil {
		return Cursor{}, err
	}
	return cursor, nil
}

func (a Archive) saveCursor(username string, cursor Cursor) error {
	err := os.MkdirAll(a.userDir(username), 0755)
	if err != nil {
		return err
	}
	contents, err := json.MarshalIndent(cursor, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(a.statePath(username), contents, 0644)
}
