package core

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// CookieStore persists session cookies between runs so a still-valid
// remote session skips the interactive sign-in.
type CookieStore interface {
	Load() ([]*http.Cookie, error)
	Save(cookies []*http.Cookie) error
}

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// FileCookieStore keeps cookies in a JSON file. A missing file is an
// empty cookie set, not an error.
type FileCookieStore struct {
	Path string
}

func (s FileCookieStore) Load() ([]*http.Cookie, error) {
	contents, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored []storedCookie
	err = json.Unmarshal(contents, &stored)
	if err != nil {
		return nil, err
	}

	cookies := make([]*http.Cookie, len(stored))
	for i, c := range stored {
		cookies[i] = &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Path:    c.Path,
			Expires: c.Expires,
		}
	}
	slog.Debug("cookies loaded", "path", s.Path, "count", len(cookies))
	return cookies, nil
}

func (s FileCookieStore) Save(cookies []*http.Cookie) error {
	stored := make([]storedCookie, len(cookies))
	for i, c := range cookies {
		stored[i] = storedCookie{
			Name:    c.Name,
			Value:   c.Value,
			Path:    c.Path,
			Expires: c.Expires,
		}
	}
	contents, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Dir(s.Path), 0755)
	if err != nil {
		return err
	}
	err = os.WriteFile(s.Path, contents, 0600)
	if err != nil {
		return err
	}
	slog.Debug("cookies saved", "path", s.Path, "count", len(cookies))
	return nil
}
