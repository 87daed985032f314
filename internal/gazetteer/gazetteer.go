// Package gazetteer resolves free-text location strings to normalized places using a static table of
// place names and aliases.
package gazetteer

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
	"github.com/turbot/reshard/internal/record"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Entry is a single place in a gazetteer file
type Entry struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Country string   `json:"country,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
}

// Gazetteer is an immutable index from normalized names to places. It is safe for concurrent use.
type Gazetteer struct {
	index map[string]record.Location
}

// Load reads a JSON array of entries from path
func Load(path string) (*Gazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gazetteer: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse gazetteer %s: %w", path, err)
	}
	g, err := New(entries)
	if err != nil {
		return nil, fmt.Errorf("invalid gazetteer %s: %w", path, err)
	}
	slog.Info("loaded gazetteer", "path", path, "entries", len(entries), "keys", len(g.index))
	return g, nil
}

// New builds a Gazetteer from entries.
// Names and aliases are indexed by their normalized form; if two entries claim the same key the first wins.
func New(entries []Entry) (*Gazetteer, error) {
	g := &Gazetteer{index: make(map[string]record.Location)}
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("entry %d has no id", i)
		}
		loc := record.Location{ID: e.ID, Name: e.Name, Country: e.Country}
		for _, name := range append([]string{e.Name}, e.Aliases...) {
			key := Normalize(name)
			if key == "" {
				continue
			}
			if existing, ok := g.index[key]; ok {
				if existing.ID != loc.ID {
					slog.Debug("gazetteer key already claimed", "key", key, "kept", existing.ID, "ignored", loc.ID)
				}
				continue
			}
			g.index[key] = loc
		}
	}
	return g, nil
}

// Len returns the number of indexed keys
func (g *Gazetteer) Len() int {
	return len(g.index)
}

// Resolve implements record.LocationResolver.
// The full text is tried first, then each comma separated segment from the most specific (leftmost).
func (g *Gazetteer) Resolve(text string) (record.Location, bool) {
	if loc, ok := g.index[Normalize(text)]; ok {
		return loc, true
	}
	segments := strings.Split(text, ",")
	if len(segments) < 2 {
		return record.Location{}, false
	}
	for _, s := range segments {
		if loc, ok := g.index[Normalize(s)]; ok {
			return loc, true
		}
	}
	return record.Location{}, false
}

// Normalize folds case, strips diacritics and collapses everything which is not a letter or digit to
// single spaces, so "  São  Paulo!! " and "sao paulo" produce the same key.
func Normalize(s string) string {
	// transformers and casers are stateful - build per call
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)

	var sb strings.Builder
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			space = false
			sb.WriteRune(r)
			continue
		}
		space = true
	}
	return sb.String()
}
