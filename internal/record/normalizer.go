package record

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/turbot/reshard/internal/failures"
)

// LocationResolver maps free-text location strings to normalized places.
// Resolution is best-effort: false means the text could not be resolved, which is not an error.
// Implementations must be safe for concurrent use.
type LocationResolver interface {
	Resolve(text string) (Location, bool)
}

// the embedded sub-document which marks a record as derived from another
const derivedField = "retweeted_status"

// timestamp layouts accepted for created_at, in the order they are tried
var timestampLayouts = []string{
	time.RubyDate,
	time.RFC3339Nano,
	time.RFC3339,
	time.DateTime,
}

// MissingFieldError is returned when a required field is absent or empty
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field '%s'", e.Field)
}

// Normalizer converts Raw documents into Records.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	resolver LocationResolver
}

// NewNormalizer creates a Normalizer - resolver may be nil, in which case no locations are resolved
func NewNormalizer(resolver LocationResolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// Normalize builds a Record from a raw document read from the given source.
//
// A *MissingFieldError (or a timestamp error) means the line is unusable.
// A *failures.IncompleteRecordError means the record is derived but its linked sub-document is malformed.
func (n *Normalizer) Normalize(raw Raw, source string) (Record, error) {
	r := Record{Source: source}

	r.ID = stringField(raw, "id_str", "id")
	if r.ID == "" {
		return Record{}, &MissingFieldError{Field: "id"}
	}

	user, _ := raw["user"].(map[string]any)
	r.OwnerID = stringField(user, "id_str", "id")
	if r.OwnerID == "" {
		r.OwnerID = stringField(raw, "owner_id")
	}
	if r.OwnerID == "" {
		return Record{}, &MissingFieldError{Field: "user.id"}
	}

	r.Text = stringField(raw, "full_text", "text")

	ts, err := timestamp(raw)
	if err != nil {
		return Record{}, err
	}
	r.Timestamp = ts

	if n.resolver != nil {
		if text := locationText(raw, user); text != "" {
			if loc, ok := n.resolver.Resolve(text); ok {
				r.Location = &loc
			}
		}
	}
	if r.Location == nil {
		r.Location = resolvedLocation(raw)
	}

	r.Tags = tags(raw)

	derivedFrom, err := derivedID(raw)
	if err != nil {
		return Record{}, err
	}
	r.DerivedFrom = derivedFrom

	return r, nil
}

func timestamp(raw Raw) (time.Time, error) {
	if s := stringField(raw, "created_at"); s != "" {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised created_at timestamp '%s'", s)
	}
	// records written by a previous reshard
	if s := stringField(raw, "timestamp"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognised timestamp '%s': %w", s, err)
		}
		return t.UTC(), nil
	}
	if s := stringField(raw, "timestamp_ms"); s != "" {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp_ms '%s': %w", s, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, &MissingFieldError{Field: "created_at"}
}

// resolvedLocation returns the location already resolved by a previous reshard, if any
func resolvedLocation(raw Raw) *Location {
	doc, ok := raw["location"].(map[string]any)
	if !ok {
		return nil
	}
	loc := Location{
		ID:      stringField(doc, "id"),
		Name:    stringField(doc, "name"),
		Country: stringField(doc, "country"),
	}
	if loc.ID == "" {
		return nil
	}
	return &loc
}

// locationText prefers the tagged place over the free-text profile location
func locationText(raw Raw, user map[string]any) string {
	if place, ok := raw["place"].(map[string]any); ok {
		if s := stringField(place, "full_name", "name"); s != "" {
			return s
		}
	}
	return stringField(user, "location")
}

func tags(raw Raw) []string {
	var res []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "#")))
		if s != "" {
			res = append(res, s)
		}
	}

	if entities, ok := raw["entities"].(map[string]any); ok {
		if hashtags, ok := entities["hashtags"].([]any); ok {
			for _, h := range hashtags {
				switch v := h.(type) {
				case map[string]any:
					add(stringField(v, "text", "tag"))
				case string:
					add(v)
				}
			}
		}
	}
	if list, ok := raw["tags"].([]any); ok {
		for _, t := range list {
			if s, ok := t.(string); ok {
				add(s)
			}
		}
	}

	if len(res) == 0 {
		return nil
	}
	slices.Sort(res)
	return slices.Compact(res)
}

func derivedID(raw Raw) (string, error) {
	sub, present := raw[derivedField]
	if !present || sub == nil {
		return stringField(raw, "derived_from"), nil
	}
	doc, ok := sub.(map[string]any)
	if !ok {
		return "", failures.NewIncompleteRecordError(derivedField, fmt.Sprintf("expected an object, got %T", sub))
	}
	id := stringField(doc, "id_str", "id")
	if id == "" {
		return "", failures.NewIncompleteRecordError(derivedField, "linked document has no id")
	}
	return id, nil
}

// stringField returns the first non-empty value found for the given keys, rendered as a string
func stringField(doc map[string]any, keys ...string) string {
	if doc == nil {
		return ""
	}
	for _, k := range keys {
		v, ok := doc[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case fmt.Stringer:
			// json.Number
			s = val.String()
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		case int64:
			s = strconv.FormatInt(val, 10)
		case bool:
			s = strconv.FormatBool(val)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
