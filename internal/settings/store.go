package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// maxTimestampMillis bounds epoch-millisecond timestamps to exact float64 integers.
const maxTimestampMillis = 1 << 53

// Default preset identity synthesized when a store has no presets.
const (
	DefaultPresetID   = "default"
	DefaultPresetName = "Default"
)

// Preset is a named, persisted snapshot of Values.
type Preset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Values    Values    `json:"values"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is the persisted document: presets in insertion order plus a pointer
// to the active one.
type Store struct {
	Version        int      `json:"version"`
	ActivePresetID string   `json:"activePresetId"`
	Presets        []Preset `json:"presets"`
}

// DefaultStore returns a store holding only the synthesized default preset.
func DefaultStore(now time.Time) Store {
	return Store{
		Version:        CurrentSchemaVersion,
		ActivePresetID: DefaultPresetID,
		Presets: []Preset{{
			ID:        DefaultPresetID,
			Name:      DefaultPresetName,
			Values:    Defaults(),
			UpdatedAt: now.UTC(),
		}},
	}
}

// NormalizeStore maps an arbitrary JSON document onto a canonical Store.
// Every preset's values pass through the sanitizer, the preset list is never
// empty and the active pointer always resolves to a member of it.
func NormalizeStore(raw map[string]any, now time.Time) Store {
	if raw == nil {
		raw = map[string]any{}
	}

	version := ParseInt(raw["version"], 0)
	rawPresets, _ := raw["presets"].([]any)

	presets := make([]Preset, 0, len(rawPresets))
	seen := make(map[string]struct{}, len(rawPresets))

	for index, item := range rawPresets {
		object, ok := item.(map[string]any)
		if !ok {
			continue
		}

		presets = append(presets, normalizePreset(object, index, version, seen, now))
	}

	if len(presets) == 0 {
		return DefaultStore(now)
	}

	activeID := stringOr(raw["activePresetId"], "")
	if _, ok := seen[activeID]; !ok {
		activeID = presets[0].ID
	}

	return Store{
		Version:        CurrentSchemaVersion,
		ActivePresetID: activeID,
		Presets:        presets,
	}
}

// Normalize runs a typed store back through NormalizeStore.
func (s Store) Normalize(now time.Time) Store {
	return NormalizeStore(s.ToMap(), now)
}

// ToMap renders the store as a JSON object.
func (s Store) ToMap() map[string]any {
	encoded, err := json.Marshal(s)
	if err != nil {
		return map[string]any{}
	}

	return decodeObject(encoded)
}

// Active returns the active preset. A store that did not come out of
// NormalizeStore may have a dangling pointer, in which case ok is false.
func (s Store) Active() (Preset, bool) {
	for _, preset := range s.Presets {
		if preset.ID == s.ActivePresetID {
			return preset, true
		}
	}

	return Preset{}, false
}

// Find looks a preset up by id.
func (s Store) Find(id string) (Preset, bool) {
	for _, preset := range s.Presets {
		if preset.ID == id {
			return preset, true
		}
	}

	return Preset{}, false
}

// ActiveValues resolves the values of the active preset, falling back to the
// first preset and finally to the defaults.
func ActiveValues(s Store) Values {
	if preset, ok := s.Active(); ok {
		return preset.Values
	}

	if len(s.Presets) > 0 {
		return s.Presets[0].Values
	}

	return Defaults()
}

func normalizePreset(
	object map[string]any,
	index, version int,
	seen map[string]struct{},
	now time.Time,
) Preset {
	id := strings.TrimSpace(stringOr(object["id"], ""))
	if _, dup := seen[id]; id == "" || dup {
		id = uniquePresetID(index, seen)
	}

	seen[id] = struct{}{}

	name := strings.TrimSpace(stringOr(object["name"], ""))
	if name == "" {
		name = fmt.Sprintf("Preset %d", index+1)
	}

	return Preset{
		ID:        id,
		Name:      name,
		Values:    SanitizeVersion(objectOr(object["values"]), version),
		UpdatedAt: parseTimestamp(object["updatedAt"], now),
	}
}

func uniquePresetID(index int, seen map[string]struct{}) string {
	for suffix := index + 1; ; suffix++ {
		candidate := fmt.Sprintf("preset-%d", suffix)
		if _, taken := seen[candidate]; !taken {
			return candidate
		}
	}
}

// parseTimestamp accepts RFC 3339 strings or epoch milliseconds.
func parseTimestamp(value any, now time.Time) time.Time {
	if text, ok := value.(string); ok {
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(text))
		if err == nil {
			return parsed.UTC()
		}

		return now.UTC()
	}

	millis, ok := toFloat(value)
	if !ok || !isFinite(millis) || millis < 0 || millis > maxTimestampMillis {
		return now.UTC()
	}

	return time.UnixMilli(int64(millis)).UTC()
}
