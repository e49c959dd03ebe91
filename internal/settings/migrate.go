package settings

import "strings"

// CurrentSchemaVersion is the schema tag written on every normalized store.
const CurrentSchemaVersion = 2

// migration rewrites raw values persisted before the schema version that
// introduced it. Steps run in order and must not mutate their input.
type migration struct {
	version int
	name    string
	apply   func(raw map[string]any) map[string]any
}

var migrations = []migration{
	{version: 2, name: "qwen3 family selector", apply: migrateLegacyQwenModel},
}

// migrate applies every step newer than fromVersion.
func migrate(raw map[string]any, fromVersion int) map[string]any {
	out := raw
	for _, step := range migrations {
		if step.version > fromVersion {
			out = step.apply(out)
		}
	}

	return out
}

// migrateLegacyQwenModel turns a ttsModel that names a concrete Qwen3
// checkpoint into the family selector plus the nested mode and size.
func migrateLegacyQwenModel(raw map[string]any) map[string]any {
	model, ok := raw["ttsModel"].(string)
	if !ok {
		return raw
	}

	model = strings.TrimSpace(model)
	if !strings.HasPrefix(model, LegacyQwenPrefix) {
		return raw
	}

	qwen := cloneObject(objectOr(raw["qwen"]))
	qwen["mode"] = DeriveQwenMode(model)
	qwen["modelSize"] = deriveQwenSize(model)

	out := cloneObject(raw)
	out["ttsModel"] = QwenFamily
	out["qwen"] = qwen

	return out
}

func cloneObject(object map[string]any) map[string]any {
	out := make(map[string]any, len(object))
	for key, value := range object {
		out[key] = value
	}

	return out
}
