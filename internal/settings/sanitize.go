package settings

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Sanitize maps an arbitrary, possibly partial or legacy settings object onto
// a fully populated Values record. It never fails: absent, mistyped or
// malformed fields resolve to their defaults.
func Sanitize(raw map[string]any) Values {
	return SanitizeVersion(raw, 0)
}

// SanitizeVersion sanitizes values that were persisted under the given schema
// version, running only the migrations introduced after it.
func SanitizeVersion(raw map[string]any, version int) Values {
	if raw == nil {
		raw = map[string]any{}
	}

	raw = migrate(raw, version)
	def := Defaults()

	ttsModel := enumOr(raw["ttsModel"], ttsModels, def.TTSModel)

	return Values{
		WhisperModel:      enumOr(raw["whisperModel"], whisperModels, def.WhisperModel),
		WhisperLanguage:   lowerEnumOr(raw["whisperLanguage"], whisperLanguages, def.WhisperLanguage),
		TTSModel:          ttsModel,
		TTSLanguage:       nonBlankOr(raw["ttsLanguage"], def.TTSLanguage),
		TTSVoice:          sanitizeVoice(raw["ttsVoice"], ttsModel, def.TTSVoice),
		Qwen:              sanitizeQwen(objectOr(raw["qwen"]), def.Qwen),
		SentenceStreaming: sanitizeStreaming(objectOr(raw["sentenceStreaming"]), def.SentenceStreaming),
		LLMProvider:       enumOr(raw["llmProvider"], llmProviders, def.LLMProvider),
		LLMBaseURL:        nonBlankOr(raw["llmBaseUrl"], def.LLMBaseURL),
		LLMModel:          nonBlankOr(raw["llmModel"], def.LLMModel),
		SystemPrompt:      promptOr(raw["systemPrompt"], def.SystemPrompt),
	}
}

// ToMap renders the values as the JSON object shape Sanitize accepts.
func (v Values) ToMap() map[string]any {
	encoded, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}

	return decodeObject(encoded)
}

func sanitizeQwen(raw map[string]any, def QwenSettings) QwenSettings {
	qwen := QwenSettings{
		Mode:              enumOr(raw["mode"], qwenModes, def.Mode),
		ModelSize:         enumOr(raw["modelSize"], qwenSizes, def.ModelSize),
		Language:          sanitizeQwenLanguage(raw["language"], def.Language),
		Speaker:           normalizeSpeaker(raw["speaker"], def.Speaker),
		Instruct:          stringOr(raw["instruct"], def.Instruct),
		RefAudioPath:      strings.TrimSpace(stringOr(raw["refAudioPath"], def.RefAudioPath)),
		RefText:           stringOr(raw["refText"], def.RefText),
		XVectorOnlyMode:   ParseBool(raw["xVectorOnlyMode"], def.XVectorOnlyMode),
		DoSample:          ParseBool(raw["doSample"], def.DoSample),
		Seed:              ParseInt(raw["seed"], def.Seed),
		Temperature:       ParseFloat(raw["temperature"], def.Temperature),
		TopK:              ParseInt(raw["topK"], def.TopK),
		TopP:              ParseFloat(raw["topP"], def.TopP),
		RepetitionPenalty: ParseFloat(raw["repetitionPenalty"], def.RepetitionPenalty),
		MaxTokens:         ParseInt(raw["maxTokens"], def.MaxTokens),
		Speed:             ParseFloat(raw["speed"], def.Speed),
	}

	// VoiceDesign weights only exist at one size.
	if qwen.Mode == ModeVoiceDesign {
		qwen.ModelSize = QwenSizeLarge
	}

	return qwen
}

func sanitizeStreaming(raw map[string]any, def SentenceStreaming) SentenceStreaming {
	return SentenceStreaming{
		Enabled:  ParseBool(raw["enabled"], def.Enabled),
		MinChars: ParseInt(raw["minChars"], def.MinChars),
		MinWords: ParseInt(raw["minWords"], def.MinWords),
		MaxChars: ParseInt(raw["maxChars"], def.MaxChars),
		MaxWords: ParseInt(raw["maxWords"], def.MaxWords),
	}
}

// sanitizeVoice keeps a voice valid for the selected model. Qwen3 ignores
// ttsVoice, so a Kokoro voice is kept for when the user switches back.
func sanitizeVoice(value any, ttsModel, def string) string {
	if ttsModel == MarvisModel {
		return marvisVoice
	}

	return enumOr(value, kokoroVoices, def)
}

func sanitizeQwenLanguage(value any, def string) string {
	text, ok := value.(string)
	if !ok {
		return def
	}

	return NormalizeLanguage(text)
}

func lowerEnumOr(value any, allowed map[string]struct{}, def string) string {
	text, ok := value.(string)
	if !ok {
		return def
	}

	return enumOr(strings.ToLower(text), allowed, def)
}

// promptOr keeps the prompt verbatim unless it is blank.
func promptOr(value any, def string) string {
	text, ok := value.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return def
	}

	return text
}

// decodeObject decodes a JSON object keeping numbers exact.
func decodeObject(data []byte) map[string]any {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var object map[string]any

	err := decoder.Decode(&object)
	if err != nil || object == nil {
		return map[string]any{}
	}

	return object
}
