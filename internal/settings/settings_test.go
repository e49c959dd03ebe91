package settings_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/kdu3142/old-Iara/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_EmptyInputYieldsDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, settings.Defaults(), settings.Sanitize(nil))
	assert.Equal(t, settings.Defaults(), settings.Sanitize(map[string]any{}))
}

func TestSanitize_MalformedFieldsFallBack(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"whisperModel":    42,
		"whisperLanguage": "xx",
		"ttsModel":        []any{"nope"},
		"ttsLanguage":     "   ",
		"ttsVoice":        "not-a-voice",
		"llmProvider":     "bogus",
		"llmBaseUrl":      false,
		"systemPrompt":    "\n\t",
		"qwen": map[string]any{
			"mode":        "base",
			"modelSize":   "7B",
			"temperature": "hot",
			"topK":        math.Inf(1),
			"seed":        "NaN",
			"doSample":    "maybe",
			"speaker":     "nobody",
		},
		"sentenceStreaming": "enabled",
	}

	got := settings.Sanitize(raw)
	def := settings.Defaults()

	assert.Equal(t, def, got)
}

func TestSanitize_CoercesLooseTypes(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"whisperLanguage": "PT",
		"ttsLanguage":     "  pt-BR  ",
		"llmProvider":     "ollama",
		"llmBaseUrl":      " http://localhost:11434/v1 ",
		"systemPrompt":    "  keep my spacing  ",
		"qwen": map[string]any{
			"mode":            "voiceCloning",
			"modelSize":       "0.6B",
			"language":        "PT_BR",
			"speaker":         "vivian",
			"refAudioPath":    "  /tmp/ref.wav  ",
			"xVectorOnlyMode": "yes",
			"doSample":        0,
			"seed":            "17",
			"temperature":     "0.5",
			"topK":            12.9,
			"topP":            json.Number("0.25"),
			"maxTokens":       json.Number("2048"),
		},
		"sentenceStreaming": map[string]any{
			"enabled":  "on",
			"minChars": "5",
			"maxWords": 12.0,
		},
	}

	got := settings.Sanitize(raw)

	assert.Equal(t, "pt", got.WhisperLanguage)
	assert.Equal(t, "pt-BR", got.TTSLanguage)
	assert.Equal(t, settings.ProviderOllama, got.LLMProvider)
	assert.Equal(t, "http://localhost:11434/v1", got.LLMBaseURL)
	assert.Equal(t, "  keep my spacing  ", got.SystemPrompt)
	assert.Equal(t, settings.ModeVoiceCloning, got.Qwen.Mode)
	assert.Equal(t, settings.QwenSizeSmall, got.Qwen.ModelSize)
	assert.Equal(t, "portuguese", got.Qwen.Language)
	assert.Equal(t, "Vivian", got.Qwen.Speaker)
	assert.Equal(t, "/tmp/ref.wav", got.Qwen.RefAudioPath)
	assert.True(t, got.Qwen.XVectorOnlyMode)
	assert.False(t, got.Qwen.DoSample)
	assert.Equal(t, 17, got.Qwen.Seed)
	assert.InEpsilon(t, 0.5, got.Qwen.Temperature, 1e-9)
	assert.Equal(t, 12, got.Qwen.TopK)
	assert.InEpsilon(t, 0.25, got.Qwen.TopP, 1e-9)
	assert.Equal(t, 2048, got.Qwen.MaxTokens)
	assert.True(t, got.SentenceStreaming.Enabled)
	assert.Equal(t, 5, got.SentenceStreaming.MinChars)
	assert.Equal(t, 12, got.SentenceStreaming.MaxWords)
	assert.Equal(t, 3, got.SentenceStreaming.MinWords)
}

func TestSanitize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []map[string]any{
		{},
		{"ttsModel": settings.MarvisModel, "ttsVoice": "af_bella"},
		{"ttsModel": "mlx-community/Qwen3-TTS-12Hz-0.6B-Base-bf16"},
		{"qwen": map[string]any{"mode": "voiceDesign", "modelSize": "0.6B", "language": "JA"}},
		{"qwen": map[string]any{"seed": 1e30, "topP": "0.5", "speaker": "SERENA"}},
	}

	for _, input := range inputs {
		once := settings.Sanitize(input)
		twice := settings.Sanitize(once.ToMap())

		assert.Equal(t, once, twice)
	}
}

func TestSanitize_MarvisForcesVoice(t *testing.T) {
	t.Parallel()

	got := settings.Sanitize(map[string]any{
		"ttsModel": settings.MarvisModel,
		"ttsVoice": "af_bella",
	})

	assert.Equal(t, "conversational_a", got.TTSVoice)
}

func TestSanitize_VoiceDesignForcesLargeSize(t *testing.T) {
	t.Parallel()

	got := settings.Sanitize(map[string]any{
		"ttsModel": settings.QwenFamily,
		"qwen":     map[string]any{"mode": settings.ModeVoiceDesign, "modelSize": settings.QwenSizeSmall},
	})

	assert.Equal(t, settings.QwenSizeLarge, got.Qwen.ModelSize)
	assert.Equal(t, "mlx-community/Qwen3-TTS-12Hz-1.7B-VoiceDesign-bf16", got.SynthesisModel())
}

func TestSanitize_MigratesLegacyQwenModel(t *testing.T) {
	t.Parallel()

	const legacy = "mlx-community/Qwen3-TTS-12Hz-0.6B-Base-bf16"

	raw := map[string]any{
		"ttsModel": "  " + legacy + " ",
		"qwen":     map[string]any{"mode": settings.ModeCustomVoice, "speaker": "Dylan"},
	}

	got := settings.Sanitize(raw)

	assert.Equal(t, settings.QwenFamily, got.TTSModel)
	assert.Equal(t, settings.ModeVoiceCloning, got.Qwen.Mode)
	assert.Equal(t, settings.QwenSizeSmall, got.Qwen.ModelSize)
	assert.Equal(t, "Dylan", got.Qwen.Speaker)
	assert.True(t, got.IsVoiceCloning())
	assert.Equal(t, legacy, got.SynthesisModel())

	// The input document is left untouched.
	assert.Equal(t, settings.ModeCustomVoice, raw["qwen"].(map[string]any)["mode"])
}

func TestSanitizeVersion_SkipsAppliedMigrations(t *testing.T) {
	t.Parallel()

	raw := map[string]any{"ttsModel": "mlx-community/Qwen3-TTS-12Hz-0.6B-Base-bf16"}

	got := settings.SanitizeVersion(raw, settings.CurrentSchemaVersion)

	assert.Equal(t, settings.Defaults().TTSModel, got.TTSModel)
}

func TestQwenModeModelRoundTrip(t *testing.T) {
	t.Parallel()

	for _, mode := range settings.QwenModes() {
		for _, size := range []string{settings.QwenSizeSmall, settings.QwenSizeLarge} {
			model := settings.DeriveQwenModel(mode, size)

			assert.Equal(t, mode, settings.DeriveQwenMode(model), model)
		}
	}

	assert.Equal(t,
		"mlx-community/Qwen3-TTS-12Hz-0.6B-CustomVoice-bf16",
		settings.DeriveQwenModel(settings.ModeCustomVoice, settings.QwenSizeSmall),
	)
	assert.Equal(t, settings.Defaults().Qwen.Mode, settings.DeriveQwenMode("something-else"))
}

func TestNormalizeLanguage(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                    settings.LanguageAuto,
		"  ":                  settings.LanguageAuto,
		"EN-us":               "english",
		"Portuguese (Brazil)": "portuguese",
		"zh":                  "chinese",
		" Klingon ":           "klingon",
		"AUTO":                settings.LanguageAuto,
	}

	for input, want := range cases {
		assert.Equal(t, want, settings.NormalizeLanguage(input), input)
	}
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3, settings.ParseInt("3", 9))
	assert.Equal(t, -2, settings.ParseInt(-2.7, 9))
	assert.Equal(t, 9, settings.ParseInt(math.NaN(), 9))
	assert.Equal(t, 9, settings.ParseInt(1e300, 9))
	assert.Equal(t, 9, settings.ParseInt(nil, 9))

	assert.InEpsilon(t, 1.5, settings.ParseFloat(" 1.5 ", 0), 1e-9)
	assert.InEpsilon(t, 7.0, settings.ParseFloat("Inf", 7), 1e-9)
	assert.InEpsilon(t, 7.0, settings.ParseFloat(true, 7), 1e-9)

	assert.True(t, settings.ParseBool("ON", false))
	assert.False(t, settings.ParseBool("off", true))
	assert.True(t, settings.ParseBool(2, false))
	assert.False(t, settings.ParseBool(0.0, true))
	assert.True(t, settings.ParseBool("perhaps", true))
}

func TestEqualAndDiff(t *testing.T) {
	t.Parallel()

	a := settings.Defaults()
	b := settings.Defaults()

	require.True(t, settings.Equal(a, b))
	assert.Empty(t, settings.Diff(a, b))

	b.Qwen.RefAudioPath = "/tmp/voice.wav"
	b.LLMModel = "llama3"

	assert.False(t, settings.Equal(a, b))
	assert.Equal(t, []string{"qwen.refAudioPath", "llmModel"}, settings.Diff(a, b))
}
