// Package settings holds the canonical voice-agent configuration record, the
// total sanitizer that maps arbitrary input onto it, and the preset store
// that persists named snapshots of it.
package settings

// Speech-to-text models understood by the backend.
const (
	WhisperTiny         = "mlx-community/whisper-tiny"
	WhisperMedium       = "mlx-community/whisper-medium-mlx"
	WhisperLargeV3      = "mlx-community/whisper-large-v3-mlx"
	WhisperLargeV3Turbo = "mlx-community/whisper-large-v3-turbo"
	WhisperDistilV3     = "mlx-community/distil-whisper-large-v3"
	WhisperTurboQ4      = "mlx-community/whisper-large-v3-turbo-q4"
)

// Text-to-speech model families. QwenFamily is a family selector; the
// concrete Qwen3 checkpoint is derived from the nested QwenSettings.
const (
	KokoroModel = "mlx-community/Kokoro-82M-bf16"
	MarvisModel = "Marvis-AI/marvis-tts-250m-v0.1"
	QwenFamily  = "qwen3-tts"
)

// LLM providers.
const (
	ProviderOpenAICompatible = "openai-compatible"
	ProviderOllama           = "ollama"
)

// Qwen3 synthesis modes.
const (
	ModeCustomVoice  = "customVoice"
	ModeVoiceDesign  = "voiceDesign"
	ModeVoiceCloning = "voiceCloning"
)

// Qwen3 checkpoint sizes.
const (
	QwenSizeSmall = "0.6B"
	QwenSizeLarge = "1.7B"
)

// DefaultSystemPrompt is the assistant prompt used when none is configured.
const DefaultSystemPrompt = "You are Pipecat, a friendly, helpful chatbot.\n\n" +
	"Your input is text transcribed in realtime from the user's voice. There may be " +
	"transcription errors. Adjust your responses automatically to account for these " +
	"errors.\n\n" +
	"Your output will be converted to audio so don't include special characters in " +
	"your answers and do not use any markdown or special formatting.\n\n" +
	"Respond to what the user said in a creative and helpful way. Keep your responses " +
	"brief unless you are explicitly asked for long or detailed responses. Normally " +
	"you should use one or two sentences at most. Keep each sentence short. Prefer " +
	"simple sentences. Try not to use long sentences with multiple comma clauses.\n\n" +
	"Start the conversation by saying, \"Hello, I'm Pipecat!\" Then stop and wait " +
	"for the user."

// Values is the flat record of synthesis, transcription and LLM parameters
// handed to the voice-agent backend. Every field has a static default.
type Values struct {
	WhisperModel      string            `json:"whisperModel"`
	WhisperLanguage   string            `json:"whisperLanguage"`
	TTSModel          string            `json:"ttsModel"`
	TTSLanguage       string            `json:"ttsLanguage"`
	TTSVoice          string            `json:"ttsVoice"`
	Qwen              QwenSettings      `json:"qwen"`
	SentenceStreaming SentenceStreaming `json:"sentenceStreaming"`
	LLMProvider       string            `json:"llmProvider"`
	LLMBaseURL        string            `json:"llmBaseUrl"`
	LLMModel          string            `json:"llmModel"`
	SystemPrompt      string            `json:"systemPrompt"`
}

// QwenSettings is the voice-cloning sub-record used when TTSModel selects
// the Qwen3 family.
type QwenSettings struct {
	Mode              string  `json:"mode"`
	ModelSize         string  `json:"modelSize"`
	Language          string  `json:"language"`
	Speaker           string  `json:"speaker"`
	Instruct          string  `json:"instruct"`
	RefAudioPath      string  `json:"refAudioPath"`
	RefText           string  `json:"refText"`
	XVectorOnlyMode   bool    `json:"xVectorOnlyMode"`
	DoSample          bool    `json:"doSample"`
	Seed              int     `json:"seed"`
	Temperature       float64 `json:"temperature"`
	TopK              int     `json:"topK"`
	TopP              float64 `json:"topP"`
	RepetitionPenalty float64 `json:"repetitionPenalty"`
	MaxTokens         int     `json:"maxTokens"`
	Speed             float64 `json:"speed"`
}

// SentenceStreaming controls how assistant text is chunked before synthesis.
type SentenceStreaming struct {
	Enabled  bool `json:"enabled"`
	MinChars int  `json:"minChars"`
	MinWords int  `json:"minWords"`
	MaxChars int  `json:"maxChars"`
	MaxWords int  `json:"maxWords"`
}

// Defaults returns a fully populated Values record.
func Defaults() Values {
	return Values{
		WhisperModel:    WhisperTurboQ4,
		WhisperLanguage: "en",
		TTSModel:        KokoroModel,
		TTSLanguage:     "en-US",
		TTSVoice:        "af_heart",
		Qwen: QwenSettings{
			Mode:              ModeCustomVoice,
			ModelSize:         QwenSizeLarge,
			Language:          "english",
			Speaker:           "Ryan",
			Instruct:          "",
			RefAudioPath:      "",
			RefText:           "",
			XVectorOnlyMode:   false,
			DoSample:          true,
			Seed:              0,
			Temperature:       0.9,
			TopK:              50,
			TopP:              1.0,
			RepetitionPenalty: 1.05,
			MaxTokens:         4096,
			Speed:             1.0,
		},
		SentenceStreaming: SentenceStreaming{
			Enabled:  false,
			MinChars: 20,
			MinWords: 3,
			MaxChars: 220,
			MaxWords: 40,
		},
		LLMProvider:  ProviderOpenAICompatible,
		LLMBaseURL:   "http://127.0.0.1:1234/v1",
		LLMModel:     "gemma-3n-e4b-it-text",
		SystemPrompt: DefaultSystemPrompt,
	}
}

// IsVoiceCloning reports whether the values select Qwen3 voice cloning, the
// only mode that needs a reference recording.
func (v Values) IsVoiceCloning() bool {
	return v.TTSModel == QwenFamily && v.Qwen.Mode == ModeVoiceCloning
}

// SynthesisModel resolves the concrete TTS checkpoint the backend must load.
func (v Values) SynthesisModel() string {
	if v.TTSModel == QwenFamily {
		return DeriveQwenModel(v.Qwen.Mode, v.Qwen.ModelSize)
	}

	return v.TTSModel
}

var whisperModels = setOf(
	WhisperTiny,
	WhisperMedium,
	WhisperLargeV3,
	WhisperLargeV3Turbo,
	WhisperDistilV3,
	WhisperTurboQ4,
)

var whisperLanguages = setOf(
	"ar", "bn", "cs", "da", "de", "el", "en", "es", "fa", "fi",
	"fr", "hi", "hu", "id", "it", "ja", "ko", "nl", "pl", "pt",
	"ro", "ru", "sk", "sv", "th", "tr", "uk", "ur", "vi", "zh",
)

var ttsModels = setOf(KokoroModel, MarvisModel, QwenFamily)

var llmProviders = setOf(ProviderOpenAICompatible, ProviderOllama)

var qwenModes = setOf(ModeCustomVoice, ModeVoiceDesign, ModeVoiceCloning)

var qwenSizes = setOf(QwenSizeSmall, QwenSizeLarge)

var kokoroVoices = setOf(
	"af_heart", "af_alloy", "af_aoede", "af_bella", "af_jessica", "af_kore",
	"af_nicole", "af_nova", "af_river", "af_sarah", "af_sky", "am_adam",
	"am_echo", "am_eric", "am_fenrir", "am_liam", "am_michael", "am_onyx",
	"am_puck", "am_santa", "bf_alice", "bf_emma", "bf_isabella", "bf_lily",
	"bm_daniel", "bm_fable", "bm_george", "bm_lewis", "jf_alpha",
	"jf_gongitsune", "jf_nezumi", "jf_tebukuro", "jm_kumo", "zf_xiaobei",
	"zf_xiaoni", "zf_xiaoxiao", "zf_xiaoyi", "zm_yunjian", "zm_yunxi",
	"zm_yunxia", "zm_yunyang", "ef_dora", "em_alex", "em_santa", "ff_siwis",
	"hf_alpha", "hf_beta", "hm_omega", "hm_psi", "if_sara", "im_nicola",
	"pf_dora", "pm_alex", "pm_santa",
)

const marvisVoice = "conversational_a"

var qwenSpeakers = []string{
	"Vivian", "Serena", "Uncle_Fu", "Dylan", "Eric", "Ryan", "Aiden", "Ono_Anna", "Sohee",
}

// WhisperModels lists the accepted speech-to-text models.
func WhisperModels() []string {
	return []string{
		WhisperTiny, WhisperMedium, WhisperLargeV3,
		WhisperLargeV3Turbo, WhisperDistilV3, WhisperTurboQ4,
	}
}

// QwenModes lists the Qwen3 synthesis modes.
func QwenModes() []string {
	return []string{ModeCustomVoice, ModeVoiceDesign, ModeVoiceCloning}
}

// QwenSpeakers lists the predefined Qwen3 speakers.
func QwenSpeakers() []string {
	out := make([]string, len(qwenSpeakers))
	copy(out, qwenSpeakers)

	return out
}

func setOf(items ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}

	return set
}

func contains(set map[string]struct{}, value string) bool {
	_, ok := set[value]

	return ok
}
