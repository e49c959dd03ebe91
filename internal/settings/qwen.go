package settings

import (
	"fmt"
	"regexp"
	"strings"
)

// LegacyQwenPrefix marks the discontinued scheme in which ttsModel named a
// concrete Qwen3 checkpoint instead of the family selector.
const LegacyQwenPrefix = "mlx-community/Qwen3-TTS-"

const (
	qwenFrameRate  = "12Hz"
	qwenPrecision  = "bf16"
	weightsBase    = "Base"
	weightsCustom  = "CustomVoice"
	weightsDesign  = "VoiceDesign"
	qwenModelShape = LegacyQwenPrefix + "%s-%s-%s-%s"
)

var (
	qwenSizePattern    = regexp.MustCompile(`(?:^|-)(\d+(?:\.\d+)?B)(?:-|$)`)
	qwenWeightsPattern = regexp.MustCompile(`(?:^|-)(Base|CustomVoice|VoiceDesign)(?:-|$)`)
)

var modeWeights = map[string]string{
	ModeVoiceCloning: weightsBase,
	ModeCustomVoice:  weightsCustom,
	ModeVoiceDesign:  weightsDesign,
}

var weightsMode = map[string]string{
	weightsBase:   ModeVoiceCloning,
	weightsCustom: ModeCustomVoice,
	weightsDesign: ModeVoiceDesign,
}

// DeriveQwenModel maps a mode and checkpoint size to the concrete model id.
// VoiceDesign weights only ship at 1.7B, so that size is forced for the mode.
// Unknown modes or sizes resolve to their defaults.
func DeriveQwenModel(mode, size string) string {
	defaults := Defaults().Qwen

	weights, ok := modeWeights[mode]
	if !ok {
		weights = modeWeights[defaults.Mode]
	}

	if !contains(qwenSizes, size) {
		size = defaults.ModelSize
	}

	if weights == weightsDesign {
		size = QwenSizeLarge
	}

	return fmt.Sprintf(qwenModelShape, qwenFrameRate, size, weights, qwenPrecision)
}

// DeriveQwenMode is the inverse of DeriveQwenModel. A model whose weights
// cannot be recognised resolves to the default mode.
func DeriveQwenMode(model string) string {
	match := qwenWeightsPattern.FindStringSubmatch(strings.TrimPrefix(model, LegacyQwenPrefix))
	if match == nil {
		return Defaults().Qwen.Mode
	}

	return weightsMode[match[1]]
}

// deriveQwenSize extracts the checkpoint size from a model id.
func deriveQwenSize(model string) string {
	match := qwenSizePattern.FindStringSubmatch(strings.TrimPrefix(model, LegacyQwenPrefix))
	if match == nil || !contains(qwenSizes, match[1]) {
		return Defaults().Qwen.ModelSize
	}

	return match[1]
}

// normalizeSpeaker matches a speaker name case-insensitively against the
// predefined speakers and returns its canonical spelling.
func normalizeSpeaker(value any, def string) string {
	text, ok := value.(string)
	if !ok {
		return def
	}

	wanted := strings.TrimSpace(text)
	for _, speaker := range qwenSpeakers {
		if strings.EqualFold(speaker, wanted) {
			return speaker
		}
	}

	return def
}
