package compaction

const defaultSummaryPrompt = "Résume cette conversation en FR en 5-8 puces MAX. " +
	"Garde uniquement ce qui est utile pour répondre au prochain message. " +
	"Ne copie pas de phrases entières, reformule. Pas de meta."

// SummaryConfig holds the sampling parameters of the summarization call.
type SummaryConfig struct {
	// Temperature of the summary call.
	// Default: 0.3
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// TopP of the summary call.
	// Default: 0.9
	TopP float64 `json:"top_p" yaml:"top_p"`

	// MaxTokens caps the summary length.
	// Default: 220
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// SystemPrompt is the compression instruction sent as the system turn.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
}

// DefaultConfig returns a SummaryConfig with default values.
func DefaultConfig() SummaryConfig {
	return SummaryConfig{
		Temperature:  0.3,
		TopP:         0.9,
		MaxTokens:    220,
		SystemPrompt: defaultSummaryPrompt,
	}
}
