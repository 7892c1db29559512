package faq

const (
	DefaultSimilarityThreshold = 0.85
	DefaultMaxQuestionLength   = 1000
	DefaultComplianceMessage   = "This is not really what I was trained for, therefore I cannot answer. Try again."
	DefaultGenerationPrompt    = "You are a helpful IT support assistant. Answer the user's question clearly and concisely."

	classifierTemperature        = 0
	classifierMaxTokens          = 10
	defaultGenerationTemperature = 0.7
	defaultGenerationMaxTokens   = 300
)

// DefaultClassifierPrompt asks the model for a single IT_RELATED or OFF_TOPIC token.
const DefaultClassifierPrompt = "You classify questions sent to an IT and account support desk. " +
	"IT topics include passwords, sign-in and authentication, account and profile settings, email changes, " +
	"notifications, security and data recovery. Weather, recipes, sports, jokes and general knowledge are not. " +
	"Reply with only IT_RELATED or OFF_TOPIC."

// Config holds the immutable knobs of the answer pipeline.
type Config struct {
	ClassifierModel       string
	GenerationModel       string
	ClassifierPrompt      string
	GenerationPrompt      string
	GenerationTemperature float32
	GenerationMaxTokens   int
	ComplianceMessage     string
	SimilarityThreshold   float64
	MaxQuestionLength     int
	Retry                 RetryPolicy

	// Dimension is the expected embedding length; zero disables the check.
	Dimension int
}

// DefaultConfig mirrors the values the service ships with.
func DefaultConfig() Config {
	return Config{
		ClassifierModel:       "gpt-4o-mini",
		GenerationModel:       "gpt-4o-mini",
		ClassifierPrompt:      DefaultClassifierPrompt,
		GenerationPrompt:      DefaultGenerationPrompt,
		GenerationTemperature: defaultGenerationTemperature,
		GenerationMaxTokens:   defaultGenerationMaxTokens,
		ComplianceMessage:     DefaultComplianceMessage,
		SimilarityThreshold:   DefaultSimilarityThreshold,
		MaxQuestionLength:     DefaultMaxQuestionLength,
		Retry:                 DefaultRetryPolicy(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ClassifierPrompt == "" {
		c.ClassifierPrompt = def.ClassifierPrompt
	}
	if c.GenerationPrompt == "" {
		c.GenerationPrompt = def.GenerationPrompt
	}
	if c.GenerationMaxTokens <= 0 {
		c.GenerationMaxTokens = def.GenerationMaxTokens
	}
	if c.ComplianceMessage == "" {
		c.ComplianceMessage = def.ComplianceMessage
	}
	if c.MaxQuestionLength <= 0 {
		c.MaxQuestionLength = def.MaxQuestionLength
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	return c
}

