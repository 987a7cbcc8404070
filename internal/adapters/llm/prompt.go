package llm

import "strings"

// summarizeInstruction is sent as the system prompt of every Summarize call.
const summarizeInstruction = "Summarize the following text in one or two words to use as a label on a web page"

const (
	DefaultTemperature = float32(0.5)
	DefaultTopP        = float32(0.95)
	DefaultMaxTokens   = 4000
)

// Params are the sampling settings shared by every provider. A nil
// Temperature means unset; zero is a valid temperature.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature *float32
	TopP        float32
}

// withDefaults fills unset fields with the package defaults.
func (p Params) withDefaults(model string) Params {
	if p.Model == "" {
		p.Model = model
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.Temperature == nil {
		temp := DefaultTemperature
		p.Temperature = &temp
	}
	if p.TopP <= 0 {
		p.TopP = DefaultTopP
	}
	return p
}

// cleanLabel trims the whitespace and quotes models like to wrap labels in.
func cleanLabel(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'")
}
