package config

import (
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds the application configuration.
type Settings struct {
	InferenceURL          string `envconfig:"INFERENCE_URL" default:"https://us.inference.heroku.com"`
	InferenceKey          string `envconfig:"INFERENCE_KEY" default:""`
	ModelID               string `envconfig:"INFERENCE_MODEL_ID" default:"claude-4-sonnet"`
	TimeoutMS             int    `envconfig:"INFERENCE_TIMEOUT_MS" default:"60000"`
	Port                  int    `envconfig:"PORT" default:"6066"`
	PhoenixURL            string `envconfig:"PHOENIX_URL" default:"http://localhost:6006"`
	ExtractPath           string `envconfig:"PHOENIX_OPENAI_EXTRACT_CONTENT_PATH" default:"choices[0].message.content"`
	DisableResponseFormat bool   `envconfig:"PHOENIX_OPENAI_DISABLE_RESPONSE_FORMAT" default:"false"`
	CaptureContent        bool   `envconfig:"PHOENIX_LLM_ENABLE_CONTENT_CAPTURE" default:"true"`
	CapturePayloads       bool   `envconfig:"PHOENIX_LLM_TRACE_ALL_PAYLOADS" default:"false"`
	Debug                 bool   `envconfig:"PHOENIX_TRACE_DEBUG" default:"false"`
	ConfigFile            string `envconfig:"PHOENIX_OPENAI_CONFIG_FILE" default:"/tmp/phoenix_config.json"`
}

// Load reads configuration from environment variables.
func Load() *Settings {
	var s Settings
	err := envconfig.Process("", &s)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return &s
}

// BaseURL returns the versioned inference endpoint.
func (s *Settings) BaseURL() string {
	return strings.TrimRight(s.InferenceURL, "/") + "/v1"
}

// Timeout returns the upstream request timeout.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// RedactedKey returns a loggable form of the inference key.
func (s *Settings) RedactedKey() string {
	if s.InferenceKey == "" {
		return "NOT SET"
	}
	if len(s.InferenceKey) <= 5 {
		return s.InferenceKey + "..."
	}
	return s.InferenceKey[:5] + "..."
}
