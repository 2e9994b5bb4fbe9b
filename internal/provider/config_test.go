package provider

import (
	"errors"
	"strings"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

// validConfigs returns a complete Config for every backend.
func validConfigs() map[Backend]Config {
	return map[Backend]Config{
		BackendOllama: {Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434", Model: "gemma:2b"}},
		BackendOpenAI: {Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"}},
		BackendAzure: {Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{
			APIKey: "key", Endpoint: "https://my.openai.azure.com", Deployment: "gpt-4o", APIVersion: "2024-02-01",
		}},
		BackendGemini: {Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test", Model: "gemini-1.5-pro"}},
		BackendArk:    {Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-key", Model: "ep-20250101-abc"}},
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	for b, cfg := range validConfigs() {
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: Validate() = %v, want nil", b, err)
		}
	}

	// Each case blanks one field of an otherwise valid config; the error
	// must name the env var that fills it.
	tests := []struct {
		backend Backend
		wantEnv string
		blank   func(*Config)
	}{
		{BackendOllama, "OLLAMA_HOST", func(c *Config) { c.Ollama.Host = "" }},
		{BackendOllama, "OLLAMA_MODEL", func(c *Config) { c.Ollama.Model = "" }},
		{BackendOpenAI, "OPENAI_API_KEY", func(c *Config) { c.OpenAI.APIKey = "" }},
		{BackendOpenAI, "OPENAI_MODEL", func(c *Config) { c.OpenAI.Model = "" }},
		{BackendAzure, "AZURE_OPENAI_API_KEY", func(c *Config) { c.AzureOpenAI.APIKey = "" }},
		{BackendAzure, "AZURE_OPENAI_ENDPOINT", func(c *Config) { c.AzureOpenAI.Endpoint = "" }},
		{BackendAzure, "AZURE_OPENAI_DEPLOYMENT", func(c *Config) { c.AzureOpenAI.Deployment = "" }},
		{BackendGemini, "GOOGLE_API_KEY", func(c *Config) { c.Gemini.APIKey = "" }},
		{BackendGemini, "GEMINI_MODEL", func(c *Config) { c.Gemini.Model = "" }},
		{BackendArk, "ARK_API_KEY", func(c *Config) { c.Ark.APIKey = "" }},
		{BackendArk, "ARK_MODEL", func(c *Config) { c.Ark.Model = "" }},
		{BackendOllama, "MODEL_TEMPERATURE", func(c *Config) { c.Tuning.Temperature = 3 }},
		{BackendOpenAI, "MODEL_TEMPERATURE", func(c *Config) { c.Tuning.Temperature = -0.5 }},
		{"llamafile", "unknown backend", func(c *Config) { c.Backend = "llamafile" }},
	}
	for _, tc := range tests {
		t.Run(string(tc.backend)+"/"+tc.wantEnv, func(t *testing.T) {
			t.Parallel()
			cfg := validConfigs()[tc.backend]
			if tc.backend == "llamafile" {
				cfg = validConfigs()[BackendOllama]
			}
			tc.blank(&cfg)

			err := cfg.Validate()
			if !errors.Is(err, rag.ErrConfiguration) {
				t.Fatalf("Validate() = %v, want rag.ErrConfiguration", err)
			}
			if !strings.Contains(err.Error(), tc.wantEnv) {
				t.Errorf("Validate() = %q, want it to name %s", err, tc.wantEnv)
			}
		})
	}
}

func TestModelName(t *testing.T) {
	t.Parallel()

	want := map[Backend]string{
		BackendOllama: "gemma:2b",
		BackendOpenAI: "gpt-4o",
		BackendAzure:  "gpt-4o",
		BackendGemini: "gemini-1.5-pro",
		BackendArk:    "ep-20250101-abc",
	}
	for b, cfg := range validConfigs() {
		if got := cfg.ModelName(); got != want[b] {
			t.Errorf("%s: ModelName() = %q, want %q", b, got, want[b])
		}
	}
	if got := (&Config{Backend: "none"}).ModelName(); got != "" {
		t.Errorf("unknown backend ModelName() = %q, want empty", got)
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		deployment string
		want       bool
	}{
		// known o-series
		{"o1", true},
		{"o1-preview", true},
		{"o1-mini", true},
		{"o3", true},
		{"o3-mini", true},
		{"o3-pro", true},
		{"o4-mini", true},
		{"O1-PREVIEW", true},
		{"O3-Mini", true},
		// codex-class
		{"codex-mini", true},
		{"codex", true},
		{"gpt-5.2-codex", false}, // "codex" not at start
		// standard models
		{"gpt-4o", false},
		{"gpt-4o-mini", false},
		{"gpt-4", false},
		{"gpt-4.1", false},
		{"gpt-35-turbo", false},
		{"my-custom-deployment", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.deployment, func(t *testing.T) {
			t.Parallel()
			got := isAzureReasoningModel(tc.deployment)
			if got != tc.want {
				t.Errorf("isAzureReasoningModel(%q) = %v, want %v", tc.deployment, got, tc.want)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("MODEL_MAX_TOKENS", "512")
	t.Setenv("MODEL_TEMPERATURE", "not-a-number")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendOpenAI {
		t.Errorf("Backend = %q, want openai", cfg.Backend)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("OpenAI.Model = %q, want default gpt-4o-mini", cfg.OpenAI.Model)
	}
	if cfg.Tuning.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d, want 512", cfg.Tuning.MaxTokens)
	}
	if cfg.Tuning.Temperature != 0.1 {
		t.Errorf("Temperature = %v, want fallback 0.1", cfg.Tuning.Temperature)
	}
	if got := cfg.ModelName(); got != "gpt-4o-mini" {
		t.Errorf("ModelName() = %q", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}
