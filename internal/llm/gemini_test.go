package llm

import "testing"

func TestGenerateConfigCarriesTemperature(t *testing.T) {
	cfg := generateConfig(CompletionRequest{Temperature: 0.4})
	if cfg.Temperature == nil {
		t.Fatal("temperature not set")
	}
	if *cfg.Temperature != 0.4 {
		t.Fatalf("temperature = %v, want 0.4", *cfg.Temperature)
	}
}
