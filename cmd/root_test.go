package cmd

import (
	"path/filepath"
	"testing"
)

func TestConcurrencyFlagAlias(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { configPath = "" })

	if err := rootCmd.ParseFlags([]string{"--concurrency", "6"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if !rootCmd.Flags().Changed("connections") {
		t.Fatal("--concurrency did not set --connections")
	}
	cfg, err := loadConfig(rootCmd)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Concurrency != 6 {
		t.Errorf("concurrency %d, want 6", cfg.Concurrency)
	}
}
