package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sampleConfig struct {
	BaseURL string        `split_words:"true" default:"http://localhost"`
	Retries int           `split_words:"true" default:"2"`
	Timeout time.Duration `split_words:"true" default:"1s"`
}

func TestNewReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CFGTEST_BASE_URL=http://example.test\nCFGTEST_RETRIES=5\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("CFGTEST_TIMEOUT", "3s")
	t.Cleanup(func() {
		SetEnvFile("")
		os.Unsetenv("CFGTEST_BASE_URL")
		os.Unsetenv("CFGTEST_RETRIES")
	})

	SetEnvFile(path)
	conf, err := New[sampleConfig]("CFGTEST")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.BaseURL != "http://example.test" || conf.Retries != 5 {
		t.Fatalf("conf = %+v", conf)
	}
	if conf.Timeout != 3*time.Second {
		t.Fatalf("Timeout = %v, want 3s from environment", conf.Timeout)
	}
}

func TestNewEnvironmentWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.env")
	if err := os.WriteFile(path, []byte("CFGOVR_RETRIES=9\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("CFGOVR_RETRIES", "1")
	t.Cleanup(func() { SetEnvFile("") })

	SetEnvFile(path)
	conf, err := New[sampleConfig]("CFGOVR")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Retries != 1 {
		t.Fatalf("Retries = %d, want 1", conf.Retries)
	}
}

func TestNewMissingExplicitFile(t *testing.T) {
	t.Cleanup(func() { SetEnvFile("") })

	SetEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	if _, err := New[sampleConfig]("CFGMISSING"); err == nil {
		t.Fatal("expected error for missing env file")
	}
}

func TestMustNewPanicsOnBadValue(t *testing.T) {
	t.Setenv("CFGBAD_RETRIES", "many")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustNew[sampleConfig]("CFGBAD")
}
