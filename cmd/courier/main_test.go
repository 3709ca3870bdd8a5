package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestIsHelpToken(t *testing.T) {
	t.Parallel()

	for _, tok := range []string{"help", "--help", "-h"} {
		if !isHelpToken(tok) {
			t.Errorf("expected %q to be a help token", tok)
		}
	}
	if isHelpToken("start") {
		t.Error("start should not be a help token")
	}
}

func TestDefaultSender(t *testing.T) {
	t.Parallel()

	s := defaultSender()
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		t.Fatalf("expected host:pid, got %q", s)
	}
	pid, err := strconv.Atoi(s[i+1:])
	if err != nil || pid != os.Getpid() {
		t.Fatalf("expected pid %d, got %q", os.Getpid(), s)
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	// A missing default-named file yields defaults instead of an error.
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("expected defaults, got error: %v", err)
	}
	if cfg.Service.Name != "courier" {
		t.Fatalf("unexpected defaults: %+v", cfg.Service)
	}

	// An explicitly named missing file is still an error.
	if _, err := loadConfig(filepath.Join(t.TempDir(), "custom.yaml")); err == nil {
		t.Fatal("expected error for missing non-default config")
	}
}

func TestDemoCodecKnowsBothKinds(t *testing.T) {
	t.Parallel()

	c := demoCodec()
	if !c.Knows("ping") || !c.Knows("pong") {
		t.Fatal("demo codec must know ping and pong")
	}
}
