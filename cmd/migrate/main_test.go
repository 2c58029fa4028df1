package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run(context.Background(), options{cmd: "redo"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRunValidatesEmbeddedMigrations(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), options{cmd: "validate"}, &out); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "passed") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunCreateRequiresName(t *testing.T) {
	if err := run(context.Background(), options{cmd: "create", dir: t.TempDir()}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected missing name error")
	}
}

func TestRunVersionRequiresTarget(t *testing.T) {
	if err := run(context.Background(), options{cmd: "version"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected missing version error")
	}
}
