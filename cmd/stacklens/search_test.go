package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestSearchCmd(t *testing.T) {
	a := newTestApp(t)

	cmd := NewSearchCmd(a)
	cmd.SetArgs([]string{"-s", "java", "payment", "api", "timing", "out"})

	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, "INC-JAVA") {
		t.Errorf("expected same-stack match INC-JAVA in output, got %q", output)
	}
	if !strings.Contains(output, "Cross-stack insights:") {
		t.Errorf("expected cross-stack section in output, got %q", output)
	}
	if !strings.Contains(output, "INC-PY") {
		t.Errorf("expected cross-stack incident INC-PY in output, got %q", output)
	}
}

func TestSearchCmdUnknownStack(t *testing.T) {
	a := newTestApp(t)

	cmd := NewSearchCmd(a)
	cmd.SetArgs([]string{"-s", "cobol", "payment failing"})

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for unknown stack")
	}
}

func TestSearchCmdEmptyCorpus(t *testing.T) {
	a := newTestApp(t)
	a.index = nil
	a.cfg.Index.Backend = "memory"

	cmd := NewSearchCmd(a)
	cmd.SetArgs([]string{"-s", "java", "novel failure"})

	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "No similar incidents found.") {
		t.Errorf("expected empty-corpus message, got %q", out.String())
	}
}
