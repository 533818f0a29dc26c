package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/erasmolabs/erasmo/internal/advisor"
)

func newCaptureCmd() (*cobra.Command, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	c := &cobra.Command{}
	c.SetOut(buf)
	c.SetErr(buf)
	return c, buf
}

func TestVersionCommand(t *testing.T) {
	c, buf := newCaptureCmd()
	versionCmd.Run(c, nil)

	if got := buf.String(); !strings.Contains(got, "erasmo version") {
		t.Errorf("version output = %q", got)
	}
}

func TestPrintReplyAnswer(t *testing.T) {
	c, buf := newCaptureCmd()
	printReply(c, &advisor.Reply{
		Answer: &advisor.StructuredAnswer{
			Conceptual: "Delegation scales leadership.",
			ActionPlan: []string{"Pick one report", "Hand over a project"},
			Priority:   advisor.PriorityHigh,
			Timeline:   "2-4 weeks",
			Citations:  []uuid.UUID{uuid.New()},
		},
	})

	out := buf.String()
	for _, want := range []string{
		"Delegation scales leadership.",
		"Action plan:",
		"1. Pick one report",
		"2. Hand over a project",
		"Priority: high",
		"Timeline: 2-4 weeks",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReplyClarification(t *testing.T) {
	c, buf := newCaptureCmd()
	printReply(c, &advisor.Reply{
		Clarification: &advisor.Clarification{
			Reason:    advisor.ReasonNoSubject,
			Questions: []string{"What specifically do you need help with?"},
		},
	})

	out := buf.String()
	if !strings.Contains(out, "What specifically do you need help with?") {
		t.Errorf("output missing clarifying question:\n%s", out)
	}
	if strings.Contains(out, "Action plan") {
		t.Errorf("clarification output contains answer sections:\n%s", out)
	}
}

func TestReadSourcePlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("Lead by example."), 0o600); err != nil {
		t.Fatal(err)
	}

	name, text, err := readSource(context.Background(), path)
	if err != nil {
		t.Fatalf("readSource() error = %v", err)
	}
	if name != "notes.txt" {
		t.Errorf("name = %q, want notes.txt", name)
	}
	if text != "Lead by example." {
		t.Errorf("text = %q", text)
	}
}

func TestReadSourceHTML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	page := `<html><head><title>Playbook</title></head><body>
		<script>tracker()</script>
		<p>Strategy is about saying no.</p>
	</body></html>`
	if err := os.WriteFile(path, []byte(page), 0o600); err != nil {
		t.Fatal(err)
	}

	_, text, err := readSource(context.Background(), path)
	if err != nil {
		t.Fatalf("readSource() error = %v", err)
	}
	if !strings.Contains(text, "Strategy is about saying no.") {
		t.Errorf("text missing body content: %q", text)
	}
	if strings.Contains(text, "tracker()") {
		t.Errorf("text contains script content: %q", text)
	}
}
