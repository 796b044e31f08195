package api

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestMakePreview_ShortAnswerUnchanged(t *testing.T) {
	if got := MakePreview("short answer"); got != "short answer" {
		t.Fatalf("expected unchanged preview, got %q", got)
	}
}

func TestMakePreview_TruncatesByRunes(t *testing.T) {
	long := strings.Repeat("é", 300)
	got := MakePreview(long)
	if utf8.RuneCountInString(got) != PreviewMaxChars+1 {
		t.Fatalf("expected %d runes plus ellipsis, got %d", PreviewMaxChars, utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
}

func TestMakePreview_ExactBoundaryNotTruncated(t *testing.T) {
	exact := strings.Repeat("a", PreviewMaxChars)
	if got := MakePreview(exact); got != exact {
		t.Fatalf("expected unchanged preview at the boundary")
	}
}

func TestTurnStatus_Terminal(t *testing.T) {
	cases := []struct {
		status TurnStatus
		want   bool
	}{
		{TurnRunning, false},
		{TurnCompleted, true},
		{TurnInterrupted, true},
		{TurnError, true},
	}
	for _, tc := range cases {
		if got := tc.status.Terminal(); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.status, tc.want, got)
		}
	}
}

func TestConversationItem_NeedsFollower(t *testing.T) {
	if !(ConversationItem{Kind: ItemReasoning}).NeedsFollower() {
		t.Fatalf("reasoning items need a follower")
	}
	if (ConversationItem{Kind: ItemMessage}).NeedsFollower() {
		t.Fatalf("messages do not need a follower")
	}
}
