package swarm_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Strob0t/FlowForge/internal/domain/swarm"
)

func TestAppendTurn_Eviction(t *testing.T) {
	s := swarm.NewState("sess", "run", 5)
	for i := 0; i < swarm.MaxConversationTurns+7; i++ {
		s.AppendTurn("agent", fmt.Sprintf("turn-%d", i))
	}
	if len(s.ConversationHistory) != swarm.MaxConversationTurns {
		t.Fatalf("expected %d turns, got %d", swarm.MaxConversationTurns, len(s.ConversationHistory))
	}
	if s.ConversationHistory[0].Content != "turn-7" {
		t.Fatalf("expected oldest turns evicted, got %s", s.ConversationHistory[0].Content)
	}
}

func TestBudgetExhausted(t *testing.T) {
	s := swarm.NewState("sess", "run", 3)
	for i := 0; i < 3; i++ {
		if s.BudgetExhausted() {
			t.Fatalf("budget exhausted too early at round %d", s.CurrentRound)
		}
		s.CurrentRound++
	}
	if !s.BudgetExhausted() {
		t.Fatal("expected budget exhausted at max rounds")
	}
}

func TestFoldFeedback(t *testing.T) {
	t.Run("empty feedback is identity", func(t *testing.T) {
		if got := swarm.FoldFeedback("task", "", 100); got != "task" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("appends feedback", func(t *testing.T) {
		got := swarm.FoldFeedback("task", "more detail", 1000)
		if !strings.Contains(got, "task") || !strings.Contains(got, "more detail") {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("truncates keeping most recent", func(t *testing.T) {
		long := strings.Repeat("x", 500)
		got := swarm.FoldFeedback(long, "recent feedback", 50)
		if len(got) != 50 {
			t.Fatalf("expected 50 bytes, got %d", len(got))
		}
		if !strings.HasSuffix(got, "recent feedback") {
			t.Fatalf("most recent content lost: %q", got)
		}
	})
}
