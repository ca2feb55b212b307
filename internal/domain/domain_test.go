package domain

import (
	"testing"
	"time"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		score      int
		wantName   string
		wantFactor float64
	}{
		{100, "Excellent", 1.2},
		{90, "Excellent", 1.2},
		{89, "Good", 1.0},
		{75, "Good", 1.0},
		{74, "Fair", 0.8},
		{60, "Fair", 0.8},
		{59, "Poor", 0.5},
		{40, "Poor", 0.5},
		{39, "Very Poor", 0.3},
		{0, "Very Poor", 0.3},
		{150, "Excellent", 1.2}, // Clamped in
		{-5, "Very Poor", 0.3},
	}
	for _, tt := range tests {
		tier := TierFor(tt.score)
		if tier.Name != tt.wantName {
			t.Errorf("TierFor(%d).Name = %q, want %q", tt.score, tier.Name, tt.wantName)
		}
		if tier.Multiplier != tt.wantFactor {
			t.Errorf("TierFor(%d).Multiplier = %v, want %v", tt.score, tier.Multiplier, tt.wantFactor)
		}
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct{ in, want int }{
		{-10, 0}, {0, 0}, {50, 50}, {100, 100}, {120, 100},
	}
	for _, tt := range tests {
		if got := ClampScore(tt.in); got != tt.want {
			t.Errorf("ClampScore(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMinutesValue(t *testing.T) {
	tests := []struct {
		xp   int
		rate float64
		want int
	}{
		{100, 1.0, 100},
		{100, 1.2, 120},
		{100, 0.3, 30},
		{50, 0.8, 40},
		{100, 1.2 * 1.3, 156}, // Redemption bonus on top of Excellent
		{0, 1.0, 0},
		{-5, 1.0, 0},
	}
	for _, tt := range tests {
		if got := MinutesValue(tt.xp, tt.rate); got != tt.want {
			t.Errorf("MinutesValue(%d, %v) = %d, want %d", tt.xp, tt.rate, got, tt.want)
		}
	}
}

func TestEffectiveLevel(t *testing.T) {
	a := &TaskAssignment{AssignedLevel: 3}
	if got := a.EffectiveLevel(); got != 3 {
		t.Errorf("EffectiveLevel = %d, want 3", got)
	}
	lvl := 5
	a.AdjustedLevel = &lvl
	if got := a.EffectiveLevel(); got != 5 {
		t.Errorf("EffectiveLevel with override = %d, want 5", got)
	}
}

func TestReviewable(t *testing.T) {
	for _, tt := range []struct {
		status AssignmentStatus
		want   bool
	}{
		{StatusAssigned, false},
		{StatusInProgress, false},
		{StatusPendingReview, true},
		{StatusAppealed, true},
		{StatusApproved, false},
		{StatusDeclined, false},
		{StatusExpired, false},
	} {
		a := &TaskAssignment{Status: tt.status}
		if got := a.Reviewable(); got != tt.want {
			t.Errorf("Reviewable(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		a    TaskAssignment
		want bool
	}{
		{"approved", TaskAssignment{Status: StatusApproved}, true},
		{"expired", TaskAssignment{Status: StatusExpired}, true},
		{"declined appealable", TaskAssignment{Status: StatusDeclined, AppealDeadline: &future}, false},
		{"declined window closed", TaskAssignment{Status: StatusDeclined, AppealDeadline: &past}, true},
		{"declined at deadline", TaskAssignment{Status: StatusDeclined, AppealDeadline: &now}, true},
		{"pending review", TaskAssignment{Status: StatusPendingReview}, false},
		{"appealed", TaskAssignment{Status: StatusAppealed}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Terminal(now); got != tt.want {
				t.Errorf("Terminal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRedemptionBonusActive(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	s := &CredibilityState{}
	if s.RedemptionBonusActive(now) {
		t.Error("no bonus should not be active")
	}
	s = &CredibilityState{HasRedemptionBonus: true, RedemptionBonusExpiry: &future}
	if !s.RedemptionBonusActive(now) {
		t.Error("unexpired bonus should be active")
	}
	s = &CredibilityState{HasRedemptionBonus: true, RedemptionBonusExpiry: &past}
	if s.RedemptionBonusActive(now) {
		t.Error("expired bonus should not be active")
	}
}

func TestTemplateBaseXP(t *testing.T) {
	tmpl := &TaskTemplate{BaseXPByLevel: map[int]int{1: 10, 2: 20, 3: 30}}
	if got := tmpl.BaseXP(2); got != 20 {
		t.Errorf("BaseXP(2) = %d, want 20", got)
	}
	// Missing level falls back to the lowest defined payout.
	if got := tmpl.BaseXP(7); got != 10 {
		t.Errorf("BaseXP(7) = %d, want fallback 10", got)
	}
}
