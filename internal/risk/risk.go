package risk

import (
	"strings"

	"github.com/Dan9191/bank-batch/internal/models"
)

// Level is the categorical risk rating stored on users and deposit records.
type Level string

const (
	Unknown  Level = "unknown"
	None     Level = "none"
	Low      Level = "low"
	Moderate Level = "moderate"
	High     Level = "high"
)

var priority = map[Level]int{
	Unknown:  0,
	None:     1,
	Low:      2,
	Moderate: 3,
	High:     4,
}

// Priority orders levels from unknown (0) to high (4).
func (l Level) Priority() int {
	return priority[l]
}

// ParseLevel maps a stored level back to a Level; anything unrecognised is Unknown.
func ParseLevel(s string) Level {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := priority[l]; ok {
		return l
	}
	return Unknown
}

// Score is a bitmask of independent risk signals.
type Score int

const (
	FlagHackingEvent Score = 1 << iota
	FlagIllicitActivity
	FlagHighRiskTag
)

// Has reports whether every bit of flag is set.
func (s Score) Has(flag Score) bool {
	return s&flag == flag
}

const (
	tagIllicitActivity = "Involved Illicit Activity"
	tagHighRiskAddress = "Interact With High-risk Tag Address"
)

// Analyse reduces a vendor assessment to a level and signal bitmask.
func Analyse(a models.RiskAssessment) (Level, Score) {
	var level Level
	switch strings.ToLower(strings.TrimSpace(a.RiskLevel)) {
	case "low", "moderate":
		if a.HackingEvent == "" && len(a.DetailList) == 0 && len(a.RiskDetail) == 0 {
			level = None
		} else {
			level = Low
		}
	case "high":
		level = Moderate
	case "severe":
		level = High
	default:
		level = Unknown
	}

	var score Score
	if a.HackingEvent != "" {
		score |= FlagHackingEvent
		level = High
	}
	if anyTagContains(a, tagIllicitActivity) {
		score |= FlagIllicitActivity
		level = High
	}
	if anyTagContains(a, tagHighRiskAddress) {
		score |= FlagHighRiskTag
	}
	return level, score
}

func anyTagContains(a models.RiskAssessment, tag string) bool {
	for _, d := range a.DetailList {
		if strings.Contains(d, tag) {
			return true
		}
	}
	for _, d := range a.RiskDetail {
		if strings.Contains(d.Label, tag) {
			return true
		}
	}
	return false
}

// Merge keeps the higher-priority level (the first on ties) and ORs the scores.
func Merge(l1 Level, s1 Score, l2 Level, s2 Score) (Level, Score) {
	level := l1
	if l2.Priority() > l1.Priority() {
		level = l2
	}
	return level, s1 | s2
}

// Result is a merged rating.
type Result struct {
	Level Level
	Score Score
}

// MergeAll folds any number of ratings; the empty fold is unknown with no flags.
func MergeAll(results ...Result) Result {
	acc := Result{Level: Unknown}
	for i, r := range results {
		if i == 0 {
			acc = r
			continue
		}
		acc.Level, acc.Score = Merge(acc.Level, acc.Score, r.Level, r.Score)
	}
	return acc
}

// ApplyOverride pins the level when an operator forced one.
func ApplyOverride(override string, merged Level) Level {
	switch override {
	case models.OverrideForceLow:
		return Low
	case models.OverrideForceModerate:
		return Moderate
	case models.OverrideForceHigh:
		return High
	default:
		return merged
	}
}

// Escalated reports whether next is high and previous was not.
func Escalated(previous, next Level) bool {
	return next == High && previous != High
}
