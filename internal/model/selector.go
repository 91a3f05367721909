// Package model maps tasks to model capability tiers.
package model

import (
	"strings"

	"taskloop/internal/taskstore"
)

// Tier is a discrete model capability/cost level.
type Tier string

const (
	// TierCheap is the cost-biased default for mechanical tasks.
	TierCheap Tier = "cheap"
	// TierStandard handles explicitly or implicitly complex tasks.
	TierStandard Tier = "standard"
	// TierPremium is reserved for planning/feedback flows and is never
	// auto-selected by the task loop.
	TierPremium Tier = "premium"
)

const (
	tagSimple   = "[simple]"
	tagComplex  = "[complex]"
	tagCritical = "[critical]"
)

// complexityKeywords mark architecturally significant work that escalates
// an untagged task to the standard tier.
var complexityKeywords = []string{
	"architecture",
	"database",
	"migration",
	"security",
	"api",
	"schema",
	"refactor",
	"design",
	"plan",
	"implement",
	"build",
	"critical",
}

// Select maps a task to a tier. Pure and deterministic.
//
// Priority order: an explicit [SIMPLE] tag always wins (cheap), then
// [COMPLEX]/[CRITICAL] (standard), then the keyword heuristic (standard),
// else cheap. Absence of signal means cheapest tier because most tasks
// are mechanical.
func Select(t taskstore.Task) Tier {
	text := strings.ToLower(t.Title + " " + t.DetailText())

	if strings.Contains(text, tagSimple) {
		return TierCheap
	}
	if strings.Contains(text, tagComplex) || strings.Contains(text, tagCritical) {
		return TierStandard
	}
	for _, kw := range complexityKeywords {
		if strings.Contains(text, kw) {
			return TierStandard
		}
	}
	return TierCheap
}

// defaultModels maps tiers to direct-API model identifiers.
var defaultModels = map[Tier]string{
	TierCheap:    "claude-3-5-haiku-latest",
	TierStandard: "claude-sonnet-4-20250514",
	TierPremium:  "claude-opus-4-20250514",
}

// ModelID returns the provider model identifier for a tier, preferring
// the override when non-empty.
func ModelID(tier Tier, override string) string {
	if override != "" {
		return override
	}
	return defaultModels[tier]
}
