package loop

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"taskloop/internal/model"
)

// LedgerEntry is one append-only cost record per agent invocation.
type LedgerEntry struct {
	TaskID       int     `json:"taskId"`
	TaskTitle    string  `json:"taskTitle"`
	Timestamp    string  `json:"timestamp"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	TotalCostUSD float64 `json:"totalCostUSD"`
}

// LedgerSession is the running session total.
type LedgerSession struct {
	StartTime string  `json:"startTime"`
	TotalCost float64 `json:"totalCost"`
}

// LedgerFile is the on-disk cost ledger document.
type LedgerFile struct {
	Session LedgerSession `json:"session"`
	Tasks   []LedgerEntry `json:"tasks"`
}

// Ledger owns the cost ledger file. Only the execution loop writes it,
// and only by appending entries after an invocation exits.
type Ledger struct {
	path string
}

// NewLedger creates a ledger bound to path.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// tierPricing is USD per million tokens, input/output, per tier.
var tierPricing = map[model.Tier][2]float64{
	model.TierCheap:    {0.80, 4.00},
	model.TierStandard: {3.00, 15.00},
	model.TierPremium:  {15.00, 75.00},
}

// EstimateTokens approximates token count from text length. The ledger
// is a reporting aid, not billing truth, so chars/4 is good enough.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// EstimateCost computes the estimated USD cost of an invocation.
func EstimateCost(tier model.Tier, inputTokens, outputTokens int) float64 {
	p := tierPricing[tier]
	return float64(inputTokens)/1e6*p[0] + float64(outputTokens)/1e6*p[1]
}

// Append records one invocation, updating the session total. A missing
// or unreadable ledger file is replaced with a fresh one rather than
// failing the loop.
func (l *Ledger) Append(entry LedgerEntry, sessionStart time.Time) error {
	file := l.load()
	if file.Session.StartTime == "" {
		file.Session.StartTime = sessionStart.Format(time.RFC3339)
	}
	file.Session.TotalCost += entry.TotalCostUSD
	file.Tasks = append(file.Tasks, entry)

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// Read returns the current ledger contents. Missing file yields an
// empty ledger.
func (l *Ledger) Read() LedgerFile {
	return l.load()
}

func (l *Ledger) load() LedgerFile {
	var file LedgerFile
	data, err := os.ReadFile(l.path)
	if err != nil {
		return file
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return LedgerFile{}
	}
	return file
}
