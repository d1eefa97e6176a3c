package window

import (
	"fmt"
	"strings"

	"sinhome/internal/compaction"
	"sinhome/internal/provider"
	"sinhome/internal/textnorm"
)

// Defaults of the budget-aware policy.
const (
	DefaultCouplesToKeep = 15
	DefaultTokenBudget   = 4000
	DefaultTruncateChars = 300
)

// Audit tags.
const (
	TagKept    = "KEPT"
	TagDropped = "DROPPED"
)

// Selector bounds history by couples and token budget.
type Selector struct {
	// TruncateChars caps every text turn, cut at a word boundary.
	TruncateChars int

	counter *compaction.TokenCounter
}

// NewSelector creates a Selector. truncateChars <= 0 selects the default.
func NewSelector(truncateChars int) *Selector {
	if truncateChars <= 0 {
		truncateChars = DefaultTruncateChars
	}
	return &Selector{
		TruncateChars: truncateChars,
		counter:       compaction.NewTokenCounter(),
	}
}

var defaultSelector = NewSelector(DefaultTruncateChars)

// TrimToLastCouples applies the couple-trim policy with default settings.
func TrimToLastCouples(history []provider.Turn, couplesToKeep int) []provider.Turn {
	return defaultSelector.TrimToLastCouples(history, couplesToKeep)
}

// SelectWithBudget applies the budget-aware policy with default settings.
func SelectWithBudget(history []provider.Turn, couplesToKeep, tokenBudget int) ([]provider.Turn, []string) {
	return defaultSelector.SelectWithBudget(history, couplesToKeep, tokenBudget)
}

// BuildLimited shapes messages with the default couples and token budget.
func BuildLimited(system *provider.Turn, history []provider.Turn, userText provider.Content) ([]provider.Turn, []string) {
	return defaultSelector.BuildLimited(system, history, userText, DefaultCouplesToKeep, DefaultTokenBudget)
}

// BuildLimited bounds history with the budget-aware policy and shapes the
// result with BuildMessages. The audit trail is returned alongside.
func (s *Selector) BuildLimited(system *provider.Turn, history []provider.Turn, userText provider.Content, couplesToKeep, tokenBudget int) ([]provider.Turn, []string) {
	kept, audit := s.SelectWithBudget(history, couplesToKeep, tokenBudget)
	return BuildMessages(system, kept, userText), audit
}

type indexedTurn struct {
	idx  int
	turn provider.Turn
}

// DedupeAssistantHistory drops assistant text turns whose canonical form
// reappears later in history, keeping the most recent occurrence.
func DedupeAssistantHistory(history []provider.Turn) []provider.Turn {
	out := make([]provider.Turn, 0, len(history))
	for _, it := range dedupeIndexed(history) {
		out = append(out, it.turn)
	}
	return out
}

func dedupeIndexed(history []provider.Turn) []indexedTurn {
	seen := make(map[string]struct{})
	rev := make([]indexedTurn, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if t.Role == provider.RoleAssistant && !t.Content.IsParts() {
			key := textnorm.Canonicalize(t.Content.Text)
			if key != "" {
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
		}
		rev = append(rev, indexedTurn{idx: i, turn: t})
	}
	for l, r := 0, len(rev)-1; l < r; l, r = l+1, r-1 {
		rev[l], rev[r] = rev[r], rev[l]
	}
	return rev
}

// filter keeps user and assistant turns with content, drops plain-text
// assistant noise and truncates text turns.
func (s *Selector) filter(turns []indexedTurn) []indexedTurn {
	out := make([]indexedTurn, 0, len(turns))
	for _, it := range turns {
		t := it.turn
		if t.Role != provider.RoleUser && t.Role != provider.RoleAssistant {
			continue
		}
		if t.Content.IsEmpty() {
			continue
		}
		if t.Role == provider.RoleAssistant && !t.Content.IsParts() && textnorm.LooksOnlyEmojiOrPunct(t.Content.Text) {
			continue
		}
		if !t.Content.IsParts() {
			t.Content = provider.TextContent(textnorm.TruncateAtWordBoundary(t.Content.Text, s.TruncateChars))
		}
		out = append(out, indexedTurn{idx: it.idx, turn: t})
	}
	return out
}

// lastCouples groups turns into same-role blocks and pairs them from the
// end, keeping at most n couples in chronological order. An unpaired
// leading block is discarded.
func lastCouples(turns []indexedTurn, n int) []indexedTurn {
	var blocks [][]indexedTurn
	for _, it := range turns {
		if k := len(blocks); k > 0 && blocks[k-1][0].turn.Role == it.turn.Role {
			blocks[k-1] = append(blocks[k-1], it)
			continue
		}
		blocks = append(blocks, []indexedTurn{it})
	}

	var couples [][]indexedTurn
	for i := len(blocks) - 1; i >= 1 && len(couples) < n; i -= 2 {
		couple := make([]indexedTurn, 0, len(blocks[i-1])+len(blocks[i]))
		couple = append(couple, blocks[i-1]...)
		couple = append(couple, blocks[i]...)
		couples = append(couples, couple)
	}

	var out []indexedTurn
	for i := len(couples) - 1; i >= 0; i-- {
		out = append(out, couples[i]...)
	}
	return out
}

// TrimToLastCouples deduplicates, filters and truncates history, then keeps
// the last couplesToKeep couples.
func (s *Selector) TrimToLastCouples(history []provider.Turn, couplesToKeep int) []provider.Turn {
	if couplesToKeep <= 0 {
		return []provider.Turn{}
	}
	filtered := s.filter(dedupeIndexed(history))
	return turnsOf(lastCouples(filtered, couplesToKeep))
}

// SelectWithBudget runs the couple-trim steps and then keeps, from newest
// to oldest, every candidate whose estimated cost (at least one token)
// still fits tokenBudget.
// A turn that does not fit is skipped without stopping the scan. A
// negative budget counts as zero.
//
// The audit trail has one line per original history index, tagged KEPT or
// DROPPED. It is empty when no turn survives filtering.
func (s *Selector) SelectWithBudget(history []provider.Turn, couplesToKeep, tokenBudget int) ([]provider.Turn, []string) {
	if len(history) == 0 {
		return []provider.Turn{}, []string{}
	}
	filtered := s.filter(dedupeIndexed(history))
	if len(filtered) == 0 {
		return []provider.Turn{}, []string{}
	}

	var candidates []indexedTurn
	if couplesToKeep > 0 {
		candidates = lastCouples(filtered, couplesToKeep)
	}

	budget := max(tokenBudget, 0)
	used := 0
	keptRev := make([]indexedTurn, 0, len(candidates))
	for i := len(candidates) - 1; i >= 0; i-- {
		cost := max(1, s.counter.EstimateContent(candidates[i].turn.Content))
		if used+cost > budget {
			continue
		}
		keptRev = append(keptRev, candidates[i])
		used += cost
	}

	kept := make([]indexedTurn, 0, len(keptRev))
	keptIdx := make(map[int]struct{}, len(keptRev))
	for i := len(keptRev) - 1; i >= 0; i-- {
		kept = append(kept, keptRev[i])
		keptIdx[keptRev[i].idx] = struct{}{}
	}

	audit := make([]string, 0, len(history))
	for i, t := range history {
		tag := TagDropped
		if _, ok := keptIdx[i]; ok {
			tag = TagKept
		}
		audit = append(audit, s.auditLine(tag, i, t))
	}
	return turnsOf(kept), audit
}

func (s *Selector) auditLine(tag string, idx int, t provider.Turn) string {
	role := strings.ToUpper(string(t.Role))
	if role == "" {
		role = "UNKNOWN"
	}
	text := textnorm.TruncateAtWordBoundary(t.Content.PlainText(), s.TruncateChars)
	return fmt.Sprintf("[%s][%d][%s]: %s", tag, idx, role, text)
}

func turnsOf(its []indexedTurn) []provider.Turn {
	out := make([]provider.Turn, 0, len(its))
	for _, it := range its {
		out = append(out, it.turn)
	}
	return out
}
