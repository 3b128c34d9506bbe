package engine

import (
	"math"
	"strings"
	"time"
)

// Window is the trailing interval over which per-method admissions are counted.
const Window = 60 * time.Second

// Budgets maps a method to its maximum admissions per Window. A method with
// no entry is unlimited.
type Budgets map[string]int

// DefaultBudgets holds the per-method Slack Web API limits (requests per minute).
var DefaultBudgets = Budgets{
	"chat.postMessage":         300,
	"chat.update":              50,
	"conversations.list":       20,
	"conversations.info":       20,
	"conversations.create":     20,
	"conversations.history":    50,
	"conversations.replies":    50,
	"conversations.setTopic":   20,
	"conversations.setPurpose": 20,
	"conversations.archive":    20,
	"reactions.add":            20,
	"reactions.remove":         20,
	"search.messages":          20,
	"pins.add":                 20,
	"pins.remove":              20,
	"users.list":               20,
	"users.profile.get":        100,
	"auth.test":                100,
}

// Limit returns the budget for method and whether one is configured.
func (b Budgets) Limit(method string) (int, bool) {
	if b == nil {
		return 0, false
	}
	limit, ok := b[method]
	if !ok || limit <= 0 {
		return 0, false
	}
	return limit, true
}

// Clone returns a copy that can be modified without touching b.
func (b Budgets) Clone() Budgets {
	out := make(Budgets, len(b))
	for method, limit := range b {
		out[method] = limit
	}
	return out
}

// WithOverrides returns a copy of b with per-method overrides merged in.
// Blank methods and non-positive values are ignored.
func (b Budgets) WithOverrides(overrides map[string]int) Budgets {
	out := b.Clone()
	for method, value := range overrides {
		method = strings.TrimSpace(method)
		if method == "" || value <= 0 {
			continue
		}
		out[canonicalMethod(out, method)] = value
	}
	return out
}

// canonicalMethod maps a case-folded override key (config keys arrive
// lowercased) onto the known method name.
func canonicalMethod(b Budgets, method string) string {
	if _, ok := b[method]; ok {
		return method
	}
	for known := range b {
		if strings.EqualFold(known, method) {
			return known
		}
	}
	return method
}

// WithMargin returns a copy of b with every budget scaled by margin (0-1],
// never dropping below one admission per window.
func (b Budgets) WithMargin(margin float64) Budgets {
	out := b.Clone()
	if margin <= 0 || margin > 1 {
		return out
	}
	for method, limit := range out {
		adjusted := int(math.Floor(float64(limit) * margin))
		if adjusted < 1 {
			adjusted = 1
		}
		out[method] = adjusted
	}
	return out
}
