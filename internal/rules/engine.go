// internal/rules/engine.go
package rules

import (
	"io"
	"log/slog"

	"github.com/audumla/signalrules/internal/catalog"
	"github.com/audumla/signalrules/internal/derive"
	"github.com/audumla/signalrules/internal/types"
)

/*
 * Edge-triggered rule engine.
 *
 * State machine per (identity, rule): Unseen -> {Matched | Unmatched} on
 * first evaluation (fires then/else immediately); thereafter transitions
 * fire else/then respectively, and no-change fires nothing. First
 * evaluation counting as a transition is deliberate: it guarantees at
 * least one action fires on startup.
 *
 * Availability gating: per notification the engine derives all signals
 * once, computes the set that resolved (not Unknown), and skips entirely
 * any rule whose required-signal set is not a subset of it. Skipped is not
 * non-matching: incremental data arrival never produces a spurious
 * negative edge.
 *
 * Construction is lenient per rule: individually invalid rules are dropped
 * with a logged reason and surfaced via Dropped(); siblings still load.
 *
 * Not safe for concurrent use. The evaluation-state map is not internally
 * synchronized; callers must serialize OnNotification for one engine.
 */

// Handler receives one MatchResult per match-state transition that carries
// a non-empty destination action list.
type Handler func(types.MatchResult)

// stateKey identifies one tracked (identity, rule) pair.
type stateKey struct {
	identity types.Identity
	ruleID   string
}

// Engine owns validated, normalized rules and per-identity match state.
type Engine struct {
	log     *slog.Logger
	handler Handler

	cat     *catalog.Catalog
	deriver *derive.Deriver
	rules   []types.Rule
	dropped []types.DroppedRule

	// state persists for the engine's lifetime or until Reset. Created
	// lazily on first sight of an (identity, rule) pair, and deliberately
	// kept across Swap so a reload does not replay startup transitions.
	state map[stateKey]bool
}

// New validates and normalizes every rule in doc against the catalog,
// dropping invalid ones individually, and returns an engine ready for
// notifications. Fails only when the document itself is unreadable.
func New(cat *catalog.Catalog, doc any, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		log:   log,
		state: make(map[stateKey]bool),
	}
	if err := e.load(cat, doc); err != nil {
		return nil, err
	}
	return e, nil
}

// SetHandler registers the action handler callback.
func (e *Engine) SetHandler(h Handler) { e.handler = h }

// load builds the rule set for a catalog + document pair.
func (e *Engine) load(cat *catalog.Catalog, doc any) error {
	docs, err := ParseRuleDoc(doc)
	if err != nil {
		return err
	}

	alloc := types.NewIDAllocator()
	rules := make([]types.Rule, 0, len(docs))
	var dropped []types.DroppedRule

	for i, rd := range docs {
		if err := ValidateRule(cat, rd, i); err != nil {
			title, _ := rd["title"].(string)
			e.log.Warn("dropping invalid rule", "index", i, "title", title, "reason", err.Error())
			dropped = append(dropped, types.DroppedRule{Index: i, Title: title, Reason: err.Error()})
			continue
		}
		rule, err := normalizeRule(rd, alloc)
		if err != nil {
			title, _ := rd["title"].(string)
			e.log.Warn("dropping invalid rule", "index", i, "title", title, "reason", err.Error())
			dropped = append(dropped, types.DroppedRule{Index: i, Title: title, Reason: err.Error()})
			continue
		}
		rules = append(rules, rule)
	}

	e.cat = cat
	e.deriver = derive.New(cat, e.log)
	e.rules = rules
	e.dropped = dropped
	return nil
}

// Swap atomically replaces the catalog and rule set. Evaluation state is
// preserved; it is keyed by rule id, so unchanged rules keep their edge
// history across a reload. Calls are non-reentrant and synchronous, so
// in-flight evaluations always complete against one snapshot.
func (e *Engine) Swap(cat *catalog.Catalog, doc any) error {
	return e.load(cat, doc)
}

// Rules returns the normalized active rule set.
func (e *Engine) Rules() []types.Rule {
	out := make([]types.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Dropped returns the rules excluded at the last (re)load with reasons.
func (e *Engine) Dropped() []types.DroppedRule {
	out := make([]types.DroppedRule, len(e.dropped))
	copy(out, e.dropped)
	return out
}

// Reset clears all match state tracked for one identity, typically at a
// session boundary. The next evaluation for that identity is treated as a
// first evaluation again.
func (e *Engine) Reset(identity types.Identity) {
	for key := range e.state {
		if key.identity == identity {
			delete(e.state, key)
		}
	}
}

// ResetAll clears match state for every identity.
func (e *Engine) ResetAll() {
	e.state = make(map[stateKey]bool)
}

// OnNotification processes one telemetry entry for an identity: enriches
// the payload with event/source metadata, derives all signals once,
// evaluates eligible rules, and fires the handler for each match-state
// transition with a non-empty destination action list. Returns the fired
// results in rule order.
func (e *Engine) OnNotification(identity types.Identity, source, eventType string, entry map[string]any, ctx types.EvalContext) []types.MatchResult {
	payload := make(types.Payload, len(entry)+2)
	for k, v := range entry {
		payload[k] = v
	}
	if eventType != "" {
		payload["event"] = eventType
	}
	if source != "" {
		payload["source"] = source
	}

	signals := e.deriver.DeriveAll(payload, ctx)

	available := make(map[string]bool, len(signals))
	for name, value := range signals {
		if !types.IsUnknown(value) {
			available[name] = true
		}
	}

	var fired []types.MatchResult
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		if !allAvailable(rule.Required, available) {
			// Skipped entirely, not evaluated as non-matching: a signal
			// that has not arrived yet must not flip edge state.
			continue
		}

		matched := matchWhen(rule.When, signals)
		key := stateKey{identity: identity, ruleID: rule.ID}
		prev, seen := e.state[key]
		e.state[key] = matched
		if seen && prev == matched {
			continue
		}

		actions := rule.Then
		if !matched {
			actions = rule.Else
		}
		if len(actions) == 0 {
			continue
		}

		result := types.MatchResult{
			RuleID:    rule.ID,
			RuleTitle: rule.Title,
			Matched:   matched,
			Actions:   actions,
		}
		fired = append(fired, result)
		if e.handler != nil {
			e.handler(result)
		}
	}
	return fired
}

// allAvailable reports whether every required signal resolved this
// notification.
func allAvailable(required []string, available map[string]bool) bool {
	for _, name := range required {
		if !available[name] {
			return false
		}
	}
	return true
}
