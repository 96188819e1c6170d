// Package derive evaluates parsed derive-spec trees against raw payloads,
// producing the typed signal map consumed by the rule engine.
package derive

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/audumla/signalrules/internal/catalog"
	"github.com/audumla/signalrules/internal/types"
)

/*
 * Signal derivation.
 *
 * DeriveAll evaluates every catalog signal independently against one
 * payload plus rolling context. Isolation boundary: an error or panic while
 * evaluating one signal's tree logs a warning and resolves that signal to
 * Unknown; it never aborts the batch.
 *
 * Resolution contract:
 *   - A null/missing resolved value always yields Unknown, regardless of
 *     any default declared in the spec. Defaults never substitute for
 *     genuinely absent source data; they apply only inside map/first_match
 *     for values that resolve but match no case or key.
 *   - Enum signals reject any resolved value outside the declared allowed
 *     list (Unknown, never coerced).
 *   - Bool signals truthiness-coerce any non-null resolved value.
 *
 * The tree is immutable and cycle-free by construction (built once by the
 * catalog parser), so evaluation is a bounded pure computation.
 */

// Deriver evaluates derive trees for every signal in a catalog.
type Deriver struct {
	cat *catalog.Catalog
	log *slog.Logger
}

// New returns a Deriver bound to a validated catalog. A nil logger disables
// warning output.
func New(cat *catalog.Catalog, log *slog.Logger) *Deriver {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Deriver{cat: cat, log: log}
}

// DeriveAll derives every catalog signal from payload. Signals that cannot
// currently be determined carry the types.Unknown sentinel.
func (d *Deriver) DeriveAll(payload types.Payload, ctx types.EvalContext) map[string]any {
	out := make(map[string]any, len(d.cat.Names()))
	for _, name := range d.cat.Names() {
		def, _ := d.cat.Signal(name)
		out[name] = d.deriveSignal(def, payload, ctx)
	}
	return out
}

// deriveSignal evaluates one signal's tree inside the isolation boundary.
func (d *Deriver) deriveSignal(def *catalog.SignalDefinition, payload types.Payload, ctx types.EvalContext) (result any) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("derivation panic", "signal", def.Name, "panic", fmt.Sprint(r))
			result = types.Unknown
		}
	}()

	value, err := d.eval(def.Derive, payload, ctx)
	if err != nil {
		d.log.Warn("derivation failed", "signal", def.Name, "error", err)
		return types.Unknown
	}
	if value == nil {
		return types.Unknown
	}

	switch def.Type {
	case types.SignalEnum:
		s, ok := value.(string)
		if !ok {
			return types.Unknown
		}
		for _, allowed := range def.Values {
			if s == allowed {
				return s
			}
		}
		return types.Unknown
	case types.SignalBool:
		return Truthy(value)
	default:
		return value
	}
}

// eval resolves one spec node. A nil result means the value could not be
// determined; errors are reserved for evaluation defects caught by the
// isolation boundary.
func (d *Deriver) eval(spec catalog.Spec, payload types.Payload, ctx types.EvalContext) (any, error) {
	switch s := spec.(type) {
	case catalog.Literal:
		return s.Value, nil

	case catalog.Flag:
		dotted, ok := d.cat.BitfieldPath(s.Field)
		if !ok {
			// Unreachable for catalog-parsed trees; aliases are validated
			// at load.
			return nil, fmt.Errorf("%w: %q", types.ErrUnknownBitfield, s.Field)
		}
		raw := LookupPath(payload, dotted)
		bits, ok := asInt64(raw)
		if !ok {
			return nil, nil
		}
		return bits>>uint(s.Bit)&1 == 1, nil

	case catalog.Path:
		return LookupPath(payload, s.Path), nil

	case catalog.Map:
		from, err := d.eval(s.From, payload, ctx)
		if err != nil {
			return nil, err
		}
		if from == nil {
			// Absent source data: the node default must not apply.
			return nil, nil
		}
		if mapped, ok := s.Table[Stringify(from)]; ok {
			return mapped, nil
		}
		if s.HasDefault {
			return s.Default, nil
		}
		return nil, nil

	case catalog.FirstMatch:
		for _, c := range s.Cases {
			hit, err := d.evalBool(c.When, payload, ctx)
			if err != nil {
				return nil, err
			}
			if hit {
				return c.Value, nil
			}
		}
		if s.HasDefault {
			return s.Default, nil
		}
		return nil, nil

	case catalog.Event:
		return payload["event"] == s.Name, nil

	case catalog.Recent:
		ts, ok := ctx.RecentEvents[s.Event]
		if !ok {
			return false, nil
		}
		age := ctx.Clock().Sub(ts)
		return age >= 0 && age <= time.Duration(s.WithinSeconds*float64(time.Second)), nil

	case catalog.And:
		for _, c := range s.Conditions {
			hit, err := d.evalBool(c, payload, ctx)
			if err != nil {
				return nil, err
			}
			if !hit {
				return false, nil
			}
		}
		return true, nil

	case catalog.Or:
		for _, c := range s.Conditions {
			hit, err := d.evalBool(c, payload, ctx)
			if err != nil {
				return nil, err
			}
			if hit {
				return true, nil
			}
		}
		return false, nil

	case catalog.Not:
		hit, err := d.evalBool(s.Condition, payload, ctx)
		if err != nil {
			return nil, err
		}
		return !hit, nil

	case catalog.Compare:
		left, err := d.eval(s.Left, payload, ctx)
		if err != nil {
			return nil, err
		}
		right, err := d.eval(s.Right, payload, ctx)
		if err != nil {
			return nil, err
		}
		return compareValues(s.Op, left, right), nil

	case catalog.Count:
		switch v := LookupPath(payload, s.Path).(type) {
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		default:
			if s.HasDefault {
				return s.Default, nil
			}
			return nil, nil
		}

	case catalog.Exists:
		return nonEmpty(LookupPath(payload, s.Path)), nil

	case catalog.Sum:
		total := 0.0
		for _, c := range s.Of {
			v, err := d.eval(c, payload, ctx)
			if err != nil {
				return nil, err
			}
			// Coercion failures contribute 0, keeping the sum total.
			if n, ok := asFloat64(v); ok {
				total += n
			}
		}
		// Default applies only on an exactly-zero total, preserved from the
		// original document semantics.
		if total == 0 && s.HasDefault {
			return s.Default, nil
		}
		return total, nil

	case catalog.Any:
		list, ok := LookupPath(payload, s.Path).([]any)
		if !ok {
			if s.HasDefault {
				return s.Default, nil
			}
			return nil, nil
		}
		for _, elem := range list {
			if s.Property != "" {
				if obj, ok := elem.(map[string]any); ok && looseEqual(obj[s.Property], s.Value) {
					return true, nil
				}
				continue
			}
			if looseEqual(elem, s.Value) {
				return true, nil
			}
		}
		return false, nil

	case catalog.MatchProp:
		if s.Event != "" && payload["event"] != s.Event {
			return false, nil
		}
		return looseEqual(LookupPath(payload, s.Property), s.Value), nil

	default:
		// Unreachable: the parser rejects unknown node shapes at load.
		return nil, fmt.Errorf("%w: %T", types.ErrUnknownDeriveOp, spec)
	}
}

// evalBool resolves a condition node to truthiness.
func (d *Deriver) evalBool(spec catalog.Spec, payload types.Payload, ctx types.EvalContext) (bool, error) {
	v, err := d.eval(spec, payload, ctx)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}
