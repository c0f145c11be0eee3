package battle

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/kasuganosora/battlesim/game/script"
	"go.uber.org/zap"
)

// EvalFormula evaluates an arithmetic damage formula.
// Variables: a.<stat> (attacker), b.<stat> (target), dmg.raw, dmg.pen,
// where <stat> is any Stat name (max_hp, hp, atk, def, spd, cc, ...).
// Operators: + - * / with parentheses.
// Functions: Math.floor, Math.ceil, Math.round, Math.abs, Math.max,
// Math.min, Math.pow, Math.sqrt.
func EvalFormula(formula string, vars map[string]float64) (float64, error) {
	if needsScript(formula) {
		return 0, fmt.Errorf("formula requires JS sandbox: %q", formula)
	}
	p := &parser{input: formula, vars: vars}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.peek() != 0 {
		return 0, fmt.Errorf("unexpected chars at pos %d: %q", p.pos, p.input[p.pos:])
	}
	return v, nil
}

func needsScript(formula string) bool {
	lower := strings.ToLower(formula)
	for _, kw := range []string{"if", "function", "var ", "let ", "const ", ";", "{", "}", "?", "return"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FormulaVars flattens attacker, target and hit into formula variables.
func FormulaVars(attacker, target *Stats, dmg DamageInstance) map[string]float64 {
	vars := make(map[string]float64, 32)
	for k, v := range attacker.vars() {
		vars["a."+k] = v
	}
	for k, v := range target.vars() {
		vars["b."+k] = v
	}
	vars["dmg.raw"] = dmg.Raw
	vars["dmg.pen"] = dmg.DefPen
	return vars
}

// ---- Recursive-descent parser ----

type parser struct {
	input string
	pos   int
	vars  map[string]float64
}

func (p *parser) skipWS() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipWS()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

// parseExpr = parseTerm (('+' | '-') parseTerm)*
func (p *parser) parseExpr() (float64, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		ch := p.peek()
		if ch != '+' && ch != '-' {
			return v, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if ch == '+' {
			v += right
		} else {
			v -= right
		}
	}
}

// parseTerm = parseFactor (('*' | '/') parseFactor)*
func (p *parser) parseTerm() (float64, error) {
	v, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		ch := p.peek()
		if ch != '*' && ch != '/' {
			return v, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if ch == '*' {
			v *= right
			continue
		}
		if right == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		v /= right
	}
}

// parseFactor = '(' expr ')' | '-' factor | number | name | name '(' args ')'
func (p *parser) parseFactor() (float64, error) {
	ch := p.peek()
	switch {
	case ch == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("expected ')' at pos %d", p.pos)
		}
		p.pos++
		return v, nil
	case ch == '-':
		p.pos++
		v, err := p.parseFactor()
		return -v, err
	case ch == '+':
		p.pos++
		return p.parseFactor()
	case unicode.IsDigit(rune(ch)) || ch == '.':
		return p.parseNumber()
	case unicode.IsLetter(rune(ch)) || ch == '_':
		return p.parseName()
	case ch == 0:
		return 0, fmt.Errorf("unexpected end of formula")
	}
	return 0, fmt.Errorf("unexpected character %q at pos %d", ch, p.pos)
}

func (p *parser) parseNumber() (float64, error) {
	start := p.pos
	hasDot := false
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '.' && !hasDot {
			hasDot = true
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	return strconv.ParseFloat(p.input[start:p.pos], 64)
}

// parseName reads a dotted identifier and resolves it as a variable, or as
// a function when followed by '('.
func (p *parser) parseName() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := rune(p.input[p.pos])
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '.' {
			p.pos++
			continue
		}
		break
	}
	name := p.input[start:p.pos]
	if p.peek() != '(' {
		v, ok := p.vars[strings.ToLower(name)]
		if !ok {
			return 0, fmt.Errorf("unknown variable %q", name)
		}
		return v, nil
	}
	p.pos++
	var args []float64
	for {
		if p.peek() == ')' {
			p.pos++
			break
		}
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		args = append(args, v)
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
		default:
			return 0, fmt.Errorf("expected ',' or ')' in call to %s", name)
		}
	}
	return applyFunc(name, args)
}

func applyFunc(name string, args []float64) (float64, error) {
	one := func(f func(float64) float64) (float64, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("%s expects 1 argument", name)
		}
		return f(args[0]), nil
	}
	switch name {
	case "Math.floor":
		return one(math.Floor)
	case "Math.ceil":
		return one(math.Ceil)
	case "Math.round":
		return one(math.Round)
	case "Math.abs":
		return one(math.Abs)
	case "Math.sqrt":
		return one(math.Sqrt)
	case "Math.pow":
		if len(args) != 2 {
			return 0, fmt.Errorf("Math.pow expects 2 arguments")
		}
		return math.Pow(args[0], args[1]), nil
	case "Math.max", "Math.min":
		if len(args) == 0 {
			return 0, fmt.Errorf("%s expects >=1 argument", name)
		}
		v := args[0]
		for _, a := range args[1:] {
			if name == "Math.max" {
				v = math.Max(v, a)
			} else {
				v = math.Min(v, a)
			}
		}
		return v, nil
	}
	return 0, fmt.Errorf("unknown function %s", name)
}

// FormulaPolicy is a DamagePolicy driven by a formula string. Plain
// arithmetic is evaluated natively; anything else runs in the JS sandbox
// with a, b and dmg bound as objects.
type FormulaPolicy struct {
	expr    string
	sandbox *script.Sandbox
	logger  *zap.Logger
}

// NewFormulaPolicy validates expr. sb may be nil, in which case only
// arithmetic formulas are accepted.
func NewFormulaPolicy(expr string, sb *script.Sandbox, logger *zap.Logger) (*FormulaPolicy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &FormulaPolicy{expr: expr, logger: logger}
	if needsScript(expr) {
		if sb == nil {
			return nil, fmt.Errorf("battle: formula %q needs the script sandbox", expr)
		}
		p.sandbox = sb
		if _, err := p.eval(&Stats{}, &Stats{}, DamageInstance{}); err != nil {
			return nil, fmt.Errorf("battle: formula: %w", err)
		}
		return p, nil
	}
	if _, err := EvalFormula(expr, FormulaVars(&Stats{}, &Stats{}, DamageInstance{})); err != nil {
		return nil, fmt.Errorf("battle: formula: %w", err)
	}
	return p, nil
}

func (p *FormulaPolicy) eval(attacker, target *Stats, dmg DamageInstance) (float64, error) {
	if p.sandbox == nil {
		return EvalFormula(p.expr, FormulaVars(attacker, target, dmg))
	}
	b := script.Bindings{
		"a":   toBinding(attacker.vars()),
		"b":   toBinding(target.vars()),
		"dmg": map[string]interface{}{"raw": dmg.Raw, "pen": dmg.DefPen},
	}
	return p.sandbox.EvalFloat(context.Background(), p.expr, b)
}

// DamageTaken evaluates the formula. Evaluation errors count as 0 damage.
func (p *FormulaPolicy) DamageTaken(attacker, target *Stats, dmg DamageInstance) float64 {
	v, err := p.eval(attacker, target, dmg)
	if err != nil {
		p.logger.Warn("damage formula failed", zap.String("formula", p.expr), zap.Error(err))
		return 0
	}
	return v
}

func toBinding(m map[string]float64) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
