package tool

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

// Digits, whitespace, decimal points, arithmetic operators, parentheses.
var exprCharset = regexp.MustCompile(`^[\d\s\+\-\*/%\^\(\)\.]+$`)

type MathEvaluateOutput struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

func evaluateTool(tool string, args map[string]any) (contractx.ToolResult, error) {
	raw, ok := args["expression"]
	if !ok {
		return contractx.ToolResult{Tool: tool, Error: "expression is required"}, nil
	}
	expression, ok := raw.(string)
	if !ok {
		return contractx.ToolResult{Tool: tool, Error: "expression must be a string"}, nil
	}

	expression = strings.TrimSpace(expression)
	result, err := Evaluate(expression)
	if err != nil {
		return contractx.ToolResult{Tool: tool, Error: err.Error()}, nil
	}
	return contractx.ToolResult{
		Tool:   tool,
		Result: MathEvaluateOutput{Expression: expression, Result: result},
	}, nil
}

// Evaluate computes an arithmetic expression supporting + - * / % ^ and
// parentheses. No identifiers, no function calls.
func Evaluate(expression string) (float64, error) {
	if expression == "" {
		return 0, fmt.Errorf("expression is empty")
	}
	if !exprCharset.MatchString(expression) {
		return 0, fmt.Errorf("expression contains invalid characters")
	}

	p := &exprParser{src: expression}
	value, err := p.sum()
	if err != nil {
		return 0, err
	}
	p.ws()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("unexpected token at position %d", p.pos)
	}
	return value, nil
}

type exprParser struct {
	src string
	pos int
}

// sum := product (('+'|'-') product)*
func (p *exprParser) sum() (float64, error) {
	left, err := p.product()
	if err != nil {
		return 0, err
	}
	for {
		p.ws()
		switch {
		case p.eat('+'):
			r, err := p.product()
			if err != nil {
				return 0, err
			}
			left += r
		case p.eat('-'):
			r, err := p.product()
			if err != nil {
				return 0, err
			}
			left -= r
		default:
			return left, nil
		}
	}
}

// product := power (('*'|'/'|'%') power)*
func (p *exprParser) product() (float64, error) {
	left, err := p.power()
	if err != nil {
		return 0, err
	}
	for {
		p.ws()
		switch {
		case p.eat('*'):
			r, err := p.power()
			if err != nil {
				return 0, err
			}
			left *= r
		case p.eat('/'):
			r, err := p.power()
			if err != nil {
				return 0, err
			}
			if r == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= r
		case p.eat('%'):
			r, err := p.power()
			if err != nil {
				return 0, err
			}
			if r == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, r)
		default:
			return left, nil
		}
	}
}

// power := unary ('^' power)?   right-associative
func (p *exprParser) power() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	p.ws()
	if p.eat('^') {
		r, err := p.power()
		if err != nil {
			return 0, err
		}
		return math.Pow(left, r), nil
	}
	return left, nil
}

func (p *exprParser) unary() (float64, error) {
	p.ws()
	if p.eat('+') {
		return p.unary()
	}
	if p.eat('-') {
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.atom()
}

func (p *exprParser) atom() (float64, error) {
	p.ws()
	if p.eat('(') {
		v, err := p.sum()
		if err != nil {
			return 0, err
		}
		p.ws()
		if !p.eat(')') {
			return 0, fmt.Errorf("missing closing parenthesis at position %d", p.pos)
		}
		return v, nil
	}
	return p.number()
}

func (p *exprParser) number() (float64, error) {
	p.ws()
	start := p.pos
	dot := false
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		if ch >= '0' && ch <= '9' {
			p.pos++
			continue
		}
		if ch == '.' {
			if dot {
				return 0, fmt.Errorf("invalid number format at position %d", p.pos)
			}
			dot = true
			p.pos++
			continue
		}
		break
	}
	if p.pos == start || (dot && p.pos == start+1) {
		return 0, fmt.Errorf("expected number at position %d", start)
	}

	raw := p.src[start:p.pos]
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", raw, err)
	}
	return v, nil
}

func (p *exprParser) ws() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) eat(ch byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == ch {
		p.pos++
		return true
	}
	return false
}
