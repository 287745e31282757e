package scoring

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode"
)

// Formula is a parsed final score expression. The grammar is limited to numbers, the
// variables in FormulaVariables, parentheses and the operators + - * /.
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = ("+" | "-") unary | primary
//	primary = number | variable | "(" expr ")"
type Formula struct {
	source string
	root   node
}

type node interface {
	eval(vars map[string]float64) (float64, error)
}

type numberNode float64

type variableNode string

type negateNode struct {
	operand node
}

type binaryNode struct {
	op          byte
	left, right node
}

func (n numberNode) eval(map[string]float64) (float64, error) {
	return float64(n), nil
}

func (n variableNode) eval(vars map[string]float64) (float64, error) {
	value, ok := vars[string(n)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVariable, string(n))
	}
	return value, nil
}

func (n negateNode) eval(vars map[string]float64) (float64, error) {
	value, err := n.operand.eval(vars)
	if err != nil {
		return 0, err
	}
	return -value, nil
}

func (n binaryNode) eval(vars map[string]float64) (float64, error) {
	left, err := n.left.eval(vars)
	if err != nil {
		return 0, err
	}
	right, err := n.right.eval(vars)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return left + right, nil
	case '-':
		return left - right, nil
	case '*':
		return left * right, nil
	case '/':
		if right == 0 {
			return 0, ErrDivisionByZero
		}
		return left / right, nil
	}
	return 0, fmt.Errorf("%w: operator %q", ErrFormulaSyntax, n.op)
}

// ParseFormula parses source and rejects identifiers outside FormulaVariables. Names are
// case-sensitive.
func ParseFormula(source string) (*Formula, error) {
	tokens, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty formula", ErrFormulaSyntax)
	}
	p := &parser{tokens: tokens}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("%w: unexpected %q", ErrFormulaSyntax, p.tokens[p.pos].text)
	}
	return &Formula{source: source, root: root}, nil
}

func (f *Formula) String() string {
	return f.source
}

// Eval evaluates the formula with the given variable values.
func (f *Formula) Eval(vars map[string]float64) (float64, error) {
	value, err := f.root.eval(vars)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrNotFinite
	}
	return value, nil
}

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenIdent
	tokenOp
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

func tokenize(source string) ([]token, error) {
	var tokens []token
	runes := []rune(source)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '+' || r == '-' || r == '*' || r == '/':
			tokens = append(tokens, token{kind: tokenOp, text: string(r)})
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokenLParen, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokenRParen, text: ")"})
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			value, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid number %q", ErrFormulaSyntax, text)
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text, num: value})
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(runes) && (runes[i] == '_' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			name := string(runes[start:i])
			if !slices.Contains(FormulaVariables, name) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
			}
			tokens = append(tokens, token{kind: tokenIdent, text: name})
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrFormulaSyntax, r)
		}
	}
	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokenOp || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.text[0], left: left, right: right}
	}
}

func (p *parser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokenOp || (tok.text != "*" && tok.text != "/") {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.text[0], left: left, right: right}
	}
}

func (p *parser) unary() (node, error) {
	tok, ok := p.peek()
	if ok && tok.kind == tokenOp && (tok.text == "-" || tok.text == "+") {
		p.pos++
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		if tok.text == "-" {
			return negateNode{operand: operand}, nil
		}
		return operand, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: unexpected end of formula", ErrFormulaSyntax)
	}
	switch tok.kind {
	case tokenNumber:
		p.pos++
		return numberNode(tok.num), nil
	case tokenIdent:
		p.pos++
		return variableNode(tok.text), nil
	case tokenLParen:
		p.pos++
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokenRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrFormulaSyntax)
		}
		p.pos++
		return inner, nil
	}
	return nil, fmt.Errorf("%w: unexpected %q", ErrFormulaSyntax, tok.text)
}
