// Package grammar implements a table-driven LL(k) parser engine based on
// parser combinators. Grammar rules are data: a tree of combinators
// interpreted against a token stream. Rules are validated before parsing by
// an abstract-stack walk that resolves names to stack indices and computes
// frame sizes, so parse-time interpretation needs no lookups.
package grammar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/weft/lexer"
)

var logger = commonlog.GetLogger("weft.grammar")

// TokenStream supplies tokens to the parser. *lexer.Lexer satisfies it.
type TokenStream interface {
	Look(i int) lexer.Token
	Consume()
	RegisterKeyword(text string) lexer.TokenID
	LookupTokenID(text string) lexer.TokenID
	TokenIDString(id lexer.TokenID) string
}

// Parser interprets grammar definitions against a token stream. It owns
// the result stack, the abstract stack used during validation, and the
// definition table. A Parser is not safe for concurrent use.
type Parser struct {
	tokens  TokenStream
	builder ASTBuilder

	definitions    []*NamedDefinition
	definitionDict map[string]*NamedDefinition

	resultStack   ResultStack
	abstractStack AbstractStack

	validationErrs []string
	currentRule    string
	initialized    bool

	syntaxErr error // sticky; first parse error wins

	trace         bool
	traceValidate bool
}

// NewParser creates a parser reading from tokens and constructing target
// AST nodes through builder.
func NewParser(tokens TokenStream, builder ASTBuilder) *Parser {
	return &Parser{
		tokens:         tokens,
		builder:        builder,
		definitionDict: make(map[string]*NamedDefinition),
	}
}

// AddDefinition registers a top-level named definition. Definitions with
// non-empty names are indexed for Reference resolution.
func (p *Parser) AddDefinition(def *NamedDefinition) {
	p.definitions = append(p.definitions, def)
	if def.name != "" {
		p.definitionDict[def.name] = def
	}
}

// FindDefinition returns the definition registered under name, or nil.
func (p *Parser) FindDefinition(name string) *NamedDefinition {
	return p.definitionDict[name]
}

// SetTrace enables parse-time tracing.
func (p *Parser) SetTrace(b bool) { p.trace = b }

// SetTraceValidate enables validation-time tracing.
func (p *Parser) SetTraceValidate(b bool) { p.traceValidate = b }

// Init validates every registered definition: it registers keywords with
// the lexer, resolves references, and computes frame sizes from the
// abstract-stack walk. Validation continues past the first error for
// diagnostic coverage; any error makes Init fail and disables Parse.
func (p *Parser) Init() error {
	p.validationErrs = p.validationErrs[:0]
	for _, def := range p.definitions {
		def.init(p, true)
	}
	p.abstractStack.Clear()
	p.initialized = true
	if len(p.validationErrs) > 0 {
		return errors.New("grammar: " + strings.Join(p.validationErrs, "; "))
	}
	return nil
}

// Parse interprets the start definition against the token stream and
// returns the single result it produces. On a syntax error the result is
// empty and Err reports the failure. The start definition must take no
// arguments.
func (p *Parser) Parse(start *NamedDefinition) ParseResult {
	if !p.initialized || len(p.validationErrs) > 0 {
		logger.Error("parse attempted on an uninitialized or invalid grammar")
		return ParseResult{}
	}
	if start.NumArguments() != 0 {
		p.syntaxErr = fmt.Errorf("start rule %q takes arguments", start.name)
		return ParseResult{}
	}
	p.resultStack.Clear()
	p.syntaxErr = nil

	p.parseRule(start)

	if p.syntaxErr != nil {
		p.resultStack.Clear()
		return ParseResult{}
	}
	if p.resultStack.Size() != 1 {
		p.syntaxErr = fmt.Errorf("rule %q left %d results on the stack", start.name, p.resultStack.Size())
		p.resultStack.Clear()
		return ParseResult{}
	}
	return p.resultStack.Pop()
}

// Err returns the recorded syntax error from the last Parse, if any.
func (p *Parser) Err() error { return p.syntaxErr }

// PrintSyntax renders every registered definition in grammar syntax.
func (p *Parser) PrintSyntax() string {
	var sb strings.Builder
	for _, def := range p.definitions {
		def.prettyPrint(p, &sb)
		sb.WriteString("\n")
	}
	return sb.String()
}

// parseRule runs the trampoline: each rule's parse returns the rule to
// execute next, so tail-position combinators do not recurse natively.
func (p *Parser) parseRule(r Rule) {
	for r != nil && p.syntaxErr == nil {
		if p.trace {
			var sb strings.Builder
			r.prettyPrint(p, &sb)
			logger.Debugf("parse %s\tlookahead %s", sb.String(), p.look(0))
		}
		r = r.parse(p)
	}
}

func (p *Parser) failed() bool { return p.syntaxErr != nil }

// look returns the i-th token of lookahead.
func (p *Parser) look(i int) lexer.Token {
	return p.tokens.Look(i)
}

// skip consumes the next token and discards it.
func (p *Parser) skip() {
	p.tokens.Consume()
}

// consume pushes the next token's text onto the result stack and consumes
// the token.
func (p *Parser) consume() {
	p.resultStack.Push(TokenResult(p.look(0).Literal))
	p.tokens.Consume()
}

// syntaxError records the first parse error with its source location and
// sets the sticky failure flag. Later errors are ignored.
func (p *Parser) syntaxError(tok lexer.Token, format string, args ...any) {
	if p.syntaxErr != nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	p.syntaxErr = fmt.Errorf("%s: syntax error: %s", tok.Pos, msg)
	logger.Errorf("%s", p.syntaxErr)
}

// validationError records a grammar validation error. Validation keeps
// going so Init can report every problem at once.
func (p *Parser) validationError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.validationErrs = append(p.validationErrs, msg)
	logger.Errorf("validation: %s", msg)
}
