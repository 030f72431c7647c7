package grammar

import (
	"strings"

	"github.com/chazu/weft/lexer"
)

// ---------------------------------------------------------------------------
// Parse rules: the combinators interpreted by the parser
// ---------------------------------------------------------------------------

// Rule is a grammar combinator. Rules are data: the parser interprets a
// rule tree against the token stream. parse returns the rule to execute
// next, so tail-position combinators chain on the parser's trampoline
// instead of growing the native stack.
type Rule interface {
	// init validates the rule and computes frame sizes and stack indices
	// using the parser's abstract stack. tail is true when the rule sits in
	// tail position of its definition.
	init(p *Parser, tail bool)

	// accepts reports whether the rule can start with tok (FIRST set).
	accepts(tok lexer.Token) bool

	// parse interprets the rule. It returns the next rule to execute, or
	// nil when this rule completed (or failed).
	parse(p *Parser) Rule

	// prettyPrint writes a grammar-syntax rendering of the rule.
	prettyPrint(p *Parser, sb *strings.Builder)
}

// ---------------------------------------------------------------------------
// None
// ---------------------------------------------------------------------------

// NoneRule matches the empty input. It may only appear as the final
// alternative of an option chain in tail position.
type NoneRule struct{}

// NewNone creates a rule matching empty input.
func NewNone() *NoneRule { return &NoneRule{} }

func (r *NoneRule) init(p *Parser, tail bool)    {}
func (r *NoneRule) accepts(tok lexer.Token) bool { return true }
func (r *NoneRule) parse(p *Parser) Rule         { return nil }
func (r *NoneRule) prettyPrint(p *Parser, sb *strings.Builder) {
	sb.WriteString("()")
}

// ---------------------------------------------------------------------------
// Token and Keyword
// ---------------------------------------------------------------------------

// TokenRule matches a single token with a lexer-defined ID. Unless skip is
// set, the matched token's text is pushed onto the result stack.
type TokenRule struct {
	tokenID lexer.TokenID
	skip    bool
}

// NewToken creates a rule matching one token of the given class. If skip
// is set the token is consumed without producing a result.
func NewToken(id lexer.TokenID, skip bool) *TokenRule {
	return &TokenRule{tokenID: id, skip: skip}
}

func (r *TokenRule) init(p *Parser, tail bool) {
	if !r.skip {
		p.abstractStack.Push("")
	}
}

func (r *TokenRule) accepts(tok lexer.Token) bool {
	return tok.ID == r.tokenID
}

func (r *TokenRule) parse(p *Parser) Rule {
	tok := p.look(0)
	if tok.ID != r.tokenID {
		p.syntaxError(tok, "expected %s, found %s", p.tokens.TokenIDString(r.tokenID), tok)
		return nil
	}
	if r.skip {
		p.skip()
	} else {
		p.consume()
	}
	return nil
}

func (r *TokenRule) prettyPrint(p *Parser, sb *strings.Builder) {
	sb.WriteString("%")
	sb.WriteString(p.tokens.TokenIDString(r.tokenID))
}

// KeywordRule matches a keyword or operator string. The string is
// registered with the lexer during init; keywords are structural and push
// no result.
type KeywordRule struct {
	TokenRule
	text string
}

// NewKeyword creates a rule matching the given keyword or operator text.
func NewKeyword(text string) *KeywordRule {
	return &KeywordRule{TokenRule: TokenRule{skip: true}, text: text}
}

func (r *KeywordRule) init(p *Parser, tail bool) {
	r.tokenID = p.tokens.RegisterKeyword(r.text)
}

func (r *KeywordRule) prettyPrint(p *Parser, sb *strings.Builder) {
	sb.WriteString("\"")
	sb.WriteString(r.text)
	sb.WriteString("\"")
}

// ---------------------------------------------------------------------------
// Sequence
// ---------------------------------------------------------------------------

// SequenceRule matches first then second. An optional let-name binds
// first's result on the abstract stack so later rules and actions can
// reference it by name.
type SequenceRule struct {
	letName   string
	first     Rule
	second    Rule
	frameSize int
	drop      int
}

// NewSequence creates a sequence. letName may be empty.
func NewSequence(letName string, first, second Rule) *SequenceRule {
	return &SequenceRule{letName: letName, first: first, second: second}
}

func (r *SequenceRule) init(p *Parser, tail bool) {
	localBefore := p.abstractStack.LocalSize()
	r.first.init(p, false)
	if r.letName != "" {
		if p.abstractStack.LocalSize() == localBefore {
			p.validationError("in %s: let-name %q binds no result", p.currentRule, r.letName)
		} else {
			p.abstractStack.SetTopName(r.letName)
		}
	}
	localBeforeTail := p.abstractStack.LocalSize()
	r.second.init(p, tail)
	r.frameSize = p.abstractStack.Size()
	if p.abstractStack.LocalSize() > localBeforeTail {
		r.drop = localBeforeTail - 1
		if r.drop < 0 {
			r.drop = 0
		}
	} else {
		r.drop = 0
	}
}

func (r *SequenceRule) accepts(tok lexer.Token) bool {
	return r.first.accepts(tok)
}

func (r *SequenceRule) parse(p *Parser) Rule {
	p.parseRule(r.first)
	if p.failed() {
		return nil
	}
	return r.second
}

func (r *SequenceRule) prettyPrint(p *Parser, sb *strings.Builder) {
	if r.letName != "" {
		sb.WriteString(r.letName)
		sb.WriteString(":")
	}
	r.first.prettyPrint(p, sb)
	sb.WriteString(" ")
	r.second.prettyPrint(p, sb)
}

// ---------------------------------------------------------------------------
// Option
// ---------------------------------------------------------------------------

// OptionRule distinguishes two alternatives by their FIRST sets. The left
// branch is taken when it accepts the lookahead; otherwise the right. Both
// branches must leave the stack in the same shape.
type OptionRule struct {
	left  Rule
	right Rule
}

// NewOption creates an alternative between left and right.
func NewOption(left, right Rule) *OptionRule {
	return &OptionRule{left: left, right: right}
}

func (r *OptionRule) init(p *Parser, tail bool) {
	if _, ok := r.left.(*NoneRule); ok {
		p.validationError("in %s: option with an empty left branch never tries its right branch", p.currentRule)
		return
	}
	entry := p.abstractStack.Snapshot()
	entryLocal := p.abstractStack.LocalSize()
	r.left.init(p, tail)
	leftSize := p.abstractStack.LocalSize()
	p.abstractStack.Restore(entry)
	if _, ok := r.right.(*NoneRule); ok && !tail {
		p.validationError("in %s: empty option alternative outside tail position", p.currentRule)
	}
	r.right.init(p, tail)
	rightSize := p.abstractStack.LocalSize()
	if leftSize != rightSize {
		p.validationError("in %s: option branches leave different stacks (%d vs %d slots)",
			p.currentRule, leftSize-entryLocal, rightSize-entryLocal)
	}
}

func (r *OptionRule) accepts(tok lexer.Token) bool {
	return r.left.accepts(tok) || r.right.accepts(tok)
}

func (r *OptionRule) parse(p *Parser) Rule {
	tok := p.look(0)
	if r.left.accepts(tok) {
		return r.left
	}
	if r.right.accepts(tok) {
		return r.right
	}
	p.syntaxError(tok, "unexpected %s", tok)
	return nil
}

func (r *OptionRule) prettyPrint(p *Parser, sb *strings.Builder) {
	sb.WriteString("(")
	r.left.prettyPrint(p, sb)
	sb.WriteString(" | ")
	r.right.prettyPrint(p, sb)
	sb.WriteString(")")
}

// ---------------------------------------------------------------------------
// RecurseLeft
// ---------------------------------------------------------------------------

// RecurseLeftRule expresses left recursion explicitly: parse base once,
// then repeat rest while its FIRST set accepts the lookahead. The
// accumulated result stays on top of the stack; letName binds it inside
// each iteration of rest.
type RecurseLeftRule struct {
	letName   string
	base      Rule
	rest      Rule
	frameSize int
}

// NewRecurseLeft creates a left-recursive rule.
func NewRecurseLeft(letName string, base, rest Rule) *RecurseLeftRule {
	return &RecurseLeftRule{letName: letName, base: base, rest: rest}
}

func (r *RecurseLeftRule) init(p *Parser, tail bool) {
	entry := p.abstractStack.LocalSize()
	r.base.init(p, false)
	if p.abstractStack.LocalSize() != entry+1 {
		p.validationError("in %s: left-recursive base must produce exactly one result", p.currentRule)
		return
	}
	if r.letName != "" {
		p.abstractStack.SetTopName(r.letName)
	}
	afterBase := p.abstractStack.LocalSize()
	r.rest.init(p, false)
	if p.abstractStack.LocalSize() != afterBase {
		p.validationError("in %s: left-recursive tail must preserve the stack", p.currentRule)
	}
	// The tail replaces the accumulator in place; rebind the name so the
	// next iteration (and any later reference) still resolves.
	if r.letName != "" {
		p.abstractStack.SetTopName(r.letName)
	}
	r.frameSize = p.abstractStack.Size()
}

func (r *RecurseLeftRule) accepts(tok lexer.Token) bool {
	return r.base.accepts(tok)
}

func (r *RecurseLeftRule) parse(p *Parser) Rule {
	p.parseRule(r.base)
	for !p.failed() && r.rest.accepts(p.look(0)) {
		p.parseRule(r.rest)
	}
	return nil
}

func (r *RecurseLeftRule) prettyPrint(p *Parser, sb *strings.Builder) {
	if r.letName != "" {
		sb.WriteString(r.letName)
		sb.WriteString(":")
	}
	r.base.prettyPrint(p, sb)
	sb.WriteString(" (* ")
	r.rest.prettyPrint(p, sb)
	sb.WriteString(")")
}

// ---------------------------------------------------------------------------
// Reference
// ---------------------------------------------------------------------------

// ReferenceRule calls another named definition, passing named results from
// the current frame as arguments.
type ReferenceRule struct {
	name       string
	argNames   []string
	argIndices []int
	def        *NamedDefinition
	frameSize  int
	drop       int // frame slots to drop on return; non-zero only in tail position
}

// NewReference creates a call to the named definition with the given
// argument names, which must be bound in the calling frame.
func NewReference(name string, argNames ...string) *ReferenceRule {
	return &ReferenceRule{name: name, argNames: argNames}
}

func (r *ReferenceRule) init(p *Parser, tail bool) {
	r.def = p.FindDefinition(r.name)
	if r.def == nil {
		p.validationError("in %s: reference to undefined rule %q", p.currentRule, r.name)
		return
	}
	if len(r.argNames) != len(r.def.argNames) {
		p.validationError("in %s: rule %q takes %d arguments, given %d",
			p.currentRule, r.name, len(r.def.argNames), len(r.argNames))
		return
	}
	r.argIndices = r.argIndices[:0]
	for _, a := range r.argNames {
		idx := p.abstractStack.IndexOf(a)
		if idx == InvalidIndex {
			p.validationError("in %s: argument %q is not defined", p.currentRule, a)
			idx = 0
		}
		r.argIndices = append(r.argIndices, idx)
	}
	r.frameSize = p.abstractStack.Size()
	if tail {
		// A tail call replaces the whole frame with the callee's result:
		// every slot was either passed along as an argument or is dead.
		r.drop = r.frameSize
		for p.abstractStack.Size() > 0 {
			p.abstractStack.Pop()
		}
	} else {
		r.drop = 0
	}
	p.abstractStack.Push("")
}

func (r *ReferenceRule) accepts(tok lexer.Token) bool {
	return r.def != nil && r.def.accepts(tok)
}

func (r *ReferenceRule) parse(p *Parser) Rule {
	base := p.resultStack.Size() - r.frameSize
	for _, idx := range r.argIndices {
		p.resultStack.MoveAndPush(base + idx)
	}
	pre := p.resultStack.Size() - len(r.argIndices)
	p.parseRule(r.def)
	if p.failed() {
		return nil
	}
	// The definition leaves its result on top; any slots left between the
	// call point and the result are spent argument copies.
	if extra := p.resultStack.Size() - pre - 1; extra > 0 {
		p.resultStack.Drop(extra, 1)
	}
	// In tail position the caller's frame is dead: collapse it.
	if r.drop > 0 {
		p.resultStack.Drop(r.drop, 1)
	}
	return nil
}

func (r *ReferenceRule) prettyPrint(p *Parser, sb *strings.Builder) {
	sb.WriteString(r.name)
	if len(r.argNames) > 0 {
		sb.WriteString("(")
		sb.WriteString(strings.Join(r.argNames, ", "))
		sb.WriteString(")")
	}
}

// ---------------------------------------------------------------------------
// NamedDefinition
// ---------------------------------------------------------------------------

// NamedDefinition is a top-level callable rule. Definitions allow mutual
// recursion: references resolve by name during Init.
type NamedDefinition struct {
	name     string
	argNames []string
	body     Rule
}

// NewNamedDefinition creates a definition with the given name and argument
// names. The body is attached with SetBody.
func NewNamedDefinition(name string, argNames ...string) *NamedDefinition {
	return &NamedDefinition{name: name, argNames: argNames}
}

// Name returns the definition's name.
func (r *NamedDefinition) Name() string { return r.name }

// NumArguments returns the number of declared arguments.
func (r *NamedDefinition) NumArguments() int { return len(r.argNames) }

// SetBody attaches the definition's rule body.
func (r *NamedDefinition) SetBody(body Rule) { r.body = body }

func (r *NamedDefinition) init(p *Parser, tail bool) {
	if r.body == nil {
		p.validationError("rule %q has no body", r.name)
		return
	}
	p.abstractStack.Clear()
	for _, a := range r.argNames {
		p.abstractStack.Push(a)
	}
	p.currentRule = r.name
	if p.traceValidate {
		logger.Debugf("validate %s", r.name)
	}
	r.body.init(p, true)
	if p.abstractStack.Size() != 1 {
		p.validationError("rule %q leaves %d results on the stack, want 1",
			r.name, p.abstractStack.Size())
	}
}

func (r *NamedDefinition) accepts(tok lexer.Token) bool {
	return r.body.accepts(tok)
}

func (r *NamedDefinition) parse(p *Parser) Rule {
	return r.body
}

func (r *NamedDefinition) prettyPrint(p *Parser, sb *strings.Builder) {
	sb.WriteString(r.name)
	if len(r.argNames) > 0 {
		sb.WriteString("(")
		sb.WriteString(strings.Join(r.argNames, ", "))
		sb.WriteString(")")
	}
	sb.WriteString(" ::= ")
	r.body.prettyPrint(p, sb)
	sb.WriteString(";")
}

// ---------------------------------------------------------------------------
// Action
// ---------------------------------------------------------------------------

// ActionRule synthesizes a result by interpreting an embedded AST against
// the current frame, then collapses the frame down to that result.
// Actions match empty input, so they must be reachable unconditionally.
type ActionRule struct {
	node      ASTNode
	frameSize int
	drop      int
}

// NewAction creates an action interpreting the given AST body.
func NewAction(node ASTNode) *ActionRule {
	return &ActionRule{node: node}
}

func (r *ActionRule) init(p *Parser, tail bool) {
	r.node.resolve(p, p.currentRule)
	r.frameSize = p.abstractStack.Size()
	r.drop = r.frameSize
	// The action consumes the whole frame and leaves one result.
	for p.abstractStack.Size() > 0 {
		p.abstractStack.Pop()
	}
	p.abstractStack.Push("")
}

func (r *ActionRule) accepts(tok lexer.Token) bool { return true }

func (r *ActionRule) parse(p *Parser) Rule {
	frameBase := p.resultStack.Size() - r.frameSize
	result := r.node.interpret(p, frameBase)
	p.resultStack.Push(result)
	p.resultStack.Drop(r.drop, 1)
	return nil
}

func (r *ActionRule) prettyPrint(p *Parser, sb *strings.Builder) {
	sb.WriteString("{ ")
	sb.WriteString(r.node.String())
	sb.WriteString(" }")
}
