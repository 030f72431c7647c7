package grammar

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/weft/lexer"
)

// ---------------------------------------------------------------------------
// Test AST builder
// ---------------------------------------------------------------------------

// testNode is the AST node type minted by the test builder.
type testNode struct {
	Op    string
	Token string
	Kids  []*testNode
}

// testBuilder implements ASTBuilder over testNode.
type testBuilder struct {
	ops []string
}

func (b *testBuilder) OpcodeFor(name string) (uint32, bool) {
	for i, n := range b.ops {
		if n == name {
			return uint32(i), true
		}
	}
	return 0, false
}

func (b *testBuilder) MakeExpr(op uint32, args []ParseResult) ParseResult {
	n := &testNode{Op: b.ops[op]}
	for i := range args {
		switch {
		case args[i].IsToken():
			n.Kids = append(n.Kids, &testNode{Op: "tok", Token: args[i].TokenStr()})
		case args[i].IsNode():
			n.Kids = append(n.Kids, args[i].Node().(*testNode))
		case args[i].IsList():
			for _, k := range args[i].NodeList() {
				n.Kids = append(n.Kids, k.(*testNode))
			}
		}
	}
	return NodeResult(n)
}

func newTestParser(t *testing.T, input string, ops ...string) *Parser {
	t.Helper()
	return NewParser(lexer.New(input), &testBuilder{ops: ops})
}

func mustInit(t *testing.T, p *Parser) {
	t.Helper()
	if err := p.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
}

// arithGrammar builds:
//
//	term ::= n:INTEGER { num(n) };
//	expr ::= e:term (* "+" t:term { add(e, t) });
func arithGrammar(p *Parser) *NamedDefinition {
	term := NewNamedDefinition("term")
	term.SetBody(NewSequence("n",
		NewToken(lexer.TokenInteger, false),
		NewAction(&ConstructNode{Name: "num", Args: []ASTNode{&VariableNode{Name: "n"}}})))
	p.AddDefinition(term)

	expr := NewNamedDefinition("expr")
	expr.SetBody(NewRecurseLeft("e",
		NewReference("term"),
		NewSequence("",
			NewKeyword("+"),
			NewSequence("t",
				NewReference("term"),
				NewAction(&ConstructNode{Name: "add", Args: []ASTNode{
					&VariableNode{Name: "e"},
					&VariableNode{Name: "t"},
				}})))))
	p.AddDefinition(expr)
	return expr
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

func TestLeftRecursiveArithmetic(t *testing.T) {
	p := newTestParser(t, "1+2+3", "num", "add")
	expr := arithGrammar(p)
	mustInit(t, p)

	res := p.Parse(expr)
	if res.Empty() {
		t.Fatalf("Parse failed: %v", p.Err())
	}
	got := res.Node().(*testNode)

	want := &testNode{Op: "add", Kids: []*testNode{
		{Op: "add", Kids: []*testNode{
			{Op: "num", Kids: []*testNode{{Op: "tok", Token: "1"}}},
			{Op: "num", Kids: []*testNode{{Op: "tok", Token: "2"}}},
		}},
		{Op: "num", Kids: []*testNode{{Op: "tok", Token: "3"}}},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AST mismatch (-want +got):\n%s", diff)
	}
}

func TestSingleTerm(t *testing.T) {
	p := newTestParser(t, "7", "num", "add")
	expr := arithGrammar(p)
	mustInit(t, p)

	res := p.Parse(expr)
	if res.Empty() {
		t.Fatalf("Parse failed: %v", p.Err())
	}
	got := res.Node().(*testNode)
	if got.Op != "num" || got.Kids[0].Token != "7" {
		t.Errorf("got %+v, want num(7)", got)
	}
}

func TestKeywordAction(t *testing.T) {
	// greeting ::= "hello" id:IDENTIFIER { greet(id) };
	p := newTestParser(t, "hello world", "greet")
	greeting := NewNamedDefinition("greeting")
	greeting.SetBody(NewSequence("",
		NewKeyword("hello"),
		NewSequence("id",
			NewToken(lexer.TokenIdentifier, false),
			NewAction(&ConstructNode{Name: "greet", Args: []ASTNode{&VariableNode{Name: "id"}}}))))
	p.AddDefinition(greeting)
	mustInit(t, p)

	res := p.Parse(greeting)
	if res.Empty() {
		t.Fatalf("Parse failed: %v", p.Err())
	}
	got := res.Node().(*testNode)
	if got.Op != "greet" {
		t.Errorf("Op = %q, want greet", got.Op)
	}
	if len(got.Kids) != 1 || got.Kids[0].Token != "world" {
		t.Errorf("Kids = %+v, want one token \"world\"", got.Kids)
	}
}

func TestSyntaxErrorFirstWins(t *testing.T) {
	p := newTestParser(t, "1+*", "num", "add")
	expr := arithGrammar(p)
	mustInit(t, p)

	res := p.Parse(expr)
	if !res.Empty() {
		t.Fatal("Parse succeeded on malformed input")
	}
	err := p.Err()
	if err == nil {
		t.Fatal("no syntax error recorded")
	}
	if !strings.Contains(err.Error(), "syntax error") {
		t.Errorf("error %q does not mention syntax error", err)
	}
	if !strings.Contains(err.Error(), "1:3") {
		t.Errorf("error %q does not carry the location 1:3", err)
	}
}

func TestOptionWithEmptyTail(t *testing.T) {
	// pair ::= x:term ("+" y:term { add(x, y) } | ());
	p := newTestParser(t, "4+5", "num", "add")
	term := NewNamedDefinition("term")
	term.SetBody(NewSequence("n",
		NewToken(lexer.TokenInteger, false),
		NewAction(&ConstructNode{Name: "num", Args: []ASTNode{&VariableNode{Name: "n"}}})))
	p.AddDefinition(term)

	pair := NewNamedDefinition("pair")
	pair.SetBody(NewSequence("x",
		NewReference("term"),
		NewOption(
			NewSequence("",
				NewKeyword("+"),
				NewSequence("y",
					NewReference("term"),
					NewAction(&ConstructNode{Name: "add", Args: []ASTNode{
						&VariableNode{Name: "x"},
						&VariableNode{Name: "y"},
					}}))),
			NewNone())))
	p.AddDefinition(pair)
	mustInit(t, p)

	res := p.Parse(pair)
	if res.Empty() {
		t.Fatalf("Parse failed: %v", p.Err())
	}
	if got := res.Node().(*testNode); got.Op != "add" {
		t.Errorf("Op = %q, want add", got.Op)
	}

	// And the empty alternative.
	p2 := newTestParser(t, "9", "num", "add")
	term2 := NewNamedDefinition("term")
	term2.SetBody(NewSequence("n",
		NewToken(lexer.TokenInteger, false),
		NewAction(&ConstructNode{Name: "num", Args: []ASTNode{&VariableNode{Name: "n"}}})))
	p2.AddDefinition(term2)
	pair2 := NewNamedDefinition("pair")
	pair2.SetBody(NewSequence("x",
		NewReference("term"),
		NewOption(
			NewSequence("",
				NewKeyword("+"),
				NewSequence("y",
					NewReference("term"),
					NewAction(&ConstructNode{Name: "add", Args: []ASTNode{
						&VariableNode{Name: "x"},
						&VariableNode{Name: "y"},
					}}))),
			NewNone())))
	p2.AddDefinition(pair2)
	mustInit(t, p2)

	res2 := p2.Parse(pair2)
	if res2.Empty() {
		t.Fatalf("Parse failed: %v", p2.Err())
	}
	if got := res2.Node().(*testNode); got.Op != "num" {
		t.Errorf("Op = %q, want num", got.Op)
	}
}

func TestDefinitionArguments(t *testing.T) {
	// wrap(v) ::= "!" { wrapped(v) };
	// top ::= x:term wrap(x);
	p := newTestParser(t, "3 !", "num", "wrapped")
	term := NewNamedDefinition("term")
	term.SetBody(NewSequence("n",
		NewToken(lexer.TokenInteger, false),
		NewAction(&ConstructNode{Name: "num", Args: []ASTNode{&VariableNode{Name: "n"}}})))
	p.AddDefinition(term)

	wrap := NewNamedDefinition("wrap", "v")
	wrap.SetBody(NewSequence("",
		NewKeyword("!"),
		NewAction(&ConstructNode{Name: "wrapped", Args: []ASTNode{&VariableNode{Name: "v"}}})))
	p.AddDefinition(wrap)

	top := NewNamedDefinition("top")
	top.SetBody(NewSequence("x",
		NewReference("term"),
		NewReference("wrap", "x")))
	p.AddDefinition(top)
	mustInit(t, p)

	res := p.Parse(top)
	if res.Empty() {
		t.Fatalf("Parse failed: %v", p.Err())
	}
	got := res.Node().(*testNode)
	if got.Op != "wrapped" || got.Kids[0].Op != "num" {
		t.Errorf("got %+v, want wrapped(num(3))", got)
	}
}

func TestListAccumulation(t *testing.T) {
	// items ::= i:term { append([], i) } (* "," j:term { append(is, j) });
	p := newTestParser(t, "1,2,3", "num", "list")
	term := NewNamedDefinition("term")
	term.SetBody(NewSequence("n",
		NewToken(lexer.TokenInteger, false),
		NewAction(&ConstructNode{Name: "num", Args: []ASTNode{&VariableNode{Name: "n"}}})))
	p.AddDefinition(term)

	items := NewNamedDefinition("items")
	items.SetBody(NewSequence("",
		NewRecurseLeft("is",
			NewSequence("i",
				NewReference("term"),
				NewAction(&AppendNode{List: &EmptyListNode{}, Item: &VariableNode{Name: "i"}})),
			NewSequence("",
				NewKeyword(","),
				NewSequence("j",
					NewReference("term"),
					NewAction(&AppendNode{List: &VariableNode{Name: "is"}, Item: &VariableNode{Name: "j"}})))),
		NewAction(&ConstructNode{Name: "list", Args: []ASTNode{&VariableNode{Name: "is"}}})))
	p.AddDefinition(items)
	mustInit(t, p)

	res := p.Parse(items)
	if res.Empty() {
		t.Fatalf("Parse failed: %v", p.Err())
	}
	got := res.Node().(*testNode)
	if got.Op != "list" || len(got.Kids) != 3 {
		t.Fatalf("got %+v, want list of 3", got)
	}
	for i, want := range []string{"1", "2", "3"} {
		if got.Kids[i].Kids[0].Token != want {
			t.Errorf("item %d = %q, want %q", i, got.Kids[i].Kids[0].Token, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestInitUndefinedReference(t *testing.T) {
	p := newTestParser(t, "", "num")
	d := NewNamedDefinition("top")
	d.SetBody(NewReference("missing"))
	p.AddDefinition(d)

	err := p.Init()
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("Init() = %v, want undefined-rule error", err)
	}
}

func TestInitUndefinedActionVariable(t *testing.T) {
	p := newTestParser(t, "", "num")
	d := NewNamedDefinition("top")
	d.SetBody(NewSequence("n",
		NewToken(lexer.TokenInteger, false),
		NewAction(&ConstructNode{Name: "num", Args: []ASTNode{&VariableNode{Name: "nope"}}})))
	p.AddDefinition(d)

	err := p.Init()
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("Init() = %v, want undefined-variable error", err)
	}
}

func TestInitUnknownOpcode(t *testing.T) {
	p := newTestParser(t, "") // no opcodes registered
	d := NewNamedDefinition("top")
	d.SetBody(NewSequence("n",
		NewToken(lexer.TokenInteger, false),
		NewAction(&ConstructNode{Name: "num", Args: []ASTNode{&VariableNode{Name: "n"}}})))
	p.AddDefinition(d)

	err := p.Init()
	if err == nil || !strings.Contains(err.Error(), "num") {
		t.Errorf("Init() = %v, want unknown-opcode error", err)
	}
}

func TestInitEmptyOptionRejected(t *testing.T) {
	p := newTestParser(t, "")
	d := NewNamedDefinition("top")
	d.SetBody(NewOption(NewNone(), NewToken(lexer.TokenInteger, false)))
	p.AddDefinition(d)

	if err := p.Init(); err == nil {
		t.Error("Init() accepted an option with an empty left branch")
	}
}

func TestInitOptionShapeMismatch(t *testing.T) {
	p := newTestParser(t, "")
	d := NewNamedDefinition("top")
	// Left pushes one result; right consumes a token without pushing one.
	d.SetBody(NewSequence("",
		NewOption(NewToken(lexer.TokenInteger, false), NewToken(lexer.TokenString, true)),
		NewToken(lexer.TokenIdentifier, false)))
	p.AddDefinition(d)

	if err := p.Init(); err == nil {
		t.Error("Init() accepted option branches with different stack shapes")
	}
}

func TestInitArgumentCountMismatch(t *testing.T) {
	p := newTestParser(t, "", "num")
	callee := NewNamedDefinition("callee", "a", "b")
	callee.SetBody(NewAction(&ConstructNode{Name: "num", Args: []ASTNode{
		&VariableNode{Name: "a"}, &VariableNode{Name: "b"},
	}}))
	p.AddDefinition(callee)

	top := NewNamedDefinition("top")
	top.SetBody(NewSequence("x",
		NewToken(lexer.TokenInteger, false),
		NewReference("callee", "x")))
	p.AddDefinition(top)

	err := p.Init()
	if err == nil || !strings.Contains(err.Error(), "arguments") {
		t.Errorf("Init() = %v, want argument-count error", err)
	}
}

func TestInitLeavesMultipleResults(t *testing.T) {
	p := newTestParser(t, "")
	d := NewNamedDefinition("top")
	d.SetBody(NewSequence("",
		NewToken(lexer.TokenInteger, false),
		NewToken(lexer.TokenInteger, false)))
	p.AddDefinition(d)

	err := p.Init()
	if err == nil || !strings.Contains(err.Error(), "results") {
		t.Errorf("Init() = %v, want leftover-results error", err)
	}
}

func TestParseRequiresInit(t *testing.T) {
	p := newTestParser(t, "1", "num", "add")
	expr := arithGrammar(p)

	if res := p.Parse(expr); !res.Empty() {
		t.Error("Parse succeeded without Init")
	}
}

func TestPrintSyntax(t *testing.T) {
	p := newTestParser(t, "", "num", "add")
	arithGrammar(p)
	mustInit(t, p)

	out := p.PrintSyntax()
	for _, want := range []string{"term ::=", "expr ::=", `"+"`, "{ add(e, t) }"} {
		if !strings.Contains(out, want) {
			t.Errorf("PrintSyntax output missing %q:\n%s", want, out)
		}
	}
}

func TestTraceSwitchesAreIndependent(t *testing.T) {
	p := newTestParser(t, "")
	p.SetTraceValidate(true)
	if p.trace {
		t.Error("SetTraceValidate flipped the parse trace switch")
	}
	p.SetTrace(true)
	p.SetTraceValidate(false)
	if !p.trace {
		t.Error("SetTraceValidate(false) cleared the parse trace switch")
	}
	if p.traceValidate {
		t.Error("validate trace still set")
	}
}

// ---------------------------------------------------------------------------
// ParseResult and stacks
// ---------------------------------------------------------------------------

func TestParseResultMoveSemantics(t *testing.T) {
	n := &testNode{Op: "x"}
	r := NodeResult(n)
	if r.Empty() {
		t.Fatal("fresh node result is empty")
	}
	if got := r.Node(); got != n {
		t.Errorf("Node() = %v, want %v", got, n)
	}
	if !r.Empty() {
		t.Error("result not empty after move-out")
	}
}

func TestParseResultListAccessor(t *testing.T) {
	r := ListResult([]any{&testNode{Op: "a"}})
	if !r.IsList() {
		t.Fatal("IsList = false")
	}
	if got := r.NodeList(); len(got) != 1 {
		t.Errorf("NodeList len = %d, want 1", len(got))
	}
	if !r.Empty() {
		t.Error("result not empty after list move-out")
	}

	// Node() on a list result is a programming error.
	r2 := ListResult(nil)
	func() {
		defer func() {
			if recover() == nil {
				t.Error("Node() on a list result did not panic")
			}
		}()
		r2.Node()
	}()
}

func TestResultStackDropAssertsEmpty(t *testing.T) {
	var s ResultStack
	s.Push(TokenResult("leftover"))
	s.Push(NodeResult(&testNode{}))

	defer func() {
		if recover() == nil {
			t.Error("dropping a full result did not panic")
		}
	}()
	s.Drop(1, 1)
}

func TestAbstractStack(t *testing.T) {
	var s AbstractStack
	s.Push("a")
	s.Push("b")
	if got := s.IndexOf("a"); got != 0 {
		t.Errorf("IndexOf(a) = %d, want 0", got)
	}
	if got := s.IndexOf("zzz"); got != InvalidIndex {
		t.Errorf("IndexOf(zzz) = %d, want InvalidIndex", got)
	}

	saved := s.EnterBlock()
	s.Push("c")
	if got := s.LocalSize(); got != 1 {
		t.Errorf("LocalSize = %d, want 1", got)
	}
	s.Rewind(0)
	if got := s.Size(); got != 2 {
		t.Errorf("Size after rewind = %d, want 2", got)
	}
	s.ExitBlock(saved)
	if got := s.LocalSize(); got != 2 {
		t.Errorf("LocalSize after exit = %d, want 2", got)
	}
}
