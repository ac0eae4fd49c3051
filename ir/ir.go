// Package ir implements the register-based intermediate representation
// the operator-tree compiler emits (spec §6.2): data movement, arithmetic/
// logic, invocation, and control instructions, plus the IrBuilder that
// tracks register/label allocation and block nesting during compilation.
package ir

import (
	"fmt"
	"strings"

	"github.com/alecthomas/repr"

	"github.com/stanford-oval/thingtalk-go/ast"
)

// Register is a virtual register slot in the generated function.
type Register int

// Label identifies a jump target within a Block.
type Label int

// Instruction is any IR opcode.
type Instruction interface {
	isInstruction()
	String() string
}

// --- data movement ---

type LoadConstant struct {
	Dest  Register
	Value ast.Value
}

func (*LoadConstant) isInstruction() {}
func (i *LoadConstant) String() string { return fmt.Sprintf("r%d = const %v", i.Dest, i.Value) }

type Move struct {
	Dest, Src Register
}

func (*Move) isInstruction()   {}
func (i *Move) String() string { return fmt.Sprintf("r%d = r%d", i.Dest, i.Src) }

type ReadField struct {
	Dest   Register
	Object Register
	Field  string
}

func (*ReadField) isInstruction() {}
func (i *ReadField) String() string {
	return fmt.Sprintf("r%d = r%d.%s", i.Dest, i.Object, i.Field)
}

type CreateObject struct {
	Dest   Register
	Fields map[string]Register
}

func (*CreateObject) isInstruction() {}
func (i *CreateObject) String() string {
	return fmt.Sprintf("r%d = object{%v}", i.Dest, i.Fields)
}

type CreateTuple struct {
	Dest Register
	Args []Register
}

func (*CreateTuple) isInstruction() {}
func (i *CreateTuple) String() string {
	return fmt.Sprintf("r%d = tuple%v", i.Dest, i.Args)
}

// --- arithmetic / logic ---

type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpMod BinaryOp = "%"
	OpEq  BinaryOp = "=="
	OpNeq BinaryOp = "!="
	OpLt  BinaryOp = "<"
	OpGt  BinaryOp = ">"
	OpLeq BinaryOp = "<="
	OpGeq BinaryOp = ">="
	OpAnd BinaryOp = "&&"
	OpOr  BinaryOp = "||"
	OpIn  BinaryOp = "in_array"
	OpLike BinaryOp = "=~"
)

type BinaryInstr struct {
	Dest, LHS, RHS Register
	Op             BinaryOp
}

func (*BinaryInstr) isInstruction() {}
func (i *BinaryInstr) String() string {
	return fmt.Sprintf("r%d = r%d %s r%d", i.Dest, i.LHS, i.Op, i.RHS)
}

type UnaryOp string

const (
	OpNot    UnaryOp = "!"
	OpNegate UnaryOp = "-"
)

type UnaryInstr struct {
	Dest, Src Register
	Op        UnaryOp
}

func (*UnaryInstr) isInstruction() {}
func (i *UnaryInstr) String() string { return fmt.Sprintf("r%d = %s r%d", i.Dest, i.Op, i.Src) }

// --- invocation ---

// InvokeAction calls a device action, discarding any result.
type InvokeAction struct {
	Invocation *ast.Invocation
	InParams   map[string]Register
}

func (*InvokeAction) isInstruction() {}
func (i *InvokeAction) String() string {
	return fmt.Sprintf("invoke_action @%s.%s", i.Invocation.Selector.Kind, i.Invocation.Channel)
}

// InvokeQuery calls a device query, pushing each result row through an
// iterator the surrounding ForIn block consumes.
type InvokeQuery struct {
	Dest       Register // iterator register
	Invocation *ast.Invocation
	InParams   map[string]Register
	Hints      interface{} // *lower.QueryInvocationHints; interface{} to avoid ir -> lower import
}

func (*InvokeQuery) isInstruction() {}
func (i *InvokeQuery) String() string {
	return fmt.Sprintf("r%d = invoke_query @%s.%s", i.Dest, i.Invocation.Selector.Kind, i.Invocation.Channel)
}

// InvokeVarRef calls a declared table/stream/procedure by name.
type InvokeVarRef struct {
	Dest     Register
	Name     string
	InParams map[string]Register
}

func (*InvokeVarRef) isInstruction() {}
func (i *InvokeVarRef) String() string { return fmt.Sprintf("r%d = invoke_var %s", i.Dest, i.Name) }

// InvokeActionVarRef calls a locally declared `let action`/`let procedure`
// by name, as opposed to a device action (spec §6.2, §4.5 action-dispatch
// recipe: "VarRef -> locally bound closure via InvokeActionVarRef").
type InvokeActionVarRef struct {
	Name     string
	InParams map[string]Register
}

func (*InvokeActionVarRef) isInstruction() {}
func (i *InvokeActionVarRef) String() string {
	return fmt.Sprintf("invoke_action_var %s", i.Name)
}

// InvokeOutput is the builtin `notify` action: it surfaces the current
// $outputType/$output pair to the dialogue layer (spec §4.5, §6.2:
// "InvokeOutput(outputType?, output)").
type InvokeOutput struct {
	OutputType *Register
	Output     Register
}

func (*InvokeOutput) isInstruction() {}
func (i *InvokeOutput) String() string {
	if i.OutputType == nil {
		return fmt.Sprintf("invoke_output(nil, r%d)", i.Output)
	}
	return fmt.Sprintf("invoke_output(r%d, r%d)", *i.OutputType, i.Output)
}

// EnterProcedure / ExitProcedure bracket the compiled body of a declared
// `let procedure`/`let action` so the runtime can attribute state-slot
// lookups and error traces to the right declaration (spec §6.2).
type EnterProcedure struct {
	ID   int
	Name string
}

func (*EnterProcedure) isInstruction() {}
func (i *EnterProcedure) String() string { return fmt.Sprintf("enter_procedure(%d, %s)", i.ID, i.Name) }

type ExitProcedure struct {
	ID   int
	Name string
}

func (*ExitProcedure) isInstruction() {}
func (i *ExitProcedure) String() string { return fmt.Sprintf("exit_procedure(%d, %s)", i.ID, i.Name) }

// InvokeMonitor wraps InvokeQuery with change-monitoring semantics.
type InvokeMonitor struct {
	Dest         Register
	Invocation   *ast.Invocation
	InParams     map[string]Register
	MonitorField []string
}

func (*InvokeMonitor) isInstruction() {}
func (i *InvokeMonitor) String() string {
	return fmt.Sprintf("r%d = invoke_monitor @%s.%s", i.Dest, i.Invocation.Selector.Kind, i.Invocation.Channel)
}

// InvokeTimer / InvokeAtTimer start a timer source, yielding a tick iterator.
type InvokeTimer struct {
	Dest              Register
	Base, Interval    Register
	Frequency         Register
}

func (*InvokeTimer) isInstruction() {}
func (i *InvokeTimer) String() string { return fmt.Sprintf("r%d = invoke_timer", i.Dest) }

type InvokeAtTimer struct {
	Dest       Register
	Time       []Register
	Expiration Register
}

func (*InvokeAtTimer) isInstruction() {}
func (i *InvokeAtTimer) String() string { return fmt.Sprintf("r%d = invoke_at_timer", i.Dest) }

// SendEndOfFlow signals a remote-send action's completion (spec §4.5).
type SendEndOfFlow struct {
	Invocation *ast.Invocation
}

func (*SendEndOfFlow) isInstruction() {}
func (i *SendEndOfFlow) String() string { return "send_end_of_flow" }

// --- control ---

// ForIn iterates the rows an iterator register produces, executing Body
// for each. VarScopeNames is the full set of output-scope column names
// visible inside Body, used by CheckIsNewTuple (spec §8 invariant).
type ForIn struct {
	Iterator      Register
	Row           Register
	VarScopeNames []string
	Body          *Block
}

func (*ForIn) isInstruction() {}
func (i *ForIn) String() string { return fmt.Sprintf("for r%d in r%d { ... }", i.Row, i.Iterator) }

// IfJump conditionally jumps to Target when Cond is falsy, skipping the
// instructions up to Target.
type IfJump struct {
	Cond   Register
	Target Label
}

func (*IfJump) isInstruction() {}
func (i *IfJump) String() string { return fmt.Sprintf("if !r%d goto L%d", i.Cond, i.Target) }

// If nests Body to run only when Cond is truthy. Unlike IfJump (a raw
// conditional branch, kept for code that targets a flat instruction
// stream) this preserves block structure, which is what the compiler's
// filter/edge-check chains want.
type If struct {
	Cond Register
	Body *Block
}

func (*If) isInstruction() {}
func (i *If) String() string { return fmt.Sprintf("if r%d { ... }", i.Cond) }

// Jump is an unconditional jump.
type Jump struct {
	Target Label
}

func (*Jump) isInstruction() {}
func (i *Jump) String() string { return fmt.Sprintf("goto L%d", i.Target) }

// LabelMarker marks a jump target position within a Block.
type LabelMarker struct {
	Label Label
}

func (*LabelMarker) isInstruction() {}
func (i *LabelMarker) String() string { return fmt.Sprintf("L%d:", i.Label) }

// TryCatch wraps Body so every device invocation reports failures via
// errs.RuntimeError instead of aborting the whole program (spec §7, §8
// invariant: "TryCatch wraps every invocation").
type TryCatch struct {
	Body         *Block
	ErrorMessage string
}

func (*TryCatch) isInstruction() {}
func (i *TryCatch) String() string { return "try { ... } catch { ... }" }

// ReduceInit is the init(builder, scope) step of the ReduceOp polymorphic
// compilation recipe (spec §4.5): it allocates the runtime accumulation
// state a materializing reduction (sort/index/slice) needs before any row
// arrives, keyed by StateSlot so the runtime can look it up across calls.
type ReduceInit struct {
	Dest      Register
	Kind      string
	StateSlot string
}

func (*ReduceInit) isInstruction() {}
func (i *ReduceInit) String() string {
	return fmt.Sprintf("r%d = reduce_init(%s, %s)", i.Dest, i.Kind, i.StateSlot)
}

// ReduceAdvance is the advance(state, builder, scope, var_scope_names)
// step: emitted once inside the inner table's per-row loop body.
type ReduceAdvance struct {
	State         Register
	Row           Register
	VarScopeNames []string
}

func (*ReduceAdvance) isInstruction() {}
func (i *ReduceAdvance) String() string {
	return fmt.Sprintf("reduce_advance(r%d, r%d)", i.State, i.Row)
}

// ReduceFinish is the finish(state, ...) step: emitted once after the
// inner table's loop closes, yielding the iterator downstream consumers
// range over (the reduction's new_scope, in row form).
type ReduceFinish struct {
	Dest  Register
	State Register
}

func (*ReduceFinish) isInstruction() {}
func (i *ReduceFinish) String() string {
	return fmt.Sprintf("r%d = reduce_finish(r%d)", i.Dest, i.State)
}

// CheckIsNewTuple suppresses rows already seen by a prior EdgeNew
// evaluation, keyed by exactly the var-scope names visible at that point
// (spec §8 invariant: "CheckIsNewTuple keys == var_scope_names").
type CheckIsNewTuple struct {
	Dest    Register
	StateSlot string
	Keys    []Register
	KeyNames []string
}

func (*CheckIsNewTuple) isInstruction() {}
func (i *CheckIsNewTuple) String() string {
	return fmt.Sprintf("r%d = check_is_new_tuple(%v)", i.Dest, i.KeyNames)
}

// CheckOnlyOnce is a per-slot debounce used by EdgeFilterOp: fires each
// time the wrapped filter transitions false->true (a rising edge).
type CheckOnlyOnce struct {
	Dest      Register
	StateSlot string
	Cond      Register
}

func (*CheckOnlyOnce) isInstruction() {}
func (i *CheckOnlyOnce) String() string { return fmt.Sprintf("r%d = check_only_once(r%d)", i.Dest, i.Cond) }

// Return exits the current function/block with an optional value.
type Return struct {
	Value *Register
}

func (*Return) isInstruction() {}
func (i *Return) String() string {
	if i.Value == nil {
		return "return"
	}
	return fmt.Sprintf("return r%d", *i.Value)
}

// --- Block / IrBuilder ---

// Block is a straight-line sequence of instructions, possibly nested
// inside a ForIn/TryCatch body.
type Block struct {
	Instructions []Instruction
}

func (b *Block) Add(instr Instruction) { b.Instructions = append(b.Instructions, instr) }

// Dump pretty-prints the block tree for debugging as an indented listing of
// each instruction's String() form, with ForIn/TryCatch/If bodies nested.
// DumpRepr is the alecthomas/repr-based structural dump.
func (b *Block) Dump() string {
	var sb strings.Builder
	dumpBlock(&sb, b, 0)
	return sb.String()
}

func dumpBlock(sb *strings.Builder, b *Block, indent int) {
	prefix := strings.Repeat("  ", indent)
	for _, instr := range b.Instructions {
		switch typed := instr.(type) {
		case *ForIn:
			sb.WriteString(prefix + typed.String() + "\n")
			dumpBlock(sb, typed.Body, indent+1)
			sb.WriteString(prefix + "}\n")
		case *TryCatch:
			sb.WriteString(prefix + "try {\n")
			dumpBlock(sb, typed.Body, indent+1)
			sb.WriteString(prefix + "}\n")
		case *If:
			sb.WriteString(prefix + typed.String() + "\n")
			dumpBlock(sb, typed.Body, indent+1)
			sb.WriteString(prefix + "}\n")
		default:
			sb.WriteString(prefix + instr.String() + "\n")
		}
	}
}

// DumpRepr renders a block with alecthomas/repr, for tests that want a
// structural (not prose) dump of a compiled IR tree.
func DumpRepr(b *Block) string {
	return repr.String(b, repr.Indent("  "), repr.OmitEmpty(true))
}

// IrBuilder tracks register/label allocation and the stack of open blocks
// while the compiler (C7) walks an operator tree, spec §4.5/§6.2's
// "push_block/pop_block/save_stack_state/pop_to/pop_all" bookkeeping.
type IrBuilder struct {
	nextRegister Register
	nextLabel    Label
	blockStack   []*Block
}

// NewIrBuilder starts a fresh builder with one root block.
func NewIrBuilder() *IrBuilder {
	root := &Block{}
	return &IrBuilder{blockStack: []*Block{root}}
}

func (b *IrBuilder) AllocRegister() Register {
	r := b.nextRegister
	b.nextRegister++
	return r
}

func (b *IrBuilder) AllocLabel() Label {
	l := b.nextLabel
	b.nextLabel++
	return l
}

// CurrentBlock returns the innermost open block.
func (b *IrBuilder) CurrentBlock() *Block { return b.blockStack[len(b.blockStack)-1] }

// Add appends instr to the current block.
func (b *IrBuilder) Add(instr Instruction) { b.CurrentBlock().Add(instr) }

// PushBlock opens a new nested block (e.g. a ForIn/TryCatch body) and
// makes it current.
func (b *IrBuilder) PushBlock() *Block {
	nb := &Block{}
	b.blockStack = append(b.blockStack, nb)
	return nb
}

// PopBlock closes the innermost block and returns it, restoring its
// parent as current.
func (b *IrBuilder) PopBlock() *Block {
	n := len(b.blockStack)
	top := b.blockStack[n-1]
	b.blockStack = b.blockStack[:n-1]
	return top
}

// stackMark is an opaque save point for SaveStackState/PopTo.
type stackMark int

// SaveStackState records the current block-nesting depth.
func (b *IrBuilder) SaveStackState() stackMark { return stackMark(len(b.blockStack)) }

// PopTo closes every block opened since mark, returning them innermost-first.
func (b *IrBuilder) PopTo(mark stackMark) []*Block {
	var popped []*Block
	for stackMark(len(b.blockStack)) > mark {
		popped = append(popped, b.PopBlock())
	}
	return popped
}

// PopAll closes every open block back to (and including) the root,
// returning the root block.
func (b *IrBuilder) PopAll() *Block {
	for len(b.blockStack) > 1 {
		b.PopBlock()
	}
	return b.blockStack[0]
}
