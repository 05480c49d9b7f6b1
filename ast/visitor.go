package ast

// CodeVisitor receives every node of a tree, children before parents. For
// each node the kind-specific Visit method is called first, then
// EnterStatement or EnterExpression, so a visitor interested only in node
// boundaries can ignore the kinds entirely.
type CodeVisitor interface {
	EnterStatement(s Stmt)
	EnterExpression(e Expr)

	VisitConst(e *ConstExpr)
	VisitLocal(e *LocalExpr)
	VisitStackVar(e *StackVarExpr)
	VisitCaughtException(e *CaughtExceptionExpr)
	VisitArith(e *ArithExpr)
	VisitNeg(e *NegExpr)
	VisitConvert(e *ConvertExpr)
	VisitCond(e *CondExpr)
	VisitField(e *FieldExpr)
	VisitInvoke(e *InvokeExpr)
	VisitNew(e *NewExpr)
	VisitNewArray(e *NewArrayExpr)
	VisitArrayLoad(e *ArrayLoadExpr)
	VisitArrayLength(e *ArrayLengthExpr)
	VisitCast(e *CastExpr)
	VisitInstanceOf(e *InstanceOfExpr)

	VisitBlock(s *BlockStmt)
	VisitExprStmt(s *ExprStmt)
	VisitAssign(s *AssignStmt)
	VisitInc(s *IncStmt)
	VisitReturn(s *ReturnStmt)
	VisitThrow(s *ThrowStmt)
	VisitIf(s *IfStmt)
	VisitWhile(s *WhileStmt)
	VisitDoWhile(s *DoWhileStmt)
	VisitBreak(s *BreakStmt)
	VisitContinue(s *ContinueStmt)
	VisitSwitch(s *SwitchStmt)
	VisitTry(s *TryStmt)
	VisitMonitor(s *MonitorStmt)
	VisitLabel(s *LabelStmt)
	VisitGoto(s *GotoStmt)
}

// BaseVisitor implements CodeVisitor with no-ops. Embed it and override the
// methods of interest.
type BaseVisitor struct{}

func (BaseVisitor) EnterStatement(Stmt)                       {}
func (BaseVisitor) EnterExpression(Expr)                      {}
func (BaseVisitor) VisitConst(*ConstExpr)                     {}
func (BaseVisitor) VisitLocal(*LocalExpr)                     {}
func (BaseVisitor) VisitStackVar(*StackVarExpr)               {}
func (BaseVisitor) VisitCaughtException(*CaughtExceptionExpr) {}
func (BaseVisitor) VisitArith(*ArithExpr)                     {}
func (BaseVisitor) VisitNeg(*NegExpr)                         {}
func (BaseVisitor) VisitConvert(*ConvertExpr)                 {}
func (BaseVisitor) VisitCond(*CondExpr)                       {}
func (BaseVisitor) VisitField(*FieldExpr)                     {}
func (BaseVisitor) VisitInvoke(*InvokeExpr)                   {}
func (BaseVisitor) VisitNew(*NewExpr)                         {}
func (BaseVisitor) VisitNewArray(*NewArrayExpr)               {}
func (BaseVisitor) VisitArrayLoad(*ArrayLoadExpr)             {}
func (BaseVisitor) VisitArrayLength(*ArrayLengthExpr)         {}
func (BaseVisitor) VisitCast(*CastExpr)                       {}
func (BaseVisitor) VisitInstanceOf(*InstanceOfExpr)           {}
func (BaseVisitor) VisitBlock(*BlockStmt)                     {}
func (BaseVisitor) VisitExprStmt(*ExprStmt)                   {}
func (BaseVisitor) VisitAssign(*AssignStmt)                   {}
func (BaseVisitor) VisitInc(*IncStmt)                         {}
func (BaseVisitor) VisitReturn(*ReturnStmt)                   {}
func (BaseVisitor) VisitThrow(*ThrowStmt)                     {}
func (BaseVisitor) VisitIf(*IfStmt)                           {}
func (BaseVisitor) VisitWhile(*WhileStmt)                     {}
func (BaseVisitor) VisitDoWhile(*DoWhileStmt)                 {}
func (BaseVisitor) VisitBreak(*BreakStmt)                     {}
func (BaseVisitor) VisitContinue(*ContinueStmt)               {}
func (BaseVisitor) VisitSwitch(*SwitchStmt)                   {}
func (BaseVisitor) VisitTry(*TryStmt)                         {}
func (BaseVisitor) VisitMonitor(*MonitorStmt)                 {}
func (BaseVisitor) VisitLabel(*LabelStmt)                     {}
func (BaseVisitor) VisitGoto(*GotoStmt)                       {}

type inspector struct {
	BaseVisitor
	fn func(CodeNode)
}

func (i inspector) EnterStatement(s Stmt)  { i.fn(s) }
func (i inspector) EnterExpression(e Expr) { i.fn(e) }

// Inspect calls fn for every node under and including root, children before
// parents.
func Inspect(root CodeNode, fn func(CodeNode)) {
	root.Accept(inspector{fn: fn})
}

// Walk is Inspect with a visitor.
func Walk(v CodeVisitor, root CodeNode) {
	root.Accept(v)
}

// IsPure reports whether evaluating e can have no side effect beyond
// producing its value. Calls, allocations and anything that may throw are
// impure.
func IsPure(e Expr) bool {
	pure := true
	Inspect(e, func(n CodeNode) {
		switch x := n.(type) {
		case *InvokeExpr, *NewExpr, *NewArrayExpr, *ArrayLoadExpr, *ArrayLengthExpr, *CastExpr, *FieldExpr:
			pure = false
		case *ArithExpr:
			if (x.Op == OpDiv || x.Op == OpRem) && !x.Type().IsReference() &&
				(x.Type().Kind == Int || x.Type().Kind == Long) {
				pure = false
			}
		}
	})
	return pure
}

// References reports whether any node under e is a StackVarExpr named name.
func References(e CodeNode, name string) bool {
	found := false
	Inspect(e, func(n CodeNode) {
		if sv, ok := n.(*StackVarExpr); ok && sv.Name == name {
			found = true
		}
	})
	return found
}
