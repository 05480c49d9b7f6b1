package ast

// Stmt is a step of a rebuilt body. Statements produce no value.
type Stmt interface {
	CodeNode
	stmtNode()
}

type BlockStmt struct {
	Stmts []Stmt
}

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	X Expr
}

// AssignStmt stores Value into Target, which is a LocalExpr, StackVarExpr,
// FieldExpr or ArrayLoadExpr.
type AssignStmt struct {
	Target Expr
	Value  Expr
}

// IncStmt adds a constant to an int local in place.
type IncStmt struct {
	Local *LocalExpr
	Delta int32
}

// ReturnStmt returns Value, or nothing when Value is nil.
type ReturnStmt struct {
	Value Expr
}

type ThrowStmt struct {
	Value Expr
}

// IfStmt runs Then when Cond holds, otherwise Else. Else may be nil.
type IfStmt struct {
	Cond Expr
	Then *BlockStmt
	Else *BlockStmt
}

// WhileStmt tests Cond before each iteration. A nil Cond loops forever.
type WhileStmt struct {
	Label string
	Cond  Expr
	Body  *BlockStmt
}

// DoWhileStmt tests Cond after each iteration.
type DoWhileStmt struct {
	Label string
	Body  *BlockStmt
	Cond  Expr
}

// BreakStmt leaves the enclosing loop or switch, or the one named by Label.
type BreakStmt struct {
	Label string
}

type ContinueStmt struct {
	Label string
}

// SwitchCase runs Body for any of Values, or for no match when Default is
// set. Bodies fall through unless they end in a break.
type SwitchCase struct {
	Values  []int32
	Default bool
	Body    *BlockStmt
}

type SwitchStmt struct {
	Label string
	Tag   Expr
	Cases []*SwitchCase
}

// CatchClause handles exceptions of Type, or any exception when Type is
// empty. Its body starts with the caught exception on the stack.
type CatchClause struct {
	Type string
	Body *BlockStmt
}

type TryStmt struct {
	Body    *BlockStmt
	Catches []*CatchClause
}

// MonitorStmt enters or exits the monitor of Object.
type MonitorStmt struct {
	Enter  bool
	Object Expr
}

// LabelStmt marks a jump target in bodies that could not be structured.
type LabelStmt struct {
	Name string
}

type GotoStmt struct {
	Label string
}

func (*BlockStmt) stmtNode()    {}
func (*ExprStmt) stmtNode()     {}
func (*AssignStmt) stmtNode()   {}
func (*IncStmt) stmtNode()      {}
func (*ReturnStmt) stmtNode()   {}
func (*ThrowStmt) stmtNode()    {}
func (*IfStmt) stmtNode()       {}
func (*WhileStmt) stmtNode()    {}
func (*DoWhileStmt) stmtNode()  {}
func (*BreakStmt) stmtNode()    {}
func (*ContinueStmt) stmtNode() {}
func (*SwitchStmt) stmtNode()   {}
func (*TryStmt) stmtNode()      {}
func (*MonitorStmt) stmtNode()  {}
func (*LabelStmt) stmtNode()    {}
func (*GotoStmt) stmtNode()     {}

// Each Accept visits children first, then the statement's own visit method,
// then EnterStatement.

func (s *BlockStmt) Accept(v CodeVisitor) {
	for _, stmt := range s.Stmts {
		stmt.Accept(v)
	}
	v.VisitBlock(s)
	v.EnterStatement(s)
}

func (s *ExprStmt) Accept(v CodeVisitor) {
	s.X.Accept(v)
	v.VisitExprStmt(s)
	v.EnterStatement(s)
}

func (s *AssignStmt) Accept(v CodeVisitor) {
	s.Target.Accept(v)
	s.Value.Accept(v)
	v.VisitAssign(s)
	v.EnterStatement(s)
}

func (s *IncStmt) Accept(v CodeVisitor) {
	s.Local.Accept(v)
	v.VisitInc(s)
	v.EnterStatement(s)
}

func (s *ReturnStmt) Accept(v CodeVisitor) {
	if s.Value != nil {
		s.Value.Accept(v)
	}
	v.VisitReturn(s)
	v.EnterStatement(s)
}

func (s *ThrowStmt) Accept(v CodeVisitor) {
	s.Value.Accept(v)
	v.VisitThrow(s)
	v.EnterStatement(s)
}

func (s *IfStmt) Accept(v CodeVisitor) {
	s.Cond.Accept(v)
	s.Then.Accept(v)
	if s.Else != nil {
		s.Else.Accept(v)
	}
	v.VisitIf(s)
	v.EnterStatement(s)
}

func (s *WhileStmt) Accept(v CodeVisitor) {
	if s.Cond != nil {
		s.Cond.Accept(v)
	}
	s.Body.Accept(v)
	v.VisitWhile(s)
	v.EnterStatement(s)
}

func (s *DoWhileStmt) Accept(v CodeVisitor) {
	s.Body.Accept(v)
	s.Cond.Accept(v)
	v.VisitDoWhile(s)
	v.EnterStatement(s)
}

func (s *BreakStmt) Accept(v CodeVisitor) {
	v.VisitBreak(s)
	v.EnterStatement(s)
}

func (s *ContinueStmt) Accept(v CodeVisitor) {
	v.VisitContinue(s)
	v.EnterStatement(s)
}

func (s *SwitchStmt) Accept(v CodeVisitor) {
	s.Tag.Accept(v)
	for _, c := range s.Cases {
		c.Body.Accept(v)
	}
	v.VisitSwitch(s)
	v.EnterStatement(s)
}

func (s *TryStmt) Accept(v CodeVisitor) {
	s.Body.Accept(v)
	for _, c := range s.Catches {
		c.Body.Accept(v)
	}
	v.VisitTry(s)
	v.EnterStatement(s)
}

func (s *MonitorStmt) Accept(v CodeVisitor) {
	s.Object.Accept(v)
	v.VisitMonitor(s)
	v.EnterStatement(s)
}

func (s *LabelStmt) Accept(v CodeVisitor) {
	v.VisitLabel(s)
	v.EnterStatement(s)
}

func (s *GotoStmt) Accept(v CodeVisitor) {
	v.VisitGoto(s)
	v.EnterStatement(s)
}
