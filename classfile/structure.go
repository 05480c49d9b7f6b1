package classfile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dhamidi/rebuild/ast"
)

// scope is an enclosing loop or switch that break and continue can target.
// A continuePC of -1 means the construct has no continue target.
type scope struct {
	label      *string
	start      int
	breakPC    int
	continuePC int
	loop       bool
}

// structurer folds simulated blocks into nested statements. Every region it
// builds has a fall-through pc: control leaving the region's statements by
// falling off their end continues there. Jumps that no construct accounts
// for become labeled gotos, so the result is exact even where it is not
// pretty.
type structurer struct {
	r        *rebuilder
	emitted  []bool
	loopDone []bool
	preds    map[int][]int
	ranges   []*tryRange
	scopes   []*scope
	alias    map[int]int
}

func (r *rebuilder) structure() *ast.BlockStmt {
	s := &structurer{
		r:        r,
		emitted:  make([]bool, len(r.blocks)),
		loopDone: make([]bool, len(r.blocks)),
		preds:    make(map[int][]int),
		ranges:   r.exceptionRanges(),
		alias:    make(map[int]int),
	}
	for _, b := range r.blocks {
		if !b.reached {
			continue
		}
		for _, pc := range b.successors() {
			s.preds[pc] = append(s.preds[pc], b.index)
		}
		for _, tr := range s.ranges {
			if b.start >= tr.start && b.start < tr.end {
				for _, h := range tr.handlers {
					s.preds[h.pc] = append(s.preds[h.pc], b.index)
				}
			}
		}
	}

	body := s.region(0, len(r.blocks), -1)
	for i, b := range r.blocks {
		if b.reached && !s.emitted[i] {
			body = append(body, s.region(i, i+1, -1)...)
		}
	}
	used := make(map[string]bool)
	root := &ast.BlockStmt{Stmts: body}
	ast.Inspect(root, func(n ast.CodeNode) {
		if g, ok := n.(*ast.GotoStmt); ok {
			used[g.Label] = true
		}
	})
	pruneLabels(root, used)
	return root
}

func labelName(pc int) string {
	return fmt.Sprintf("L%d", pc)
}

func (s *structurer) pcOf(idx int) int {
	if idx >= len(s.r.blocks) {
		return len(s.r.code.Code)
	}
	return s.r.blocks[idx].start
}

func (s *structurer) indexOf(pc int) int {
	if idx, ok := s.r.byPC[pc]; ok {
		return idx
	}
	return len(s.r.blocks)
}

func (s *structurer) live(idx int) bool {
	return idx < len(s.r.blocks) && s.r.blocks[idx].reached && !s.emitted[idx]
}

// naturalNext is where control goes when it falls off a statement emitted
// just before position from.
func (s *structurer) naturalNext(from, to, next int) int {
	for j := from; j < to; j++ {
		if s.live(j) {
			return s.r.blocks[j].start
		}
	}
	return next
}

func (s *structurer) lastLive(from, to int) int {
	for j := to - 1; j >= from; j-- {
		if s.live(j) {
			return j
		}
	}
	return -1
}

// fall makes control that reaches the end of what was emitted so far go to
// target.
func (s *structurer) fall(target, from, to, next int) []ast.Stmt {
	target = s.resolve(target)
	if s.naturalNext(from, to, next) == target {
		return nil
	}
	return []ast.Stmt{s.jump(target)}
}

func (s *structurer) jump(target int) ast.Stmt {
	target = s.resolve(target)
	for k := len(s.scopes) - 1; k >= 0; k-- {
		sc := s.scopes[k]
		if sc.loop && sc.continuePC == target {
			if s.innermostLoop(k) {
				return &ast.ContinueStmt{}
			}
			return &ast.ContinueStmt{Label: s.label(sc)}
		}
		if sc.breakPC == target {
			if k == len(s.scopes)-1 {
				return &ast.BreakStmt{}
			}
			return &ast.BreakStmt{Label: s.label(sc)}
		}
	}
	return &ast.GotoStmt{Label: labelName(target)}
}

// resolve follows jumps to blocks that were dropped because all they did
// was jump elsewhere.
func (s *structurer) resolve(pc int) int {
	for {
		to, ok := s.alias[pc]
		if !ok {
			return pc
		}
		pc = to
	}
}

func (s *structurer) innermostLoop(k int) bool {
	for _, sc := range s.scopes[k+1:] {
		if sc.loop {
			return false
		}
	}
	return true
}

func (s *structurer) label(sc *scope) string {
	if *sc.label == "" {
		*sc.label = fmt.Sprintf("S%d", sc.start)
	}
	return *sc.label
}

func (s *structurer) push(sc *scope) { s.scopes = append(s.scopes, sc) }
func (s *structurer) pop()           { s.scopes = s.scopes[:len(s.scopes)-1] }

// region structures the live blocks in [from, to). Falling off the result
// continues at next.
func (s *structurer) region(from, to, next int) []ast.Stmt {
	var out []ast.Stmt
	for i := from; i < to; {
		if !s.live(i) {
			i++
			continue
		}
		var stmts []ast.Stmt
		stmts, i = s.construct(i, to, next)
		out = append(out, stmts...)
	}
	return out
}

func (s *structurer) construct(i, to, next int) ([]ast.Stmt, int) {
	last, isLoop := s.loopAt(i, to)
	if tr := s.rangeAt(i); tr != nil {
		if !isLoop || last < s.indexOf(tr.end) {
			return s.try(tr, i, to, next)
		}
	}
	if isLoop {
		return s.loop(i, last, to, next)
	}
	return s.plain(i, to, next)
}

func (s *structurer) rangeAt(i int) *tryRange {
	pc := s.r.blocks[i].start
	for _, tr := range s.ranges {
		if tr.next <= pc && pc < tr.end {
			return tr
		}
	}
	return nil
}

// loopAt finds the last live block in [i, to) that jumps back to block i.
func (s *structurer) loopAt(i, to int) (int, bool) {
	if s.loopDone[i] {
		return 0, false
	}
	header := s.r.blocks[i].start
	last := -1
	for k := i; k < to; k++ {
		if !s.live(k) {
			continue
		}
		for _, pc := range s.r.blocks[k].successors() {
			if pc == header {
				last = k
			}
		}
	}
	return last, last >= 0
}

func (s *structurer) open(i int) []ast.Stmt {
	b := s.r.blocks[i]
	s.emitted[i] = true
	out := make([]ast.Stmt, 0, len(b.stmts)+1)
	out = append(out, &ast.LabelStmt{Name: labelName(b.start)})
	return append(out, b.stmts...)
}

func (s *structurer) plain(i, to, next int) ([]ast.Stmt, int) {
	b := s.r.blocks[i]
	out := s.open(i)
	switch b.term.kind {
	case termExit:
		return out, i + 1
	case termGoto:
		if stmts, end, ok := s.bottomTested(i, to, next); ok {
			return append(out, stmts...), end
		}
		return append(out, s.fall(b.term.target, i+1, to, next)...), i + 1
	case termIf:
		stmts, end := s.branch(i, to, next)
		return append(out, stmts...), end
	case termSwitch:
		stmts, end := s.switchOn(i, to, next)
		return append(out, stmts...), end
	}
	return append(out, s.fall(b.end, i+1, to, next)...), i + 1
}

func negate(cond ast.Expr) ast.Expr {
	if c, ok := cond.(*ast.CondExpr); ok {
		// Not exact for a folded float compare: !(a < b) and a >= b differ on NaN.
		return &ast.CondExpr{Op: c.Op.Negate(), Left: c.Left, Right: c.Right}
	}
	return &ast.CondExpr{Op: ast.CondEQ, Left: cond, Right: zero()}
}

// branch structures a conditional jump as if-then or if-then-else when the
// target lies ahead in the same region.
func (s *structurer) branch(i, to, next int) ([]ast.Stmt, int) {
	b := s.r.blocks[i]
	t := b.term.target
	ti := s.indexOf(t)
	if t <= b.start || ti <= i || ti > to || (ti < len(s.r.blocks) && s.emitted[ti]) {
		out := []ast.Stmt{&ast.IfStmt{Cond: b.term.cond, Then: &ast.BlockStmt{Stmts: []ast.Stmt{s.jump(t)}}}}
		return append(out, s.fall(b.end, i+1, to, next)...), i + 1
	}

	if j := s.lastLive(i+1, ti); j >= 0 && s.r.blocks[j].term.kind == termGoto {
		e := s.r.blocks[j].term.target
		if ei := s.indexOf(e); ei > ti && ei <= to {
			then := s.region(i+1, ti, e)
			els := s.region(ti, ei, e)
			out := []ast.Stmt{&ast.IfStmt{
				Cond: negate(b.term.cond),
				Then: &ast.BlockStmt{Stmts: then},
				Else: &ast.BlockStmt{Stmts: els},
			}}
			return append(out, s.fall(e, ei, to, next)...), ei
		}
	}

	then := s.region(i+1, ti, t)
	out := []ast.Stmt{&ast.IfStmt{Cond: negate(b.term.cond), Then: &ast.BlockStmt{Stmts: then}}}
	return append(out, s.fall(t, ti, to, next)...), ti
}

// bottomTested recognizes a loop entered by a jump to its test at the
// bottom: block i jumps forward to block c, whose conditional jump goes back
// to block i+1.
func (s *structurer) bottomTested(i, to, next int) ([]ast.Stmt, int, bool) {
	b := s.r.blocks[i]
	ci := s.indexOf(b.term.target)
	if ci <= i+1 || ci >= to || !s.live(ci) {
		return nil, 0, false
	}
	c := s.r.blocks[ci]
	if c.term.kind != termIf || c.term.target != s.pcOf(i+1) {
		return nil, 0, false
	}
	for _, p := range s.preds[c.start] {
		if p != i && (p <= i || p > ci) {
			return nil, 0, false
		}
	}
	for k := ci + 1; k < to; k++ {
		if !s.live(k) {
			continue
		}
		for _, pc := range s.r.blocks[k].successors() {
			if pc == s.pcOf(i+1) {
				return nil, 0, false
			}
		}
	}

	s.emitted[ci] = true
	w := &ast.WhileStmt{}
	s.push(&scope{label: &w.Label, start: c.start, breakPC: c.end, continuePC: c.start, loop: true})
	var body []ast.Stmt
	if len(c.stmts) == 0 {
		w.Cond = c.term.cond
	} else {
		body = append(body, c.stmts...)
		body = append(body, &ast.IfStmt{
			Cond: negate(c.term.cond),
			Then: &ast.BlockStmt{Stmts: []ast.Stmt{&ast.BreakStmt{}}},
		})
	}
	body = append(body, s.region(i+1, ci, c.start)...)
	s.pop()
	w.Body = &ast.BlockStmt{Stmts: body}

	out := []ast.Stmt{&ast.LabelStmt{Name: labelName(c.start)}, w}
	return append(out, s.fall(c.end, ci+1, to, next)...), ci + 1, true
}

func (s *structurer) loop(i, last, to, next int) ([]ast.Stmt, int) {
	s.loopDone[i] = true
	header := s.r.blocks[i]
	tail := s.r.blocks[last]
	exit := s.pcOf(last + 1)

	if last > i && header.term.kind == termIf && len(header.stmts) == 0 &&
		header.term.target == exit && s.rangeAt(i) == nil {
		s.emitted[i] = true
		w := &ast.WhileStmt{Cond: negate(header.term.cond)}
		s.push(&scope{label: &w.Label, start: header.start, breakPC: exit, continuePC: header.start, loop: true})
		w.Body = &ast.BlockStmt{Stmts: s.region(i+1, last+1, header.start)}
		s.pop()
		out := []ast.Stmt{&ast.LabelStmt{Name: labelName(header.start)}, w}
		return append(out, s.fall(exit, last+1, to, next)...), last + 1
	}

	if tail.term.kind == termIf && tail.term.target == header.start {
		d := &ast.DoWhileStmt{Cond: tail.term.cond}
		cont := -1
		if len(tail.stmts) == 0 {
			cont = tail.start
		}
		s.push(&scope{label: &d.Label, start: header.start, breakPC: exit, continuePC: cont, loop: true})
		body := s.region(i, last, tail.start)
		if !s.emitted[last] {
			body = append(body, s.open(last)...)
		}
		s.pop()
		d.Body = &ast.BlockStmt{Stmts: body}
		return append([]ast.Stmt{d}, s.fall(exit, last+1, to, next)...), last + 1
	}

	w := &ast.WhileStmt{}
	s.push(&scope{label: &w.Label, start: header.start, breakPC: s.naturalNext(last+1, to, next), continuePC: header.start, loop: true})
	w.Body = &ast.BlockStmt{Stmts: s.region(i, last+1, header.start)}
	s.pop()
	return []ast.Stmt{w}, last + 1
}

func (s *structurer) switchOn(i, to, next int) ([]ast.Stmt, int) {
	b := s.r.blocks[i]
	t := b.term
	sw := &ast.SwitchStmt{Tag: t.key}

	all := append([]int{t.def}, t.targets...)
	end := 0
	valid := true
	for _, pc := range all {
		idx := s.indexOf(pc)
		if pc <= b.start || idx > to || (idx < len(s.r.blocks) && s.emitted[idx]) {
			valid = false
		}
		end = max(end, pc)
	}

	if !valid {
		s.push(&scope{label: &sw.Label, start: b.start, breakPC: -2, continuePC: -2})
		for _, pc := range distinct(all) {
			sw.Cases = append(sw.Cases, &ast.SwitchCase{
				Values:  keysFor(t, pc),
				Default: t.def == pc,
				Body:    &ast.BlockStmt{Stmts: []ast.Stmt{s.jump(pc)}},
			})
		}
		s.pop()
		return []ast.Stmt{sw}, i + 1
	}

	endIdx := s.indexOf(end)
	for k := i + 1; k < endIdx; k++ {
		if !s.live(k) || s.r.blocks[k].term.kind != termGoto {
			continue
		}
		if g := s.r.blocks[k].term.target; g > end && s.indexOf(g) <= to {
			end = g
		}
	}
	endIdx = s.indexOf(end)

	s.push(&scope{label: &sw.Label, start: b.start, breakPC: end, continuePC: -1})
	if t.def != end {
		if keys := keysFor(t, end); len(keys) > 0 {
			sw.Cases = append(sw.Cases, &ast.SwitchCase{
				Values: keys,
				Body:   &ast.BlockStmt{Stmts: []ast.Stmt{&ast.BreakStmt{}}},
			})
		}
	}
	var starts []int
	for _, pc := range distinct(all) {
		if pc < end {
			starts = append(starts, pc)
		}
	}
	for k, pc := range starts {
		nextPC, nextIdx := end, endIdx
		if k+1 < len(starts) {
			nextPC, nextIdx = starts[k+1], s.indexOf(starts[k+1])
		}
		sw.Cases = append(sw.Cases, &ast.SwitchCase{
			Values:  keysFor(t, pc),
			Default: t.def == pc,
			Body:    &ast.BlockStmt{Stmts: s.region(s.indexOf(pc), nextIdx, nextPC)},
		})
	}
	s.pop()
	return append([]ast.Stmt{sw}, s.fall(end, endIdx, to, next)...), endIdx
}

func distinct(pcs []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, pc := range pcs {
		if !seen[pc] {
			seen[pc] = true
			out = append(out, pc)
		}
	}
	sort.Ints(out)
	return out
}

func keysFor(t terminator, pc int) []int32 {
	var keys []int32
	for k, target := range t.targets {
		if target == pc {
			keys = append(keys, t.keys[k])
		}
	}
	return keys
}

// try wraps the part of tr that starts at block i and lies inside the
// region. When the handlers follow the protected code in the same region
// they become the catch bodies; otherwise each catch jumps to its handler.
func (s *structurer) try(tr *tryRange, i, to, next int) ([]ast.Stmt, int) {
	endIdx := s.indexOf(tr.end)
	bodyEnd := min(endIdx, to)
	tr.next = s.pcOf(bodyEnd)

	types := make(map[int][]string)
	var pcs []int
	for _, h := range tr.handlers {
		if _, ok := types[h.pc]; !ok {
			pcs = append(pcs, h.pc)
		}
		types[h.pc] = append(types[h.pc], h.class)
	}
	sort.Ints(pcs)

	structured := endIdx <= to
	for _, pc := range pcs {
		idx := s.indexOf(pc)
		structured = structured && idx >= bodyEnd && idx < to && s.live(idx)
	}

	if !structured {
		log.Debugf("%s: catch handlers of %d..%d left as jumps", s.r.m.Signature(s.r.cp), tr.start, tr.end)
		try := &ast.TryStmt{Body: &ast.BlockStmt{Stmts: s.region(i, bodyEnd, s.naturalNext(bodyEnd, to, next))}}
		for _, pc := range pcs {
			try.Catches = append(try.Catches, &ast.CatchClause{
				Type: catchTypes(types[pc]),
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{s.jump(pc)}},
			})
		}
		return []ast.Stmt{try}, bodyEnd
	}

	first := s.indexOf(pcs[0])
	lastHandler := s.indexOf(pcs[len(pcs)-1])
	exitIdx := s.tryExit(i, bodyEnd, first, lastHandler, to)
	s.skipJumps(bodyEnd, first, exitIdx)
	afterMiddle := s.naturalNext(exitIdx, to, next)
	after := s.naturalNext(bodyEnd, first, afterMiddle)

	try := &ast.TryStmt{Body: &ast.BlockStmt{Stmts: s.region(i, bodyEnd, after)}}
	for k, pc := range pcs {
		end := exitIdx
		if k+1 < len(pcs) {
			end = s.indexOf(pcs[k+1])
		}
		try.Catches = append(try.Catches, &ast.CatchClause{
			Type: catchTypes(types[pc]),
			Body: &ast.BlockStmt{Stmts: s.region(s.indexOf(pc), end, after)},
		})
	}
	out := []ast.Stmt{try}
	out = append(out, s.region(bodyEnd, first, afterMiddle)...)
	return out, exitIdx
}

// tryExit finds where the code after a try statement starts: the target
// of the jump that ends the protected code or one of the handlers, or else
// the first block the last handler cannot be the only way into.
func (s *structurer) tryExit(i, bodyEnd, first, lastHandler, to int) int {
	beyond := func(k int) (int, bool) {
		b := s.r.blocks[k]
		if b.term.kind != termGoto {
			return 0, false
		}
		idx := s.indexOf(b.term.target)
		return idx, idx > lastHandler && idx <= to
	}
	if j := s.lastLive(i, first); j >= 0 {
		if idx, ok := beyond(j); ok {
			return idx
		}
	}
	for k := first; k < to; k++ {
		if s.live(k) {
			if idx, ok := beyond(k); ok {
				return idx
			}
		}
	}
	k := lastHandler + 1
	for ; k < to; k++ {
		if !s.live(k) {
			continue
		}
		inside := true
		for _, p := range s.preds[s.r.blocks[k].start] {
			inside = inside && p >= lastHandler && p < k
		}
		if !inside || s.rangeAt(k) != nil {
			break
		}
	}
	return k
}

// skipJumps drops the blocks in [from, to) when each does nothing but jump
// to block exit, redirecting jumps to them.
func (s *structurer) skipJumps(from, to, exit int) {
	var skip []int
	for k := from; k < to; k++ {
		if !s.live(k) {
			continue
		}
		b := s.r.blocks[k]
		if len(b.stmts) != 0 || b.term.kind != termGoto || s.indexOf(s.resolve(b.term.target)) != exit {
			return
		}
		skip = append(skip, k)
	}
	for _, k := range skip {
		s.emitted[k] = true
		s.alias[s.r.blocks[k].start] = s.pcOf(exit)
	}
}

func catchTypes(classes []string) string {
	for _, c := range classes {
		if c == "" {
			return ""
		}
	}
	return strings.Join(classes, "|")
}

func pruneLabels(b *ast.BlockStmt, used map[string]bool) {
	if b == nil {
		return
	}
	kept := b.Stmts[:0]
	for _, st := range b.Stmts {
		switch x := st.(type) {
		case *ast.LabelStmt:
			if !used[x.Name] {
				continue
			}
		case *ast.BlockStmt:
			pruneLabels(x, used)
		case *ast.IfStmt:
			pruneLabels(x.Then, used)
			pruneLabels(x.Else, used)
		case *ast.WhileStmt:
			pruneLabels(x.Body, used)
		case *ast.DoWhileStmt:
			pruneLabels(x.Body, used)
		case *ast.SwitchStmt:
			for _, c := range x.Cases {
				pruneLabels(c.Body, used)
			}
		case *ast.TryStmt:
			pruneLabels(x.Body, used)
			for _, c := range x.Catches {
				pruneLabels(c.Body, used)
			}
		}
		kept = append(kept, st)
	}
	if len(kept) == 0 {
		kept = nil
	}
	b.Stmts = kept
}
