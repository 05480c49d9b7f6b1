package classfile

import "fmt"

type Opcode uint8

const (
	OpNop             Opcode = 0x00
	OpAconstNull      Opcode = 0x01
	OpIconstM1        Opcode = 0x02
	OpIconst0         Opcode = 0x03
	OpIconst5         Opcode = 0x08
	OpLconst0         Opcode = 0x09
	OpLconst1         Opcode = 0x0a
	OpFconst0         Opcode = 0x0b
	OpFconst2         Opcode = 0x0d
	OpDconst0         Opcode = 0x0e
	OpDconst1         Opcode = 0x0f
	OpBipush          Opcode = 0x10
	OpSipush          Opcode = 0x11
	OpLdc             Opcode = 0x12
	OpLdcW            Opcode = 0x13
	OpLdc2W           Opcode = 0x14
	OpIload           Opcode = 0x15
	OpLload           Opcode = 0x16
	OpFload           Opcode = 0x17
	OpDload           Opcode = 0x18
	OpAload           Opcode = 0x19
	OpIload0          Opcode = 0x1a
	OpAload3          Opcode = 0x2d
	OpIaload          Opcode = 0x2e
	OpLaload          Opcode = 0x2f
	OpFaload          Opcode = 0x30
	OpDaload          Opcode = 0x31
	OpAaload          Opcode = 0x32
	OpBaload          Opcode = 0x33
	OpCaload          Opcode = 0x34
	OpSaload          Opcode = 0x35
	OpIstore          Opcode = 0x36
	OpLstore          Opcode = 0x37
	OpFstore          Opcode = 0x38
	OpDstore          Opcode = 0x39
	OpAstore          Opcode = 0x3a
	OpIstore0         Opcode = 0x3b
	OpAstore3         Opcode = 0x4e
	OpIastore         Opcode = 0x4f
	OpLastore         Opcode = 0x50
	OpFastore         Opcode = 0x51
	OpDastore         Opcode = 0x52
	OpAastore         Opcode = 0x53
	OpBastore         Opcode = 0x54
	OpCastore         Opcode = 0x55
	OpSastore         Opcode = 0x56
	OpPop             Opcode = 0x57
	OpPop2            Opcode = 0x58
	OpDup             Opcode = 0x59
	OpDupX1           Opcode = 0x5a
	OpDupX2           Opcode = 0x5b
	OpDup2            Opcode = 0x5c
	OpDup2X1          Opcode = 0x5d
	OpDup2X2          Opcode = 0x5e
	OpSwap            Opcode = 0x5f
	OpIadd            Opcode = 0x60
	OpDrem            Opcode = 0x73
	OpIneg            Opcode = 0x74
	OpDneg            Opcode = 0x77
	OpIshl            Opcode = 0x78
	OpLshl            Opcode = 0x79
	OpIshr            Opcode = 0x7a
	OpLshr            Opcode = 0x7b
	OpIushr           Opcode = 0x7c
	OpLushr           Opcode = 0x7d
	OpIand            Opcode = 0x7e
	OpLand            Opcode = 0x7f
	OpIor             Opcode = 0x80
	OpLor             Opcode = 0x81
	OpIxor            Opcode = 0x82
	OpLxor            Opcode = 0x83
	OpIinc            Opcode = 0x84
	OpI2l             Opcode = 0x85
	OpI2s             Opcode = 0x93
	OpLcmp            Opcode = 0x94
	OpFcmpl           Opcode = 0x95
	OpFcmpg           Opcode = 0x96
	OpDcmpl           Opcode = 0x97
	OpDcmpg           Opcode = 0x98
	OpIfeq            Opcode = 0x99
	OpIfle            Opcode = 0x9e
	OpIfIcmpeq        Opcode = 0x9f
	OpIfIcmple        Opcode = 0xa4
	OpIfAcmpeq        Opcode = 0xa5
	OpIfAcmpne        Opcode = 0xa6
	OpGoto            Opcode = 0xa7
	OpJsr             Opcode = 0xa8
	OpRet             Opcode = 0xa9
	OpTableswitch     Opcode = 0xaa
	OpLookupswitch    Opcode = 0xab
	OpIreturn         Opcode = 0xac
	OpLreturn         Opcode = 0xad
	OpFreturn         Opcode = 0xae
	OpDreturn         Opcode = 0xaf
	OpAreturn         Opcode = 0xb0
	OpReturn          Opcode = 0xb1
	OpGetstatic       Opcode = 0xb2
	OpPutstatic       Opcode = 0xb3
	OpGetfield        Opcode = 0xb4
	OpPutfield        Opcode = 0xb5
	OpInvokevirtual   Opcode = 0xb6
	OpInvokespecial   Opcode = 0xb7
	OpInvokestatic    Opcode = 0xb8
	OpInvokeinterface Opcode = 0xb9
	OpInvokedynamic   Opcode = 0xba
	OpNew             Opcode = 0xbb
	OpNewarray        Opcode = 0xbc
	OpAnewarray       Opcode = 0xbd
	OpArraylength     Opcode = 0xbe
	OpAthrow          Opcode = 0xbf
	OpCheckcast       Opcode = 0xc0
	OpInstanceof      Opcode = 0xc1
	OpMonitorenter    Opcode = 0xc2
	OpMonitorexit     Opcode = 0xc3
	OpWide            Opcode = 0xc4
	OpMultianewarray  Opcode = 0xc5
	OpIfnull          Opcode = 0xc6
	OpIfnonnull       Opcode = 0xc7
	OpGotoW           Opcode = 0xc8
	OpJsrW            Opcode = 0xc9
)

var opcodeNames = [...]string{
	"nop", "aconst_null", "iconst_m1", "iconst_0", "iconst_1", "iconst_2", "iconst_3", "iconst_4",
	"iconst_5", "lconst_0", "lconst_1", "fconst_0", "fconst_1", "fconst_2", "dconst_0", "dconst_1",
	"bipush", "sipush", "ldc", "ldc_w", "ldc2_w", "iload", "lload", "fload",
	"dload", "aload", "iload_0", "iload_1", "iload_2", "iload_3", "lload_0", "lload_1",
	"lload_2", "lload_3", "fload_0", "fload_1", "fload_2", "fload_3", "dload_0", "dload_1",
	"dload_2", "dload_3", "aload_0", "aload_1", "aload_2", "aload_3", "iaload", "laload",
	"faload", "daload", "aaload", "baload", "caload", "saload", "istore", "lstore",
	"fstore", "dstore", "astore", "istore_0", "istore_1", "istore_2", "istore_3", "lstore_0",
	"lstore_1", "lstore_2", "lstore_3", "fstore_0", "fstore_1", "fstore_2", "fstore_3", "dstore_0",
	"dstore_1", "dstore_2", "dstore_3", "astore_0", "astore_1", "astore_2", "astore_3", "iastore",
	"lastore", "fastore", "dastore", "aastore", "bastore", "castore", "sastore", "pop",
	"pop2", "dup", "dup_x1", "dup_x2", "dup2", "dup2_x1", "dup2_x2", "swap",
	"iadd", "ladd", "fadd", "dadd", "isub", "lsub", "fsub", "dsub",
	"imul", "lmul", "fmul", "dmul", "idiv", "ldiv", "fdiv", "ddiv",
	"irem", "lrem", "frem", "drem", "ineg", "lneg", "fneg", "dneg",
	"ishl", "lshl", "ishr", "lshr", "iushr", "lushr", "iand", "land",
	"ior", "lor", "ixor", "lxor", "iinc", "i2l", "i2f", "i2d",
	"l2i", "l2f", "l2d", "f2i", "f2l", "f2d", "d2i", "d2l",
	"d2f", "i2b", "i2c", "i2s", "lcmp", "fcmpl", "fcmpg", "dcmpl",
	"dcmpg", "ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle", "if_icmpeq",
	"if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple", "if_acmpeq", "if_acmpne", "goto",
	"jsr", "ret", "tableswitch", "lookupswitch", "ireturn", "lreturn", "freturn", "dreturn",
	"areturn", "return", "getstatic", "putstatic", "getfield", "putfield", "invokevirtual", "invokespecial",
	"invokestatic", "invokeinterface", "invokedynamic", "new", "newarray", "anewarray", "arraylength", "athrow",
	"checkcast", "instanceof", "monitorenter", "monitorexit", "wide", "multianewarray", "ifnull", "ifnonnull",
	"goto_w", "jsr_w",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(0x%02x)", uint8(op))
}

// Instruction is one decoded instruction. Which operand fields are set
// depends on the opcode: Index holds a local slot, a pool index or a newarray
// element code; Value holds a pushed immediate, an iinc delta or a
// dimension count; Target holds the absolute branch target.
type Instruction struct {
	PC      int
	Op      Opcode
	Index   int
	Value   int32
	Target  int
	Default int
	Keys    []int32
	Targets []int
}

// IsBranch reports whether the instruction may transfer control somewhere
// other than the next instruction.
func (in *Instruction) IsBranch() bool {
	switch {
	case in.Op >= OpIfeq && in.Op <= OpGoto, in.Op == OpIfnull, in.Op == OpIfnonnull, in.Op == OpGotoW:
		return true
	case in.Op == OpTableswitch, in.Op == OpLookupswitch:
		return true
	}
	return false
}

// EndsBlock reports whether control never falls through to the next
// instruction.
func (in *Instruction) EndsBlock() bool {
	switch in.Op {
	case OpGoto, OpGotoW, OpTableswitch, OpLookupswitch, OpAthrow:
		return true
	}
	return in.Op >= OpIreturn && in.Op <= OpReturn
}

// DecodeInstructions splits a method's code into instructions. base is the
// offset of code[0] in the enclosing class file and is used only for error
// reporting.
func DecodeInstructions(code []byte, base int) ([]Instruction, error) {
	c := &Cursor{data: code, base: base}
	var insns []Instruction
	for c.Remaining() > 0 {
		pc := c.pos
		in := Instruction{PC: pc, Op: Opcode(c.U1())}
		if err := decodeOperands(&in, c); err != nil {
			return nil, err
		}
		if err := c.Err(); err != nil {
			return nil, err
		}
		insns = append(insns, in)
	}
	for i := range insns {
		in := &insns[i]
		if !in.IsBranch() {
			continue
		}
		targets := append([]int{in.Target}, in.Targets...)
		if in.Op == OpTableswitch || in.Op == OpLookupswitch {
			targets[0] = in.Default
		}
		for _, t := range targets {
			if t < 0 || t >= len(code) {
				return nil, &DecodeError{Offset: base + in.PC, Err: fmt.Errorf("%w: %s to %d", ErrBadBranch, in.Op, t)}
			}
		}
	}
	return insns, nil
}

func decodeOperands(in *Instruction, c *Cursor) error {
	op := in.Op
	switch {
	case op == OpBipush:
		in.Value = int32(int8(c.U1()))
	case op == OpSipush:
		in.Value = int32(int16(c.U2()))
	case op == OpLdc:
		in.Index = int(c.U1())
	case op == OpLdcW, op == OpLdc2W:
		in.Index = int(c.U2())
	case op >= OpIload && op <= OpAload, op >= OpIstore && op <= OpAstore:
		in.Index = int(c.U1())
	case op == OpIinc:
		in.Index = int(c.U1())
		in.Value = int32(int8(c.U1()))
	case op >= OpIfeq && op <= OpGoto, op == OpIfnull, op == OpIfnonnull:
		in.Target = in.PC + int(int16(c.U2()))
	case op == OpGotoW:
		in.Target = in.PC + int(int32(c.U4()))
	case op == OpJsr, op == OpJsrW, op == OpRet:
		return &DecodeError{Offset: c.Offset() - 1, Err: fmt.Errorf("%w: %s", ErrBadOpcode, op)}
	case op == OpTableswitch:
		c.Skip((4 - c.pos%4) % 4)
		in.Default = in.PC + int(int32(c.U4()))
		low := int32(c.U4())
		high := int32(c.U4())
		if c.Err() != nil {
			return c.Err()
		}
		if high < low || int64(high)-int64(low) >= int64(c.Remaining()/4) {
			return &DecodeError{Offset: c.Offset(), Err: fmt.Errorf("%w: tableswitch range %d..%d", ErrTruncated, low, high)}
		}
		for k := low; ; k++ {
			in.Keys = append(in.Keys, k)
			in.Targets = append(in.Targets, in.PC+int(int32(c.U4())))
			if k == high {
				break
			}
		}
	case op == OpLookupswitch:
		c.Skip((4 - c.pos%4) % 4)
		in.Default = in.PC + int(int32(c.U4()))
		n := int32(c.U4())
		if c.Err() != nil {
			return c.Err()
		}
		if n < 0 || int64(n) > int64(c.Remaining()/8) {
			return &DecodeError{Offset: c.Offset(), Err: fmt.Errorf("%w: lookupswitch with %d pairs", ErrTruncated, n)}
		}
		for k := int32(0); k < n; k++ {
			in.Keys = append(in.Keys, int32(c.U4()))
			in.Targets = append(in.Targets, in.PC+int(int32(c.U4())))
		}
	case op >= OpGetstatic && op <= OpInvokestatic, op == OpNew, op == OpAnewarray,
		op == OpCheckcast, op == OpInstanceof:
		in.Index = int(c.U2())
	case op == OpInvokeinterface:
		in.Index = int(c.U2())
		c.Skip(2)
	case op == OpInvokedynamic:
		in.Index = int(c.U2())
		c.Skip(2)
	case op == OpNewarray:
		in.Index = int(c.U1())
	case op == OpMultianewarray:
		in.Index = int(c.U2())
		in.Value = int32(c.U1())
	case op == OpWide:
		in.Op = Opcode(c.U1())
		switch {
		case in.Op >= OpIload && in.Op <= OpAload, in.Op >= OpIstore && in.Op <= OpAstore:
			in.Index = int(c.U2())
		case in.Op == OpIinc:
			in.Index = int(c.U2())
			in.Value = int32(int16(c.U2()))
		case in.Op == OpRet:
			return &DecodeError{Offset: c.Offset() - 1, Err: fmt.Errorf("%w: wide ret", ErrBadOpcode)}
		default:
			if c.Err() != nil {
				return c.Err()
			}
			return &DecodeError{Offset: c.Offset() - 1, Err: fmt.Errorf("%w: wide %s", ErrBadOpcode, in.Op)}
		}
	case op > OpJsrW:
		return &DecodeError{Offset: c.Offset() - 1, Err: fmt.Errorf("%w: %s", ErrBadOpcode, op)}
	}
	return nil
}
