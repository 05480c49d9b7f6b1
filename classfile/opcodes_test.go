package classfile

import (
	"errors"
	"testing"
)

func TestDecodeInstructions(t *testing.T) {
	code := cat(
		[]byte{0xc4, 0x84}, u2(300), u2(0xfff6), // wide iinc 300 -10
		[]byte{0xc4, 0x15}, u2(258), // wide iload 258
		[]byte{0x11, 0xff, 0x38}, // sipush -200
		[]byte{0xab, 0, 0},       // lookupswitch at 13, two pad bytes
		u4(27), u4(2), u4(1), u4(27), u4(5), u4(27),
		[]byte{0xb1},
	)
	insns, err := DecodeInstructions(code, 100)
	if err != nil {
		t.Fatalf("DecodeInstructions() error = %v", err)
	}
	if len(insns) != 5 {
		t.Fatalf("len = %d, want 5", len(insns))
	}

	if in := insns[0]; in.Op != OpIinc || in.Index != 300 || in.Value != -10 {
		t.Errorf("wide iinc = %+v", in)
	}
	if in := insns[1]; in.Op != OpIload || in.Index != 258 || in.PC != 6 {
		t.Errorf("wide iload = %+v", in)
	}
	if in := insns[2]; in.Op != OpSipush || in.Value != -200 {
		t.Errorf("sipush = %+v", in)
	}
	sw := insns[3]
	if sw.PC != 13 || sw.Default != 40 {
		t.Errorf("lookupswitch PC = %d, Default = %d", sw.PC, sw.Default)
	}
	if len(sw.Keys) != 2 || sw.Keys[0] != 1 || sw.Keys[1] != 5 || sw.Targets[0] != 40 || sw.Targets[1] != 40 {
		t.Errorf("lookupswitch Keys = %v, Targets = %v", sw.Keys, sw.Targets)
	}
	if !sw.IsBranch() || !sw.EndsBlock() {
		t.Error("lookupswitch does not end its block")
	}
	if insns[4].PC != 40 || insns[4].Op != OpReturn {
		t.Errorf("return = %+v", insns[4])
	}
}

func TestDecodeInstructionsPC(t *testing.T) {
	insns, err := DecodeInstructions([]byte{0x00, 0x00, 0xb1}, 0)
	if err != nil {
		t.Fatalf("DecodeInstructions() error = %v", err)
	}
	for i, in := range insns {
		if in.PC != i {
			t.Errorf("insns[%d].PC = %d, want %d", i, in.PC, i)
		}
	}

	// goto 0 +3 lands on the final return.
	insns, err = DecodeInstructions([]byte{0xa7, 0x00, 0x03, 0xb1}, 0)
	if err != nil {
		t.Fatalf("branch to last instruction: error = %v", err)
	}
	if len(insns) != 2 || insns[0].Target != 3 || insns[1].PC != 3 {
		t.Errorf("insns = %+v", insns)
	}
}

func TestDecodeInstructionsErrors(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		want   error
		offset int
	}{
		{"jsr", []byte{0x00, 0xa8, 0x00, 0x02}, ErrBadOpcode, 1},
		{"ret", []byte{0xa9, 0x01}, ErrBadOpcode, 0},
		{"wide ret", []byte{0xc4, 0xa9, 0x00, 0x01}, ErrBadOpcode, 1},
		{"wide nop", []byte{0xc4, 0x00}, ErrBadOpcode, 1},
		{"truncated operand", []byte{0x11, 0x01}, ErrTruncated, 1},
		{"negative branch", []byte{0xa7, 0xff, 0xf0}, ErrBadBranch, 0},
		{"inverted tableswitch", cat([]byte{0xaa, 0, 0, 0}, u4(4), u4(3), u4(1)), ErrTruncated, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInstructions(tt.code, 0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.Offset != tt.offset {
				t.Errorf("error = %v, want offset %d", err, tt.offset)
			}
		})
	}
}

func TestOpcodeString(t *testing.T) {
	for op, want := range map[Opcode]string{
		OpNop:           "nop",
		OpIload0:        "iload_0",
		OpTableswitch:   "tableswitch",
		OpInvokedynamic: "invokedynamic",
		OpJsrW:          "jsr_w",
		Opcode(0xfe):    "op(0xfe)",
	} {
		if got := op.String(); got != want {
			t.Errorf("Opcode(0x%02x).String() = %q, want %q", uint8(op), got, want)
		}
	}
}
