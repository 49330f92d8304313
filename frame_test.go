package backend

import (
	"testing"
)

func encodeSeq(t *testing.T, instrs []Instr) []byte {
	t.Helper()
	cb := NewCodeBuffer(ArchX86_64)
	enc, err := NewEncoder(&SystemVAMD64{}, cb)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	for i := range instrs {
		if err := enc.Emit(&instrs[i]); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}
	return cb.Finalize().Text
}

// TestFrameSymmetry checks that save and restore sequences encode to the
// same number of bytes for a spread of clobber sets and frame sizes.
func TestFrameSymmetry(t *testing.T) {
	cc := &SystemVAMD64{}
	cases := []struct {
		fixed    int64
		clobbers []string
	}{
		{0, nil},
		{0, []string{"rbx"}},
		{16, []string{"rbx", "r12", "r13"}},
		{64, []string{"rbx", "r12", "r13", "r14", "r15"}},
		{256, []string{"rbx"}},
		{4096, []string{"rbx", "r12"}},
	}
	for _, tc := range cases {
		layout, err := BuildFrame(cc, tc.fixed, 0, 0, tc.clobbers, false)
		if err != nil {
			t.Fatalf("BuildFrame failed: %v", err)
		}
		save := encodeSeq(t, GenClobberSave(layout))
		restore := encodeSeq(t, GenClobberRestore(layout))
		if len(save) != len(restore) {
			t.Errorf("fixed=%d clobbers=%v: save %d bytes, restore %d bytes",
				tc.fixed, tc.clobbers, len(save), len(restore))
		}
		if len(save) == 0 {
			t.Errorf("fixed=%d: non-leaf function must have a frame", tc.fixed)
		}
	}
}

// TestFrameRestoreMirrorsSave checks that every stored register is
// reloaded from the same slot and the SP adjustment is undone exactly.
func TestFrameRestoreMirrorsSave(t *testing.T) {
	cc := &SystemVAMD64{}
	layout, err := BuildFrame(cc, 32, 0, 0, []string{"r12", "rbx", "r14"}, false)
	if err != nil {
		t.Fatalf("BuildFrame failed: %v", err)
	}

	save := GenClobberSave(layout)
	restore := GenClobberRestore(layout)
	if save[0].Op != AdjustSP || restore[len(restore)-1].Op != AdjustSP {
		t.Fatal("Save must start and restore must end with the SP adjustment")
	}
	if save[0].Imm != -restore[len(restore)-1].Imm {
		t.Errorf("SP adjustments do not mirror: %d vs %d",
			save[0].Imm, restore[len(restore)-1].Imm)
	}

	stores := save[1:]
	loads := restore[:len(restore)-1]
	if len(stores) != len(loads) {
		t.Fatalf("%d stores but %d loads", len(stores), len(loads))
	}
	for i := range stores {
		if stores[i].Src != loads[i].Dst || stores[i].Off != loads[i].Off {
			t.Errorf("Slot %d: store %s@%d, load %s@%d",
				i, stores[i].Src, stores[i].Off, loads[i].Dst, loads[i].Off)
		}
	}
}

// TestFrameRequiredNonLeaf checks the scenario where a function with no
// clobbers, no fixed storage and no stack args still needs a frame just
// because it makes calls.
func TestFrameRequiredNonLeaf(t *testing.T) {
	cc := &SystemVAMD64{}
	if !FrameRequired(cc, false, 0, nil, 0) {
		t.Fatal("Non-leaf function must require a frame")
	}
	layout, err := BuildFrame(cc, 0, 0, 0, nil, false)
	if err != nil {
		t.Fatalf("BuildFrame failed: %v", err)
	}
	if !layout.Required {
		t.Fatal("Layout must mark the frame required")
	}
	if save := GenClobberSave(layout); len(save) == 0 {
		t.Error("Save sequence must be non-empty even with nothing to store")
	}
	if restore := GenClobberRestore(layout); len(restore) == 0 {
		t.Error("Restore sequence must be non-empty even with nothing to reload")
	}
	// Entry SP is 8 past 16-alignment; the adjustment must restore
	// alignment for outgoing calls.
	if (layout.SPAdjust+8)%16 != 0 {
		t.Errorf("SP adjust %d leaves calls misaligned", layout.SPAdjust)
	}
}

// TestFrameNotRequiredTrivialLeaf checks that a trivial leaf skips the
// prologue entirely.
func TestFrameNotRequiredTrivialLeaf(t *testing.T) {
	cc := &SystemVAMD64{}
	if FrameRequired(cc, true, 0, []string{"rax", "r10"}, 0) {
		t.Fatal("A leaf clobbering only caller-saved registers needs no frame")
	}
	layout, err := BuildFrame(cc, 0, 0, 0, []string{"rax", "r10"}, true)
	if err != nil {
		t.Fatalf("BuildFrame failed: %v", err)
	}
	if layout.Required || len(GenClobberSave(layout)) != 0 {
		t.Error("Trivial leaf must not get save code")
	}
}

// TestCalleeSavedIntersection checks that only convention-listed
// registers get save slots, in table order.
func TestCalleeSavedIntersection(t *testing.T) {
	cc := &SystemVAMD64{}
	layout, err := BuildFrame(cc, 0, 0, 0,
		[]string{"r13", "rax", "rbx", "r11", "xmm3"}, true)
	if err != nil {
		t.Fatalf("BuildFrame failed: %v", err)
	}
	if len(layout.ClobberSaves) != 2 {
		t.Fatalf("Expected 2 save slots, got %d", len(layout.ClobberSaves))
	}
	if layout.ClobberSaves[0].Reg != "rbx" || layout.ClobberSaves[1].Reg != "r13" {
		t.Errorf("Save slots out of table order: %v", layout.ClobberSaves)
	}
	if layout.ClobberAreaSize != 16 {
		t.Errorf("Expected 16-byte clobber area, got %d", layout.ClobberAreaSize)
	}
}

// TestClobberSlotOffsets checks that save slots sit above outgoing args
// and fixed storage at word strides.
func TestClobberSlotOffsets(t *testing.T) {
	cc := &SystemVAMD64{}
	layout, err := BuildFrame(cc, 24, 16, 0, []string{"rbx", "r12"}, false)
	if err != nil {
		t.Fatalf("BuildFrame failed: %v", err)
	}
	want := []int64{40, 48}
	for i, off := range want {
		if layout.ClobberSaves[i].Offset != off {
			t.Errorf("Slot %d: expected offset %d, got %d", i, off, layout.ClobberSaves[i].Offset)
		}
	}
}
