package reg

import "testing"

func TestField(t *testing.T) {
	tests := []struct {
		name  string
		v     uint32
		shift uint
		width uint
		want  uint32
	}{
		{"low bit", 0x1, 0, 1, 1},
		{"nibble", 0xabcd, 4, 4, 0xc},
		{"top bit", 0x8000_0000, 31, 1, 1},
		{"full word", 0xdead_beef, 0, 32, 0xdead_beef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Field(tt.v, tt.shift, tt.width); got != tt.want {
				t.Errorf("Field(%#x, %d, %d) = %#x, want %#x", tt.v, tt.shift, tt.width, got, tt.want)
			}
		})
	}
}

func TestSetField(t *testing.T) {
	v := SetField(uint32(0xffff_ffff), 16, 12, 0)
	if v != 0xf000_ffff {
		t.Errorf("SetField clear = %#x, want 0xf000ffff", v)
	}

	// Value wider than the field is truncated
	v = SetField(uint32(0), 0, 4, 0xff)
	if v != 0xf {
		t.Errorf("SetField truncate = %#x, want 0xf", v)
	}

	if got := SetField(uint64(0), 40, 8, 0x5a); got != 0x5a<<40 {
		t.Errorf("SetField uint64 = %#x", got)
	}
}

func TestHconAccessors(t *testing.T) {
	hcon := uint32(HDataWidth64)<<7 | uint32(TransModeGDMA)<<16 | 1<<27

	if got := HconDataWidth(hcon); got != HDataWidth64 {
		t.Errorf("HconDataWidth = %d, want %d", got, HDataWidth64)
	}
	if got := HconTransMode(hcon); got != TransModeGDMA {
		t.Errorf("HconTransMode = %d, want %d", got, TransModeGDMA)
	}
	if !HconAddrConfig(hcon) {
		t.Error("HconAddrConfig = false, want true")
	}
	if HconAddrConfig(0) {
		t.Error("HconAddrConfig(0) = true, want false")
	}
}

func TestFIFOTh(t *testing.T) {
	v := FIFOTh(2, 127, 128)

	if got := FIFOThMsize(v); got != 2 {
		t.Errorf("FIFOThMsize = %d, want 2", got)
	}
	if got := FIFOThRxWmark(v); got != 127 {
		t.Errorf("FIFOThRxWmark = %d, want 127", got)
	}
	if got := FIFOThTxWmark(v); got != 128 {
		t.Errorf("FIFOThTxWmark = %d, want 128", got)
	}
	if v != 0x207f_0080 {
		t.Errorf("FIFOTh(2, 127, 128) = %#x, want 0x207f0080", v)
	}
}

func TestStatusFIFOCount(t *testing.T) {
	if got := StatusFIFOCount(0x1fff << 17); got != 0x1fff {
		t.Errorf("StatusFIFOCount = %#x, want 0x1fff", got)
	}
	if got := StatusFIFOCount(12<<17 | 0x1ffff); got != 12 {
		t.Errorf("StatusFIFOCount = %d, want 12", got)
	}
}

func TestVersionID(t *testing.T) {
	if got := VersionID(0x5342_270a); got != 0x270a {
		t.Errorf("VersionID = %#x, want 0x270a", got)
	}
}
