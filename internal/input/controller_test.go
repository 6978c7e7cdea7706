package input

import "testing"

func TestReadSerial_DrainsLowBitFirstAfterStrobeFallingEdge(t *testing.T) {
	p := New()
	p.SetController(0, 0x0001)
	p.WriteStrobe(1) // rising edge: snap reloads from latched
	p.WriteStrobe(0) // falling edge: shifting begins

	if got := p.ReadSerial(0); got != 1 {
		t.Fatalf("first bit = %d, want 1", got)
	}
	if got := p.ReadSerial(0); got != 0 {
		t.Fatalf("second bit = %d, want 0", got)
	}
}

func TestReadSerial_ShiftsInOnesOnceExhausted(t *testing.T) {
	p := New()
	p.SetController(0, 0x0001)
	p.WriteStrobe(1)
	p.WriteStrobe(0)

	var last uint8
	for i := 0; i < 17; i++ {
		last = p.ReadSerial(0)
	}
	if last != 1 {
		t.Fatalf("bit after exhausting all 16 shifted out = %d, want 1", last)
	}
}

func TestReadSerial_StrobeHeldHighAlwaysReturnsBitZeroOfLatched(t *testing.T) {
	p := New()
	p.SetController(0, 0x0001)
	p.WriteStrobe(1)

	for i := 0; i < 3; i++ {
		if got := p.ReadSerial(0); got != 1 {
			t.Fatalf("read %d while strobe held high = %d, want 1", i, got)
		}
	}
}

func TestReadSerial_PortOutOfRangeReturnsZero(t *testing.T) {
	p := New()
	if got := p.ReadSerial(2); got != 0 {
		t.Fatalf("ReadSerial(2) = %d, want 0", got)
	}
}

func TestAutoReadResult_ReflectsLatchedMaskPerPlayer(t *testing.T) {
	p := New()
	p.SetController(2, 0x1234)

	if got := p.AutoReadResult(2); got != 0x1234 {
		t.Fatalf("AutoReadResult(2) = %#04x, want 0x1234", got)
	}
	if got := p.AutoReadResult(0); got != 0 {
		t.Fatalf("AutoReadResult(0) = %#04x, want 0", got)
	}
}

func TestSetController_OutOfRangePlayerIsIgnored(t *testing.T) {
	p := New()
	p.SetController(4, 0xFFFF)
	if got := p.AutoReadResult(4); got != 0 {
		t.Fatalf("AutoReadResult(4) = %#04x, want 0", got)
	}
}

func TestReset_ClearsLatchedAndSnapshotState(t *testing.T) {
	p := New()
	p.SetController(0, 0xFFFF)
	p.WriteStrobe(1)

	p.Reset()

	if got := p.AutoReadResult(0); got != 0 {
		t.Fatalf("AutoReadResult(0) after Reset = %#04x, want 0", got)
	}
	if got := p.ReadSerial(0); got != 0 {
		t.Fatalf("ReadSerial(0) after Reset = %d, want 0", got)
	}
}
