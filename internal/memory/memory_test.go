package memory

import "testing"

func TestClassify_DecodesEachBankRegion(t *testing.T) {
	cases := []struct {
		name string
		bank uint8
		addr uint16
		want bankClass
	}{
		{"low wram mirror", 0x00, 0x1000, classWRAMMirror},
		{"ppu registers", 0x00, 0x2105, classPPU},
		{"mailbox", 0x00, 0x2140, classMailbox},
		{"wram port", 0x00, 0x2181, classWRAMPort},
		{"joypad serial", 0x00, 0x4016, classJoypadSerial},
		{"system register", 0x00, 0x4200, classSystem},
		{"dma registers", 0x00, 0x4300, classDMA},
		{"cart space", 0x00, 0x8000, classCart},
		{"full wram bank 7e", 0x7E, 0x0000, classWRAMFull},
		{"full wram bank 7f", 0x7F, 0x1234, classWRAMFull},
		{"mirrored high bank ppu", 0x80, 0x2105, classPPU},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := classify(c.bank, c.addr); got != c.want {
				t.Fatalf("classify(%#02x, %#04x) = %v, want %v", c.bank, c.addr, got, c.want)
			}
		})
	}
}

func TestWRAMPort_AutoIncrementsAcrossSequentialAccess(t *testing.T) {
	b := New(nil)
	b.Write(0x00, 0x2181, 0x00)
	b.Write(0x00, 0x2182, 0x00)
	b.Write(0x00, 0x2183, 0x00)

	b.Write(0x00, 0x2180, 0x11)
	b.Write(0x00, 0x2180, 0x22)

	if got := b.wram[0]; got != 0x11 {
		t.Fatalf("wram[0] = %#02x, want 0x11", got)
	}
	if got := b.wram[1]; got != 0x22 {
		t.Fatalf("wram[1] = %#02x, want 0x22", got)
	}

	b.Write(0x00, 0x2181, 0x00)
	b.Write(0x00, 0x2182, 0x00)
	b.Write(0x00, 0x2183, 0x00)
	got1 := b.Read(0x00, 0x2180)
	got2 := b.Read(0x00, 0x2180)
	if got1 != 0x11 || got2 != 0x22 {
		t.Fatalf("sequential WRAM-port reads = %#02x,%#02x, want 0x11,0x22", got1, got2)
	}
}

func TestMultiply_ProductReadableAt4216And4217(t *testing.T) {
	b := New(nil)
	b.Write(0x00, 0x4202, 10)
	b.Write(0x00, 0x4203, 20)

	lo := b.Read(0x00, 0x4216)
	hi := b.Read(0x00, 0x4217)
	got := uint16(lo) | uint16(hi)<<8
	if got != 200 {
		t.Fatalf("product = %d, want 200", got)
	}
}

func TestDivide_QuotientAndRemainderReadableAfterSetup(t *testing.T) {
	b := New(nil)
	b.Write(0x00, 0x4204, 17) // dividend low
	b.Write(0x00, 0x4205, 0)  // dividend high
	b.Write(0x00, 0x4206, 5)  // divisor

	loQ := b.Read(0x00, 0x4214)
	hiQ := b.Read(0x00, 0x4215)
	quotient := uint16(loQ) | uint16(hiQ)<<8
	if quotient != 3 {
		t.Fatalf("quotient = %d, want 3", quotient)
	}

	rem := b.Read(0x00, 0x4216)
	if rem != 2 {
		t.Fatalf("remainder = %d, want 2", rem)
	}
}

func TestDivide_ByZeroYieldsMaxQuotientAndDividendAsRemainder(t *testing.T) {
	b := New(nil)
	b.Write(0x00, 0x4204, 9)
	b.Write(0x00, 0x4205, 0)
	b.Write(0x00, 0x4206, 0)

	loQ := b.Read(0x00, 0x4214)
	hiQ := b.Read(0x00, 0x4215)
	if quotient := uint16(loQ) | uint16(hiQ)<<8; quotient != 0xFFFF {
		t.Fatalf("quotient / 0 = %#04x, want 0xFFFF", quotient)
	}
	if rem := b.Read(0x00, 0x4216); rem != 9 {
		t.Fatalf("remainder / 0 = %d, want dividend 9", rem)
	}
}

func TestNMIFlag_ReadAt4210ClearsItAfterward(t *testing.T) {
	b := New(nil)
	b.SignalNMI()

	v := b.Read(0x00, 0x4210)
	if v&0x80 == 0 {
		t.Fatal("expected bit 7 set on the first read after SignalNMI")
	}
	v2 := b.Read(0x00, 0x4210)
	if v2&0x80 != 0 {
		t.Fatal("expected bit 7 cleared on the second read")
	}
}

func TestIRQFlag_ReadAt4211ClearsItAfterward(t *testing.T) {
	b := New(nil)
	b.SignalIRQ()

	v := b.Read(0x00, 0x4211)
	if v&0x80 == 0 {
		t.Fatal("expected bit 7 set on the first read after SignalIRQ")
	}
	v2 := b.Read(0x00, 0x4211)
	if v2&0x80 != 0 {
		t.Fatal("expected bit 7 cleared on the second read")
	}
}

func TestHVBJOY_ReportsVBlankAndHBlankBits(t *testing.T) {
	b := New(nil)
	b.SetVBlank(true)
	b.SetHBlank(true)

	v := b.Read(0x00, 0x4212)
	if v&0x80 == 0 {
		t.Fatal("expected VBlank bit 7 set")
	}
	if v&0x40 == 0 {
		t.Fatal("expected HBlank bit 6 set")
	}
}

func TestNMITIMEN_EnablesDecodeCorrectly(t *testing.T) {
	b := New(nil)
	b.Write(0x00, 0x4200, 0x81)

	if !b.NMIEnabled() {
		t.Fatal("expected NMI enabled when $4200 bit 7 is set")
	}
	if !b.AutoJoypadEnabled() {
		t.Fatal("expected auto-joypad enabled when $4200 bit 0 is set")
	}
}

func TestReset_ClearsRegistersButNotWRAM(t *testing.T) {
	b := New(nil)
	b.wram[0] = 0x42
	b.Write(0x00, 0x4200, 0x80)

	b.Reset()

	if b.wram[0] != 0x42 {
		t.Fatal("expected WRAM contents to survive a soft reset")
	}
	if b.NMIEnabled() {
		t.Fatal("expected $4200 cleared by reset")
	}
}

func TestUnmappedCartridgeWrite_IsIgnoredAndCounted(t *testing.T) {
	b := New(nil)
	b.Write(0x00, 0x8000, 0xFF)
	if b.ReadOnlyIgnored != 1 {
		t.Fatalf("ReadOnlyIgnored = %d, want 1", b.ReadOnlyIgnored)
	}
}

func TestUnmappedCartridgeRead_FallsBackToOpenBusAndIsCounted(t *testing.T) {
	b := New(nil)
	b.SetOpenBus(0x77)
	got := b.Read(0x00, 0x8000)
	if got != 0x77 {
		t.Fatalf("unmapped cartridge read = %#02x, want open-bus 0x77", got)
	}
	if b.OpenBusMisses != 1 {
		t.Fatalf("OpenBusMisses = %d, want 1", b.OpenBusMisses)
	}
}
