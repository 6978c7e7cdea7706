package ppu

import "testing"

func TestReset_EntersForceBlankAndClearsFrameBuffer(t *testing.T) {
	p := New()
	p.FrameBuffer[0] = 0x1234
	p.Reset()

	if !p.ForceBlank() {
		t.Fatal("expected force-blank set after reset")
	}
	if p.FrameBuffer[0] != 0 {
		t.Fatalf("FrameBuffer[0] = %#04x, want cleared to 0", p.FrameBuffer[0])
	}
}

func TestCGRAMWrite_TwoByteLatchProtocol(t *testing.T) {
	p := New()
	p.WriteRegister(0x2121, 14) // CGADD: word index 7, low byte selected
	p.WriteRegister(0x2122, 0xAB)
	p.WriteRegister(0x2122, 0x56)

	if got := p.lookupColor(7); got != 0x56AB {
		t.Fatalf("cgram[7] = %#04x, want 0x56AB", got)
	}
}

func TestCGRAMWrite_HighByteMaskedTo7Bits(t *testing.T) {
	p := New()
	p.WriteRegister(0x2121, 0)
	p.WriteRegister(0x2122, 0xFF)
	p.WriteRegister(0x2122, 0xFF)

	if got := p.lookupColor(0); got != 0x7FFF {
		t.Fatalf("cgram[0] = %#04x, want 0x7FFF (high byte masked to 7 bits)", got)
	}
}

func TestDecodeTileRow_2BPPPlanarLayout(t *testing.T) {
	p := New()
	// Tile 0 at VRAM word address 0, row 0: a 2bpp row is one word, plane 0
	// in the low byte and plane 1 in the high byte (word 8 would hold
	// planes 2/3 of a 4bpp tile).
	p.vram[0] = 0x0080 // plane0 byte=0x80, plane1 byte=0x00
	p.vram[8] = 0x0000

	row := p.decodeTileRow(0, 0, 2, 0, false)
	// low byte of word 0 (0x80) holds the plane0 bit for column 0 (MSB first).
	if row[0] != 1 {
		t.Fatalf("row[0] = %d, want 1 (plane0 bit set, plane1 bit clear)", row[0])
	}
	for i := 1; i < 8; i++ {
		if row[i] != 0 {
			t.Fatalf("row[%d] = %d, want 0", i, row[i])
		}
	}
}

func TestDecodeTileRow_CacheReturnsSameResultAsUncached(t *testing.T) {
	p := New()
	p.vram[0] = 0xF00F

	first := p.decodeTileRow(0, 0, 2, 0, false)
	p.invalidateCache()
	second := p.decodeTileRow(0, 0, 2, 0, false)

	if first != second {
		t.Fatalf("cached decode %v != uncached decode %v", first, second)
	}
}

func TestMode7Identity_SamplesTilemapOneToOne(t *testing.T) {
	p := New()

	p.WriteRegister(0x2100, 0x0F) // force-blank off, brightness max
	p.WriteRegister(0x2105, 0x07) // BG mode 7

	// Identity matrix: A=D=1.0 (0x0100 in 8.8 fixed point), B=C=0, center/origin at 0.
	p.WriteRegister(0x211B, 0x00)
	p.WriteRegister(0x211B, 0x01) // M7A = 0x0100
	p.WriteRegister(0x211E, 0x00)
	p.WriteRegister(0x211E, 0x01) // M7D = 0x0100

	// Tilemap entry (0,0) -> tile index 5.
	p.WriteRegister(0x2116, 0x00)
	p.WriteRegister(0x2117, 0x00)
	p.WriteRegister(0x2118, 5)

	// Tile 5's pixel (0,0): Mode 7 packs the palette index in the high byte.
	tileWordAddr := uint16(5) * 64
	p.WriteRegister(0x2116, byte(tileWordAddr))
	p.WriteRegister(0x2117, byte(tileWordAddr>>8))
	p.WriteRegister(0x2119, 7) // high byte = palette index 7

	p.WriteRegister(0x2121, 14)
	p.WriteRegister(0x2122, 0xAB)
	p.WriteRegister(0x2122, 0x56)

	p.WriteRegister(0x212C, 0x01) // TM: enable BG1 (the Mode 7 layer) on the main screen

	p.RenderScanline(0)

	if p.FrameBuffer[0] != 0x56AB {
		t.Fatalf("FrameBuffer[0] = %#04x, want 0x56AB", p.FrameBuffer[0])
	}
}

func TestMode7ScreenOver_WrapsCoordinatesByDefault(t *testing.T) {
	p := New()
	p.m7.a, p.m7.d = 0x0100, 0x0100
	p.m7.x0 = 1024 // exactly one map width past the origin; should wrap to tile (0,0)
	p.vram[0] = 1     // tilemap entry (0,0) -> tile index 1
	p.vram[64] = 0x0100 // tile 1, pixel (0,0): palette index 1 in the high byte

	color, _, ok := p.mode7Pixel(0, 0)
	if !ok {
		t.Fatal("expected the wrapped sample to hit a non-transparent pixel")
	}
	if color != p.lookupColor(1) {
		t.Fatalf("color = %#04x, want %#04x", color, p.lookupColor(1))
	}
}

func TestWindowBlocks_SingleWindowInverted(t *testing.T) {
	p := New()
	p.wh[0], p.wh[1] = 10, 20
	p.w12sel = 0x01 | 0x02 // window 1 enabled, inverted

	if p.windowBlocks(0, 15) {
		t.Fatal("expected x=15 (inside the window, inverted) to NOT block")
	}
	if !p.windowBlocks(0, 5) {
		t.Fatal("expected x=5 (outside the window, inverted) to block")
	}
}

func TestWindowBlocks_NoWindowsEnabledNeverBlocks(t *testing.T) {
	p := New()
	if p.windowBlocks(0, 100) {
		t.Fatal("expected no blocking when neither window is enabled")
	}
}

func TestEvaluateSprites_SetsOverflowPastThirtyTwoOnALine(t *testing.T) {
	p := New()
	// 40 sprites all on scanline 0, 8x8, to exceed the 32-sprite-per-line cap.
	for i := 0; i < 40; i++ {
		off := i * 4
		p.oam[off] = uint8(i * 8) // x
		p.oam[off+1] = 0          // y
		p.oam[off+2] = 1          // tile
		p.oam[off+3] = 0          // attr
	}

	p.evaluateSprites(0)
	if !p.spriteOverflow {
		t.Fatal("expected spriteOverflow set when more than 32 sprites hit a line")
	}
}

func TestRegisterSnapshotRestore_RoundTripsEveryLatch(t *testing.T) {
	p := New()
	p.WriteRegister(0x2100, 0x0A)
	p.WriteRegister(0x2105, 0x01)
	p.WriteRegister(0x210D, 0x34)
	p.WriteRegister(0x210D, 0x12)
	p.WriteRegister(0x2107, 0x04)

	snap := p.RegisterSnapshot()

	p2 := New()
	p2.LoadRegisters(snap)

	if p2.inidisp != p.inidisp || p2.bgMode != p.bgMode {
		t.Fatalf("restored top-level registers mismatch: %+v vs %+v", p2.inidisp, p.inidisp)
	}
	if p2.bg[0].hofs != p.bg[0].hofs {
		t.Fatalf("restored BG0 hofs = %#04x, want %#04x", p2.bg[0].hofs, p.bg[0].hofs)
	}
	if p2.bg[0].tilemapBase != p.bg[0].tilemapBase {
		t.Fatalf("restored BG0 tilemapBase = %#04x, want %#04x", p2.bg[0].tilemapBase, p.bg[0].tilemapBase)
	}
}

func TestVRAMSnapshotRestore_RoundTrips(t *testing.T) {
	p := New()
	p.vram[100] = 0xBEEF

	snap := p.VRAMSnapshot()
	p2 := New()
	p2.LoadVRAM(snap)

	if p2.vram[100] != 0xBEEF {
		t.Fatalf("restored vram[100] = %#04x, want 0xBEEF", p2.vram[100])
	}
}
