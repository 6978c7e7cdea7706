// Package ppu implements the Picture Processing Unit for the SNES: the
// scanline renderer with all eight background modes, the sprite
// compositor, the window/color-math pipeline and the Mode 7 affine
// transform (spec §4.3).
package ppu

const (
	vramWords  = 0x8000 // 64 KiB / 2 bytes per word
	cgramBytes = 512
	oamBytes   = 544

	screenWidth  = 256
	screenHeight = 224
)

// Mode7Params holds the 2x2 affine matrix and center/origin registers.
type mode7Params struct {
	a, b, c, d int16 // signed 8.8 fixed point
	cx, cy     int16 // 13-bit signed center, sign-extended
	x0, y0     int16 // origin scroll
	latch      uint8 // shared write-twice latch for the 16-bit regs
	flip       uint8 // bit0 H-flip, bit1 V-flip
	screenOver uint8 // 0/1=wrap 2=transparent 3=tile0 fill
}

// bgLayer holds one background layer's scroll/tilemap registers.
type bgLayer struct {
	hofs, vofs   uint16
	tilemapBase  uint16 // VRAM word address of the 32x32 submap, from BGnSC bits 2-7
	mapWidth64   bool
	mapHeight64  bool
	charBase     uint16 // VRAM word address of tile bitmap data
	mosaic       bool
}

// PPU is the SNES Picture Processing Unit.
type PPU struct {
	vram  [vramWords]uint16
	cgram [cgramBytes / 2]uint16 // 256 entries, 15-bit BGR each
	oam   [oamBytes]uint8

	// CPU-visible register latches
	inidisp uint8 // $2100: force-blank bit7, brightness bits0-3
	obsel   uint8 // $2101
	bgMode  uint8 // $2105 bits0-2; bit3 = BG3 priority
	bg3Hi   bool
	mosaicReg uint8 // $2105... actually $2106
	bg      [4]bgLayer
	bgSCReg [4]uint8
	bgNBA   [2]uint8

	vmain    uint8
	vmaddr   uint16
	vramReadBuf uint16

	cgaddr   uint8
	cgLatch  uint8
	cgLatched bool

	oamaddr     uint16
	oamLatch    uint8
	oamPriorityRotate bool

	scrollPrev uint8 // shared latch for BGnHOFS/BGnVOFS two-write protocol

	ophctLatch uint16 // $213C horizontal counter latch (host-driven, not modeled cycle-exact)
	opvctLatch uint16 // $213D vertical counter latch

	m7 mode7Params

	tm, ts uint8 // $212C/$212D main/sub screen layer enable
	tmw, tsw uint8 // $212E/$212F main/sub screen window mask enable

	w12sel, w34sel, wobjsel uint8
	wh [4]uint8 // WH0-3 window 1/2 left/right
	wbglog, wobjlog uint8

	cgwsel, cgadsub uint8
	coldata struct{ r, g, b uint8 }
	setini uint8

	// Rendering state
	scanline   int
	frameCount uint64
	vblankStart bool // set true for the single RenderScanline(224) call each frame

	FrameBuffer [screenWidth * screenHeight]uint16 // 15-bit BGR

	// sprite overflow flags for the current frame (cleared at scanline 0)
	spriteOverflow bool
	tileOverflow   bool

	// callbacks
	NMICallback func()

	// tile cache: decoded 8-pixel tile rows keyed by (charBase, tileIndex, bpp, row, hflip)
	tileCache map[tileCacheKey][8]uint8
	cacheEpoch uint32
}

type tileCacheKey struct {
	base    uint16
	index   uint16
	bpp     uint8
	row     uint8
	hflip   bool
}

// New builds a PPU with VRAM/CGRAM/OAM all zeroed.
func New() *PPU {
	p := &PPU{tileCache: make(map[tileCacheKey][8]uint8, 1024)}
	return p
}

// Reset clears register latches and rendering state; VRAM/CGRAM/OAM persist
// the way real hardware's display RAM is not cleared by reset.
func (p *PPU) Reset() {
	p.inidisp = 0x8F // force blank, brightness 0 at power-on
	p.scanline = 0
	p.frameCount = 0
	p.vblankStart = false
	p.tm, p.ts = 0, 0
	p.tmw, p.tsw = 0, 0
	p.cgwsel, p.cgadsub = 0, 0
	p.setini = 0
	p.vmaddr = 0
	p.oamaddr = 0
	p.invalidateCache()
	for i := range p.FrameBuffer {
		p.FrameBuffer[i] = 0
	}
}

// ForceBlank reports whether $2100 bit 7 is set.
func (p *PPU) ForceBlank() bool { return p.inidisp&0x80 != 0 }

func (p *PPU) invalidateCache() {
	p.cacheEpoch++
	if len(p.tileCache) > 4096 {
		p.tileCache = make(map[tileCacheKey][8]uint8, 1024)
	} else {
		for k := range p.tileCache {
			delete(p.tileCache, k)
		}
	}
}

// FrameCount returns the number of completed frames.
func (p *PPU) FrameCount() uint64 { return p.frameCount }

// SetFrameCount restores the frame counter from a save state.
func (p *PPU) SetFrameCount(v uint64) { p.frameCount = v }

// ConsumeVBlankStart reports and clears whether the scanline just rendered
// was the VBlank-start scanline (y=224); the bus uses this to decide
// whether to trigger the main CPU's NMI line and latch joypad auto-read,
// since the NMI-enable bit lives in $4200, outside the PPU (spec §4.3).
func (p *PPU) ConsumeVBlankStart() bool {
	v := p.vblankStart
	p.vblankStart = false
	return v
}

// RegisterState mirrors every CPU-visible register latch needed to resume
// mid-frame rendering exactly (spec §4.6); it exists only so save-state
// encoding has exported fields to walk, since the PPU keeps its working
// copies unexported.
type RegisterState struct {
	Inidisp, Obsel, BgMode uint8
	Bg3Hi                  bool
	MosaicReg              uint8
	BgHOFS, BgVOFS         [4]uint16
	BgTilemapBase          [4]uint16
	BgMapWidth64           [4]bool
	BgMapHeight64          [4]bool
	BgCharBase             [4]uint16
	BgMosaic               [4]bool
	BgSCReg                [4]uint8
	BgNBA                  [2]uint8

	Vmain       uint8
	Vmaddr      uint16
	VramReadBuf uint16

	Cgaddr    uint8
	CgLatch   uint8
	CgLatched bool

	Oamaddr           uint16
	OamLatch          uint8
	OamPriorityRotate bool

	ScrollPrev uint8

	OphctLatch uint16
	OpvctLatch uint16

	M7A, M7B, M7C, M7D int16
	M7CX, M7CY         int16
	M7X0, M7Y0         int16
	M7Latch            uint8
	M7Flip             uint8
	M7ScreenOver       uint8

	Tm, Ts   uint8
	Tmw, Tsw uint8

	W12sel, W34sel, Wobjsel uint8
	Wh                      [4]uint8
	Wbglog, Wobjlog         uint8

	Cgwsel, Cgadsub    uint8
	ColDataR, ColDataG, ColDataB uint8
	Setini             uint8
}

// RegisterSnapshot captures every CPU-visible register latch for save-state
// serialization (spec §4.6).
func (p *PPU) RegisterSnapshot() RegisterState {
	var s RegisterState
	s.Inidisp, s.Obsel, s.BgMode = p.inidisp, p.obsel, p.bgMode
	s.Bg3Hi = p.bg3Hi
	s.MosaicReg = p.mosaicReg
	for i := range p.bg {
		s.BgHOFS[i], s.BgVOFS[i] = p.bg[i].hofs, p.bg[i].vofs
		s.BgTilemapBase[i] = p.bg[i].tilemapBase
		s.BgMapWidth64[i] = p.bg[i].mapWidth64
		s.BgMapHeight64[i] = p.bg[i].mapHeight64
		s.BgCharBase[i] = p.bg[i].charBase
		s.BgMosaic[i] = p.bg[i].mosaic
	}
	s.BgSCReg = p.bgSCReg
	s.BgNBA = p.bgNBA
	s.Vmain, s.Vmaddr, s.VramReadBuf = p.vmain, p.vmaddr, p.vramReadBuf
	s.Cgaddr, s.CgLatch, s.CgLatched = p.cgaddr, p.cgLatch, p.cgLatched
	s.Oamaddr, s.OamLatch, s.OamPriorityRotate = p.oamaddr, p.oamLatch, p.oamPriorityRotate
	s.ScrollPrev = p.scrollPrev
	s.OphctLatch, s.OpvctLatch = p.ophctLatch, p.opvctLatch
	s.M7A, s.M7B, s.M7C, s.M7D = p.m7.a, p.m7.b, p.m7.c, p.m7.d
	s.M7CX, s.M7CY = p.m7.cx, p.m7.cy
	s.M7X0, s.M7Y0 = p.m7.x0, p.m7.y0
	s.M7Latch, s.M7Flip, s.M7ScreenOver = p.m7.latch, p.m7.flip, p.m7.screenOver
	s.Tm, s.Ts, s.Tmw, s.Tsw = p.tm, p.ts, p.tmw, p.tsw
	s.W12sel, s.W34sel, s.Wobjsel = p.w12sel, p.w34sel, p.wobjsel
	s.Wh = p.wh
	s.Wbglog, s.Wobjlog = p.wbglog, p.wobjlog
	s.Cgwsel, s.Cgadsub = p.cgwsel, p.cgadsub
	s.ColDataR, s.ColDataG, s.ColDataB = p.coldata.r, p.coldata.g, p.coldata.b
	s.Setini = p.setini
	return s
}

// LoadRegisters restores every CPU-visible register latch from a save state.
func (p *PPU) LoadRegisters(s RegisterState) {
	p.inidisp, p.obsel, p.bgMode = s.Inidisp, s.Obsel, s.BgMode
	p.bg3Hi = s.Bg3Hi
	p.mosaicReg = s.MosaicReg
	for i := range p.bg {
		p.bg[i].hofs, p.bg[i].vofs = s.BgHOFS[i], s.BgVOFS[i]
		p.bg[i].tilemapBase = s.BgTilemapBase[i]
		p.bg[i].mapWidth64 = s.BgMapWidth64[i]
		p.bg[i].mapHeight64 = s.BgMapHeight64[i]
		p.bg[i].charBase = s.BgCharBase[i]
		p.bg[i].mosaic = s.BgMosaic[i]
	}
	p.bgSCReg = s.BgSCReg
	p.bgNBA = s.BgNBA
	p.vmain, p.vmaddr, p.vramReadBuf = s.Vmain, s.Vmaddr, s.VramReadBuf
	p.cgaddr, p.cgLatch, p.cgLatched = s.Cgaddr, s.CgLatch, s.CgLatched
	p.oamaddr, p.oamLatch, p.oamPriorityRotate = s.Oamaddr, s.OamLatch, s.OamPriorityRotate
	p.scrollPrev = s.ScrollPrev
	p.ophctLatch, p.opvctLatch = s.OphctLatch, s.OpvctLatch
	p.m7.a, p.m7.b, p.m7.c, p.m7.d = s.M7A, s.M7B, s.M7C, s.M7D
	p.m7.cx, p.m7.cy = s.M7CX, s.M7CY
	p.m7.x0, p.m7.y0 = s.M7X0, s.M7Y0
	p.m7.latch, p.m7.flip, p.m7.screenOver = s.M7Latch, s.M7Flip, s.M7ScreenOver
	p.tm, p.ts, p.tmw, p.tsw = s.Tm, s.Ts, s.Tmw, s.Tsw
	p.w12sel, p.w34sel, p.wobjsel = s.W12sel, s.W34sel, s.Wobjsel
	p.wh = s.Wh
	p.wbglog, p.wobjlog = s.Wbglog, s.Wobjlog
	p.cgwsel, p.cgadsub = s.Cgwsel, s.Cgadsub
	p.coldata.r, p.coldata.g, p.coldata.b = s.ColDataR, s.ColDataG, s.ColDataB
	p.setini = s.Setini
	p.invalidateCache()
}

// VRAMSnapshot / CGRAMSnapshot / OAMSnapshot / LoadVRAM / LoadCGRAM /
// LoadOAM support save-state capture+restore (spec §4.6).
func (p *PPU) VRAMSnapshot() []uint16 {
	out := make([]uint16, len(p.vram))
	copy(out, p.vram[:])
	return out
}
func (p *PPU) LoadVRAM(data []uint16) { copy(p.vram[:], data); p.invalidateCache() }

func (p *PPU) CGRAMSnapshot() []uint16 {
	out := make([]uint16, len(p.cgram))
	copy(out, p.cgram[:])
	return out
}
func (p *PPU) LoadCGRAM(data []uint16) { copy(p.cgram[:], data); p.invalidateCache() }

func (p *PPU) OAMSnapshot() []uint8 {
	out := make([]uint8, len(p.oam))
	copy(out, p.oam[:])
	return out
}
func (p *PPU) LoadOAM(data []uint8) { copy(p.oam[:], data) }
