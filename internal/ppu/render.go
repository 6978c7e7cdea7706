package ppu

// bgBpp gives the bit depth of each background layer for a BG mode, and
// bgCount how many of the four layers that mode actually uses (spec §4.3's
// mode table). Mode 7's single affine layer is handled separately.
var bgBpp = [8][4]uint8{
	0: {2, 2, 2, 2},
	1: {4, 4, 2, 0},
	2: {4, 4, 0, 0},
	3: {8, 4, 0, 0},
	4: {8, 2, 0, 0},
	5: {4, 2, 0, 0},
	6: {4, 0, 0, 0},
	7: {0, 0, 0, 0},
}

var bgCount = [8]int{4, 3, 2, 2, 2, 2, 1, 0}

// spriteSizePixels maps OBSEL's size-select bit to the (small, large) sprite
// dimensions, in pixels, per the standard SNES size pairs.
var spriteSizePixels = [8][2]int{
	{8, 16}, {8, 32}, {8, 64}, {16, 32}, {16, 64}, {32, 64}, {16, 32}, {16, 32},
}

type spriteEntry struct {
	x        int16
	y        uint8
	tile     uint16
	palette  uint8
	priority uint8
	hflip    bool
	vflip    bool
	large    bool
}

// RenderScanline renders one scanline (0..223) into FrameBuffer, or services
// the VBlank-start housekeeping at y=224 (spec §4.3). Overscan rows 224..238
// are not stored in the 256x224 framebuffer.
func (p *PPU) RenderScanline(y int) {
	p.scanline = y

	if y == 0 {
		p.spriteOverflow = false
		p.tileOverflow = false
	}

	if y == screenHeight {
		p.vblankStart = true
		p.frameCount++
		return
	}
	if y > screenHeight {
		return
	}

	if p.ForceBlank() {
		for x := 0; x < screenWidth; x++ {
			p.FrameBuffer[y*screenWidth+x] = 0
		}
		return
	}

	sprites := p.evaluateSprites(y)

	main := make([]pixelResult, screenWidth)
	sub := make([]pixelResult, screenWidth)
	p.renderLayers(y, sprites, p.tm, main)
	p.renderLayers(y, sprites, p.ts, sub)

	for x := 0; x < screenWidth; x++ {
		p.FrameBuffer[y*screenWidth+x] = p.composeColorMath(x, y, main[x], sub[x])
	}
}

// pixelResult is one candidate pixel on either the main or sub screen before
// color math: a resolved 15-bit color plus the source layer, used to decide
// window clipping and color-math eligibility.
type pixelResult struct {
	color   uint16
	valid   bool
	isBack  bool
	layer   int // 0-3 BG, 4 sprite, 5 backdrop
}

// renderLayers composites BG layers 0-3 (or the Mode 7 layer) and sprites
// onto the given screen (main or sub, selected by enableMask = TM or TS),
// honoring per-layer priority.
func (p *PPU) renderLayers(y int, sprites []spriteEntry, enableMask uint8, out []pixelResult) {
	backdrop := p.lookupColor(0)
	for x := range out {
		out[x] = pixelResult{color: backdrop, valid: true, isBack: true, layer: 5}
	}

	type layerPixel struct {
		layer    int
		priority uint8
		color    uint16
	}

	for x := 0; x < screenWidth; x++ {
		best := layerPixel{priority: 0}
		haveBest := false

		if enableMask&0x01 != 0 {
			if c, pr, ok := p.bgPixel(0, x, y); ok {
				if !haveBest || pr >= best.priority {
					best = layerPixel{0, pr, c}
					haveBest = true
				}
			}
		}
		if enableMask&0x02 != 0 && bgCount[p.bgMode] >= 2 {
			if c, pr, ok := p.bgPixel(1, x, y); ok {
				if !haveBest || pr >= best.priority {
					best = layerPixel{1, pr, c}
					haveBest = true
				}
			}
		}
		if enableMask&0x04 != 0 && bgCount[p.bgMode] >= 3 {
			if c, pr, ok := p.bgPixel(2, x, y); ok {
				if !haveBest || pr >= best.priority {
					best = layerPixel{2, pr, c}
					haveBest = true
				}
			}
		}
		if enableMask&0x08 != 0 && bgCount[p.bgMode] >= 4 {
			if c, pr, ok := p.bgPixel(3, x, y); ok {
				if !haveBest || pr >= best.priority {
					best = layerPixel{3, pr, c}
					haveBest = true
				}
			}
		}
		if enableMask&0x10 != 0 {
			if c, pr, ok := p.spritePixel(sprites, x); ok {
				if !haveBest || pr >= best.priority {
					best = layerPixel{4, pr, c}
					haveBest = true
				}
			}
		}

		if haveBest && p.windowBlocks(best.layer, x) {
			haveBest = false
		}

		if haveBest {
			out[x] = pixelResult{color: best.color, valid: true, layer: best.layer}
		}
	}
}

// bgPixel resolves background layer `layer`'s pixel at (x,y), returning its
// 15-bit color and priority rank (0=low 1=high within the layer; combined
// with layer order by the mode's fixed layer ordering elsewhere). Mode 7 is
// handled by the affine path when bgMode==7 and layer==0.
func (p *PPU) bgPixel(layer, x, y int) (color uint16, priority uint8, ok bool) {
	if p.bgMode == 7 && layer == 0 {
		return p.mode7Pixel(x, y)
	}
	if p.bgMode == 7 {
		return 0, 0, false
	}

	bpp := bgBpp[p.bgMode][layer]
	if bpp == 0 {
		return 0, 0, false
	}

	bg := &p.bg[layer]
	scrolledX := x + int(bg.hofs)
	scrolledY := y + int(bg.vofs)

	mapW, mapH := 32, 32
	if bg.mapWidth64 {
		mapW = 64
	}
	if bg.mapHeight64 {
		mapH = 64
	}
	tileX := (scrolledX / 8) % mapW
	tileY := (scrolledY / 8) % mapH
	if tileX < 0 {
		tileX += mapW
	}
	if tileY < 0 {
		tileY += mapH
	}

	subX, subY := tileX/32, tileY/32
	submap := subY*2 + subX
	if mapW == 32 {
		submap = subY
	}
	entryAddr := bg.tilemapBase + uint16(submap)*0x400 + uint16((tileY%32)*32+(tileX%32))
	entry := p.vram[entryAddr&(vramWords-1)]

	tileIndex := entry & 0x3FF
	pal := uint8((entry >> 10) & 0x7)
	pr := uint8((entry >> 13) & 0x1)
	hflip := entry&0x4000 != 0
	vflip := entry&0x8000 != 0

	row := scrolledY % 8
	if vflip {
		row = 7 - row
	}
	colIdx := scrolledX % 8
	if colIdx < 0 {
		colIdx += 8
	}

	pixels := p.decodeTileRow(bg.charBase, tileIndex, bpp, uint8(row), hflip)
	idx := pixels[colIdx]
	if idx == 0 {
		return 0, 0, false
	}

	var cgIdx uint8
	if bpp == 8 {
		cgIdx = idx
	} else {
		cgIdx = pal*uint8(1<<bpp) + idx
	}
	return p.lookupColor(cgIdx), pr, true
}

// mode7Pixel implements the affine transform from screen (x,y) to the
// 128x128 Mode 7 tile map (spec §4.3).
func (p *PPU) mode7Pixel(x, y int) (uint16, uint8, bool) {
	sx := int32(x) - int32(p.m7.cx)
	sy := int32(y) - int32(p.m7.cy)

	if p.m7.flip&0x1 != 0 {
		sx = 255 - int32(x) - int32(p.m7.cx)
	}
	if p.m7.flip&0x2 != 0 {
		sy = 255 - int32(y) - int32(p.m7.cy)
	}

	mx := (int32(p.m7.a)*sx + int32(p.m7.b)*sy) >> 8
	my := (int32(p.m7.c)*sx + int32(p.m7.d)*sy) >> 8
	mx += int32(p.m7.x0)
	my += int32(p.m7.y0)

	const mapSize = 1024 // 128 tiles * 8 px
	inRange := mx >= 0 && mx < mapSize && my >= 0 && my < mapSize

	switch p.m7.screenOver {
	case 0, 1:
		mx &= mapSize - 1
		my &= mapSize - 1
	default:
		if !inRange {
			if p.m7.screenOver == 3 {
				mx, my = 0, 0
			} else {
				return 0, 0, false
			}
		}
	}

	tileX, tileY := mx/8, my/8
	pxX, pxY := mx%8, my%8
	tileEntryAddr := uint16(tileY*128 + tileX)
	tileIndex := p.vram[tileEntryAddr&(vramWords-1)] & 0xFF

	pixelAddr := tileIndex*64 + uint16(pxY*8+pxX)
	word := p.vram[pixelAddr&(vramWords-1)]
	idx := uint8(word >> 8) // Mode 7 packs the 8bpp sample in the high byte
	if idx == 0 {
		return 0, 0, false
	}
	return p.lookupColor(idx), 1, true
}

func (p *PPU) lookupColor(idx uint8) uint16 {
	return p.cgram[idx] & 0x7FFF
}

// decodeTileRow returns 8 palette indices for one row of a tile, using and
// populating the tile cache (spec §4.3's cache contract: correctness must
// match an uncached decode for identical inputs).
func (p *PPU) decodeTileRow(base uint16, index uint16, bpp uint8, row uint8, hflip bool) [8]uint8 {
	key := tileCacheKey{base: base, index: index, bpp: bpp, row: row, hflip: hflip}
	if v, ok := p.tileCache[key]; ok {
		return v
	}

	bytesPerRow := uint16(bpp) * 2
	tileWords := bytesPerRow * 4 // 8 rows
	tileAddr := base + index*tileWords/2

	var out [8]uint8
	planes := int(bpp)
	for plane := 0; plane < planes; plane += 2 {
		wordAddr := tileAddr + uint16(row) + uint16(plane/2)*8
		w := p.vram[wordAddr&(vramWords-1)]
		lo := uint8(w)
		hi := uint8(w >> 8)
		for bit := 0; bit < 8; bit++ {
			shift := 7 - bit
			b0 := (lo >> shift) & 1
			b1 := (hi >> shift) & 1
			out[bit] |= b0 << uint(plane)
			out[bit] |= b1 << uint(plane+1)
		}
	}

	if hflip {
		for i, j := 0, 7; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}

	p.tileCache[key] = out
	return out
}

// evaluateSprites gathers up to 32 OAM entries intersecting scanline y,
// expanding to at most 34 8px tile cells, and sets the overflow flags
// defined by spec §4.3.
func (p *PPU) evaluateSprites(y int) []spriteEntry {
	sizeSel := (p.obsel >> 5) & 0x7
	small, large := spriteSizePixels[sizeSel][0], spriteSizePixels[sizeSel][1]

	var hits []spriteEntry
	tiles := 0
	for i := 0; i < 128; i++ {
		low := i * 4
		xLo := p.oam[low]
		yCoord := p.oam[low+1]
		tileLo := p.oam[low+2]
		attr := p.oam[low+3]

		hiByte := p.oam[512+i/4]
		shift := uint((i % 4) * 2)
		xHiBit := (hiByte >> shift) & 0x1
		sizeBit := (hiByte >> (shift + 1)) & 0x1

		height := small
		if sizeBit != 0 {
			height = large
		}

		spriteY := int(yCoord)
		relY := (y - spriteY + 256) % 256
		if relY >= height {
			continue
		}

		x := int16(xLo)
		if xHiBit != 0 {
			x -= 256
		}

		if len(hits) >= 32 {
			p.spriteOverflow = true
			break
		}

		w := small
		if sizeBit != 0 {
			w = large
		}
		tileCells := (w + 7) / 8
		if tiles+tileCells > 34 {
			p.tileOverflow = true
			break
		}
		tiles += tileCells

		hits = append(hits, spriteEntry{
			x:        x,
			y:        yCoord,
			tile:     uint16(tileLo) | uint16(attr&0x1)<<8,
			palette:  (attr >> 1) & 0x7,
			priority: (attr >> 4) & 0x3,
			hflip:    attr&0x40 != 0,
			vflip:    attr&0x80 != 0,
			large:    sizeBit != 0,
		})
	}
	return hits
}

// spritePixel resolves the highest-priority sprite pixel at screen column x
// from the scanline's evaluated sprite list.
func (p *PPU) spritePixel(sprites []spriteEntry, x int) (uint16, uint8, bool) {
	sizeSel := (p.obsel >> 5) & 0x7
	small, large := spriteSizePixels[sizeSel][0], spriteSizePixels[sizeSel][1]

	for i := len(sprites) - 1; i >= 0; i-- {
		s := sprites[i]
		size := small
		if s.large {
			size = large
		}
		relX := int(x) - int(s.x)
		if relX < 0 || relX >= size {
			continue
		}
		relY := int(p.scanline) - int(s.y)
		if relY < 0 {
			relY += 256
		}
		if s.hflip {
			relX = size - 1 - relX
		}
		if s.vflip {
			relY = size - 1 - relY
		}

		tileX, tileY := relX/8, relY/8
		tileIndex := s.tile + uint16(tileY)*16 + uint16(tileX)
		charBase := uint16(p.obsel&0x7) << 13

		pixels := p.decodeTileRow(charBase, tileIndex, 4, uint8(relY%8), false)
		col := relX % 8
		if s.hflip {
			col = 7 - col
		}
		idx := pixels[col]
		if idx == 0 {
			continue
		}
		cgIdx := 128 + s.palette*16 + idx
		return p.lookupColor(cgIdx), s.priority, true
	}
	return 0, 0, false
}

// windowBlocks applies the window mask/combine logic for the given layer
// (spec §4.3): two regions per layer, combined by the mode's logic op, gate
// whether the layer's pixel is allowed through at column x.
func (p *PPU) windowBlocks(layer int, x int) bool {
	var enableBits uint8
	switch layer {
	case 0:
		enableBits = p.w12sel
	case 1:
		enableBits = p.w12sel >> 2
	case 2:
		enableBits = p.w34sel
	case 3:
		enableBits = p.w34sel >> 2
	case 4:
		enableBits = p.wobjsel
	default:
		return false
	}

	win1On := enableBits&0x1 != 0
	win1Inv := enableBits&0x2 != 0
	win2On := enableBits&0x4 != 0
	win2Inv := enableBits&0x8 != 0

	if !win1On && !win2On {
		return false
	}

	in1 := x >= int(p.wh[0]) && x <= int(p.wh[1])
	if win1Inv {
		in1 = !in1
	}
	in2 := x >= int(p.wh[2]) && x <= int(p.wh[3])
	if win2Inv {
		in2 = !in2
	}

	var logic uint8
	if layer < 4 {
		logic = (p.wbglog >> uint(layer*2)) & 0x3
	} else {
		logic = p.wobjlog & 0x3
	}

	var result bool
	switch {
	case win1On && win2On:
		switch logic {
		case 0:
			result = in1 || in2
		case 1:
			result = in1 && in2
		case 2:
			result = in1 != in2
		default:
			result = in1 == in2
		}
	case win1On:
		result = in1
	default:
		result = in2
	}
	return result
}

// composeColorMath blends the main and sub screen pixels per spec §4.3's
// color-math stage: add/subtract, half/full intensity, clipped to 5-bit
// channels per component.
func (p *PPU) composeColorMath(x, y int, main, sub pixelResult) uint16 {
	if !colorMathApplies(p.cgwsel, p.cgadsub, main.layer) {
		return main.color
	}

	subColor := sub.color
	if !sub.valid {
		subColor = uint16(p.coldata.r) | uint16(p.coldata.g)<<5 | uint16(p.coldata.b)<<10
	}

	subtract := p.cgadsub&0x80 != 0
	half := p.cgadsub&0x40 != 0

	mr, mg, mb := splitBGR(main.color)
	sr, sg, sb := splitBGR(subColor)

	var rr, gg, bb int
	if subtract {
		rr, gg, bb = int(mr)-int(sr), int(mg)-int(sg), int(mb)-int(sb)
	} else {
		rr, gg, bb = int(mr)+int(sr), int(mg)+int(sg), int(mb)+int(sb)
	}
	if half {
		rr, gg, bb = rr/2, gg/2, bb/2
	}
	return joinBGR(clip5(rr), clip5(gg), clip5(bb))
}

func colorMathApplies(cgwsel, cgadsub uint8, layer int) bool {
	if layer == 4 && cgadsub&0x10 == 0 {
		return false
	}
	if layer < 4 && cgadsub&(1<<uint(layer)) == 0 {
		return false
	}
	if layer == 5 && cgadsub&0x20 == 0 {
		return false
	}
	return true
}

func splitBGR(c uint16) (r, g, b uint8) {
	return uint8(c & 0x1F), uint8((c >> 5) & 0x1F), uint8((c >> 10) & 0x1F)
}

func joinBGR(r, g, b uint8) uint16 {
	return uint16(r) | uint16(g)<<5 | uint16(b)<<10
}

func clip5(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 31 {
		return 31
	}
	return uint8(v)
}
