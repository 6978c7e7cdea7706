// Package bus coordinates the 65C816 CPU, PPU, APU and DMA engine around
// the unified memory bus, driving the scanline-stepped simulation loop and
// interrupt dispatch described in spec §2 and §5.
package bus

import (
	"github.com/sirupsen/logrus"

	"snescore/internal/apu"
	"snescore/internal/cartridge"
	"snescore/internal/cpu"
	"snescore/internal/dma"
	"snescore/internal/input"
	"snescore/internal/memory"
	"snescore/internal/ppu"
)

const (
	scanlinesPerFrame = 262 // NTSC
	cyclesPerScanline = 1364 // master cycles (341 PPU dots * 4)
)

// Bus owns every component and sequences one full frame as 262 scanlines:
// CPU runs its share of cycles, DMA/HDMA services the scanline boundary,
// then the PPU renders the line and the APU advances in step (spec §2).
type Bus struct {
	CPU  *cpu.CPU
	PPU  *ppu.PPU
	APU  *apu.APU
	DMA  *dma.Controller
	Mem  *memory.Bus
	Cart *cartridge.Cartridge
	In   *input.Ports

	Log *logrus.Logger

	scanline   int
	cycleDebt  int64 // leftover master cycles from a scanline that didn't divide evenly into CPU instructions
}

// New builds a fully-wired Bus; Cart must be attached with LoadROM before
// Reset is meaningful.
func New(log *logrus.Logger) *Bus {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	b := &Bus{
		PPU: ppu.New(),
		APU: apu.New(),
		DMA: dma.New(),
		Mem: memory.New(log),
		In:  input.New(),
		Log: log,
	}
	b.Mem.PPU = b.PPU
	b.Mem.APU = b.APU
	b.Mem.DMA = b.DMA
	b.Mem.Input = b.In
	b.DMA.AttachBus(b.Mem)
	b.CPU = cpu.New(b.Mem)
	return b
}

// LoadROM attaches a cartridge, wiring it onto the memory bus, and resets
// the system to its post-load state.
func (b *Bus) LoadROM(cart *cartridge.Cartridge) {
	b.Cart = cart
	b.Mem.Cart = cart
	b.Reset()
}

// Reset restores every component to its power-on state.
func (b *Bus) Reset() {
	b.CPU.Reset()
	b.PPU.Reset()
	b.APU.Reset()
	b.DMA.Reset()
	b.In.Reset()
	b.scanline = 0
	b.cycleDebt = 0
}

// StepFrame runs exactly one NTSC frame (262 scanlines).
func (b *Bus) StepFrame() {
	for i := 0; i < scanlinesPerFrame; i++ {
		b.stepScanline()
	}
}

// stepScanline runs the CPU for one scanline's worth of master cycles,
// services HDMA, renders the PPU's scanline, and advances the APU in
// lockstep, in that order (spec §2: "CPU → DMA/HDMA service → PPU scanline
// → APU scanline").
func (b *Bus) stepScanline() {
	b.Mem.SetHBlank(false)

	budget := b.cycleDebt + cyclesPerScanline
	var spent int64
	for spent < budget {
		spent += int64(b.CPU.Step())
	}
	b.cycleDebt = spent - budget

	b.Mem.SetHBlank(true)

	if b.scanline == 0 {
		b.DMA.ServiceHDMAStart()
	} else {
		b.DMA.ServiceHDMALine()
	}

	b.PPU.RenderScanline(b.scanline)
	b.APU.StepScanline(cyclesPerScanline)

	if b.PPU.ConsumeVBlankStart() {
		b.Mem.SetVBlank(true)
		b.In.LatchAutoRead()
		if b.Mem.NMIEnabled() {
			b.Mem.SignalNMI()
			b.CPU.SetNMI()
		}
	}

	b.checkIRQ()

	b.scanline++
	if b.scanline >= scanlinesPerFrame {
		b.scanline = 0
		b.Mem.SetVBlank(false)
	}
}

// checkIRQ implements the H/V-timer IRQ per $4200 bits 4-5, checked at the
// end of each scanline: mode 1 fires on every scanline, modes 2 and 3 fire
// once per frame on the VTIME scanline. HTIME is not compared, so the IRQ
// is raised at the end of the scanline rather than at a horizontal
// position (spec §4.2's IRQ priority, beneath NMI).
func (b *Bus) checkIRQ() {
	mode := b.Mem.IRQMode()
	if mode == 0 {
		b.CPU.SetIRQ(false)
		return
	}
	fire := false
	switch mode {
	case 1:
		fire = true
	case 2:
		fire = uint16(b.scanline) == b.Mem.VTime()
	case 3:
		fire = uint16(b.scanline) == b.Mem.VTime()
	}
	if fire {
		b.Mem.SignalIRQ()
		b.CPU.SetIRQ(true)
	}
}

// Scanline reports the current scanline index, for host frame-pacing and
// tests.
func (b *Bus) Scanline() int { return b.scanline }

// SetController forwards a host's controller state to the input ports.
func (b *Bus) SetController(player int, mask uint16) { b.In.SetController(player, mask) }
