// Package memory implements the unified SNES address bus: WRAM storage,
// 24-bit address decode, and memory-mapped I/O dispatch across PPU, APU,
// DMA, cartridge and input ports (spec §4.1).
package memory

import (
	"github.com/sirupsen/logrus"
)

// PPUPorts is the narrow interface the bus uses to reach PPU registers.
type PPUPorts interface {
	ReadRegister(addr uint16) uint8
	WriteRegister(addr uint16, value uint8)
}

// APUPorts is the narrow interface the bus uses to reach the four
// bidirectional mailbox ports (spec §4.4).
type APUPorts interface {
	ReadPort(n int) uint8
	WritePort(n int, value uint8)
}

// DMAPorts is the narrow interface the bus uses to reach DMA/HDMA channel
// registers and the MDMAEN/HDMAEN trigger bytes.
type DMAPorts interface {
	ReadRegister(addr uint16) uint8
	WriteRegister(addr uint16, value uint8)
	TriggerGeneralDMA(mask uint8)
	SetHDMAEnable(mask uint8)
}

// CartridgePorts is the narrow interface the bus uses to reach the
// cartridge mapper.
type CartridgePorts interface {
	Read(bank uint8, addr uint16) uint8
	Write(bank uint8, addr uint16, value uint8)
}

// InputPorts is the narrow interface the bus uses to reach controller
// serial reads and the joypad auto-read latch.
type InputPorts interface {
	ReadSerial(port int) uint8
	WriteStrobe(value uint8)
	LatchAutoRead()
	AutoReadResult(player int) uint16
}

const (
	wramSize = 128 * 1024
)

// Bus is the SNES memory bus: the sole arbiter of address decoding, MMIO
// dispatch and memory-mapped register side effects (spec §4.1).
type Bus struct {
	wram [wramSize]byte

	PPU   PPUPorts
	APU   APUPorts
	DMA   DMAPorts
	Cart  CartridgePorts
	Input InputPorts

	openBus byte

	// WRAM port (0x2180-0x2183): 24-bit auto-increment pointer.
	wramPortAddr uint32

	// Registers at 0x4200-0x421F.
	nmitimen uint8 // $4200
	wrio     uint8 // $4201
	mulA     uint8 // $4202
	mulB     uint8 // $4203
	divA     uint16 // $4204-4205
	divB     uint8  // $4206
	htime    uint16 // $4207-4208
	vtime    uint16 // $4209-420A
	memsel   uint8  // $420D
	lastOpWasDivide bool // $4216/$4217 hold either the multiply product or the divide remainder
	rdnmi    bool   // NMI occurred this frame (bit 7 of $4210)
	timeup   bool   // H/V IRQ flag (bit 7 of $4211)
	hblank   bool
	vblank   bool

	// debug instrumentation
	Log             *logrus.Logger
	OpenBusMisses   uint64
	ReadOnlyIgnored uint64
}

// New builds a Bus with all RAM zeroed and open bus at 0.
func New(log *logrus.Logger) *Bus {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	return &Bus{Log: log}
}

// Reset clears WRAM-port state and interrupt-enable/flag registers. WRAM
// contents themselves are NOT cleared by a soft reset on real hardware; we
// follow that: only registers reset.
func (b *Bus) Reset() {
	b.wramPortAddr = 0
	b.nmitimen = 0
	b.wrio = 0xFF
	b.mulA, b.mulB = 0, 0
	b.divA, b.divB = 0, 0
	b.htime, b.vtime = 0, 0
	b.memsel = 0
	b.lastOpWasDivide = false
	b.rdnmi = false
	b.timeup = false
	b.hblank, b.vblank = false, false
	b.openBus = 0
}

// bankClass identifies the decoded region for a 24-bit address.
type bankClass int

const (
	classWRAMMirror bankClass = iota
	classWRAMFull
	classPPU
	classMailbox
	classWRAMPort
	classJoypadSerial
	classSystem
	classDMA
	classCart
)

func classify(bank uint8, addr uint16) bankClass {
	lowBank := bank &^ 0x80 // fold mirrored banks 0x80-0xFF onto 0x00-0x7F
	if lowBank >= 0x7E && lowBank <= 0x7F {
		return classWRAMFull
	}
	if lowBank <= 0x3F {
		switch {
		case addr <= 0x1FFF:
			return classWRAMMirror
		case addr >= 0x2100 && addr <= 0x213F:
			return classPPU
		case addr >= 0x2140 && addr <= 0x217F:
			return classMailbox
		case addr >= 0x2180 && addr <= 0x2183:
			return classWRAMPort
		case addr == 0x4016 || addr == 0x4017:
			return classJoypadSerial
		case addr >= 0x4200 && addr <= 0x421F:
			return classSystem
		case addr >= 0x4300 && addr <= 0x437F:
			return classDMA
		}
	}
	return classCart
}

// Read performs a CPU-side 24-bit bus read.
func (b *Bus) Read(bank uint8, addr uint16) uint8 {
	var value uint8
	switch classify(bank, addr) {
	case classWRAMMirror:
		value = b.wram[addr&0x1FFF]
	case classWRAMFull:
		lowBank := (bank &^ 0x80) - 0x7E
		off := uint32(lowBank)*0x10000 + uint32(addr)
		value = b.wram[off%wramSize]
	case classPPU:
		if b.PPU != nil {
			value = b.PPU.ReadRegister(addr)
		}
	case classMailbox:
		if b.APU != nil {
			value = b.APU.ReadPort(int((addr - 0x2140) & 0x3))
		}
	case classWRAMPort:
		value = b.readWRAMPort(addr)
	case classJoypadSerial:
		if b.Input != nil {
			value = b.Input.ReadSerial(int(addr - 0x4016))
		}
	case classSystem:
		value = b.readSystemRegister(addr)
	case classDMA:
		if b.DMA != nil {
			value = b.DMA.ReadRegister(addr)
		}
	case classCart:
		if b.Cart != nil {
			value = b.Cart.Read(bank, addr)
		} else {
			b.OpenBusMisses++
			value = b.openBus
		}
	}
	b.openBus = value
	return value
}

// Write performs a CPU-side 24-bit bus write.
func (b *Bus) Write(bank uint8, addr uint16, value uint8) {
	b.openBus = value
	switch classify(bank, addr) {
	case classWRAMMirror:
		b.wram[addr&0x1FFF] = value
	case classWRAMFull:
		lowBank := (bank &^ 0x80) - 0x7E
		off := uint32(lowBank)*0x10000 + uint32(addr)
		b.wram[off%wramSize] = value
	case classPPU:
		if b.PPU != nil {
			b.PPU.WriteRegister(addr, value)
		}
	case classMailbox:
		if b.APU != nil {
			b.APU.WritePort(int((addr-0x2140)&0x3), value)
		}
	case classWRAMPort:
		b.writeWRAMPort(addr, value)
	case classJoypadSerial:
		if b.Input != nil {
			b.Input.WriteStrobe(value)
		}
	case classSystem:
		b.writeSystemRegister(addr, value)
	case classDMA:
		if b.DMA != nil {
			b.DMA.WriteRegister(addr, value)
		}
	case classCart:
		if b.Cart != nil {
			b.Cart.Write(bank, addr, value)
		} else {
			b.ReadOnlyIgnored++
			if b.Log != nil {
				b.Log.WithField("addr", addr).Debug("write to unmapped cartridge space ignored")
			}
		}
	}
}

func (b *Bus) readWRAMPort(addr uint16) uint8 {
	switch addr {
	case 0x2180:
		value := b.wram[b.wramPortAddr%wramSize]
		b.wramPortAddr = (b.wramPortAddr + 1) % wramSize
		return value
	default:
		return b.openBus
	}
}

func (b *Bus) writeWRAMPort(addr uint16, value uint8) {
	switch addr {
	case 0x2180:
		b.wram[b.wramPortAddr%wramSize] = value
		b.wramPortAddr = (b.wramPortAddr + 1) % wramSize
	case 0x2181:
		b.wramPortAddr = (b.wramPortAddr &^ 0xFF) | uint32(value)
	case 0x2182:
		b.wramPortAddr = (b.wramPortAddr &^ 0xFF00) | uint32(value)<<8
	case 0x2183:
		b.wramPortAddr = (b.wramPortAddr &^ 0x10000) | (uint32(value&1) << 16)
	}
}

func (b *Bus) readSystemRegister(addr uint16) uint8 {
	switch addr {
	case 0x4210:
		v := uint8(0x02) // CPU revision bits in low nibble on real hardware; kept minimal
		if b.rdnmi {
			v |= 0x80
		}
		b.rdnmi = false
		return v
	case 0x4211:
		v := uint8(0)
		if b.timeup {
			v |= 0x80
		}
		b.timeup = false
		return v
	case 0x4212:
		v := uint8(0)
		if b.vblank {
			v |= 0x80
		}
		if b.hblank {
			v |= 0x40
		}
		return v
	case 0x4214:
		return uint8(b.divQuotient())
	case 0x4215:
		return uint8(b.divQuotient() >> 8)
	case 0x4216:
		if b.lastOpWasDivide {
			return uint8(b.divRemainder())
		}
		return uint8(b.mulProduct())
	case 0x4217:
		if b.lastOpWasDivide {
			return uint8(b.divRemainder() >> 8)
		}
		return uint8(b.mulProduct() >> 8)
	case 0x4218, 0x421A, 0x421C, 0x421E:
		player := int(addr-0x4218) / 2
		if b.Input != nil {
			return uint8(b.Input.AutoReadResult(player))
		}
	case 0x4219, 0x421B, 0x421D, 0x421F:
		player := int(addr-0x4219) / 2
		if b.Input != nil {
			return uint8(b.Input.AutoReadResult(player) >> 8)
		}
	}
	return b.openBus
}

func (b *Bus) writeSystemRegister(addr uint16, value uint8) {
	switch addr {
	case 0x4200:
		b.nmitimen = value
	case 0x4201:
		b.wrio = value
	case 0x4202:
		b.mulA = value
	case 0x4203:
		b.mulB = value
		b.lastOpWasDivide = false
		// multiply executes immediately; real hardware takes ~8 cycles.
	case 0x4204:
		b.divA = (b.divA &^ 0x00FF) | uint16(value)
	case 0x4205:
		b.divA = (b.divA &^ 0xFF00) | uint16(value)<<8
	case 0x4206:
		b.divB = value
		b.lastOpWasDivide = true
	case 0x4207:
		b.htime = (b.htime &^ 0x00FF) | uint16(value)
	case 0x4208:
		b.htime = (b.htime &^ 0xFF00) | uint16(value&1)<<8
	case 0x4209:
		b.vtime = (b.vtime &^ 0x00FF) | uint16(value)
	case 0x420A:
		b.vtime = (b.vtime &^ 0xFF00) | uint16(value&1)<<8
	case 0x420B:
		if b.DMA != nil {
			b.DMA.TriggerGeneralDMA(value)
		}
	case 0x420C:
		if b.DMA != nil {
			b.DMA.SetHDMAEnable(value)
		}
	case 0x420D:
		b.memsel = value
	}
}

func (b *Bus) mulProduct() uint16 { return uint16(b.mulA) * uint16(b.mulB) }

func (b *Bus) divQuotient() uint16 {
	if b.divB == 0 {
		return 0xFFFF
	}
	return b.divA / uint16(b.divB)
}

func (b *Bus) divRemainder() uint16 {
	if b.divB == 0 {
		return b.divA
	}
	return b.divA % uint16(b.divB)
}

// NMIEnabled reports whether $4200 bit 7 (NMI-on-VBlank) is set.
func (b *Bus) NMIEnabled() bool { return b.nmitimen&0x80 != 0 }

// AutoJoypadEnabled reports whether $4200 bit 0 (auto-joypad read) is set.
func (b *Bus) AutoJoypadEnabled() bool { return b.nmitimen&0x01 != 0 }

// IRQMode returns the $4200 bits 4-5 H/V IRQ selection (0=off,1=H,2=V,3=H+V).
func (b *Bus) IRQMode() uint8 { return (b.nmitimen >> 4) & 0x3 }

// HTime and VTime expose the IRQ compare registers to the scanline loop.
func (b *Bus) HTime() uint16 { return b.htime }
func (b *Bus) VTime() uint16 { return b.vtime }

// SignalNMI marks $4210 bit 7 for the next RDNMI read.
func (b *Bus) SignalNMI() { b.rdnmi = true }

// SignalIRQ marks $4211 bit 7 for the next TIMEUP read.
func (b *Bus) SignalIRQ() { b.timeup = true }

// SetVBlank / SetHBlank update the HVBJOY status bits.
func (b *Bus) SetVBlank(v bool) { b.vblank = v }
func (b *Bus) SetHBlank(v bool) { b.hblank = v }

// OpenBus returns the last byte driven on the bus (spec §4.1 failure
// semantics: open-bus reads return the last value placed on the bus).
func (b *Bus) OpenBus() byte { return b.openBus }

// SetOpenBus restores the open-bus latch (used by save-state load).
func (b *Bus) SetOpenBus(v byte) { b.openBus = v }

// WRAM exposes the raw 128KiB WRAM array for save-state capture/restore.
func (b *Bus) WRAM() []byte { return b.wram[:] }

// LoadWRAM restores a previously captured WRAM image.
func (b *Bus) LoadWRAM(data []byte) { copy(b.wram[:], data) }
