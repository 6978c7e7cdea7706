// Package emulator implements the core's external entry points (spec §6):
// the frame-step coordinator and state-serialization root sitting atop the
// bus, generalized from the teacher's internal/app.Emulator frame pump but
// stripped of wall-clock pacing, since the host frame pump owns real-time
// scheduling rather than the core.
package emulator

import (
	"github.com/sirupsen/logrus"

	"snescore/internal/bus"
	"snescore/internal/cartridge"
	"snescore/internal/coreerr"
	"snescore/internal/savestate"
)

const (
	screenWidth  = 256
	screenHeight = 224
)

// Options configures construction-time defaults; unlike the teacher's
// JSON-file config loader (out of scope per spec §1), these are built in Go
// by the host.
type Options struct {
	Log   *logrus.Logger
	Debug bool
}

// Emulator is the single entry point a host frontend drives: load a ROM,
// step frames or instructions, exchange controller input, drain audio and
// video, and capture/restore save states.
type Emulator struct {
	bus *bus.Bus
	log *logrus.Logger
}

// New builds an Emulator with no ROM loaded; LoadROM must be called before
// Step/StepFrame produce meaningful output.
func New(opts Options) *Emulator {
	log := opts.Log
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	if opts.Debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return &Emulator{
		bus: bus.New(log),
		log: log,
	}
}

// LoadROM validates the header, picks a mapper, and resets the system
// (spec §6 `load_rom(bytes)`).
func (e *Emulator) LoadROM(data []byte) error {
	cart, err := cartridge.Load(data)
	if err != nil {
		return err
	}
	e.bus.LoadROM(cart)
	return nil
}

// Reset performs a soft reset: state equivalent to post-power-on then
// reset-vector fetch (spec §6 `reset()`).
func (e *Emulator) Reset() {
	e.bus.Reset()
}

// Step executes exactly one CPU instruction and returns the master cycles
// consumed, for debug single-stepping (spec §6 `step()`).
func (e *Emulator) Step() uint64 {
	return e.bus.CPU.Step()
}

// StepFrame advances the system to the next VBlank, running all 262
// scanlines of CPU/DMA/PPU/APU coordination (spec §6 `step_frame()`).
func (e *Emulator) StepFrame() {
	e.bus.StepFrame()
}

// SetController latches a 16-bit button mask for the given player (0..3),
// applied at the next joypad auto-read (spec §6).
func (e *Emulator) SetController(player int, mask uint16) {
	e.bus.SetController(player, mask)
}

// VideoBuffer borrows the 256x224 frame buffer in 15-bit BGR, the core's
// native pixel format; conversion to RGBA8 is a host-frontend concern
// (spec §4.3, §6).
func (e *Emulator) VideoBuffer() []uint16 {
	return e.bus.PPU.FrameBuffer[:]
}

// VideoBufferRGBA8 returns a host-convenience RGBA8 copy of the current
// frame, 8-bit-per-channel with alpha forced opaque. 15-bit BGR channels
// are expanded to 8 bits by replicating the top bits into the low bits,
// matching how the public SNES dev wiki documents host palette expansion.
func (e *Emulator) VideoBufferRGBA8() []byte {
	src := e.bus.PPU.FrameBuffer[:]
	out := make([]byte, len(src)*4)
	for i, px := range src {
		r5 := px & 0x1F
		g5 := (px >> 5) & 0x1F
		b5 := (px >> 10) & 0x1F
		out[i*4+0] = expand5to8(r5)
		out[i*4+1] = expand5to8(g5)
		out[i*4+2] = expand5to8(b5)
		out[i*4+3] = 0xFF
	}
	return out
}

func expand5to8(c uint16) byte {
	return byte((c << 3) | (c >> 2))
}

// AudioDrain returns and clears pending interleaved stereo samples at
// 32000 Hz, signed 16-bit (spec §4.4, §6 `audio_drain()`).
func (e *Emulator) AudioDrain() []int16 {
	return e.bus.APU.DrainSamples()
}

// SaveState captures and serializes the full mutable state of the system
// (spec §4.6, §6 `save_state()`).
func (e *Emulator) SaveState() ([]byte, error) {
	s := savestate.Capture(e.bus)
	return savestate.Marshal(s)
}

// LoadState restores a previously captured save-state blob (spec §6
// `load_state(blob)`).
func (e *Emulator) LoadState(blob []byte) error {
	s, err := savestate.Unmarshal(blob)
	if err != nil {
		return err
	}
	savestate.Restore(e.bus, s)
	return nil
}

// SRAMSnapshot returns a copy of the cartridge's battery-backed SRAM, or
// nil if no cartridge or no battery backup is present (spec §6
// `sram_snapshot()`).
func (e *Emulator) SRAMSnapshot() []byte {
	if e.bus.Cart == nil {
		return nil
	}
	return e.bus.Cart.ReadSRAM()
}

// SRAMLoad restores a battery-backup image previously returned by
// SRAMSnapshot (spec §6 `sram_load(bytes)`).
func (e *Emulator) SRAMLoad(data []byte) error {
	if e.bus.Cart == nil {
		return coreerr.New(coreerr.RomLoad, "no cartridge loaded")
	}
	e.bus.Cart.LoadSRAM(data)
	return nil
}

// ROMInfo is the subset of cartridge header metadata exposed to hosts
// (spec §6 `rom_info()`).
type ROMInfo struct {
	Title    string
	Mapper   string
	Region   uint8
	SRAMSize int
}

// ROMInfo reports title, mapper, region and SRAM size for the loaded
// cartridge.
func (e *Emulator) ROMInfo() ROMInfo {
	if e.bus.Cart == nil {
		return ROMInfo{}
	}
	hdr := e.bus.Cart.Header()
	return ROMInfo{
		Title:    hdr.Title,
		Mapper:   hdr.Mapper.String(),
		Region:   uint8(hdr.Region),
		SRAMSize: e.bus.Cart.SRAMSize(),
	}
}
