// Package savestate implements the versioned save-state envelope described
// by spec §4.6: a magic-tagged, gzip-compressed capture of every mutable
// component in the core.
package savestate

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/gob"
	"io"

	"snescore/internal/apu"
	"snescore/internal/bus"
	"snescore/internal/coreerr"
	"snescore/internal/cpu"
	"snescore/internal/ppu"
)

var magic = [4]byte{'S', 'N', 'E', 'S'}

const formatVersion uint32 = 1

// State is the full captured snapshot of a Bus, in the fixed component
// order spec §4.6 requires: CPU, PPU (registers+VRAM+CGRAM+OAM+cache
// epoch), APU (SPC700 RAM + DSP state), DMA channels, WRAM, cartridge
// SRAM, bus open-bus latch.
type State struct {
	CPU cpu.Snapshot

	PPURegisters ppu.RegisterState
	VRAM         []uint16
	CGRAM        []uint16
	OAM          []uint8
	CacheEpoch   uint32

	APURAM []byte
	DSP    apu.DSPState

	DMAChannels [8]dmaChannelState

	WRAM    []byte
	SRAM    []byte
	OpenBus byte

	Scanline   int
	FrameCount uint64
}

type dmaChannelState struct {
	Control, BBusAddr, ABusBank, IndirectBank, LineCounter uint8
	ABusAddr, Count, TableAddr                             uint16
}

// Capture snapshots every mutable component of b into a State value.
func Capture(b *bus.Bus) State {
	s := State{
		CPU:          b.CPU.Snapshot(),
		PPURegisters: b.PPU.RegisterSnapshot(),
		VRAM:         b.PPU.VRAMSnapshot(),
		CGRAM:        b.PPU.CGRAMSnapshot(),
		OAM:          b.PPU.OAMSnapshot(),
		CacheEpoch:   0, // always 0: the tile cache is rebuilt lazily after a load and Restore does not read this field
		APURAM:       b.APU.RAMSnapshot(),
		DSP:        b.APU.DSPSnapshot(),
		WRAM:       append([]byte(nil), b.Mem.WRAM()...),
		OpenBus:    b.Mem.OpenBus(),
		Scanline:   b.Scanline(),
		FrameCount: b.PPU.FrameCount(),
	}
	for i := range s.DMAChannels {
		ch := &b.DMA.Channels[i]
		s.DMAChannels[i] = dmaChannelState{
			Control: ch.Control, BBusAddr: ch.BBusAddr, ABusBank: ch.ABusBank,
			IndirectBank: ch.IndirectBank, LineCounter: ch.LineCounter,
			ABusAddr: ch.ABusAddr, Count: ch.Count, TableAddr: ch.TableAddr,
		}
	}
	if b.Cart != nil {
		s.SRAM = append([]byte(nil), b.Cart.ReadSRAM()...)
	}
	return s
}

// Restore applies a previously captured State back onto a live Bus.
func Restore(b *bus.Bus, s State) {
	b.CPU.Restore(s.CPU)
	b.PPU.LoadRegisters(s.PPURegisters)
	b.PPU.LoadVRAM(s.VRAM)
	b.PPU.LoadCGRAM(s.CGRAM)
	b.PPU.LoadOAM(s.OAM)
	b.PPU.SetFrameCount(s.FrameCount)
	b.APU.LoadRAM(s.APURAM)
	b.APU.LoadDSP(s.DSP)
	b.Mem.LoadWRAM(s.WRAM)
	b.Mem.SetOpenBus(s.OpenBus)
	for i := range s.DMAChannels {
		cs := s.DMAChannels[i]
		ch := &b.DMA.Channels[i]
		ch.Control, ch.BBusAddr, ch.ABusBank = cs.Control, cs.BBusAddr, cs.ABusBank
		ch.IndirectBank, ch.LineCounter = cs.IndirectBank, cs.LineCounter
		ch.ABusAddr, ch.Count, ch.TableAddr = cs.ABusAddr, cs.Count, cs.TableAddr
	}
	if b.Cart != nil && s.SRAM != nil {
		b.Cart.LoadSRAM(s.SRAM)
	}
}

// Marshal encodes a State into the [magic][version][gzip(gob)] envelope.
func Marshal(s State) ([]byte, error) {
	var gobBuf bytes.Buffer
	if err := gob.NewEncoder(&gobBuf).Encode(s); err != nil {
		return nil, coreerr.Wrap(coreerr.SaveState, "encode save-state payload", err)
	}

	var out bytes.Buffer
	out.Write(magic[:])
	var versionBuf [4]byte
	binary.LittleEndian.PutUint32(versionBuf[:], formatVersion)
	out.Write(versionBuf[:])

	gz := gzip.NewWriter(&out)
	if _, err := gz.Write(gobBuf.Bytes()); err != nil {
		return nil, coreerr.Wrap(coreerr.SaveState, "compress save-state payload", err)
	}
	if err := gz.Close(); err != nil {
		return nil, coreerr.Wrap(coreerr.SaveState, "finalize save-state payload", err)
	}
	return out.Bytes(), nil
}

// Unmarshal decodes a blob produced by Marshal, rejecting mismatched magic
// or version with a typed coreerr.SaveState error (spec §4.6, §7).
func Unmarshal(blob []byte) (State, error) {
	if len(blob) < 8 {
		return State{}, coreerr.New(coreerr.SaveState, "save-state blob truncated before header")
	}
	if !bytes.Equal(blob[:4], magic[:]) {
		return State{}, coreerr.New(coreerr.SaveState, "save-state magic mismatch")
	}
	version := binary.LittleEndian.Uint32(blob[4:8])
	if version != formatVersion {
		return State{}, coreerr.New(coreerr.SaveState, "save-state version mismatch")
	}

	gz, err := gzip.NewReader(bytes.NewReader(blob[8:]))
	if err != nil {
		return State{}, coreerr.Wrap(coreerr.SaveState, "open compressed save-state payload", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return State{}, coreerr.Wrap(coreerr.SaveState, "decompress save-state payload", err)
	}

	var s State
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s); err != nil {
		return State{}, coreerr.Wrap(coreerr.SaveState, "decode save-state payload", err)
	}
	return s, nil
}
