package apu

const (
	masterClockHz = 24576000 // SNES APU clock; SPC700 runs at this / 24
	spcClockHz    = masterClockHz / 24
	sampleRateHz  = 32000
)

// APU bundles the SPC700 CPU, the DSP, and the sample accumulation queue
// that the host drains (spec §4.4).
type APU struct {
	cpu *SPC700
	dsp *DSP

	cycleAccum   float64
	sampleAccum  []int16
}

// New builds an APU with the SPC700 and DSP wired to shared RAM.
func New() *APU {
	cpu := newSPC700()
	dsp := newDSP(&cpu.ram)
	cpu.dsp = dsp
	return &APU{cpu: cpu, dsp: dsp}
}

// Reset restores both the SPC700 and the DSP to power-on state.
func (a *APU) Reset() {
	a.cpu.Reset()
	a.dsp.reset()
	a.cycleAccum = 0
	a.sampleAccum = a.sampleAccum[:0]
}

// WritePort / ReadPort expose $2140-$2143 to the main CPU side of the
// bus; the SPC700 sees the same four bytes at $F4-$F7 (spec §4.4).
func (a *APU) WritePort(n int, value uint8) { a.cpu.WriteMailbox(n, value) }
func (a *APU) ReadPort(n int) uint8         { return a.cpu.ReadMailbox(n) }

// StepScanline advances the SPC700 by its share of master cycles for one
// scanline and the DSP by the corresponding number of 32kHz samples, per
// spec §4.4's `step_scanline(cycles)` contract. `cycles` is expressed in
// main-CPU master cycles; it is converted to the APU's own clock domain.
func (a *APU) StepScanline(mainCPUCycles int64) {
	const mainClockHz = 21477272 // NTSC main-CPU master clock
	apuCycles := mainCPUCycles * spcClockHz / mainClockHz
	a.cpu.Step(apuCycles)

	a.cycleAccum += float64(apuCycles) * sampleRateHz / spcClockHz
	for a.cycleAccum >= 1.0 {
		a.cycleAccum -= 1.0
		l, r := a.dsp.step()
		a.sampleAccum = append(a.sampleAccum, l, r)
	}
}

// DrainSamples returns and clears all queued stereo samples (interleaved
// L,R, signed 16-bit, 32kHz) accumulated since the last drain.
func (a *APU) DrainSamples() []int16 {
	out := a.sampleAccum
	a.sampleAccum = nil
	return out
}

// RAMSnapshot / LoadRAM / DSPSnapshot / LoadDSP support save-state capture
// of the full APU subsystem (spec §4.6).
func (a *APU) RAMSnapshot() []byte { return a.cpu.RAMSnapshot() }
func (a *APU) LoadRAM(data []byte) error { return a.cpu.LoadRAM(data) }

type DSPState struct {
	Voices                               [8]voice
	MVolL, MVolR, EVolL, EVolR           int8
	KOn, KOff, Flg, EndX                 uint8
	EFB                                  int8
	FIR                                  [8]int8
	ESA, EDL, EON, PMOn, NOn             uint8
	EchoPos                              int
}

func (a *APU) DSPSnapshot() DSPState {
	return DSPState{
		Voices: a.dsp.voices,
		MVolL: a.dsp.mvolL, MVolR: a.dsp.mvolR,
		EVolL: a.dsp.evolL, EVolR: a.dsp.evolR,
		KOn: a.dsp.kon, KOff: a.dsp.koff, Flg: a.dsp.flg, EndX: a.dsp.endx,
		EFB: a.dsp.efb, FIR: a.dsp.fir,
		ESA: a.dsp.esa, EDL: a.dsp.edl, EON: a.dsp.eon, PMOn: a.dsp.pmon, NOn: a.dsp.non,
		EchoPos: a.dsp.echoPos,
	}
}

func (a *APU) LoadDSP(s DSPState) {
	a.dsp.voices = s.Voices
	a.dsp.mvolL, a.dsp.mvolR = s.MVolL, s.MVolR
	a.dsp.evolL, a.dsp.evolR = s.EVolL, s.EVolR
	a.dsp.kon, a.dsp.koff, a.dsp.flg, a.dsp.endx = s.KOn, s.KOff, s.Flg, s.EndX
	a.dsp.efb, a.dsp.fir = s.EFB, s.FIR
	a.dsp.esa, a.dsp.edl, a.dsp.eon, a.dsp.pmon, a.dsp.non = s.ESA, s.EDL, s.EON, s.PMOn, s.NOn
	a.dsp.echoPos = s.EchoPos
}

// WriteDSPRegister / ReadDSPRegister expose the DSP's 128 registers,
// reachable from the SPC700 side via its own $F2/$F3 indirect port.
func (a *APU) WriteDSPRegister(reg, value uint8) { a.dsp.WriteRegister(reg, value) }
func (a *APU) ReadDSPRegister(reg uint8) uint8   { return a.dsp.ReadRegister(reg) }
