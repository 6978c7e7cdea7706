package cpu

// opcodeTable maps every one of the 256 possible opcode bytes to a handler
// that executes the instruction and returns its cycle cost; all 256 slots
// are defined, with no fallthrough NOP.
var opcodeTable = buildOpcodes()

func buildOpcodes() map[uint8]func(*CPU) uint64 {
	t := make(map[uint8]func(*CPU) uint64, 256)

	// --- Loads ---
	t[0xA9] = lda(func(c *CPU) operand { return c.immOperand(c.flagM()) })
	t[0xA5] = lda((*CPU).opDirect)
	t[0xB5] = lda((*CPU).opDirectX)
	t[0xAD] = lda((*CPU).opAbsolute)
	t[0xBD] = lda((*CPU).opAbsoluteX)
	t[0xB9] = lda((*CPU).opAbsoluteY)
	t[0xAF] = lda((*CPU).opAbsoluteLong)
	t[0xBF] = lda((*CPU).opAbsoluteLongX)
	t[0xA1] = lda((*CPU).opDirectIndirectX)
	t[0xB1] = lda((*CPU).opDirectIndirectY)
	t[0xB2] = lda((*CPU).opDirectIndirect)
	t[0xA7] = lda((*CPU).opDirectIndirectLong)
	t[0xB7] = lda((*CPU).opDirectIndirectLongY)
	t[0xA3] = lda((*CPU).opStackRelative)
	t[0xB3] = lda((*CPU).opStackRelativeIndirectY)

	t[0xA2] = ldx(func(c *CPU) operand { return c.immOperand(c.flagX()) })
	t[0xA6] = ldx((*CPU).opDirect)
	t[0xB6] = ldx((*CPU).opDirectY)
	t[0xAE] = ldx((*CPU).opAbsolute)
	t[0xBE] = ldx((*CPU).opAbsoluteY)

	t[0xA0] = ldy(func(c *CPU) operand { return c.immOperand(c.flagX()) })
	t[0xA4] = ldy((*CPU).opDirect)
	t[0xB4] = ldy((*CPU).opDirectX)
	t[0xAC] = ldy((*CPU).opAbsolute)
	t[0xBC] = ldy((*CPU).opAbsoluteX)

	// --- Stores ---
	t[0x85] = sta((*CPU).opDirect)
	t[0x95] = sta((*CPU).opDirectX)
	t[0x8D] = sta((*CPU).opAbsolute)
	t[0x9D] = sta((*CPU).opAbsoluteX)
	t[0x99] = sta((*CPU).opAbsoluteY)
	t[0x8F] = sta((*CPU).opAbsoluteLong)
	t[0x9F] = sta((*CPU).opAbsoluteLongX)
	t[0x81] = sta((*CPU).opDirectIndirectX)
	t[0x91] = sta((*CPU).opDirectIndirectY)
	t[0x92] = sta((*CPU).opDirectIndirect)
	t[0x87] = sta((*CPU).opDirectIndirectLong)
	t[0x97] = sta((*CPU).opDirectIndirectLongY)
	t[0x83] = sta((*CPU).opStackRelative)
	t[0x93] = sta((*CPU).opStackRelativeIndirectY)

	t[0x86] = stx((*CPU).opDirect)
	t[0x96] = stx((*CPU).opDirectY)
	t[0x8E] = stx((*CPU).opAbsolute)

	t[0x84] = sty((*CPU).opDirect)
	t[0x94] = sty((*CPU).opDirectX)
	t[0x8C] = sty((*CPU).opAbsolute)

	t[0x64] = stz((*CPU).opDirect)
	t[0x74] = stz((*CPU).opDirectX)
	t[0x9C] = stz((*CPU).opAbsolute)
	t[0x9E] = stz((*CPU).opAbsoluteX)

	// --- Arithmetic ---
	t[0x69] = adc(func(c *CPU) operand { return c.immOperand(c.flagM()) })
	t[0x65] = adc((*CPU).opDirect)
	t[0x75] = adc((*CPU).opDirectX)
	t[0x6D] = adc((*CPU).opAbsolute)
	t[0x7D] = adc((*CPU).opAbsoluteX)
	t[0x79] = adc((*CPU).opAbsoluteY)
	t[0x6F] = adc((*CPU).opAbsoluteLong)
	t[0x7F] = adc((*CPU).opAbsoluteLongX)
	t[0x61] = adc((*CPU).opDirectIndirectX)
	t[0x71] = adc((*CPU).opDirectIndirectY)
	t[0x72] = adc((*CPU).opDirectIndirect)
	t[0x63] = adc((*CPU).opStackRelative)
	t[0x73] = adc((*CPU).opStackRelativeIndirectY)
	t[0x67] = adc((*CPU).opDirectIndirectLong)
	t[0x77] = adc((*CPU).opDirectIndirectLongY)

	t[0xE9] = sbc(func(c *CPU) operand { return c.immOperand(c.flagM()) })
	t[0xE5] = sbc((*CPU).opDirect)
	t[0xF5] = sbc((*CPU).opDirectX)
	t[0xED] = sbc((*CPU).opAbsolute)
	t[0xFD] = sbc((*CPU).opAbsoluteX)
	t[0xF9] = sbc((*CPU).opAbsoluteY)
	t[0xEF] = sbc((*CPU).opAbsoluteLong)
	t[0xFF] = sbc((*CPU).opAbsoluteLongX)
	t[0xE1] = sbc((*CPU).opDirectIndirectX)
	t[0xF1] = sbc((*CPU).opDirectIndirectY)
	t[0xF2] = sbc((*CPU).opDirectIndirect)
	t[0xE3] = sbc((*CPU).opStackRelative)
	t[0xF3] = sbc((*CPU).opStackRelativeIndirectY)
	t[0xE7] = sbc((*CPU).opDirectIndirectLong)
	t[0xF7] = sbc((*CPU).opDirectIndirectLongY)

	t[0xC9] = cmp(func(c *CPU) operand { return c.immOperand(c.flagM()) })
	t[0xC5] = cmp((*CPU).opDirect)
	t[0xD5] = cmp((*CPU).opDirectX)
	t[0xCD] = cmp((*CPU).opAbsolute)
	t[0xDD] = cmp((*CPU).opAbsoluteX)
	t[0xD9] = cmp((*CPU).opAbsoluteY)
	t[0xC1] = cmp((*CPU).opDirectIndirectX)
	t[0xD1] = cmp((*CPU).opDirectIndirectY)
	t[0xD2] = cmp((*CPU).opDirectIndirect)
	t[0xC3] = cmp((*CPU).opStackRelative)
	t[0xD3] = cmp((*CPU).opStackRelativeIndirectY)
	t[0xC7] = cmp((*CPU).opDirectIndirectLong)
	t[0xD7] = cmp((*CPU).opDirectIndirectLongY)
	t[0xCF] = cmp((*CPU).opAbsoluteLong)
	t[0xDF] = cmp((*CPU).opAbsoluteLongX)

	t[0xE0] = cpx(func(c *CPU) operand { return c.immOperand(c.flagX()) })
	t[0xE4] = cpx((*CPU).opDirect)
	t[0xEC] = cpx((*CPU).opAbsolute)

	t[0xC0] = cpy(func(c *CPU) operand { return c.immOperand(c.flagX()) })
	t[0xC4] = cpy((*CPU).opDirect)
	t[0xCC] = cpy((*CPU).opAbsolute)

	// --- Logic ---
	t[0x29] = and(func(c *CPU) operand { return c.immOperand(c.flagM()) })
	t[0x25] = and((*CPU).opDirect)
	t[0x2D] = and((*CPU).opAbsolute)
	t[0x3D] = and((*CPU).opAbsoluteX)
	t[0x39] = and((*CPU).opAbsoluteY)
	t[0x35] = and((*CPU).opDirectX)
	t[0x21] = and((*CPU).opDirectIndirectX)
	t[0x31] = and((*CPU).opDirectIndirectY)
	t[0x32] = and((*CPU).opDirectIndirect)
	t[0x23] = and((*CPU).opStackRelative)
	t[0x33] = and((*CPU).opStackRelativeIndirectY)
	t[0x27] = and((*CPU).opDirectIndirectLong)
	t[0x37] = and((*CPU).opDirectIndirectLongY)
	t[0x2F] = and((*CPU).opAbsoluteLong)
	t[0x3F] = and((*CPU).opAbsoluteLongX)

	t[0x09] = ora(func(c *CPU) operand { return c.immOperand(c.flagM()) })
	t[0x05] = ora((*CPU).opDirect)
	t[0x0D] = ora((*CPU).opAbsolute)
	t[0x1D] = ora((*CPU).opAbsoluteX)
	t[0x19] = ora((*CPU).opAbsoluteY)
	t[0x15] = ora((*CPU).opDirectX)
	t[0x01] = ora((*CPU).opDirectIndirectX)
	t[0x11] = ora((*CPU).opDirectIndirectY)
	t[0x12] = ora((*CPU).opDirectIndirect)
	t[0x03] = ora((*CPU).opStackRelative)
	t[0x13] = ora((*CPU).opStackRelativeIndirectY)
	t[0x07] = ora((*CPU).opDirectIndirectLong)
	t[0x17] = ora((*CPU).opDirectIndirectLongY)
	t[0x0F] = ora((*CPU).opAbsoluteLong)
	t[0x1F] = ora((*CPU).opAbsoluteLongX)

	t[0x49] = eor(func(c *CPU) operand { return c.immOperand(c.flagM()) })
	t[0x45] = eor((*CPU).opDirect)
	t[0x4D] = eor((*CPU).opAbsolute)
	t[0x5D] = eor((*CPU).opAbsoluteX)
	t[0x59] = eor((*CPU).opAbsoluteY)
	t[0x55] = eor((*CPU).opDirectX)
	t[0x41] = eor((*CPU).opDirectIndirectX)
	t[0x51] = eor((*CPU).opDirectIndirectY)
	t[0x52] = eor((*CPU).opDirectIndirect)
	t[0x43] = eor((*CPU).opStackRelative)
	t[0x53] = eor((*CPU).opStackRelativeIndirectY)
	t[0x47] = eor((*CPU).opDirectIndirectLong)
	t[0x57] = eor((*CPU).opDirectIndirectLongY)
	t[0x4F] = eor((*CPU).opAbsoluteLong)
	t[0x5F] = eor((*CPU).opAbsoluteLongX)

	t[0x89] = bitImm
	t[0x24] = bit((*CPU).opDirect)
	t[0x2C] = bit((*CPU).opAbsolute)
	t[0x34] = bit((*CPU).opDirectX)
	t[0x3C] = bit((*CPU).opAbsoluteX)

	t[0x04] = tsb((*CPU).opDirect)
	t[0x0C] = tsb((*CPU).opAbsolute)
	t[0x14] = trb((*CPU).opDirect)
	t[0x1C] = trb((*CPU).opAbsolute)

	// --- Shifts ---
	t[0x0A] = aslA
	t[0x06] = asl((*CPU).opDirect)
	t[0x0E] = asl((*CPU).opAbsolute)
	t[0x16] = asl((*CPU).opDirectX)
	t[0x1E] = asl((*CPU).opAbsoluteX)

	t[0x4A] = lsrA
	t[0x46] = lsr((*CPU).opDirect)
	t[0x4E] = lsr((*CPU).opAbsolute)
	t[0x56] = lsr((*CPU).opDirectX)
	t[0x5E] = lsr((*CPU).opAbsoluteX)

	t[0x2A] = rolA
	t[0x26] = rol((*CPU).opDirect)
	t[0x2E] = rol((*CPU).opAbsolute)
	t[0x36] = rol((*CPU).opDirectX)
	t[0x3E] = rol((*CPU).opAbsoluteX)

	t[0x6A] = rorA
	t[0x66] = ror((*CPU).opDirect)
	t[0x6E] = ror((*CPU).opAbsolute)
	t[0x76] = ror((*CPU).opDirectX)
	t[0x7E] = ror((*CPU).opAbsoluteX)

	// --- Inc/Dec ---
	t[0x1A] = incA
	t[0x3A] = decA
	t[0xE6] = incMem((*CPU).opDirect)
	t[0xEE] = incMem((*CPU).opAbsolute)
	t[0xF6] = incMem((*CPU).opDirectX)
	t[0xFE] = incMem((*CPU).opAbsoluteX)
	t[0xC6] = decMem((*CPU).opDirect)
	t[0xCE] = decMem((*CPU).opAbsolute)
	t[0xD6] = decMem((*CPU).opDirectX)
	t[0xDE] = decMem((*CPU).opAbsoluteX)
	t[0xE8] = func(c *CPU) uint64 { c.X = incDec(c, c.X, 1, c.flagX()); return 2 }
	t[0xCA] = func(c *CPU) uint64 { c.X = incDec(c, c.X, -1, c.flagX()); return 2 }
	t[0xC8] = func(c *CPU) uint64 { c.Y = incDec(c, c.Y, 1, c.flagX()); return 2 }
	t[0x88] = func(c *CPU) uint64 { c.Y = incDec(c, c.Y, -1, c.flagX()); return 2 }

	// --- Transfers ---
	t[0xAA] = func(c *CPU) uint64 { c.X = transfer(c, c.A, c.flagX()); return 2 }
	t[0xA8] = func(c *CPU) uint64 { c.Y = transfer(c, c.A, c.flagX()); return 2 }
	t[0x8A] = func(c *CPU) uint64 { c.A = transfer(c, c.X, c.flagM()); return 2 }
	t[0x98] = func(c *CPU) uint64 { c.A = transfer(c, c.Y, c.flagM()); return 2 }
	t[0x9A] = func(c *CPU) uint64 {
		if c.Emulation {
			c.S = (c.X & 0xFF) | 0x0100
		} else {
			c.S = c.X
		}
		return 2
	}
	t[0xBA] = func(c *CPU) uint64 { c.X = transfer(c, c.S, c.flagX()); return 2 }
	t[0x9B] = func(c *CPU) uint64 { c.Y = transfer(c, c.X, c.flagX()); return 2 }
	t[0xBB] = func(c *CPU) uint64 { c.X = transfer(c, c.Y, c.flagX()); return 2 }
	t[0x5B] = func(c *CPU) uint64 { c.D = c.A; return 2 }   // TCD
	t[0x7B] = func(c *CPU) uint64 { c.A = c.D; c.setZN16(c.A); return 2 } // TDC
	t[0x1B] = func(c *CPU) uint64 { c.S = c.A; return 2 }   // TCS
	t[0x3B] = func(c *CPU) uint64 { c.A = c.S; c.setZN16(c.A); return 2 } // TSC

	// --- Stack ---
	t[0x48] = func(c *CPU) uint64 { return pushReg(c, c.A, c.flagM()) } // PHA
	t[0x68] = func(c *CPU) uint64 { c.A = pullReg(c, c.A, c.flagM()); return 5 } // PLA
	t[0xDA] = func(c *CPU) uint64 { return pushReg(c, c.X, c.flagX()) } // PHX
	t[0xFA] = func(c *CPU) uint64 { c.X = pullReg(c, c.X, c.flagX()); return 5 } // PLX
	t[0x5A] = func(c *CPU) uint64 { return pushReg(c, c.Y, c.flagX()) } // PHY
	t[0x7A] = func(c *CPU) uint64 { c.Y = pullReg(c, c.Y, c.flagX()); return 5 } // PLY
	t[0x08] = func(c *CPU) uint64 { c.push8(c.P); return 3 }  // PHP
	t[0x28] = func(c *CPU) uint64 { c.SetStatusByte(c.pop8()); return 4 } // PLP
	t[0x8B] = func(c *CPU) uint64 { c.push8(c.DBR); return 3 } // PHB
	t[0xAB] = func(c *CPU) uint64 { c.DBR = c.pop8(); c.setZN8(c.DBR); return 4 } // PLB
	t[0x0B] = func(c *CPU) uint64 { c.pushWord(c.D); return 4 } // PHD
	t[0x2B] = func(c *CPU) uint64 { c.D = c.popWord(); c.setZN16(c.D); return 5 } // PLD
	t[0x4B] = func(c *CPU) uint64 { c.push8(c.PBR); return 3 } // PHK

	// --- Flags ---
	t[0x18] = func(c *CPU) uint64 { c.setFlag(FlagC, false); return 2 }
	t[0x38] = func(c *CPU) uint64 { c.setFlag(FlagC, true); return 2 }
	t[0x58] = func(c *CPU) uint64 { c.setFlag(FlagI, false); return 2 }
	t[0x78] = func(c *CPU) uint64 { c.setFlag(FlagI, true); return 2 }
	t[0xB8] = func(c *CPU) uint64 { c.setFlag(FlagV, false); return 2 }
	t[0xD8] = func(c *CPU) uint64 { c.setFlag(FlagD, false); return 2 }
	t[0xF8] = func(c *CPU) uint64 { c.setFlag(FlagD, true); return 2 }
	t[0xC2] = func(c *CPU) uint64 { c.P &^= c.fetch8(); c.forceEmulationWidths(); return 3 } // REP
	t[0xE2] = func(c *CPU) uint64 { c.P |= c.fetch8(); c.forceEmulationWidths(); return 3 }  // SEP
	t[0xFB] = func(c *CPU) uint64 { // XCE
		oldE := c.Emulation
		c.Emulation = c.getFlag(FlagC)
		c.setFlag(FlagC, oldE)
		if c.Emulation {
			c.P |= FlagM | FlagX
			c.X &= 0x00FF
			c.Y &= 0x00FF
			c.S = (c.S & 0x00FF) | 0x0100
		}
		return 2
	}

	// --- Branches (all relative, 8-bit signed offset) ---
	t[0x90] = branch(func(c *CPU) bool { return !c.getFlag(FlagC) })
	t[0xB0] = branch(func(c *CPU) bool { return c.getFlag(FlagC) })
	t[0xF0] = branch(func(c *CPU) bool { return c.getFlag(FlagZ) })
	t[0xD0] = branch(func(c *CPU) bool { return !c.getFlag(FlagZ) })
	t[0x30] = branch(func(c *CPU) bool { return c.getFlag(FlagN) })
	t[0x10] = branch(func(c *CPU) bool { return !c.getFlag(FlagN) })
	t[0x50] = branch(func(c *CPU) bool { return !c.getFlag(FlagV) })
	t[0x70] = branch(func(c *CPU) bool { return c.getFlag(FlagV) })
	t[0x80] = branch(func(c *CPU) bool { return true }) // BRA
	t[0x82] = brl

	// --- Jumps / calls / returns ---
	t[0x4C] = func(c *CPU) uint64 { c.PC = c.fetch16(); return 3 } // JMP abs
	t[0x6C] = func(c *CPU) uint64 { op := c.opAbsoluteIndirect(); c.PC = op.addr; return 5 }
	t[0x7C] = func(c *CPU) uint64 { op := c.opAbsoluteIndirectX(); c.PC = op.addr; return 6 }
	t[0x5C] = func(c *CPU) uint64 { // JMP long
		bk, addr := c.fetch24()
		c.PBR, c.PC = bk, addr
		return 4
	}
	t[0xDC] = func(c *CPU) uint64 { // JML [abs]
		op := c.opAbsoluteIndirectLong()
		c.PBR, c.PC = op.bank, op.addr
		return 6
	}
	t[0x20] = func(c *CPU) uint64 { // JSR abs
		target := c.fetch16()
		c.pushWord(c.PC - 1)
		c.PC = target
		return 6
	}
	t[0xFC] = func(c *CPU) uint64 { // JSR (abs,X)
		op := c.opAbsoluteIndirectX()
		c.pushWord(c.PC - 1)
		c.PC = op.addr
		return 8
	}
	t[0x22] = func(c *CPU) uint64 { // JSL long
		bk, addr := c.fetch24()
		c.push8(c.PBR)
		c.pushWord(c.PC - 1)
		c.PBR, c.PC = bk, addr
		return 8
	}
	t[0x60] = func(c *CPU) uint64 { c.PC = c.popWord() + 1; return 6 } // RTS
	t[0x6B] = func(c *CPU) uint64 { // RTL
		c.PC = c.popWord() + 1
		c.PBR = c.pop8()
		return 6
	}
	t[0x40] = func(c *CPU) uint64 { // RTI
		c.SetStatusByte(c.pop8())
		c.PC = c.popWord()
		if !c.Emulation {
			c.PBR = c.pop8()
		}
		return 6
	}
	t[0x00] = func(c *CPU) uint64 { // BRK
		c.fetch8() // signature byte, ignored
		return c.serviceInterrupt(brkVector(c.Emulation), true)
	}
	t[0x02] = func(c *CPU) uint64 { // COP
		c.fetch8()
		return c.serviceInterrupt(copVector(c.Emulation), false)
	}
	t[0xDB] = func(c *CPU) uint64 { c.stopped = true; return 3 } // STP
	t[0xCB] = func(c *CPU) uint64 { c.waiting = true; return 3 } // WAI
	t[0xEA] = func(c *CPU) uint64 { return 2 }                   // NOP
	t[0x42] = func(c *CPU) uint64 { c.fetch8(); return 2 }       // WDM
	t[0xEB] = xba

	// --- Stack (push-effective-address) ---
	t[0xF4] = pea
	t[0xD4] = pei
	t[0x62] = per

	// --- Block move ---
	t[0x44] = blockMove(1)  // MVP
	t[0x54] = blockMove(-1) // MVN

	return t
}

func brkVector(emulation bool) uint16 {
	if emulation {
		return 0xFFFE
	}
	return 0xFFE6
}
func copVector(emulation bool) uint16 {
	if emulation {
		return 0xFFF4
	}
	return 0xFFE4
}

// immOperand treats PC itself as the operand address for an immediate
// fetch, then advances PC by 1 or 2 bytes depending on width.
func (c *CPU) immOperand(narrow bool) operand {
	addr := c.PC
	if narrow {
		c.PC++
	} else {
		c.PC += 2
	}
	return operand{bank: c.PBR, addr: addr}
}

func lda(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		c.A = mergeWidth(c.A, c.readOperand(op, narrow), narrow)
		if narrow {
			c.setZN8(uint8(c.A))
		} else {
			c.setZN16(c.A)
		}
		return 3
	}
}

func ldx(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagX()
		c.X = mergeWidth(c.X, c.readOperand(op, narrow), narrow)
		if narrow {
			c.setZN8(uint8(c.X))
		} else {
			c.setZN16(c.X)
		}
		return 3
	}
}

func ldy(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagX()
		c.Y = mergeWidth(c.Y, c.readOperand(op, narrow), narrow)
		if narrow {
			c.setZN8(uint8(c.Y))
		} else {
			c.setZN16(c.Y)
		}
		return 3
	}
}

func sta(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		c.writeOperand(op, c.A, c.flagM())
		return 4
	}
}
func stx(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 { op := mode(c); c.writeOperand(op, c.X, c.flagX()); return 4 }
}
func sty(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 { op := mode(c); c.writeOperand(op, c.Y, c.flagX()); return 4 }
}
func stz(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 { op := mode(c); c.writeOperand(op, 0, c.flagM()); return 4 }
}

// mergeWidth folds a newly-read narrow value into the existing register,
// preserving the high byte when the register is in 8-bit mode (matching
// real 65C816 behavior: the unused half of A/X/Y is not cleared).
func mergeWidth(reg uint16, value uint16, narrow bool) uint16 {
	if narrow {
		return (reg &^ 0x00FF) | (value & 0x00FF)
	}
	return value
}

func (c *CPU) adcBinary(a, b uint16, narrow bool) uint16 {
	carry := uint32(0)
	if c.getFlag(FlagC) {
		carry = 1
	}
	if narrow {
		sum := uint32(uint8(a)) + uint32(uint8(b)) + carry
		c.setFlag(FlagC, sum > 0xFF)
		c.setFlag(FlagV, (uint8(a)^uint8(sum))&(uint8(b)^uint8(sum))&0x80 != 0)
		r := uint8(sum)
		c.setZN8(r)
		return mergeWidth(a, uint16(r), true)
	}
	sum := uint32(a) + uint32(b) + carry
	c.setFlag(FlagC, sum > 0xFFFF)
	c.setFlag(FlagV, (a^uint16(sum))&(b^uint16(sum))&0x8000 != 0)
	r := uint16(sum)
	c.setZN16(r)
	return r
}

// adcDecimal implements BCD addition, nibble by nibble with decimal carry,
// matching the 65C816's ADC when the D flag is set (spec §4.2).
func (c *CPU) adcDecimal(a, b uint16, narrow bool) uint16 {
	carry := 0
	if c.getFlag(FlagC) {
		carry = 1
	}
	if narrow {
		lo := int(a&0xF) + int(b&0xF) + carry
		hiCarry := 0
		if lo > 9 {
			lo -= 10
			hiCarry = 1
		}
		hi := int((a>>4)&0xF) + int((b>>4)&0xF) + hiCarry
		outOfRange := hi > 9
		if outOfRange {
			hi -= 10
		}
		c.setFlag(FlagC, outOfRange)
		r := uint8(hi<<4 | lo)
		c.setZN8(r)
		return mergeWidth(a, uint16(r), true)
	}
	// 16-bit BCD: fold byte-wise using the 8-bit routine twice with carry
	// propagation between bytes.
	loA, hiA := uint8(a), uint8(a>>8)
	loB, hiB := uint8(b), uint8(b>>8)
	loR := c.adcDecimal(uint16(loA), uint16(loB), true)
	midCarry := c.getFlag(FlagC)
	c.setFlag(FlagC, midCarry)
	hiR := c.adcDecimal(uint16(hiA), uint16(hiB), true)
	r := uint16(uint8(hiR))<<8 | uint16(uint8(loR))
	c.setZN16(r)
	return r
}

func adc(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		val := c.readOperand(op, narrow)
		if c.getFlag(FlagD) {
			c.A = c.adcDecimal(c.A, val, narrow)
		} else {
			c.A = c.adcBinary(c.A, val, narrow)
		}
		return 4
	}
}

func sbc(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		val := c.readOperand(op, narrow)
		if c.getFlag(FlagD) {
			// Decimal subtraction: complement within the decimal range (9's
			// complement) before reusing the BCD add routine, as real
			// 65C816 decimal SBC effectively does.
			inv := subDecimalComplement(val, narrow)
			c.A = c.adcDecimal(c.A, inv, narrow)
		} else {
			c.A = c.adcBinary(c.A, ^val, narrow)
		}
		return 4
	}
}

func subDecimalComplement(v uint16, narrow bool) uint16 {
	if narrow {
		lo := 9 - (v & 0xF)
		hi := 9 - ((v >> 4) & 0xF)
		return hi<<4 | lo
	}
	loA := subDecimalComplement(v&0xFF, true)
	hiA := subDecimalComplement((v>>8)&0xFF, true)
	return hiA<<8 | loA
}

func cmp(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		compareRegister(c, c.A, c.readOperand(op, narrow), narrow)
		return 4
	}
}
func cpx(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagX()
		compareRegister(c, c.X, c.readOperand(op, narrow), narrow)
		return 3
	}
}
func cpy(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagX()
		compareRegister(c, c.Y, c.readOperand(op, narrow), narrow)
		return 3
	}
}

func compareRegister(c *CPU, reg, val uint16, narrow bool) {
	if narrow {
		r := uint8(reg) - uint8(val)
		c.setFlag(FlagC, uint8(reg) >= uint8(val))
		c.setZN8(r)
		return
	}
	r := reg - val
	c.setFlag(FlagC, reg >= val)
	c.setZN16(r)
}

func and(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		val := c.readOperand(op, narrow)
		c.A = mergeWidth(c.A, c.A&val, narrow)
		logicFlags(c, c.A, narrow)
		return 4
	}
}
func ora(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		val := c.readOperand(op, narrow)
		c.A = mergeWidth(c.A, c.A|val, narrow)
		logicFlags(c, c.A, narrow)
		return 4
	}
}
func eor(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		val := c.readOperand(op, narrow)
		c.A = mergeWidth(c.A, c.A^val, narrow)
		logicFlags(c, c.A, narrow)
		return 4
	}
}

func logicFlags(c *CPU, a uint16, narrow bool) {
	if narrow {
		c.setZN8(uint8(a))
	} else {
		c.setZN16(a)
	}
}

func bitImm(c *CPU) uint64 {
	narrow := c.flagM()
	op := c.immOperand(narrow)
	val := c.readOperand(op, narrow)
	if narrow {
		c.setFlag(FlagZ, uint8(c.A)&uint8(val) == 0)
	} else {
		c.setFlag(FlagZ, c.A&val == 0)
	}
	return 2
}

func bit(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		val := c.readOperand(op, narrow)
		if narrow {
			c.setFlag(FlagZ, uint8(c.A)&uint8(val) == 0)
			c.setFlag(FlagN, val&0x80 != 0)
			c.setFlag(FlagV, val&0x40 != 0)
		} else {
			c.setFlag(FlagZ, c.A&val == 0)
			c.setFlag(FlagN, val&0x8000 != 0)
			c.setFlag(FlagV, val&0x4000 != 0)
		}
		return 4
	}
}

// tsb ORs the accumulator into memory, setting Z from the AND of the
// original memory value and A (N and the accumulator are left untouched).
func tsb(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		v := c.readOperand(op, narrow)
		if narrow {
			c.setFlag(FlagZ, uint8(v)&uint8(c.A) == 0)
			c.writeOperand(op, uint16(uint8(v)|uint8(c.A)), true)
		} else {
			c.setFlag(FlagZ, v&c.A == 0)
			c.writeOperand(op, v|c.A, false)
		}
		return 6
	}
}

// trb ANDs the complement of the accumulator into memory, setting Z the
// same way TSB does.
func trb(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		v := c.readOperand(op, narrow)
		if narrow {
			c.setFlag(FlagZ, uint8(v)&uint8(c.A) == 0)
			c.writeOperand(op, uint16(uint8(v)&^uint8(c.A)), true)
		} else {
			c.setFlag(FlagZ, v&c.A == 0)
			c.writeOperand(op, v&^c.A, false)
		}
		return 6
	}
}

// xba exchanges A's high and low bytes; flags are always set from the new
// low byte, regardless of the M flag.
func xba(c *CPU) uint64 {
	lo := uint8(c.A)
	hi := uint8(c.A >> 8)
	c.A = uint16(lo)<<8 | uint16(hi)
	c.setZN8(hi)
	return 3
}

// pea pushes an immediate 16-bit value, independent of the D register.
func pea(c *CPU) uint64 {
	c.pushWord(c.fetch16())
	return 5
}

// pei pushes the 16-bit value stored at the direct-page pointer.
func pei(c *CPU) uint64 {
	off := c.fetch8()
	ptr := c.D + uint16(off)
	c.pushWord(c.readWord(0, ptr))
	return 6
}

// per pushes PC plus a signed 16-bit relative offset, without branching.
func per(c *CPU) uint64 {
	offset := int16(c.fetch16())
	c.pushWord(uint16(int32(c.PC) + int32(offset)))
	return 6
}

func aslA(c *CPU) uint64 {
	narrow := c.flagM()
	if narrow {
		v := uint8(c.A)
		c.setFlag(FlagC, v&0x80 != 0)
		v <<= 1
		c.A = mergeWidth(c.A, uint16(v), true)
		c.setZN8(v)
	} else {
		c.setFlag(FlagC, c.A&0x8000 != 0)
		c.A <<= 1
		c.setZN16(c.A)
	}
	return 2
}
func asl(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		v := c.readOperand(op, narrow)
		if narrow {
			c.setFlag(FlagC, v&0x80 != 0)
			r := uint8(v) << 1
			c.writeOperand(op, uint16(r), true)
			c.setZN8(r)
		} else {
			c.setFlag(FlagC, v&0x8000 != 0)
			r := v << 1
			c.writeOperand(op, r, false)
			c.setZN16(r)
		}
		return 6
	}
}

func lsrA(c *CPU) uint64 {
	narrow := c.flagM()
	if narrow {
		v := uint8(c.A)
		c.setFlag(FlagC, v&0x01 != 0)
		v >>= 1
		c.A = mergeWidth(c.A, uint16(v), true)
		c.setZN8(v)
	} else {
		c.setFlag(FlagC, c.A&0x0001 != 0)
		c.A >>= 1
		c.setZN16(c.A)
	}
	return 2
}
func lsr(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		v := c.readOperand(op, narrow)
		if narrow {
			c.setFlag(FlagC, v&0x01 != 0)
			r := uint8(v) >> 1
			c.writeOperand(op, uint16(r), true)
			c.setZN8(r)
		} else {
			c.setFlag(FlagC, v&0x0001 != 0)
			r := v >> 1
			c.writeOperand(op, r, false)
			c.setZN16(r)
		}
		return 6
	}
}

func rolA(c *CPU) uint64 {
	narrow := c.flagM()
	oldC := c.getFlag(FlagC)
	if narrow {
		v := uint8(c.A)
		c.setFlag(FlagC, v&0x80 != 0)
		v <<= 1
		if oldC {
			v |= 1
		}
		c.A = mergeWidth(c.A, uint16(v), true)
		c.setZN8(v)
	} else {
		c.setFlag(FlagC, c.A&0x8000 != 0)
		c.A <<= 1
		if oldC {
			c.A |= 1
		}
		c.setZN16(c.A)
	}
	return 2
}
func rol(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		oldC := c.getFlag(FlagC)
		v := c.readOperand(op, narrow)
		if narrow {
			c.setFlag(FlagC, v&0x80 != 0)
			r := uint8(v) << 1
			if oldC {
				r |= 1
			}
			c.writeOperand(op, uint16(r), true)
			c.setZN8(r)
		} else {
			c.setFlag(FlagC, v&0x8000 != 0)
			r := v << 1
			if oldC {
				r |= 1
			}
			c.writeOperand(op, r, false)
			c.setZN16(r)
		}
		return 6
	}
}

func rorA(c *CPU) uint64 {
	narrow := c.flagM()
	oldC := c.getFlag(FlagC)
	if narrow {
		v := uint8(c.A)
		c.setFlag(FlagC, v&0x01 != 0)
		v >>= 1
		if oldC {
			v |= 0x80
		}
		c.A = mergeWidth(c.A, uint16(v), true)
		c.setZN8(v)
	} else {
		c.setFlag(FlagC, c.A&0x0001 != 0)
		c.A >>= 1
		if oldC {
			c.A |= 0x8000
		}
		c.setZN16(c.A)
	}
	return 2
}
func ror(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		oldC := c.getFlag(FlagC)
		v := c.readOperand(op, narrow)
		if narrow {
			c.setFlag(FlagC, v&0x01 != 0)
			r := uint8(v) >> 1
			if oldC {
				r |= 0x80
			}
			c.writeOperand(op, uint16(r), true)
			c.setZN8(r)
		} else {
			c.setFlag(FlagC, v&0x0001 != 0)
			r := v >> 1
			if oldC {
				r |= 0x8000
			}
			c.writeOperand(op, r, false)
			c.setZN16(r)
		}
		return 6
	}
}

func incDec(c *CPU, reg uint16, delta int16, narrow bool) uint16 {
	if narrow {
		r := uint8(reg) + uint8(delta)
		c.setZN8(r)
		return mergeWidth(reg, uint16(r), true)
	}
	r := reg + uint16(delta)
	c.setZN16(r)
	return r
}

func incA(c *CPU) uint64 { c.A = incDec(c, c.A, 1, c.flagM()); return 2 }
func decA(c *CPU) uint64 { c.A = incDec(c, c.A, -1, c.flagM()); return 2 }

func incMem(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		v := c.readOperand(op, narrow)
		r := incDec(c, v, 1, narrow)
		c.writeOperand(op, r, narrow)
		return 6
	}
}
func decMem(mode func(*CPU) operand) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		op := mode(c)
		narrow := c.flagM()
		v := c.readOperand(op, narrow)
		r := incDec(c, v, -1, narrow)
		c.writeOperand(op, r, narrow)
		return 6
	}
}

func transfer(c *CPU, src uint16, narrowDest bool) uint16 {
	if narrowDest {
		c.setZN8(uint8(src))
	} else {
		c.setZN16(src)
	}
	return src
}

func pushReg(c *CPU, v uint16, narrow bool) uint64 {
	if narrow {
		c.push8(uint8(v))
		return 3
	}
	c.push8(uint8(v >> 8))
	c.push8(uint8(v))
	return 4
}

func pullReg(c *CPU, old uint16, narrow bool) uint16 {
	if narrow {
		v := c.pop8()
		c.setZN8(v)
		return mergeWidth(old, uint16(v), true)
	}
	v := c.popWord()
	c.setZN16(v)
	return v
}

// forceEmulationWidths re-clears the high bytes of X/Y whenever REP/SEP
// sets the X flag, matching hardware behavior that 8-bit index registers
// always read back with a zeroed high byte.
func (c *CPU) forceEmulationWidths() {
	if c.flagX() {
		c.X &= 0x00FF
		c.Y &= 0x00FF
	}
}

func branch(cond func(*CPU) bool) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		offset := int8(c.fetch8())
		if !cond(c) {
			return 2
		}
		oldPC := c.PC
		c.PC = uint16(int32(c.PC) + int32(offset))
		if (oldPC & 0xFF00) != (c.PC & 0xFF00) {
			return 4
		}
		return 3
	}
}

func brl(c *CPU) uint64 {
	offset := int16(c.fetch16())
	c.PC = uint16(int32(c.PC) + int32(offset))
	return 4
}

// blockMove implements MVN (dir=-1, increments X/Y) and MVP (dir=1,
// decrements X/Y) per the 65C816's block-move semantics: each pass copies
// one byte, decrements A and sets DBR to the destination bank, and the
// instruction repeats via PC rewind while A != 0xFFFF.
func blockMove(dir int16) func(*CPU) uint64 {
	return func(c *CPU) uint64 {
		dstBank := c.fetch8()
		srcBank := c.fetch8()
		v := c.mem.Read(srcBank, c.X)
		c.mem.Write(dstBank, c.Y, v)
		if dir > 0 {
			c.X--
			c.Y--
		} else {
			c.X++
			c.Y++
		}
		c.A--
		c.DBR = dstBank
		if c.A != 0xFFFF {
			c.PC -= 3 // re-execute this instruction until the block is exhausted
		}
		return 7
	}
}
