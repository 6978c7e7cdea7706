package cartridge

import "testing"

// buildLoROM assembles a minimal 32KB LoROM image with a header plausible
// enough to win Load's LoROM-vs-HiROM scoring heuristic, and places a
// reset vector plus one opcode byte at the given bank-relative address.
func buildLoROM(resetVector uint16, opcodeAddr uint16, opcode byte) []byte {
	rom := make([]byte, 0x8000)

	block := rom[headerSizeLoROM : headerSizeLoROM+headerBlockLen]
	copy(block[0:21], "TEST ROM")
	block[23] = 8   // ROMSizeExp, plausible range
	block[24] = 1   // SRAMSizeExp
	block[28] = 0xCB
	block[29] = 0xED // checksum complement = ^0x1234
	block[30] = 0x34
	block[31] = 0x12 // checksum = 0x1234

	if opcodeAddr >= 0x8000 {
		rom[opcodeAddr-0x8000] = opcode
	}
	if resetVector >= 0x8000 {
		lo := byte(resetVector)
		hi := byte(resetVector >> 8)
		rom[0xFFFC-0x8000] = lo
		rom[0xFFFD-0x8000] = hi
	}
	return rom
}

func TestLoad_PicksLoROMForASmallPlausibleHeader(t *testing.T) {
	rom := buildLoROM(0x8000, 0x8000, 0xEA)

	cart, err := Load(rom)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	hdr := cart.Header()
	if hdr.Mapper != LoROM {
		t.Fatalf("Mapper = %v, want LoROM", hdr.Mapper)
	}
	if hdr.Title != "TEST ROM" {
		t.Fatalf("Title = %q, want %q", hdr.Title, "TEST ROM")
	}
	if hdr.SRAMSizeExp != 1 {
		t.Fatalf("SRAMSizeExp = %d, want 1", hdr.SRAMSizeExp)
	}
	if cart.SRAMSize() != 1024<<1 {
		t.Fatalf("SRAMSize = %d, want %d", cart.SRAMSize(), 1024<<1)
	}
}

func TestLoad_RejectsUndersizedROM(t *testing.T) {
	_, err := Load(make([]byte, 100))
	if err == nil {
		t.Fatal("expected an error for an undersized ROM")
	}
}

func TestLoad_RejectsAllZeroHeader(t *testing.T) {
	_, err := Load(make([]byte, 0x8000))
	if err == nil {
		t.Fatal("expected an error when no plausible header is found")
	}
}

func TestLoad_StripsCopierHeader(t *testing.T) {
	rom := buildLoROM(0x8000, 0x8000, 0xEA)
	withCopier := append(make([]byte, 512), rom...)

	cart, err := Load(withCopier)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := cart.Read(0x00, 0x8000); got != 0xEA {
		t.Fatalf("Read at reset vector target = %#02x, want 0xEA", got)
	}
}

func TestLoROM_ReadWriteAddressing(t *testing.T) {
	rom := buildLoROM(0x8000, 0x8000, 0xEA)
	cart, err := Load(rom)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if got := cart.Read(0x00, 0x8000); got != 0xEA {
		t.Fatalf("bank 0 addr 0x8000 = %#02x, want 0xEA", got)
	}
	// Mirrored bank 0x80 should read the same ROM byte.
	if got := cart.Read(0x80, 0x8000); got != 0xEA {
		t.Fatalf("mirrored bank 0x80 addr 0x8000 = %#02x, want 0xEA", got)
	}
}

func TestLoROM_SRAMReadWriteAndPersistence(t *testing.T) {
	rom := buildLoROM(0x8000, 0x8000, 0xEA)
	cart, err := Load(rom)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	cart.Write(0x70, 0x0000, 0x55)
	if got := cart.Read(0x70, 0x0000); got != 0x55 {
		t.Fatalf("SRAM readback = %#02x, want 0x55", got)
	}

	snap := cart.ReadSRAM()
	cart2, _ := Load(rom)
	cart2.LoadSRAM(snap)
	if got := cart2.Read(0x70, 0x0000); got != 0x55 {
		t.Fatalf("SRAM after LoadSRAM = %#02x, want 0x55", got)
	}
}

func TestWrite_ToROMSpaceIsIgnored(t *testing.T) {
	rom := buildLoROM(0x8000, 0x8000, 0xEA)
	cart, err := Load(rom)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	cart.Write(0x00, 0x8000, 0xFF)
	if got := cart.Read(0x00, 0x8000); got != 0xEA {
		t.Fatalf("ROM byte changed after write: %#02x, want unchanged 0xEA", got)
	}
}
