// Package main implements a headless command-line driver for the snescore
// core: load a ROM, report its header, run a fixed number of frames, and
// optionally write out a save-state blob. The windowing/audio host
// frontend is explicitly out of scope for this module (spec §1); this
// binary exists to exercise the core end-to-end, not to play games.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"snescore/internal/emulator"
	"snescore/internal/version"
)

func main() {
	var (
		romPath    = flag.String("rom", "", "path to a SNES ROM image")
		frames     = flag.Int("frames", 60, "number of frames to run")
		saveTo     = flag.String("save-state", "", "write a save-state blob to this path after running")
		debug      = flag.Bool("debug", false, "enable debug logging")
		showVer    = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version.GetBuildInfo())
		return
	}

	if *romPath == "" {
		fmt.Fprintln(os.Stderr, "usage: snescore -rom <file> [-frames N] [-save-state path]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read ROM: %v", err)
	}

	emu := emulator.New(emulator.Options{Debug: *debug})
	if err := emu.LoadROM(data); err != nil {
		log.Fatalf("load ROM: %v", err)
	}

	info := emu.ROMInfo()
	fmt.Printf("loaded %q (%s, SRAM %d bytes)\n", info.Title, info.Mapper, info.SRAMSize)

	for i := 0; i < *frames; i++ {
		emu.StepFrame()
	}
	fmt.Printf("ran %d frames\n", *frames)

	samples := emu.AudioDrain()
	fmt.Printf("drained %d audio samples\n", len(samples)/2)

	if *saveTo != "" {
		blob, err := emu.SaveState()
		if err != nil {
			log.Fatalf("save state: %v", err)
		}
		if err := os.WriteFile(*saveTo, blob, 0o644); err != nil {
			log.Fatalf("write save state: %v", err)
		}
		fmt.Printf("wrote save state to %s (%d bytes)\n", *saveTo, len(blob))
	}
}
