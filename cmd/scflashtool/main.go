package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/alecthomas/kong"

	"github.com/davidgfnet/superfw-nds-flasher-tool/supercard"
)

const (
	AppVersion = "0.1.0"
)

// Quick way to fail on error, since most commands are "doing" something
// on behalf of something else.
func fatalIfErr(subject string, doing string, err error) {
	if err != nil {
		log.Fatalf("%s - Couldn't %s: %s", subject, doing, err)
	}
}

// Every device-facing command talks to the cart either over the serial
// console link or against a file-backed simulated cart (dry runs).
type busArgs struct {
	Port string `help:"Serial port of the console link stub (use 'any' for the first USB serial port)" default:"any"`
	Sim  string `type:"path" help:"Use a simulated cartridge backed by this file instead of hardware"`
}

// open returns the bus and a finish function that persists simulated
// contents (or closes the link).
func (b *busArgs) open() (supercard.Bus, func()) {
	if b.Sim != "" {
		sim := supercard.NewSimCart()
		data, err := os.ReadFile(b.Sim)
		if err == nil {
			sim.LoadImage(data)
		} else if !os.IsNotExist(err) {
			fatalIfErr(b.Sim, "read simulated cart file", err)
		}
		log.Printf("Using simulated cartridge backed by %s\n", b.Sim)
		return sim, func() {
			err := os.WriteFile(b.Sim, sim.Bytes(), 0660)
			fatalIfErr(b.Sim, "save simulated cart file", err)
		}
	}
	link, err := supercard.ConnectLink(b.Port)
	fatalIfErr(b.Port, "connect to the console link", err)
	log.Printf("Connected to console link on %s\n", b.Port)
	return link, func() { link.Close() }
}

// **********************************
// *       DEVICE COMMANDS          *
// **********************************

type IdentifyCmd struct {
	busArgs
}

func (c *IdentifyCmd) Run() error {
	bus, finish := c.open()
	defer finish()
	session := supercard.NewSession(bus)
	rep, err := session.Identify()
	fatalIfErr("identify", "identify the cart", err)
	log.Printf("Identified flash device ID as %08x\n", rep.DeviceID)
	if rep.Recognized {
		log.Printf("Identified the firmware as %s\n", rep.Firmware)
	} else if !rep.ValidHeader {
		log.Printf("Invalid firmware header detected!\n")
	} else {
		log.Printf("Unknown firmware detected!\n")
	}
	PrintJson(rep)
	return nil
}

type SramTestCmd struct {
	busArgs
}

func (c *SramTestCmd) Run() error {
	bus, finish := c.open()
	defer finish()
	ctrl := supercard.NewController(bus)
	numerrs, err := ctrl.TestSRAM()
	fatalIfErr("sramtest", "run the SRAM check", err)
	result := make(map[string]interface{})
	result["Mismatches"] = numerrs
	result["Passed"] = numerrs == 0
	PrintJson(result)
	if numerrs > 0 {
		return fmt.Errorf("SRAM check failed with %d diffs", numerrs)
	}
	log.Printf("SRAM integrity check passed!\n")
	return nil
}

// **********************************
// *        FLASH COMMANDS          *
// **********************************

type DumpCmd struct {
	busArgs
	Outfile string `type:"path" short:"o" help:"Where to save the raw flash dump"`
}

func (c *DumpCmd) Run() error {
	if c.Outfile == "" {
		c.Outfile = fmt.Sprintf("sc_flash_dump_%s.bin", FileSafeDateTime())
	}
	bus, finish := c.open()
	defer finish()
	session := supercard.NewSession(bus)
	log.Printf("Starting dump ...\n")
	data, err := session.Dump()
	fatalIfErr("dump", "read the flash contents", err)
	err = os.WriteFile(c.Outfile, data, 0660)
	fatalIfErr(c.Outfile, "write dump file", err)
	log.Printf("Dump complete!\n")
	result := make(map[string]interface{})
	result["Filename"] = c.Outfile
	result["Size"] = len(data)
	result["Fingerprint"] = supercard.FingerprintOf(data).String()
	if name, ok := supercard.IdentifyImage(data); ok {
		result["Firmware"] = name
	}
	PrintJson(result)
	return nil
}

type EraseCmd struct {
	busArgs
}

func (c *EraseCmd) Run() error {
	bus, finish := c.open()
	defer finish()
	ctrl := supercard.NewController(bus)
	log.Printf("Erasing flash chip ...\n")
	err := ctrl.Erase()
	fatalIfErr("erase", "erase the flash chip", err)
	dirty, err := ctrl.EraseVerify()
	fatalIfErr("erase", "verify the erase", err)
	if dirty {
		return fmt.Errorf("erase validation failed, the chip still holds data")
	}
	log.Printf("Erase operation complete\n")
	return nil
}

type WriteCmd struct {
	busArgs
	Infile string `arg:"" type:"existingfile" help:"Firmware image to flash (.bin or .hex)"`
	Force  bool   `help:"Flash even if the image header does not validate"`
}

func (c *WriteCmd) Run() error {
	image, err := supercard.LoadFirmwareImage(c.Infile)
	fatalIfErr(c.Infile, "load firmware image", err)
	sum := supercard.Sha256Sum(image)
	log.Printf("File loaded (%d bytes) with hash %s\n", len(image), hex.EncodeToString(sum[:8]))

	if !supercard.ValidHeader(image) {
		if !c.Force {
			log.Fatalf("Invalid firmware file detected (invalid header). Use --force to flash anyway.")
		}
		log.Printf("Header does not validate, flashing anyway as requested\n")
	} else {
		log.Printf("Looks like a valid GBA rom/firmware\n")
	}

	bus, finish := c.open()
	defer finish()
	session := supercard.NewSession(bus)

	log.Printf("Erasing flash chip ...\n")
	rep := session.Flash(image)
	if rep.Programmed {
		log.Printf("Firmware flashed successfully!\n")
	}
	if rep.Verified {
		log.Printf("Validation passed!\n")
	}
	PrintJson(rep)
	if !rep.Success() {
		if rep.Err != nil {
			return fmt.Errorf("flashing failed: %w", rep.Err)
		}
		return fmt.Errorf("flashing failed, see the stage report")
	}
	return nil
}

type VerifyCmd struct {
	busArgs
	Infile string `arg:"" type:"existingfile" help:"Image to compare the flash contents against"`
}

func (c *VerifyCmd) Run() error {
	image, err := supercard.LoadFirmwareImage(c.Infile)
	fatalIfErr(c.Infile, "load firmware image", err)
	bus, finish := c.open()
	defer finish()
	session := supercard.NewSession(bus)
	ok, err := session.Verify(image)
	fatalIfErr("verify", "read back the flash contents", err)
	result := make(map[string]interface{})
	result["Matches"] = ok
	PrintJson(result)
	if !ok {
		return fmt.Errorf("flash contents do not match %s", c.Infile)
	}
	return nil
}

// **********************************
// *        IMAGE COMMANDS          *
// **********************************

type HashCmd struct {
	Infile string `arg:"" type:"existingfile" help:"File to fingerprint"`
}

func (c *HashCmd) Run() error {
	image, err := supercard.LoadFirmwareImage(c.Infile)
	fatalIfErr(c.Infile, "load firmware image", err)
	sum := supercard.Sha256Sum(image)
	result := make(map[string]interface{})
	result["Size"] = len(image)
	result["Sha256"] = hex.EncodeToString(sum[:])
	result["Fingerprint"] = supercard.FingerprintOf(image).String()
	PrintJson(result)
	return nil
}

type ValidateCmd struct {
	Infile string `arg:"" type:"existingfile" help:"Firmware image to validate"`
}

func (c *ValidateCmd) Run() error {
	image, err := supercard.LoadFirmwareImage(c.Infile)
	fatalIfErr(c.Infile, "load firmware image", err)
	valid := supercard.ValidHeader(image)
	result := make(map[string]interface{})
	result["ValidHeader"] = valid
	PrintJson(result)
	if !valid {
		return fmt.Errorf("invalid firmware header")
	}
	return nil
}

type ImageIdentifyCmd struct {
	Infile string `arg:"" type:"existingfile" help:"Firmware image to look up"`
}

func (c *ImageIdentifyCmd) Run() error {
	image, err := supercard.LoadFirmwareImage(c.Infile)
	fatalIfErr(c.Infile, "load firmware image", err)
	result := make(map[string]interface{})
	name, ok := supercard.IdentifyImage(image)
	result["Recognized"] = ok
	if ok {
		result["Firmware"] = name
	}
	result["ValidHeader"] = supercard.ValidHeader(image)
	PrintJson(result)
	return nil
}

type Hex2BinCmd struct {
	Infile  string `arg:"" type:"existingfile" help:"Intel HEX file to convert"`
	Outfile string `type:"path" short:"o" help:"Where to save the binary"`
}

func (c *Hex2BinCmd) Run() error {
	if c.Outfile == "" {
		c.Outfile = fmt.Sprintf("firmware_%s.bin", FileSafeDateTime())
	}
	image, err := supercard.LoadFirmwareImage(c.Infile)
	fatalIfErr(c.Infile, "load hex image", err)
	err = os.WriteFile(c.Outfile, image, 0660)
	fatalIfErr(c.Outfile, "write binary", err)
	result := make(map[string]interface{})
	result["Filename"] = c.Outfile
	result["Size"] = len(image)
	PrintJson(result)
	return nil
}

// **********************************
// *    ALL TOGETHER COMMANDS       *
// **********************************

var cli struct {
	Device struct {
		Identify IdentifyCmd `cmd:"" help:"Read the flash device ID and fingerprint the current firmware"`
		Sramtest SramTestCmd `cmd:"" help:"Run an SRAM integrity check on the cart"`
	} `cmd:"" help:"Commands which inspect the cartridge itself"`
	Flash struct {
		Dump   DumpCmd   `cmd:"" help:"Dump the full 512KiB flash contents to a file"`
		Write  WriteCmd  `cmd:"" help:"Erase, program and verify a firmware image"`
		Erase  EraseCmd  `cmd:"" help:"Perform (and verify) a full chip erase"`
		Verify VerifyCmd `cmd:"" help:"Compare the flash contents against an image file"`
	} `cmd:"" help:"Commands which operate on the firmware flash chip"`
	Image struct {
		Hash     HashCmd          `cmd:"" help:"Print the SHA256 and fingerprint of an image file"`
		Validate ValidateCmd      `cmd:"" help:"Check an image's header (boot logo + checksum)"`
		Identify ImageIdentifyCmd `cmd:"" help:"Look an image up in the known firmware table"`
		Hex2Bin  Hex2BinCmd       `cmd:"" help:"Convert an Intel HEX image to raw binary" name:"hex2bin"`
	} `cmd:"" help:"Commands which work on firmware image files"`
	Known   string           `type:"existingfile" help:"TOML file with extra known-firmware fingerprints"`
	Version kong.VersionFlag `help:"Show version information"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("scflashtool"),
		kong.ShortUsageOnError(),
		kong.Description("SuperCard firmware flashing tool"),
		kong.Vars{
			"version": AppVersion,
		},
	)
	if cli.Known != "" {
		data, err := os.ReadFile(cli.Known)
		fatalIfErr(cli.Known, "read known firmware list", err)
		added, err := supercard.LoadKnownImages(data)
		fatalIfErr(cli.Known, "parse known firmware list", err)
		log.Printf("Loaded %d extra known firmware entries\n", added)
	}
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
