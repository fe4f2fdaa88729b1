// Command fsinspect mounts a FAT32 disk image file and lets an operator
// inspect it from the command line: list directories, cat files, count the
// root directory's entries, and run consistency checks against the MBR.
//
// It is the batch-mode, scriptable equivalent of the retained kernel's
// interactive serial shell (out of this module's scope per spec.md §1) —
// useful for exercising fs/vfat end to end without a serial console.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/armcore/kernelcore/blockdev"
	"github.com/armcore/kernelcore/fs/mbr"
	"github.com/armcore/kernelcore/fs/vfat"
	"github.com/armcore/kernelcore/utilities/compression"
	"github.com/urfave/cli/v2"
)

const defaultSectorSize = 512

func main() {
	app := &cli.App{
		Name:  "fsinspect",
		Usage: "inspect a FAT32 disk image without booting the kernel",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "gunzip",
				Usage: "the image file is RLE8+gzip compressed (see utilities/compression); decompress before mounting",
			},
			&cli.Uint64Flag{
				Name:  "sector-size",
				Usage: "physical sector size of the underlying block device",
				Value: defaultSectorSize,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "mount the volume and print its root directory's entry count (no geometry is printed)",
				ArgsUsage: "IMAGE",
				Action:    runInfo,
			},
			{
				Name:      "ls",
				Usage:     "list a directory's entries",
				ArgsUsage: "IMAGE PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Value: "table", Usage: "table|csv"},
				},
				Action: runLs,
			},
			{
				Name:      "cat",
				Usage:     "print a file's contents to stdout",
				ArgsUsage: "IMAGE PATH",
				Action:    runCat,
			},
			{
				Name:      "stat",
				Usage:     "print one entry's metadata",
				ArgsUsage: "IMAGE PATH",
				Action:    runStat,
			},
			{
				Name:      "fsck",
				Usage:     "validate the image's MBR, reporting every problem found instead of just the first",
				ArgsUsage: "IMAGE",
				Action:    runFsck,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fsinspect: %s", err)
	}
}

// openDevice reads the image named by the command's first argument,
// optionally decompressing it first, and wraps it as a blockdev.Device.
func openDevice(c *cli.Context, argIndex int) (blockdev.Device, error) {
	path := c.Args().Get(argIndex)
	if path == "" {
		return nil, fmt.Errorf("missing IMAGE argument")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var raw []byte
	if c.Bool("gunzip") {
		raw, err = compression.DecompressImageToBytes(f)
		if err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", path, err)
		}
	} else {
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	return blockdev.NewSliceDevice(raw, c.Uint64("sector-size"))
}

func mountVolume(c *cli.Context, argIndex int) (*vfat.FS, error) {
	device, err := openDevice(c, argIndex)
	if err != nil {
		return nil, err
	}
	return vfat.Mount(device)
}

func runInfo(c *cli.Context) error {
	fs, err := mountVolume(c, 0)
	if err != nil {
		return err
	}

	root, err := fs.Open("/")
	if err != nil {
		return err
	}
	dir, _ := root.AsDir()
	entries, err := dir.Entries()
	if err != nil {
		return err
	}
	fmt.Printf("root directory: %d entries\n", len(entries))
	return nil
}

// dirRow is one line of `ls --format csv` output, tagged for gocsv the
// same way the teacher's disks.DiskGeometry struct is.
type dirRow struct {
	Name  string `csv:"name"`
	IsDir bool   `csv:"is_dir"`
	Size  int64  `csv:"size_bytes"`
}

func runLs(c *cli.Context) error {
	fs, err := mountVolume(c, 0)
	if err != nil {
		return err
	}

	entry, err := fs.Open(pathArgOrRoot(c, 1))
	if err != nil {
		return err
	}
	dir, ok := entry.AsDir()
	if !ok {
		return fmt.Errorf("%s is not a directory", c.Args().Get(1))
	}

	entries, err := dir.Entries()
	if err != nil {
		return err
	}

	rows := make([]*dirRow, len(entries))
	for i, e := range entries {
		row := &dirRow{Name: e.Name(), IsDir: e.Metadata().IsDir()}
		if f, ok := e.AsFile(); ok {
			row.Size = f.Size()
		}
		rows[i] = row
	}

	switch c.String("format") {
	case "csv":
		out, err := gocsvMarshal(rows)
		if err != nil {
			return err
		}
		fmt.Print(out)
	default:
		for _, row := range rows {
			kind := "file"
			if row.IsDir {
				kind = "dir"
			}
			fmt.Printf("%-6s %10d  %s\n", kind, row.Size, row.Name)
		}
	}
	return nil
}

func runCat(c *cli.Context) error {
	fs, err := mountVolume(c, 0)
	if err != nil {
		return err
	}

	entry, err := fs.Open(c.Args().Get(1))
	if err != nil {
		return err
	}
	file, ok := entry.AsFile()
	if !ok {
		return fmt.Errorf("%s is a directory", c.Args().Get(1))
	}

	buf := make([]byte, 4096)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return nil
}

func runStat(c *cli.Context) error {
	fs, err := mountVolume(c, 0)
	if err != nil {
		return err
	}

	entry, err := fs.Open(c.Args().Get(1))
	if err != nil {
		return err
	}

	meta := entry.Metadata()
	fmt.Printf("name:       %s\n", entry.Name())
	fmt.Printf("directory:  %v\n", meta.IsDir())
	fmt.Printf("read-only:  %v\n", meta.ReadOnly())
	fmt.Printf("hidden:     %v\n", meta.Hidden())
	if file, ok := entry.AsFile(); ok {
		fmt.Printf("size:       %d bytes\n", file.Size())
	}
	return nil
}

func runFsck(c *cli.Context) error {
	device, err := openDevice(c, 0)
	if err != nil {
		return err
	}

	buf := make([]byte, device.SectorSize())
	if _, err := device.ReadSector(0, buf); err != nil {
		return err
	}

	if _, err := mbr.ValidateAll(buf); err != nil {
		fmt.Println(err)
		return cli.Exit("fsck found problems", 1)
	}

	fmt.Println("MBR: OK")
	return nil
}

func pathArgOrRoot(c *cli.Context, index int) string {
	if p := c.Args().Get(index); p != "" {
		return p
	}
	return "/"
}
