// Command gfxinfo lists the available gfxcore backends and the format
// support the chosen backend reports.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfxcore"
	"github.com/gogpu/gfxcore/backend"
	"github.com/gogpu/gfxcore/format"

	_ "github.com/gogpu/gfxcore/backend/software"
	_ "github.com/gogpu/gfxcore/backend/wgpu"
)

func main() {
	var (
		name    = flag.String("backend", "", "backend to initialize (default: best available)")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		gfxcore.SetLogger(logger)
	}

	fmt.Println("Registered backends:")
	for _, n := range backend.Available() {
		fmt.Printf("  %s\n", n)
	}

	var (
		drv backend.Driver
		err error
	)
	if *name != "" {
		drv = backend.Get(*name)
		if drv == nil {
			log.Fatalf("backend %q is not registered", *name)
		}
		err = drv.Init()
	} else {
		drv, err = backend.InitDefault()
	}
	if err != nil {
		log.Fatalf("backend init: %v", err)
	}
	defer drv.Close()

	fmt.Printf("\nUsing backend: %s\n", drv.Name())

	dev := drv.Device()
	table := format.NewTable(dev.FormatFeatures)

	fmt.Println("\nFormat support:")
	for _, f := range []gputypes.TextureFormat{
		gputypes.TextureFormatR8Unorm,
		gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatR32Float,
		gputypes.TextureFormatRG32Float,
		gputypes.TextureFormatRGBA32Float,
		gputypes.TextureFormatDepth24PlusStencil8,
	} {
		desc := format.Describe(f)
		if desc.IsEmpty() {
			continue
		}
		feats := table.Support(desc)
		if feats == 0 {
			fmt.Printf("  %-24v unsupported\n", f)
			continue
		}
		fmt.Printf("  %-24v %s\n", f, featureString(feats))
	}
}

func featureString(f format.Features) string {
	names := []struct {
		bit  format.Features
		name string
	}{
		{format.SampledImage, "sampled"},
		{format.SampledImageLinear, "linear"},
		{format.StorageImage, "storage"},
		{format.Attachment, "attachment"},
		{format.AttachmentBlend, "blend"},
		{format.VertexBuffer, "vertex"},
	}
	s := ""
	for _, n := range names {
		if f.Contains(n.bit) {
			if s != "" {
				s += " "
			}
			s += n.name
		}
	}
	return s
}
