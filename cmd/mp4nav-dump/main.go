// Command mp4nav-dump prints a summary of an MP4/QuickTime file's movie
// and track structure, adapted from the teacher's own dump tool: a thin
// demonstration of the library, not part of its public contract.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jenslar/mp4nav"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-samples] <file.mp4>\n", os.Args[0])
		flag.PrintDefaults()
	}
	showSamples := flag.Bool("samples", false, "also list every sample's offset and size")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *showSamples); err != nil {
		fmt.Fprintln(os.Stderr, "mp4nav-dump:", err)
		os.Exit(1)
	}
}

func run(path string, showSamples bool) error {
	f, err := mp4nav.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if brand, ok := f.MajorBrand(); ok {
		fmt.Printf("major brand:    %s\n", brand)
	}
	fmt.Printf("movie duration: %s\n", f.Duration())
	fmt.Printf("created:        %s\n", f.CreationTime().Format("2006-01-02T15:04:05Z"))
	if w, h, ok := f.Resolution(); ok {
		fmt.Printf("resolution:     %.0fx%.0f\n", w, h)
	}
	if fps, ok := f.FrameRate(); ok {
		fmt.Printf("frame rate:     %.3f fps\n", fps)
	}
	if vf, ok := f.VideoFormat(); ok {
		fmt.Printf("video format:   %s\n", vf)
	}
	if af, ok := f.AudioFormat(); ok {
		fmt.Printf("audio format:   %s\n", af)
	}
	if sr, ok := f.SampleRate(); ok {
		fmt.Printf("sample rate:    %d Hz\n", sr)
	}

	for _, tr := range f.Tracks() {
		fmt.Printf("\ntrack %d (%s, %q): %d samples, duration %s\n",
			tr.Attrs.ID, tr.Attrs.Subtype, tr.Attrs.ComponentName, tr.SampleCount(), tr.Attrs.Duration)

		if !showSamples {
			continue
		}
		for s := range tr.Samples() {
			fmt.Printf("  sample %-6d offset=%-10d size=%-8d decode=%-12s sync=%v\n",
				s.Index, s.Position, s.Size, s.DecodeTime, s.IsSync)
		}
	}
	return nil
}
