package main

import (
	"fmt"
	"time"

	flag "github.com/spf13/pflag"
)

var (
	flagPreset        string
	flagLayout        string
	flagCorner        string
	flagInsetScale    float64
	flagRatio         float64
	flagDuration      time.Duration
	flagOutputDir     string
	flagNoPassthrough bool
	flagLogLevel      string
	flagHelp          bool
	flagVersion       bool
)

func init() {
	flag.StringVarP(&flagPreset, "preset", "p", "720p", "Composed output preset (720p, 1080p, 4k)")
	flag.StringVarP(&flagLayout, "layout", "l", "sbs", "Composition layout (sbs, pip, primary)")
	flag.StringVarP(&flagCorner, "corner", "c", "bottom-right", "Inset corner for pip layout")
	flag.Float64VarP(&flagInsetScale, "inset-scale", "", 0.25, "Inset size as a fraction of output width")
	flag.Float64VarP(&flagRatio, "ratio", "", 0.7, "Primary region width fraction for primary layout")
	flag.DurationVarP(&flagDuration, "duration", "d", 5*time.Second, "Recording length")
	flag.StringVarP(&flagOutputDir, "output-dir", "o", ".", "Directory for segment files")
	flag.BoolVarP(&flagNoPassthrough, "no-passthrough", "", false, "Record only the composed output")
	flag.StringVarP(&flagLogLevel, "log-level", "", "warning", "Log verbosity (debug, info, warning, error)")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Dual-camera recording pipeline daemon

Usage: dualcamd [OPTION]...

Session:
  -p, --preset=NAME      Composed output preset: 720p, 1080p, 4k (default: 720p)
  -d, --duration=DUR     Recording length (default: 5s)
  -o, --output-dir=DIR   Directory for segment files (default: .)
      --no-passthrough   Record only the composed output

Layout:
  -l, --layout=NAME      Composition layout: sbs, pip, primary (default: sbs)
  -c, --corner=NAME      Inset corner for pip: top-left, top-right,
                           bottom-left, bottom-right (default: bottom-right)
      --inset-scale=NUM  Inset size as a fraction of output width (default: 0.25)
      --ratio=NUM        Primary region width fraction (default: 0.7)

Miscellaneous:
      --log-level=NAME   Log verbosity (default: warning)
  -h, --help             Prints this help message and exits
  -v, --version          Prints version information and exits`

// Help information is printed and program exits
func help() {
	fmt.Println(helpString)
}
