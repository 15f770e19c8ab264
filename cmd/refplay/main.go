package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/refcount/control"
	"github.com/wippyai/refcount/ptr"
)

func main() {
	var (
		scriptFile  = flag.String("script", "", "Path to a command script (default: stdin)")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Log block lifecycle at debug level")
		budget      = flag.Uint64("budget", 0, "Byte budget for control blocks (0 = unlimited)")
	)
	flag.Parse()

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		control.SetLogger(logger.Named("control"))
		ptr.SetLogger(logger.Named("ptr"))
	}

	if *interactive || (*scriptFile == "" && term.IsTerminal(int(os.Stdin.Fd()))) {
		if err := runInteractive(uintptr(*budget)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*scriptFile, uintptr(*budget)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(scriptFile string, budget uintptr) error {
	var in io.Reader = os.Stdin
	if scriptFile != "" {
		f, err := os.Open(scriptFile)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		in = f
	}

	s := newSession(os.Stdout, budget)
	err := s.run(in)

	fmt.Println("--- end of script ---")
	if cerr := s.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
