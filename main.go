package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"wdbg/debugger"
	"wdbg/ui"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] <command> [args...]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nStarts <command> under the debugger in a new console.\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	defer glog.Flush()

	if flag.NArg() == 0 {
		flag.Usage()
		return
	}

	if err := run(flag.Args()); err != nil {
		ui.LogError("%v", err)
		glog.Flush()
		os.Exit(1)
	}
}

func run(argv []string) error {
	s, err := debugger.Launch(argv)
	if err != nil {
		return err
	}
	return s.Run()
}
