package main

import (
	"flag"
	"log"
	"os"
)

const versionString = "coatlc 0.1.0"

func main() {
	verbose := flag.Bool("v", VerboseMode, "verbose mode")
	output := flag.String("o", "", "output file")
	entry := flag.String("entry", DefaultEntrySymbol, "linker entry symbol")
	version := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *version {
		log.Println(versionString)
		os.Exit(0)
	}

	ctx := &CommandContext{
		Verbose:     *verbose,
		OutputPath:  *output,
		EntrySymbol: *entry,
	}

	if err := RunCLI(flag.Args(), ctx); err != nil {
		log.Fatalln(err)
	}
}
