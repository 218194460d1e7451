// Command dsn searches operating points for analog blocks and inspects
// small-signal netlists.
//
//	dsn design -config amp.yaml [-block name] [-bode out.png] [-v]
//	dsn tf [-bode out.png] netlist.cir
//	dsn blocks
package main

import (
	"fmt"
	"log"
	"os"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  %s design -config file.yaml [-block name] [-bode out.png] [-v]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s tf [-bode out.png] netlist.cir\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s blocks\n", os.Args[0])
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "design":
		err = runDesign(os.Args[2:])
	case "tf":
		err = runTF(os.Args[2:])
	case "blocks":
		for _, name := range blockNames() {
			fmt.Println(name)
		}
	case "-h", "-help", "--help", "help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}
