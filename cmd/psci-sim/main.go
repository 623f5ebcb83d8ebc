package main

import (
	"log"
	"os"

	"github.com/coreward/psci/cmd/psci-sim/flag"
	"github.com/coreward/psci/cmd/psci-sim/sim"
)

func main() {
	args, err := flag.ParseArgs(os.Args)
	if err != nil {
		log.Fatal(err)
	}

	if err := sim.Run(args.Name, args.Backend); err != nil {
		log.Fatal(err)
	}
}
