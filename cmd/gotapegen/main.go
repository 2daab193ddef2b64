package main

import (
	"flag"
	"log"
)

var (
	entry  = "Observe"
	prefix = "_"
)

func init() {
	flag.Usage = func() {
		log.Printf(`Differentiating a gotape model:
	gotapegen [OPTIONS] MODELPATH` + "\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&entry, "entry", entry,
		"name of the method identifying the model, func([]float64) float64")
	flag.StringVar(&prefix, "prefix", prefix,
		"prefix reserved for generated identifiers")
	log.SetFlags(0)
}

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("expected exactly one positional argument, the model's package path")
	}

	if err := Deriv(flag.Arg(0), entry, prefix); err != nil {
		log.Fatalf("%v", err)
	}
}
