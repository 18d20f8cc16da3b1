package main

import (
	"flag"
	"log"

	"github.com/danmuck/strokectl/internal/config"
)

func main() {
	kindFlag := flag.String("kind", "bridge", "config kind: bridge|controller")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	kind, err := config.ParseKind(*kindFlag)
	if err != nil {
		log.Fatal(err)
	}

	if *validate {
		path := *input
		if path == "" {
			path = config.DefaultPath(kind)
		}
		if err := config.Validate(path, kind); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", kind, path)
		return
	}

	target := *output
	if target == "" {
		target = config.DefaultPath(kind)
	}
	if err := config.WriteTemplate(target, kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", kind, target)
}
