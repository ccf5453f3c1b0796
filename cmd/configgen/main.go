package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/Syriven/netvend/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("configgen", pflag.ContinueOnError)
	kind := flagSet.String("kind", "server", "config kind: server|client")
	output := flagSet.StringP("output", "o", "", "output path for config template")
	validate := flagSet.Bool("validate", false, "validate an existing server config file")
	input := flagSet.String("input", "netvendd.toml", "config path for validation")
	force := flagSet.BoolP("force", "f", false, "overwrite existing config file")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if *validate {
		if _, err := config.LoadServerConfig(*input); err != nil {
			return err
		}
		fmt.Printf("Validated server config at %s\n", *input)
		return nil
	}

	target := *output
	if target == "" {
		switch *kind {
		case "server":
			target = "netvendd.toml"
		case "client":
			target = "netvend.toml"
		default:
			return fmt.Errorf("unknown kind: %s", *kind)
		}
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		return err
	}
	fmt.Printf("Wrote %s config template to %s\n", *kind, target)
	return nil
}
