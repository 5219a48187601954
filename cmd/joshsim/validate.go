package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/SchmidtDSE/josh/internal/core"
	"github.com/SchmidtDSE/josh/internal/primitives"
)

// declarationFile is the YAML shape `joshsim validate` checks: entity
// names and their initial attribute values, rendered as "<magnitude>
// <units>" strings. Handlers come from the compiled program pipeline and
// are not expressible in this file; validate exercises the schema
// construction path only.
type declarationFile struct {
	Entities []entityDeclaration `yaml:"entities"`
}

type entityDeclaration struct {
	Name    string            `yaml:"name"`
	Initial map[string]string `yaml:"initial"`
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <declarations.yaml>",
		Short: "Build entity schemas from a declaration file and report errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateDeclarations(cmd, args[0])
		},
	}
}

func validateDeclarations(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var file declarationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("yaml unmarshal: %w", err)
	}
	if len(file.Entities) == 0 {
		return fmt.Errorf("%s declares no entities", path)
	}

	failed := 0
	for _, decl := range file.Entities {
		cfg := primitives.NewEntityConfig(decl.Name)
		declErr := error(nil)
		for attr, raw := range decl.Initial {
			value, err := parseDeclaredValue(raw)
			if err != nil {
				declErr = fmt.Errorf("attribute %q: %w", attr, err)
				break
			}
			cfg.WithInitial(attr, value)
		}
		if declErr == nil {
			_, declErr = core.BuildSchema(cfg)
		}
		if declErr != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", decl.Name, declErr)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK   %s (%d attributes)\n", decl.Name, len(decl.Initial))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d entities failed validation", failed, len(file.Entities))
	}
	return nil
}

// parseDeclaredValue reads "3.5 m", "42 count", "true", or a bare string.
func parseDeclaredValue(raw string) (primitives.Value, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return primitives.Empty, fmt.Errorf("empty value")
	}
	switch trimmed {
	case "true":
		return primitives.NewBool(true), nil
	case "false":
		return primitives.NewBool(false), nil
	}

	fields := strings.Fields(trimmed)
	units := primitives.Unitless
	if len(fields) > 1 {
		units = primitives.Tag(strings.Join(fields[1:], " "))
	}
	if v, err := primitives.ParseNumber(fields[0], units); err == nil {
		return v, nil
	}
	return primitives.NewString(trimmed, primitives.Unitless), nil
}
