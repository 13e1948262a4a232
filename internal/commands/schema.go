package commands

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dotcommander/taskbrew/internal/output"
)

// NewSchemaCmd emits a JSON description of every command and its flags so
// agents can drive the CLI as a tool without hardcoded knowledge.
func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the CLI surface as JSON argument schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas := make([]commandSchema, 0)
			collectSchemas(cmd.Root(), &schemas)
			return output.PrintSuccess(schemas)
		},
	}
}

type commandSchema struct {
	Command     string         `json:"command"`
	Description string         `json:"description,omitempty"`
	Args        map[string]any `json:"args_schema"`
}

func collectSchemas(cmd *cobra.Command, out *[]commandSchema) {
	name := cmd.Name()
	if name != "" && name != "taskbrew" && name != "schema" && !cmd.Hidden && cmd.Runnable() {
		*out = append(*out, schemaFor(cmd))
	}
	for _, child := range cmd.Commands() {
		collectSchemas(child, out)
	}
}

func schemaFor(cmd *cobra.Command) commandSchema {
	properties := map[string]any{}
	required := make([]string, 0)
	seen := map[string]bool{}

	addFlag := func(f *pflag.Flag) {
		if f.Hidden || seen[f.Name] {
			return
		}
		seen[f.Name] = true

		prop := map[string]any{
			"type":        jsonFlagType(f.Value.Type()),
			"description": f.Usage,
		}
		if f.DefValue != "" {
			prop["default"] = typedDefault(f.Value.Type(), f.DefValue)
		}
		if enum := usageEnum(f.Usage); len(enum) > 0 {
			prop["enum"] = enum
		}
		properties[f.Name] = prop

		if flagRequired(f) {
			required = append(required, f.Name)
		}
	}
	cmd.InheritedFlags().VisitAll(addFlag)
	cmd.NonInheritedFlags().VisitAll(addFlag)

	args := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		args["required"] = required
	}
	return commandSchema{
		Command:     cmd.CommandPath(),
		Description: cmd.Short,
		Args:        args,
	}
}

func jsonFlagType(flagType string) string {
	switch flagType {
	case "int", "int64", "int32", "uint", "uint64", "uint32":
		return "integer"
	case "bool":
		return "boolean"
	default:
		return "string"
	}
}

func typedDefault(flagType, raw string) any {
	switch flagType {
	case "bool":
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	case "int", "int64", "int32", "uint", "uint64", "uint32":
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return raw
}

func flagRequired(f *pflag.Flag) bool {
	if vals, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok && len(vals) > 0 && vals[0] == "true" {
		return true
	}
	return strings.Contains(strings.ToLower(f.Usage), "(required)")
}

// usageEnum extracts choices from help text written as "Label: a|b|c".
func usageEnum(usage string) []string {
	idx := strings.Index(usage, ":")
	if idx < 0 {
		return nil
	}
	cand := strings.TrimSpace(usage[idx+1:])
	if paren := strings.Index(cand, "("); paren >= 0 {
		cand = strings.TrimSpace(cand[:paren])
	}
	if !strings.Contains(cand, "|") {
		return nil
	}
	parts := strings.Split(cand, "|")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || strings.Contains(p, " ") {
			continue
		}
		values = append(values, p)
	}
	if len(values) < 2 {
		return nil
	}
	return values
}
