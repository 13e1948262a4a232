package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestFlagRequired(t *testing.T) {
	byAnnotation := &pflag.Flag{Annotations: map[string][]string{cobra.BashCompOneRequiredFlag: {"true"}}}
	require.True(t, flagRequired(byAnnotation))

	byUsage := &pflag.Flag{Usage: "Task title (required)"}
	require.True(t, flagRequired(byUsage))

	optional := &pflag.Flag{Usage: "Task description"}
	require.False(t, flagRequired(optional))
}

func TestUsageEnum(t *testing.T) {
	require.Equal(t, []string{"critical", "high", "medium", "low"},
		usageEnum("Priority: critical|high|medium|low (default medium)"))
	require.Equal(t, []string{"active", "completed"}, usageEnum("Filter: active|completed"))
	require.Nil(t, usageEnum("Task title (required)"))
	require.Nil(t, usageEnum(""))
}

func TestSchemaFor_TaskCreate(t *testing.T) {
	schemas := make([]commandSchema, 0)
	collectSchemas(NewTaskCmd(), &schemas)

	var create *commandSchema
	for i := range schemas {
		if schemas[i].Command == "task create" {
			create = &schemas[i]
		}
	}
	require.NotNil(t, create)

	props, ok := create.Args["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "title")
	require.Contains(t, props, "assigned-to")

	required, ok := create.Args["required"].([]string)
	require.True(t, ok)
	require.Contains(t, required, "title")
	require.Contains(t, required, "type")
	require.NotContains(t, required, "desc")

	priority, ok := props["priority"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, []string{"critical", "high", "medium", "low"}, priority["enum"])
}

func TestJSONFlagType(t *testing.T) {
	require.Equal(t, "integer", jsonFlagType("int"))
	require.Equal(t, "boolean", jsonFlagType("bool"))
	require.Equal(t, "string", jsonFlagType("stringSlice"))
}
