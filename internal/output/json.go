package output

import (
	"encoding/json"
	"os"
)

// Response is the standard JSON envelope every command prints.
type Response struct {
	SchemaVersion string `json:"schema_version"`
	Success       bool   `json:"success"`
	Data          any    `json:"data,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Success wraps a successful response with data.
func Success(data any) Response {
	return Response{
		SchemaVersion: "v1",
		Success:       true,
		Data:          data,
	}
}

// Error wraps an error in a response.
func Error(err error) Response {
	return Response{
		SchemaVersion: "v1",
		Success:       false,
		Error:         err.Error(),
	}
}

// Print prints a value as JSON to stdout.
func Print(v any) error {
	enc := json.NewEncoder(os.Stdout)
	// Default to compact JSON since agents are the primary consumer.
	// Enable pretty JSON for humans via env var: TASKBREW_PRETTY_JSON=1.
	if os.Getenv("TASKBREW_PRETTY_JSON") == "1" || os.Getenv("TASKBREW_PRETTY_JSON") == "true" {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// PrintSuccess prints a success response.
func PrintSuccess(data any) error {
	return Print(Success(data))
}

// PrintError prints an error response.
func PrintError(err error) error {
	return Print(Error(err))
}
