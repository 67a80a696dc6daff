// Package tools provides the small set of built-in Tool Registry entries
// agentcore ships with out of the box: a shell command runner and an echo
// tool used for smoke-testing a freshly wired Runtime.
//
// Grounded on internal/tools/exec/manager.go's synchronous os/exec runner
// (runSync/buildCommand), narrowed to the core's one-shot, non-backgrounded
// execution contract — this package has no process manager or job
// bookkeeping because the Reasoning Loop never polls a tool asynchronously.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// maxOutputBytes truncates command output, mirroring the teacher's
// limitedBuffer cap.
const maxOutputBytes = 64_000

// ShellSchema is the parameter schema for the Shell tool.
const ShellSchema = `{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`

// Shell runs a command through "sh -c" in the session's workspace directory.
// Its built-in policy requires approval and admits only MAIN sessions (the
// teacher's own execution tools are approval-gated by default in every
// profile but "full").
func Shell() models.Tool {
	return models.Tool{
		Name:        "shell",
		Description: "runs a shell command in the session workspace and returns its combined output",
		Policy: models.ToolPolicy{
			AllowedSessionTypes:     map[models.SessionType]bool{models.SessionMain: true},
			RequiresApproval:        true,
			MaxExecutionTimeSeconds: 30,
		},
		Schema:  models.RawSchema(ShellSchema),
		Execute: runShell,
	}
}

func runShell(ctx context.Context, args map[string]any, workspace string, _ models.SessionType) (models.ToolResult, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return models.ToolResult{Success: false, Error: "command argument is required"}, nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workspace

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	output := truncate(out.String())
	if err != nil {
		return models.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("command failed after %s: %v", duration.Round(time.Millisecond), err),
			Output:  output,
		}, nil
	}
	return models.ToolResult{Success: true, Output: output}, nil
}

func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "...(truncated)"
}

// EchoSchema is the parameter schema for the Echo tool.
const EchoSchema = `{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`

// Echo returns its message argument verbatim, unapproved, in every session
// type. It exists to smoke-test a Runtime end to end without depending on a
// live model or a real shell.
func Echo() models.Tool {
	return models.Tool{
		Name:        "echo",
		Description: "returns the given message unchanged",
		Policy: models.ToolPolicy{
			AllowedSessionTypes: map[models.SessionType]bool{
				models.SessionMain:  true,
				models.SessionDM:    true,
				models.SessionGroup: true,
				models.SessionTopic: true,
			},
			MaxExecutionTimeSeconds: 5,
		},
		Schema: models.RawSchema(EchoSchema),
		Execute: func(_ context.Context, args map[string]any, _ string, _ models.SessionType) (models.ToolResult, error) {
			message, _ := args["message"].(string)
			return models.ToolResult{Success: true, Output: message}, nil
		},
	}
}
