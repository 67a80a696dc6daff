// Package notifier implements the Notifier collaborator: the external
// channel that relays approval prompts to, and (via the Approval Manager's
// resolve path) decisions from, a human.
package notifier

import (
	"fmt"
	"log/slog"
)

// Notifier delivers a plain-text approval prompt to recipientID. The bool
// result is a best-effort delivery indicator; approval correctness never
// depends on it — the approval timeout is the safety net, per the contract.
type Notifier interface {
	Send(recipientID, content string) bool
}

// LogNotifier logs the prompt instead of delivering it anywhere, and always
// reports delivery. Useful as the default when no real human channel is
// wired, and in tests that don't care about delivery semantics.
type LogNotifier struct{}

func (LogNotifier) Send(recipientID, content string) bool {
	slog.Info("notifier: approval prompt", "recipient", recipientID, "content", content)
	return true
}

// FormatApprovalPrompt renders a human-readable approval prompt for a tool
// call awaiting a decision.
func FormatApprovalPrompt(toolName, reason, recordID string) string {
	if reason == "" {
		return fmt.Sprintf("Approval requested for tool %q (record %s). Reply to approve or deny.", toolName, recordID)
	}
	return fmt.Sprintf("Approval requested for tool %q: %s (record %s). Reply to approve or deny.", toolName, reason, recordID)
}
