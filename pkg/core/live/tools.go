package live

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sundial-care/sundial/pkg/core/types"
)

// safeToolResult is what the conversational model sees when a tool
// handler fails for any reason. Never a stack trace.
const safeToolResult = "Continue the conversation naturally."

func recallMemoryTool() types.Tool {
	return types.NewFunctionTool("recall_memory",
		"Look up things the caller has shared in past calls. Use it to bring up familiar people, events, and interests.",
		&types.JSONSchema{
			Type: "object",
			Properties: map[string]*types.JSONSchema{
				"query": {Type: "string", Description: "What to look for, e.g. a person, place, or activity."},
			},
			Required: []string{"query"},
		})
}

func saveMemoryTool() types.Tool {
	return types.NewFunctionTool("save_memory",
		"Save something new and meaningful the caller shared, so future calls can bring it up.",
		&types.JSONSchema{
			Type: "object",
			Properties: map[string]*types.JSONSchema{
				"content": {Type: "string", Description: "One sentence describing what to remember."},
			},
			Required: []string{"content"},
		})
}

func acknowledgeReminderTool() types.Tool {
	return types.NewFunctionTool("acknowledge_reminder",
		"Record that the pending reminder was delivered and whether the caller acknowledged it.",
		&types.JSONSchema{
			Type: "object",
			Properties: map[string]*types.JSONSchema{
				"acknowledged": {Type: "string", Enum: []string{"yes", "no"}, Description: "Whether the caller confirmed the reminder."},
			},
			Required: []string{"acknowledged"},
		})
}

func endCallTool() types.Tool {
	return types.NewFunctionTool("end_call",
		"Move the call to its closing phase once the caller is ready to hang up.",
		&types.JSONSchema{
			Type: "object",
			Properties: map[string]*types.JSONSchema{
				"reason": {Type: "string", Description: "Short reason for ending, e.g. caller said goodbye."},
			},
		})
}

// ExecuteTool runs a phase tool by name. The session is passed to every
// handler explicitly; handlers never capture it. Tools outside the
// active phase's whitelist are refused, and no handler error or panic
// escapes this boundary — failures degrade to a safe result string.
func ExecuteTool(ctx context.Context, s *Session, name string, input json.RawMessage) (result types.ToolResult) {
	defer func() {
		if v := recover(); v != nil {
			s.debug("TOOL", fmt.Sprintf("Recovered panic in %s: %v", name, v))
			result = types.ToolResult{Status: types.ToolError, Result: safeToolResult}
		}
	}()

	if !toolAllowed(s, name) {
		s.debug("TOOL", "Refused "+name+": not in active phase whitelist")
		return types.ToolResult{Status: types.ToolError, Result: safeToolResult}
	}

	switch name {
	case "recall_memory":
		return runRecallMemory(ctx, s, input)
	case "save_memory":
		return runSaveMemory(ctx, s, input)
	case "acknowledge_reminder":
		return runAcknowledgeReminder(ctx, s, input)
	case "end_call":
		return runEndCall(s, input)
	default:
		return types.ToolResult{Status: types.ToolError, Result: safeToolResult}
	}
}

func toolAllowed(s *Session, name string) bool {
	node := s.ActivePhase()
	if node == nil {
		return false
	}
	for _, tool := range node.Tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

func runRecallMemory(ctx context.Context, s *Session, input json.RawMessage) types.ToolResult {
	var parsed struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(input, &parsed); err != nil || parsed.Query == "" {
		return types.ToolResult{Status: types.ToolError, Result: safeToolResult}
	}

	records, err := s.cache.LookupOrFetch(ctx, parsed.Query)
	if err != nil {
		s.debug("TOOL", "recall_memory failed: "+err.Error())
		return types.ToolResult{Status: types.ToolError, Result: safeToolResult}
	}
	if len(records) == 0 {
		return types.ToolResult{Status: types.ToolSuccess, Result: "No saved memories about that yet."}
	}

	var lines []string
	for _, r := range records {
		lines = append(lines, "- "+r.Content)
	}
	return types.ToolResult{Status: types.ToolSuccess, Result: "Remembered:\n" + strings.Join(lines, "\n")}
}

func runSaveMemory(ctx context.Context, s *Session, input json.RawMessage) types.ToolResult {
	var parsed struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &parsed); err != nil || parsed.Content == "" {
		return types.ToolResult{Status: types.ToolError, Result: safeToolResult}
	}
	if s.memoryStore == nil {
		return types.ToolResult{Status: types.ToolSuccess, Result: "Noted."}
	}

	if _, err := s.memoryStore.SaveMemory(ctx, s.CallerID(), parsed.Content); err != nil {
		s.debug("TOOL", "save_memory failed: "+err.Error())
		return types.ToolResult{Status: types.ToolError, Result: safeToolResult}
	}
	return types.ToolResult{Status: types.ToolSuccess, Result: "Saved."}
}

func runAcknowledgeReminder(ctx context.Context, s *Session, input json.RawMessage) types.ToolResult {
	var parsed struct {
		Acknowledged string `json:"acknowledged"`
	}
	if err := json.Unmarshal(input, &parsed); err != nil {
		return types.ToolResult{Status: types.ToolError, Result: safeToolResult}
	}

	reminder := s.PendingReminder()
	if reminder == nil {
		return types.ToolResult{Status: types.ToolSuccess, Result: "No reminder pending."}
	}

	acknowledged := parsed.Acknowledged == "yes"
	if s.reminderStore != nil {
		if err := s.reminderStore.MarkDelivered(ctx, reminder.ID, s.CallID(), acknowledged); err != nil {
			// Delivery still counts locally; the call continues either way.
			s.debug("TOOL", "acknowledge_reminder persist failed: "+err.Error())
		}
	}
	s.markReminderDelivered(reminder.ID)
	s.phases.CompleteReminder()

	return types.ToolResult{Status: types.ToolSuccess, Result: "Reminder delivery recorded."}
}

func runEndCall(s *Session, input json.RawMessage) types.ToolResult {
	var parsed struct {
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(input, &parsed)
	if parsed.Reason == "" {
		parsed.Reason = "model requested end of call"
	}

	s.phases.BeginClosing()
	return types.ToolResult{Status: types.ToolSuccess, Result: "Closing the call."}
}
