package live

import (
	"strings"
	"sync"

	"github.com/sundial-care/sundial/pkg/core/types"
)

// MergeStrategy describes how a new phase's context joins the
// conversation so far.
type MergeStrategy string

const (
	// MergeAppend preserves all prior turns; the new phase instructions
	// are added on top. The core only ever appends — context resets
	// belong to the external summarization path.
	MergeAppend MergeStrategy = "append"
)

// PhaseNode is the immutable instruction/tool bundle for the active call
// phase. A new node is built fresh on every transition; existing nodes
// are never mutated.
type PhaseNode struct {
	Name          types.CallPhase
	Instructions  string
	Tools         []types.Tool
	MergeStrategy MergeStrategy
	// SpeaksFirst means the companion opens this phase without waiting
	// for the caller (outbound calls, reminder delivery).
	SpeaksFirst bool
	// Terminal marks the closing phase; entering it schedules session
	// termination.
	Terminal bool
}

// Phase task templates. Instruction text is composed from these plus
// profile context, reminder context, and the tracker summary.
const (
	reminderPhaseTask = `Open the call warmly, then deliver the pending reminder conversationally. Confirm the caller heard and understood it, and record the acknowledgment with the acknowledge_reminder tool before moving on.`

	mainPhaseTask = `Have a warm, unhurried conversation. Follow the caller's lead, ask about their day, and use the recall_memory tool to bring up things they have shared before. Save anything new and meaningful with save_memory.`

	windingDownPhaseTask = `Begin wrapping up gently. Summarize the nicest parts of the conversation, avoid opening new topics, and let the caller know you enjoyed talking.`

	closingPhaseTask = `Say a warm goodbye and end the call. Keep it brief; do not introduce any new topic or question.`
)

// phaseTools is the per-phase tool whitelist. Closing carries no tools.
func phaseTools(phase types.CallPhase) []types.Tool {
	switch phase {
	case types.PhaseReminder:
		return []types.Tool{
			acknowledgeReminderTool(),
			recallMemoryTool(),
			endCallTool(),
		}
	case types.PhaseMain:
		return []types.Tool{
			recallMemoryTool(),
			saveMemoryTool(),
			endCallTool(),
		}
	case types.PhaseWindingDown:
		return []types.Tool{
			recallMemoryTool(),
			endCallTool(),
		}
	default:
		return nil
	}
}

// PhaseMachine drives the call through reminder (optional), main,
// winding_down, and closing. Transitions happen only through the named
// methods below; direction or signal output never transitions phases on
// its own. Misusing a transition (wrong source phase, repeat call) is a
// no-op, not an error.
type PhaseMachine struct {
	mu      sync.Mutex
	current *PhaseNode

	// Node-building inputs, read fresh on every transition.
	profile        *types.CallerProfile
	reminder       *types.Reminder
	outbound       bool
	trackerSummary func() string
	reminderDone   func() bool

	// Callbacks
	onTransition func(from, to types.CallPhase, node *PhaseNode)
	onTerminal   func()
	onDebug      func(category, message string)
}

// NewPhaseMachine creates an unstarted machine.
func NewPhaseMachine(
	profile *types.CallerProfile,
	reminder *types.Reminder,
	outbound bool,
	trackerSummary func() string,
	reminderDone func() bool,
) *PhaseMachine {
	return &PhaseMachine{
		profile:        profile,
		reminder:       reminder,
		outbound:       outbound,
		trackerSummary: trackerSummary,
		reminderDone:   reminderDone,
	}
}

// SetCallbacks sets the event callbacks. onTerminal fires when the
// machine enters closing.
func (m *PhaseMachine) SetCallbacks(
	onTransition func(from, to types.CallPhase, node *PhaseNode),
	onTerminal func(),
	onDebug func(category, message string),
) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = onTransition
	m.onTerminal = onTerminal
	m.onDebug = onDebug
}

// Start enters the initial phase: reminder when an undelivered reminder
// payload exists, main otherwise. Calling Start twice is a no-op.
func (m *PhaseMachine) Start() *PhaseNode {
	m.mu.Lock()
	if m.current != nil {
		node := m.current
		m.mu.Unlock()
		return node
	}
	initial := types.PhaseMain
	if m.reminder != nil && (m.reminderDone == nil || !m.reminderDone()) {
		initial = types.PhaseReminder
	}
	node := m.buildNodeLocked(initial)
	m.current = node
	m.mu.Unlock()

	m.debug("PHASE", "Starting in phase "+string(initial))
	return node
}

// Active returns the current phase node, or nil before Start.
func (m *PhaseMachine) Active() *PhaseNode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CompleteReminder transitions reminder -> main. Any other source phase
// makes this a no-op.
func (m *PhaseMachine) CompleteReminder() *PhaseNode {
	return m.transition(types.PhaseReminder, types.PhaseMain)
}

// BeginWindingDown transitions main -> winding_down.
func (m *PhaseMachine) BeginWindingDown() *PhaseNode {
	return m.transition(types.PhaseMain, types.PhaseWindingDown)
}

// BeginClosing transitions any non-closing phase to closing and fires
// the terminal callback. Repeat calls are no-ops.
func (m *PhaseMachine) BeginClosing() *PhaseNode {
	m.mu.Lock()
	if m.current == nil || m.current.Name == types.PhaseClosing {
		node := m.current
		m.mu.Unlock()
		return node
	}
	from := m.current.Name
	node := m.buildNodeLocked(types.PhaseClosing)
	m.current = node
	onTransition := m.onTransition
	onTerminal := m.onTerminal
	m.mu.Unlock()

	m.debug("PHASE", string(from)+" -> closing")
	if onTransition != nil {
		onTransition(from, types.PhaseClosing, node)
	}
	if onTerminal != nil {
		onTerminal()
	}
	return node
}

// transition moves from exactly `from` to `to`, rebuilding the node.
func (m *PhaseMachine) transition(from, to types.CallPhase) *PhaseNode {
	m.mu.Lock()
	if m.current == nil || m.current.Name != from {
		// State-machine misuse is advisory only.
		current := m.current
		m.mu.Unlock()
		m.debug("PHASE", "Ignored transition to "+string(to)+" from wrong phase")
		return current
	}
	node := m.buildNodeLocked(to)
	m.current = node
	onTransition := m.onTransition
	m.mu.Unlock()

	m.debug("PHASE", string(from)+" -> "+string(to))
	if onTransition != nil {
		onTransition(from, to, node)
	}
	return node
}

// buildNodeLocked constructs a brand-new PhaseNode from current session
// state. Caller holds mu.
func (m *PhaseMachine) buildNodeLocked(phase types.CallPhase) *PhaseNode {
	var task string
	speaksFirst := false
	terminal := false

	switch phase {
	case types.PhaseReminder:
		task = reminderPhaseTask
		speaksFirst = true
	case types.PhaseMain:
		task = mainPhaseTask
		speaksFirst = m.outbound
	case types.PhaseWindingDown:
		task = windingDownPhaseTask
	case types.PhaseClosing:
		task = closingPhaseTask
		terminal = true
	}

	var parts []string
	parts = append(parts, task)

	if m.profile != nil {
		var profileBits []string
		profileBits = append(profileBits, "You are speaking with "+m.profile.DisplayName()+".")
		if len(m.profile.Interests) > 0 {
			profileBits = append(profileBits, "They enjoy "+strings.Join(m.profile.Interests, ", ")+".")
		}
		if len(m.profile.HealthNotes) > 0 {
			profileBits = append(profileBits, "Health notes: "+strings.Join(m.profile.HealthNotes, "; ")+".")
		}
		parts = append(parts, strings.Join(profileBits, " "))
	}

	if phase == types.PhaseReminder && m.reminder != nil {
		reminderText := "Pending reminder: " + m.reminder.Title
		if m.reminder.Details != "" {
			reminderText += " (" + m.reminder.Details + ")"
		}
		parts = append(parts, reminderText+".")
	}

	if m.trackerSummary != nil {
		if summary := m.trackerSummary(); summary != "" {
			parts = append(parts, summary)
		}
	}

	return &PhaseNode{
		Name:          phase,
		Instructions:  strings.Join(parts, "\n\n"),
		Tools:         phaseTools(phase),
		MergeStrategy: MergeAppend,
		SpeaksFirst:   speaksFirst,
		Terminal:      terminal,
	}
}

func (m *PhaseMachine) debug(category, message string) {
	m.mu.Lock()
	onDebug := m.onDebug
	m.mu.Unlock()
	if onDebug != nil {
		onDebug(category, message)
	}
}
