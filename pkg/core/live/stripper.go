package live

import (
	"strings"
	"sync"
	"unicode"
)

// Strip removes directive markup from generated text so it never reaches
// speech synthesis. It removes complete tag pairs (non-greedy), a
// dangling open tag through end-of-string, orphaned close tags, and
// bracket-delimited ALL-CAPS directives, then collapses repeated
// whitespace.
func Strip(text string, config StripConfig) string {
	return collapseWhitespace(stripMarkup(text, config))
}

// stripMarkup removes directive markup without touching whitespace, so
// the streaming path can do its own boundary-aware collapsing.
func stripMarkup(text string, config StripConfig) string {
	open, closing := config.OpenTag, config.CloseTag
	if open == "" || closing == "" {
		def := DefaultStripConfig()
		open, closing = def.OpenTag, def.CloseTag
	}

	// Complete pairs, innermost-first is unnecessary: tags do not nest,
	// so a simple left-to-right sweep removes each pair non-greedily.
	for {
		start := strings.Index(text, open)
		if start < 0 {
			break
		}
		end := strings.Index(text[start+len(open):], closing)
		if end < 0 {
			// Dangling open tag: drop through end-of-string.
			text = text[:start]
			break
		}
		text = text[:start] + text[start+len(open)+end+len(closing):]
	}

	// Orphaned close tags.
	text = strings.ReplaceAll(text, closing, "")

	return stripBracketDirectives(text)
}

// stripBracketDirectives removes [ALL CAPS] directives while leaving
// ordinary bracketed text alone.
func stripBracketDirectives(text string) string {
	var b strings.Builder
	for {
		start := strings.IndexByte(text, '[')
		if start < 0 {
			b.WriteString(text)
			break
		}
		end := strings.IndexByte(text[start:], ']')
		if end < 0 {
			b.WriteString(text)
			break
		}
		inner := text[start+1 : start+end]
		b.WriteString(text[:start])
		if !isAllCapsDirective(inner) {
			b.WriteString(text[start : start+end+1])
		}
		text = text[start+end+1:]
	}
	return b.String()
}

// isAllCapsDirective reports whether bracket contents look like a
// control directive: at least one uppercase letter and no lowercase.
func isAllCapsDirective(s string) bool {
	hasUpper := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		}
	}
	return hasUpper
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// StreamStripper applies Strip to a stream of generated-text chunks. If
// the accumulated text contains an unmatched open tag, or ends in what
// could be the start of a tag split across chunks, the unsafe suffix is
// held back until the tag resolves. Flush returns whatever remains when
// the reply ends.
//
// Whitespace collapsing carries across chunk boundaries: concatenating
// everything Add and Flush return yields exactly Strip of the full
// reply, no matter where the chunks split.
type StreamStripper struct {
	config StripConfig

	mu     sync.Mutex
	buffer strings.Builder

	// Collapse state spanning chunk boundaries.
	pendingSpace bool
	emitted      bool
}

// NewStreamStripper creates a streaming stripper.
func NewStreamStripper(config StripConfig) *StreamStripper {
	if config.OpenTag == "" || config.CloseTag == "" {
		config = DefaultStripConfig()
	}
	return &StreamStripper{config: config}
}

// Add appends a chunk and returns the text that is safe to emit, which
// may be empty while a tag is still open.
func (s *StreamStripper) Add(chunk string) string {
	if chunk == "" {
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer.WriteString(chunk)
	combined := s.buffer.String()

	// An open tag with no close yet: hold everything.
	if opens, closes := strings.Count(combined, s.config.OpenTag), strings.Count(combined, s.config.CloseTag); opens > closes {
		return ""
	}

	hold := len(combined)
	if idx := partialTagStart(combined, s.config); idx >= 0 {
		hold = idx
	}

	emit := s.emitLocked(stripMarkup(combined[:hold], s.config))
	s.buffer.Reset()
	s.buffer.WriteString(combined[hold:])
	return emit
}

// emitLocked collapses whitespace with state that survives chunk
// boundaries: runs become one space between words, a boundary space is
// remembered until the next word arrives, and nothing leads the reply.
// Caller holds mu.
func (s *StreamStripper) emitLocked(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsSpace(r) {
			s.pendingSpace = true
			continue
		}
		if s.pendingSpace && s.emitted {
			b.WriteByte(' ')
		}
		s.pendingSpace = false
		s.emitted = true
		b.WriteRune(r)
	}
	return b.String()
}

// Flush strips and returns any held text, then clears the buffer and
// the collapse state for the next reply. Call when the reply stream
// ends; a still-dangling open tag is dropped.
func (s *StreamStripper) Flush() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.emitLocked(stripMarkup(s.buffer.String(), s.config))
	s.buffer.Reset()
	s.pendingSpace = false
	s.emitted = false
	return result
}

// Reset discards held text without emitting it.
func (s *StreamStripper) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer.Reset()
	s.pendingSpace = false
	s.emitted = false
}

// partialTagStart returns the index where text ends in an incomplete
// prefix of a directive tag or an unclosed ALL-CAPS bracket, or -1.
func partialTagStart(text string, config StripConfig) int {
	if idx := strings.LastIndexByte(text, '<'); idx >= 0 {
		tail := text[idx:]
		if isPrefixOf(tail, config.OpenTag) || isPrefixOf(tail, config.CloseTag) {
			return idx
		}
	}
	if idx := strings.LastIndexByte(text, '['); idx >= 0 {
		tail := text[idx+1:]
		if !strings.ContainsRune(tail, ']') && isAllCapsSoFar(tail) {
			return idx
		}
	}
	return -1
}

// isPrefixOf reports whether tail is a strict prefix of tag (the full
// tag would already have been handled by Strip).
func isPrefixOf(tail, tag string) bool {
	return len(tail) < len(tag) && strings.HasPrefix(tag, tail)
}

// isAllCapsSoFar reports whether an unclosed bracket could still become
// an ALL-CAPS directive.
func isAllCapsSoFar(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
	}
	return true
}

// Stripper is the pipeline stage wrapping a StreamStripper over the
// downstream reply path. Cleaned text is forwarded as reply deltas; the
// end-of-reply marker flushes the buffer first.
type Stripper struct {
	PassthroughStage

	stream  *StreamStripper
	onDebug func(category, message string)
}

// NewStripper creates the stripper stage.
func NewStripper(config StripConfig) *Stripper {
	return &Stripper{stream: NewStreamStripper(config)}
}

// SetDebug sets the debug callback.
func (s *Stripper) SetDebug(onDebug func(category, message string)) {
	s.onDebug = onDebug
}

// Name implements Stage.
func (s *Stripper) Name() string { return "stripper" }

// HandleDownstream strips reply deltas and flushes on reply completion.
func (s *Stripper) HandleDownstream(ev Event) []Event {
	switch e := ev.(type) {
	case *ReplyDeltaEvent:
		cleaned := s.stream.Add(e.Delta)
		if cleaned == "" {
			return nil
		}
		if cleaned != e.Delta && s.onDebug != nil {
			s.onDebug("STRIP", "Removed directive markup from reply chunk")
		}
		return []Event{&ReplyDeltaEvent{Delta: cleaned}}

	case *ReplyCompleteEvent:
		if remaining := s.stream.Flush(); remaining != "" {
			return []Event{&ReplyDeltaEvent{Delta: remaining}, e}
		}
		return []Event{e}

	default:
		return []Event{ev}
	}
}
