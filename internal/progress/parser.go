package progress

import (
	"regexp"
	"strconv"
	"strings"
)

// EventKind tags the variants of a parsed progress event.
type EventKind int

const (
	EventFrameStarted EventKind = iota
	EventFrameCompleted
	EventRenderError
	EventRenderWarning
	EventUnrecognized
)

func (k EventKind) String() string {
	switch k {
	case EventFrameStarted:
		return "frame_started"
	case EventFrameCompleted:
		return "frame_completed"
	case EventRenderError:
		return "render_error"
	case EventRenderWarning:
		return "render_warning"
	default:
		return "unrecognized"
	}
}

// Event is one structured progress event extracted from a line of renderer
// output. Frame is meaningful for the frame variants, Message for the
// error/warning variants; Raw always carries the originating line.
type Event struct {
	Kind    EventKind
	Frame   int
	Message string
	Raw     string
}

var (
	// Blender prints "Fra:123 Mem:..." while a frame renders and
	// "Saved: '/out/frame_00123.png'" once it lands on disk. The render
	// helper script adds its own "[RENDER] Frame 123/250", "[SKIP] Frame
	// 123 ..." and "[ERROR] ..." markers on top.
	reFra       = regexp.MustCompile(`^Fra:(\d+)\b`)
	reRenderMrk = regexp.MustCompile(`^\[RENDER\] Frame (\d+)/(\d+)\b`)
	reSaved     = regexp.MustCompile(`^Saved: '(.+)'`)
	reSkip      = regexp.MustCompile(`^\[SKIP\] Frame (\d+)\b`)
	reErrMark   = regexp.MustCompile(`^(?:\[ERROR\]|Error:)\s*(.*)$`)
	reWarnMark  = regexp.MustCompile(`^(?:\[WARN\]|Warning:)\s*(.*)$`)
	reFrameNum  = regexp.MustCompile(`(\d+)\.[A-Za-z0-9]+$`)
)

// Parser turns renderer output into events, one Feed call per line in
// arrival order. The only cross-line state is a one-line lookahead for an
// error banner whose detail arrives on the following line.
type Parser struct {
	pendingError string
	havePending  bool
}

func NewParser() *Parser {
	return &Parser{}
}

// Feed classifies a single output line. The second return is false for blank
// lines, which carry no event at all; every non-blank line yields an event,
// with Unrecognized as the catch-all.
func (p *Parser) Feed(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)

	if p.havePending {
		p.havePending = false
		banner := p.pendingError
		p.pendingError = ""
		msg := trimmed
		if msg == "" {
			msg = banner
		}
		return Event{Kind: EventRenderError, Message: msg, Raw: line}, true
	}

	if trimmed == "" {
		return Event{}, false
	}

	if m := reErrMark.FindStringSubmatch(trimmed); m != nil {
		detail := strings.TrimSpace(m[1])
		if detail == "" {
			// Bare error banner: the next line is the detail.
			p.havePending = true
			p.pendingError = trimmed
			return Event{}, false
		}
		return Event{Kind: EventRenderError, Message: detail, Raw: line}, true
	}
	if m := reWarnMark.FindStringSubmatch(trimmed); m != nil {
		return Event{Kind: EventRenderWarning, Message: strings.TrimSpace(m[1]), Raw: line}, true
	}
	if m := reSaved.FindStringSubmatch(trimmed); m != nil {
		if frame, ok := frameFromPath(m[1]); ok {
			return Event{Kind: EventFrameCompleted, Frame: frame, Raw: line}, true
		}
		return Event{Kind: EventUnrecognized, Raw: line}, true
	}
	if m := reSkip.FindStringSubmatch(trimmed); m != nil {
		// A frame already on disk counts as completed for resume purposes.
		frame, _ := strconv.Atoi(m[1])
		return Event{Kind: EventFrameCompleted, Frame: frame, Raw: line}, true
	}
	if m := reRenderMrk.FindStringSubmatch(trimmed); m != nil {
		frame, _ := strconv.Atoi(m[1])
		return Event{Kind: EventFrameStarted, Frame: frame, Raw: line}, true
	}
	if m := reFra.FindStringSubmatch(trimmed); m != nil {
		frame, _ := strconv.Atoi(m[1])
		return Event{Kind: EventFrameStarted, Frame: frame, Raw: line}, true
	}

	return Event{Kind: EventUnrecognized, Raw: line}, true
}

// frameFromPath extracts the frame number from a saved-file path by taking
// the digit run immediately before the extension, e.g. frame_00042.png -> 42.
func frameFromPath(path string) (int, bool) {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	m := reFrameNum.FindStringSubmatch(base)
	if m == nil {
		return 0, false
	}
	frame, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return frame, true
}
