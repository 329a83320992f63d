package eventlog

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Writer emits one pipe-delimited line per logical event (spec.md §6
// "The writer emits one pipe-delimited line per logical event").
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write formats ev and flushes it as a single line.
func (wr *Writer) Write(ev Event) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	var line string
	switch ev.Type {
	case MessageServerEvent:
		line = fmt.Sprintf("EVENT|%d|%d|%s|%s|%s", ev.Channel, ev.ServerType, ev.EventName, ev.Who, ev.Description)
	case MessageStatus:
		line = fmt.Sprintf("STATUS|%d|%d|%s|%d|%d", ev.Channel, ev.ServerType, ev.Who, ev.AvCount, ev.ObjCount)
	case MessageStatusV2:
		line = fmt.Sprintf("STATUSV2|%d|%d|%s|%d|%d|%d", ev.Channel, ev.ServerType, ev.Who, ev.AvCount, ev.ObjCount, ev.PingChannel)
	default:
		line = fmt.Sprintf("UNKNOWN|%d|%d", ev.Channel, ev.ServerType)
	}

	if _, err := wr.w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("writing event-log line: %w", err)
	}
	return wr.w.Flush()
}
