package logger

import (
	"bytes"
	"context"
	"strings"
	"sync"
)

// lineWriter turns a byte stream into one log entry per line.
type lineWriter struct {
	mu     sync.Mutex
	ctx    context.Context
	log    *Logger
	level  Level
	msg    string
	fields map[string]interface{}
	buf    bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.emit(line)
	}
	return len(p), nil
}

// Close flushes a trailing partial line.
func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
	return nil
}

func (w *lineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	fields := make(map[string]interface{}, len(w.fields)+1)
	for k, v := range w.fields {
		fields[k] = v
	}
	fields["line"] = line
	w.log.log(w.ctx, w.level, w.msg, fields, nil)
}
