// Package capture drains child process output streams into discrete lines.
package capture

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LineFunc receives one captured line without its terminator.
type LineFunc func(line string)

// Lines reads r until end-of-stream and calls fn once per line, in order.
// Only the trailing "\n" (or "\r\n") is stripped. A final line without a
// terminator is still delivered. A read error other than io.EOF is logged and
// ends the capture; it is never returned. Panics raised by fn are recovered
// and logged.
func Lines(r io.Reader, fn LineFunc, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	br := bufio.NewReader(r)
	for {
		s, err := br.ReadString('\n')
		if s != "" {
			deliver(fn, trimEOL(s), log)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
				log.Warn("output capture ended with read error", slog.Any("error", err))
			}
			return
		}
	}
}

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

func deliver(fn LineFunc, line string, log *slog.Logger) {
	if fn == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("output callback panicked", slog.Any("panic", rec))
		}
	}()
	fn(line)
}
