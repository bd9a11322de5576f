// Package slogx wires the process-wide slog.Logger to a file under the
// engine's log directory and adds an attribute helper used by the
// non-realtime logging in the MIDI router and the Streamer.
package slogx

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/organfox/organfox/utils/app"
)

func init() {
	dir := app.LogDir()

	f, err := os.OpenFile(filepath.Join(dir, "organfox.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		panic(fmt.Sprintf("failed to open log file, err: %v", err))
	}

	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{AddSource: true}))

	log.SetOutput(f)
	slog.SetDefault(logger)
}

// Error formats err (preserving pkg/errors stack traces via %+v) as a slog
// attribute.
func Error(err any) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}

	return slog.String("error", fmt.Sprintf("%+v", err))
}
