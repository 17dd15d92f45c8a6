package log

import (
	"io"
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

var L hclog.Logger

func init() {
	L = hclog.New(&hclog.LoggerOptions{
		Name:   "kernelino",
		Output: os.Stderr,
	})
	L.SetLevel(hclog.Info)

	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

// SetLevel accepts the usual hclog level names ("trace", "debug", "info",
// "warn", "error", "off"). Unknown names leave the level alone.
func SetLevel(name string) {
	lvl := hclog.LevelFromString(name)
	if lvl == hclog.NoLevel {
		return
	}

	L.SetLevel(lvl)
}

// Discard replaces L with a logger that drops everything. Used by tests that
// drive the shell and don't want the noise.
func Discard() {
	L = hclog.New(&hclog.LoggerOptions{Output: io.Discard})
}
