package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	util_log "github.com/grafana/deltascan/pkg/util/log"
)

var (
	dim      = color.New(color.Faint)
	errColor = color.New(color.FgRed)
	infColor = color.New(color.FgBlue)
)

// consoleSink prints log events for humans:
//
//	2024-01-02T03:04:05.000000Z [Kernel INFO] delta: loaded snapshot
//	  at engine.go:97
type consoleSink struct {
	mtx sync.Mutex
	w   io.Writer
}

func newConsoleSink(w io.Writer) *consoleSink {
	return &consoleSink{w: w}
}

func (s *consoleSink) Handle(e util_log.Event) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	lvl := infColor
	if e.Level == "error" || e.Level == "warn" {
		lvl = errColor
	}

	target := e.Target
	if target == "" {
		target = "deltascan"
	}

	msg := e.Message
	if fields := e.FormatFields(); fields != "" {
		msg += " " + fields
	}

	fmt.Fprintf(s.w, "%s [%s] %s: %s\n",
		dim.Sprint(e.Time.UTC().Format("2006-01-02T15:04:05.000000Z")),
		lvl.Sprintf("Kernel %s", strings.ToUpper(e.Level)),
		dim.Sprint(target),
		msg,
	)
	if e.File != "" {
		fmt.Fprintf(s.w, "  %s %s:%d\n", dim.Sprint("at"), e.File, e.Line)
	}
}
