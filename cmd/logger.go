package main

import (
	"bytes"
	"io"
)

var levelRanks = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

var levelTags = []struct {
	tag  []byte
	rank int
}{
	{[]byte(" DEBUG: "), 0},
	{[]byte(" INFO: "), 1},
	{[]byte(" WARN: "), 2},
	{[]byte(" ERROR: "), 3},
	{[]byte(" FATAL: "), 3},
}

// levelFilter drops log lines whose level tag ranks below min. The first tag
// on the line decides; untagged lines always pass.
type levelFilter struct {
	w   io.Writer
	min int
}

func newLevelFilter(w io.Writer, level string) io.Writer {
	rank, ok := levelRanks[level]
	if !ok || rank == 0 {
		return w
	}
	return &levelFilter{w: w, min: rank}
}

func (f *levelFilter) Write(p []byte) (int, error) {
	at, rank := -1, 0
	for _, lt := range levelTags {
		if i := bytes.Index(p, lt.tag); i >= 0 && (at < 0 || i < at) {
			at, rank = i, lt.rank
		}
	}
	if at >= 0 && rank < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}
