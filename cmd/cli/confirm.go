package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"aca-sandbox/internal/sandbox"
)

const previewRunes = 60

// promptConfirmer asks on out and reads the answer from in. Anything but
// y or yes declines, including EOF.
type promptConfirmer struct {
	in  io.Reader
	out io.Writer
}

func (p promptConfirmer) Confirm(_ context.Context, req sandbox.ExecutionRequest) bool {
	preview := strings.TrimSpace(req.Source)
	if first, _, found := strings.Cut(preview, "\n"); found {
		preview = first + " ..."
	}
	if r := []rune(preview); len(r) > previewRunes {
		preview = string(r[:previewRunes]) + "..."
	}
	fmt.Fprintf(p.out, "Run %s snippet %q with %q capabilities? [y/N] ", req.Language, preview, req.Capabilities)

	line, _ := bufio.NewReader(p.in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
