package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// promptConfirmer asks on the terminal before destructive batch actions.
type promptConfirmer struct {
	in        io.Reader
	out       io.Writer
	assumeYes bool
}

type answer struct {
	line string
	err  error
}

// Confirm returns true only for an explicit y or yes. End of input declines.
func (p promptConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if p.assumeYes {
		return true, nil
	}
	if _, err := fmt.Fprintf(p.out, "%s [y/N] ", prompt); err != nil {
		return false, err
	}

	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(p.in).ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, fmt.Errorf("read confirmation: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
