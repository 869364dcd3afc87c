package operator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/manthysbr/auleagent/internal/core/ports"
)

type line struct {
	text string
	err  error
}

// Terminal is line-based operator input. A single reader goroutine owns the
// input so the interactive shell and ask_operator can share stdin.
type Terminal struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan line
	mu    sync.Mutex // serializes prompts
}

var _ ports.OperatorInput = (*Terminal)(nil)

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out, lines: make(chan line)}
}

func (t *Terminal) start() {
	t.once.Do(func() {
		go func() {
			scanner := bufio.NewScanner(t.in)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				t.lines <- line{text: scanner.Text()}
			}
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			for {
				t.lines <- line{err: err}
			}
		}()
	})
}

// Ask shows a prompt and blocks until the operator answers or ctx ends.
func (t *Terminal) Ask(ctx context.Context, prompt string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prompt != "" {
		fmt.Fprintf(t.out, "%s\n> ", strings.TrimRight(prompt, "\n"))
	}
	return t.ReadLine(ctx)
}

// ReadLine returns the next trimmed input line.
func (t *Terminal) ReadLine(ctx context.Context) (string, error) {
	t.start()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l := <-t.lines:
		if l.err != nil {
			return "", l.err
		}
		return strings.TrimSpace(l.text), nil
	}
}

// Printf writes to the operator's output.
func (t *Terminal) Printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}
