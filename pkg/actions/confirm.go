package actions

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"skeeterdeleter/pkg/criteria"
	"skeeterdeleter/pkg/models"
)

// ErrNotTerminal is returned when interactive confirmation has no terminal
var ErrNotTerminal = errors.New("stdin is not a terminal; pass --yes to run without prompts")

// maxListed bounds the items printed in a prompt
const maxListed = 10

// PromptConfirmer asks on a line-oriented reader and writer
type PromptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPromptConfirmer reads answers from in and writes prompts to out
func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

// NewTerminalConfirmer prompts on the process's terminal. It fails when
// stdin is redirected, since nobody could answer.
func NewTerminalConfirmer() (*PromptConfirmer, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, ErrNotTerminal
	}
	return NewPromptConfirmer(os.Stdin, os.Stdout), nil
}

// Confirm lists the items and asks until the answer is Y or n
func (c *PromptConfirmer) Confirm(ctx context.Context, decision criteria.Decision, items []models.FeedItem) (bool, error) {
	fmt.Fprintf(c.out, "\n%d item(s) to %s:\n", len(items), verb(decision))
	for i, item := range items {
		if i == maxListed {
			fmt.Fprintf(c.out, "  ... and %d more\n", len(items)-maxListed)
			break
		}
		fmt.Fprintf(c.out, "  %s  %s\n", describe(item), item.Text)
	}

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Proceed to %s these %d item(s)? [Y/n] ", verb(decision), len(items))

		line, err := c.in.ReadString('\n')
		switch strings.TrimSpace(line) {
		case "Y":
			return true, nil
		case "n":
			return false, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, fmt.Errorf("no answer: %w", io.ErrUnexpectedEOF)
			}
			return false, err
		}
		fmt.Fprintln(c.out, "Please answer Y or n.")
	}
}

func verb(decision criteria.Decision) string {
	switch decision {
	case criteria.Unlike:
		return "unlike"
	case criteria.Delete:
		return "delete"
	case criteria.UndoRepost:
		return "undo repost of"
	default:
		return decision.String()
	}
}

func describe(item models.FeedItem) string {
	date := "unknown date"
	if !item.CreatedAt.IsZero() {
		date = item.CreatedAt.Format("2006-01-02")
	}
	return fmt.Sprintf("[%s %s] %s", item.Kind, date, item.URI)
}
