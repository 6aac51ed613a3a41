package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/migration"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// ErrConsentDeferred means the owner chose to decide another time.
var ErrConsentDeferred = errors.New("decision deferred")

// ErrInputTerminated is returned when input ends before a valid answer.
var ErrInputTerminated = errors.New("input terminated")

// ConsentPrompter asks on a terminal whether to migrate legacy data.
type ConsentPrompter struct {
	reader *NonBlockingReader
	writer io.Writer
}

// NewConsentPrompter creates a prompter reading answers from reader. Nil
// arguments default to stdin and stdout.
func NewConsentPrompter(reader io.Reader, writer io.Writer) *ConsentPrompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &ConsentPrompter{
		reader: NewNonBlockingReader(reader),
		writer: writer,
	}
}

// Ask shows plan and waits for an answer. It satisfies migration.ConsentFunc.
func (p *ConsentPrompter) Ask(ctx context.Context, plan *model.MigrationPlan) (migration.Decision, error) {
	if _, err := fmt.Fprintln(p.writer, RenderPlan(plan)); err != nil {
		return migration.DecisionDecline, fmt.Errorf("failed to write plan: %w", err)
	}

	options := []string{
		"  [M] Move them into your current ledger now",
		"  [L] Decide later",
		"  [N] Never, keep them where they are",
	}
	for _, line := range options {
		if _, err := fmt.Fprintln(p.writer, line); err != nil {
			return migration.DecisionDecline, fmt.Errorf("failed to write options: %w", err)
		}
	}

	choice, err := p.promptChoice(ctx, "Choice", []string{"m", "l", "n"})
	if err != nil {
		return migration.DecisionDecline, err
	}

	switch choice {
	case "m":
		return migration.DecisionProceed, nil
	case "n":
		return migration.DecisionDecline, nil
	default:
		return migration.DecisionDecline, ErrConsentDeferred
	}
}

func (p *ConsentPrompter) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		if _, err := fmt.Fprintf(p.writer, "%s ", FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		input, err := p.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrInputTerminated
			}
			return "", err
		}

		choice := strings.ToLower(input)
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}

		if _, err := fmt.Fprintln(p.writer, FormatError("Invalid choice. Please try again.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}

// AutoConsent answers every consent request with decision, for
// non-interactive runs.
func AutoConsent(decision migration.Decision) migration.ConsentFunc {
	return func(context.Context, *model.MigrationPlan) (migration.Decision, error) {
		return decision, nil
	}
}
