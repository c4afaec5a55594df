package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// ErrReviewQuit is returned when the reviewer ends the session early.
var ErrReviewQuit = errors.New("review session ended")

// ReviewAction is what the reviewer decided for one queued decision.
type ReviewAction int

// Review actions.
const (
	ReviewAccepted ReviewAction = iota
	ReviewCorrected
	ReviewSkipped
)

// ReviewPrompter walks a human through the review queue: each decision the
// gate routed to review is shown with its evidence, and the reviewer either
// confirms the proposed account or corrects it.
type ReviewPrompter struct {
	startTime   time.Time
	writer      io.Writer
	reader      *lineReader
	progressBar *progressbar.ProgressBar
	total       int
	accepted    int
	corrected   int
	skipped     int
}

// NewReviewPrompter creates a review prompter over the given streams.
func NewReviewPrompter(reader io.Reader, writer io.Writer) *ReviewPrompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &ReviewPrompter{
		reader:    newLineReader(reader),
		writer:    writer,
		startTime: time.Now(),
	}
}

// StartSession announces the queue size and sets up the progress bar.
func (p *ReviewPrompter) StartSession(total int) {
	p.total = total
	if _, err := fmt.Fprintln(p.writer, FormatTitle(fmt.Sprintf("Reviewing %d queued decisions", total))); err != nil {
		slog.Warn("Failed to write session header", "error", err)
	}
	p.progressBar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Reviewing decisions...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// Review prompts for one queued decision and returns the action taken and
// the account the reviewer settled on (empty when skipped).
func (p *ReviewPrompter) Review(ctx context.Context, txn model.Transaction, decision model.Decision, accounts []model.Account) (ReviewAction, string, error) {
	select {
	case <-ctx.Done():
		return ReviewSkipped, "", ctx.Err()
	default:
	}

	if p.progressBar != nil {
		if err := p.progressBar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}

	if _, err := fmt.Fprintln(p.writer, RenderBox("Decision Under Review", p.formatDecision(txn, decision))); err != nil {
		return ReviewSkipped, "", fmt.Errorf("failed to write decision box: %w", err)
	}

	fmt.Fprintln(p.writer, FormatPrompt("Options:"))
	if decision.ProposedAccount != "" {
		fmt.Fprintf(p.writer, "  [A] Accept proposed account: %s\n", SuccessStyle.Render(decision.ProposedAccount))
	}
	for i, account := range accounts {
		fmt.Fprintf(p.writer, "  [%d] %s %s\n", i+1, account.Code, account.Name)
	}
	fmt.Fprintln(p.writer, "  [S] Skip this transaction")
	fmt.Fprintln(p.writer, "  [Q] Quit the session")
	fmt.Fprintln(p.writer)

	for {
		fmt.Fprint(p.writer, FormatPrompt("Choice"))
		line, err := p.reader.ReadLine(ctx)
		if err != nil {
			return ReviewSkipped, "", err
		}

		switch choice := strings.ToLower(strings.TrimSpace(line)); choice {
		case "a":
			if decision.ProposedAccount == "" {
				break
			}
			p.accepted++
			return ReviewAccepted, decision.ProposedAccount, nil
		case "s":
			p.skipped++
			return ReviewSkipped, "", nil
		case "q":
			return ReviewSkipped, "", ErrReviewQuit
		default:
			if idx, convErr := strconv.Atoi(choice); convErr == nil && idx >= 1 && idx <= len(accounts) {
				account := accounts[idx-1].Code + " " + accounts[idx-1].Name
				if account == decision.ProposedAccount {
					p.accepted++
					return ReviewAccepted, account, nil
				}
				p.corrected++
				return ReviewCorrected, account, nil
			}
		}
		fmt.Fprintln(p.writer, FormatWarning("Invalid choice, try again"))
	}
}

// Summary prints the session tallies.
func (p *ReviewPrompter) Summary() {
	elapsed := time.Since(p.startTime).Round(time.Second)
	lines := []string{
		fmt.Sprintf("Accepted:  %d", p.accepted),
		fmt.Sprintf("Corrected: %d", p.corrected),
		fmt.Sprintf("Skipped:   %d", p.skipped),
		SubtleStyle.Render(fmt.Sprintf("Session time: %s", elapsed)),
	}
	if _, err := fmt.Fprintln(p.writer, RenderBox("Review Summary", strings.Join(lines, "\n"))); err != nil {
		slog.Warn("Failed to write review summary", "error", err)
	}
}

func (p *ReviewPrompter) formatDecision(txn model.Transaction, decision model.Decision) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n", txn.Date.Format("2006-01-02"), BoldStyle.Render(txn.MerchantName))
	fmt.Fprintf(&b, "Amount:      %s\n", txn.Amount.StringFixed(2))
	if txn.RawDescription != txn.MerchantName {
		fmt.Fprintf(&b, "Description: %s\n", SubtleStyle.Render(txn.RawDescription))
	}
	fmt.Fprintln(&b)

	if decision.ProposedAccount != "" {
		fmt.Fprintf(&b, "Proposed:    %s\n", decision.ProposedAccount)
	} else {
		fmt.Fprintf(&b, "Proposed:    %s\n", WarningStyle.Render("no opinion"))
	}
	fmt.Fprintf(&b, "Confidence:  %.2f (threshold %.2f)\n", decision.CalibratedP, decision.ThresholdUsed)
	fmt.Fprintf(&b, "Routed for:  %s", WarningStyle.Render(decision.ReasonString()))

	for _, opinion := range decision.Sources {
		fmt.Fprintf(&b, "\n  %-10s %s (%.2f)", strings.ToLower(string(opinion.Source)), opinion.ProposedAccount, opinion.RawConfidence)
	}

	return b.String()
}
