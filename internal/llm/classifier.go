package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
	"github.com/ledgerloom/ledgerloom/internal/service"
)

// UsageRecorder receives per-call cost and latency for the budget tracker.
type UsageRecorder interface {
	RecordLLMUsage(ctx context.Context, usage *model.LLMUsage) error
}

// FallbackClassifier asks an LLM for an account when rules are silent and
// similarity is below the consult threshold. A timeout, cancellation, or
// exhausted retry is reported as ErrSourceUnavailable, never a hard failure.
type FallbackClassifier struct {
	client    Client
	cache     *opinionCache
	limiter   *rateLimiter
	usage     UsageRecorder
	logger    *slog.Logger
	retryOpts service.RetryOptions
	costCents int64
}

// NewFallbackClassifier creates an LLM-backed classification source.
func NewFallbackClassifier(cfg Config, usage UsageRecorder, logger *slog.Logger) (*FallbackClassifier, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	retryOpts := service.RetryOptions{
		// One retry with backoff, then the source is treated as absent.
		MaxAttempts:  2,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &FallbackClassifier{
		client:    client,
		cache:     newOpinionCache(cfg.CacheTTL),
		limiter:   newRateLimiter(cfg.RateLimit),
		usage:     usage,
		logger:    logger,
		retryOpts: retryOpts,
		costCents: cfg.CostPerCallCents,
	}, nil
}

// Classify returns the LLM's opinion for a transaction given the candidate
// chart of accounts.
func (c *FallbackClassifier) Classify(ctx context.Context, txn model.Transaction, accounts []model.Account) (*model.SourceOpinion, error) {
	if opinion, found := c.cache.get(txn.Hash); found {
		c.logger.Debug("llm cache hit", "transaction_id", txn.ID)
		return &opinion, nil
	}

	if err := c.limiter.wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrSourceUnavailable, err)
	}

	candidates := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		candidates[a.Code] = true
	}

	prompt := buildPrompt(txn, accounts)
	start := time.Now()

	var response ClassificationResponse
	err := common.WithRetry(ctx, func() error {
		resp, callErr := c.client.Classify(ctx, prompt)
		if callErr != nil {
			c.logger.Warn("llm classification attempt failed",
				"transaction_id", txn.ID,
				"error", callErr)
			return &common.RetryableError{Err: callErr, Retryable: true}
		}
		if !candidates[resp.Account] {
			return &common.RetryableError{
				Err:       fmt.Errorf("account %q is not a candidate", resp.Account),
				Retryable: true,
			}
		}
		response = resp
		return nil
	}, c.retryOpts)

	latency := time.Since(start)
	c.recordUsage(ctx, txn.ID, latency)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: call canceled", common.ErrSourceUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrSourceUnavailable, err)
	}

	opinion := model.SourceOpinion{
		Source:          model.SourceLLM,
		ProposedAccount: response.Account,
		RawConfidence:   response.Confidence,
		Rationale:       response.Rationale,
		LatencyMS:       latency.Milliseconds(),
	}
	c.cache.set(txn.Hash, opinion)

	c.logger.Info("llm classified transaction",
		"transaction_id", txn.ID,
		"account", opinion.ProposedAccount,
		"confidence", opinion.RawConfidence,
		"latency_ms", opinion.LatencyMS)

	return &opinion, nil
}

// CostCents reports the configured per-call cost estimate.
func (c *FallbackClassifier) CostCents() int64 {
	return c.costCents
}

// recordUsage logs call cost and latency for the external budget tracker.
func (c *FallbackClassifier) recordUsage(ctx context.Context, txnID string, latency time.Duration) {
	if c.usage == nil {
		return
	}
	usage := &model.LLMUsage{
		TransactionID: txnID,
		Provider:      c.client.Provider(),
		Model:         c.client.Model(),
		LatencyMS:     latency.Milliseconds(),
		CostCents:     c.costCents,
		CreatedAt:     time.Now(),
	}
	if err := c.usage.RecordLLMUsage(ctx, usage); err != nil {
		c.logger.Warn("failed to record llm usage", "error", err)
	}
}

// Close stops background goroutines and cleans up resources.
func (c *FallbackClassifier) Close() error {
	if c.cache != nil {
		c.cache.Close()
	}
	if c.limiter != nil {
		c.limiter.Close()
	}
	return nil
}

// buildPrompt creates the classification prompt: transaction details plus the
// structured candidate account list.
func buildPrompt(txn model.Transaction, accounts []model.Account) string {
	var list strings.Builder
	for _, a := range accounts {
		if !a.IsActive {
			continue
		}
		fmt.Fprintf(&list, "- %s: %s (%s)\n", a.Code, a.Name, a.Type)
	}

	details := fmt.Sprintf("Description: %s\nAmount: %s\nDate: %s",
		txn.RawDescription,
		txn.Amount.String(),
		txn.Date.Format("2006-01-02"))
	if txn.MerchantName != "" {
		details += fmt.Sprintf("\nMerchant: %s", txn.MerchantName)
	}
	if txn.Type != "" {
		details += fmt.Sprintf("\nTransaction Type: %s", txn.Type)
	}

	return fmt.Sprintf(`Assign this bank transaction to exactly one ledger account from the candidate list.

Transaction Details:
%s

Candidate Accounts:
%s
Instructions:
1. Choose the single best account code from the candidates. Never invent a code.
2. Base the choice on what the transaction IS, not assumptions about intent.
3. Respond with ONLY this JSON object:
{"account": "<account code>", "confidence": <0.0-1.0>, "rationale": "<one short sentence>"}`,
		details,
		list.String())
}
