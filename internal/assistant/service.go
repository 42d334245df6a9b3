package assistant

import (
	"context"
	"errors"
	"log/slog"

	"ainstein.io/internal/auth"
	"ainstein.io/prm"
)

// ErrLimitReached is returned when the organization's AI token budget is
// exhausted.
var ErrLimitReached = errors.New("assistant: ai token limit reached")

// Completer is satisfied by *Client. Tests swap in a stub.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (Reply, error)
}

// Service gates assistant access on the subscription's AI token budget and
// records consumption after each exchange.
type Service struct {
	llm  Completer
	subs auth.SubscriptionStore
	log  *slog.Logger
}

func NewService(llm Completer, subs auth.SubscriptionStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{llm: llm, subs: subs, log: log}
}

// Chat checks the organization's token budget, forwards the conversation and
// meters the tokens the exchange consumed. Metering failures are logged but
// do not fail the request; the answer has already been produced.
func (s *Service) Chat(ctx context.Context, orgID string, messages []Message) (Reply, error) {
	plan, err := s.subs.FindByOrg(ctx, orgID)
	if err != nil {
		return Reply{}, err
	}
	if !plan.CanAdd(prm.ResourceAITokens) {
		return Reply{}, ErrLimitReached
	}

	reply, err := s.llm.Complete(ctx, messages)
	if err != nil {
		return Reply{}, err
	}

	if reply.TokensUsed > 0 {
		if err := s.subs.AddUsage(ctx, orgID, prm.ResourceAITokens, reply.TokensUsed); err != nil {
			s.log.Error("record ai token usage", "org_id", orgID, "err", err)
		}
	}
	return reply, nil
}
