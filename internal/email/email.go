// Package email renders and delivers transactional notifications. Delivery
// is fire-and-forget: failures are logged, never surfaced to the operation
// that triggered them. Sends are rate-limited; per-(recipient,conversation)
// message notifications are debounced through the cache.
package email

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/skillswap/swapd/internal/cache"
)

// Sender delivers one rendered email.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

const (
	sendTimeout = 10 * time.Second

	// MessageDebounce is the per-(recipient, conversation) window.
	MessageDebounce = 15 * time.Minute
	// MatchDedupe is the per-unordered-pair window for match emails.
	MatchDedupe = 24 * time.Hour
)

// Service renders templates and dispatches them through the Sender.
type Service struct {
	sender Sender
	cache  cache.Cache
	appURL string
	sent   *prometheus.CounterVec

	limiter *rate.Limiter
	// async controls whether dispatch detaches; tests run synchronous.
	async bool
}

// New builds the notification service. A nil sender disables delivery
// entirely (sends become debug logs).
func New(sender Sender, c cache.Cache, appURL string, async bool) *Service {
	return &Service{
		sender:  sender,
		cache:   c,
		appURL:  appURL,
		limiter: rate.NewLimiter(rate.Limit(2), 5),
		async:   async,
	}
}

// Instrument counts delivered emails by kind. Nil leaves delivery uncounted.
func (s *Service) Instrument(sent *prometheus.CounterVec) *Service {
	s.sent = sent
	return s
}

// dispatch runs the send under the rate limiter. The triggering request is
// not kept waiting: async mode detaches with a fresh deadline.
func (s *Service) dispatch(kind, to, subject, html string) {
	if s.sender == nil {
		log.Debug().Str("kind", kind).Str("to", to).Msg("Email delivery disabled, skipping")
		return
	}
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := s.limiter.Wait(ctx); err != nil {
			log.Warn().Err(err).Str("kind", kind).Msg("Email rate limit wait aborted")
			return
		}
		if err := s.sender.Send(ctx, to, subject, html); err != nil {
			log.Warn().Err(err).Str("kind", kind).Str("to", to).Msg("Email send failed")
			return
		}
		if s.sent != nil {
			s.sent.WithLabelValues(kind).Inc()
		}
		log.Debug().Str("kind", kind).Str("to", to).Msg("Email sent")
	}
	if s.async {
		go run()
	} else {
		run()
	}
}

// SendWelcome greets a first-time profile.
func (s *Service) SendWelcome(to, name string) {
	subject := "Welcome to the skill exchange!"
	s.dispatch("welcome", to, subject, renderWelcome(name, s.appURL))
}

// SendSwapRequest notifies the recipient of a new proposal.
func (s *Service) SendSwapRequest(to, recipientName, requesterName, need string) {
	subject := fmt.Sprintf("%s wants to swap skills with you", requesterName)
	s.dispatch("swap_request", to, subject, renderSwapRequest(recipientName, requesterName, need, s.appURL))
}

// SendSwapAccepted notifies the requester their proposal was accepted.
func (s *Service) SendSwapAccepted(to, requesterName, recipientName string) {
	subject := fmt.Sprintf("%s accepted your swap request", recipientName)
	s.dispatch("swap_accepted", to, subject, renderSwapAccepted(requesterName, recipientName, s.appURL))
}

// SendSwapDeclined notifies the requester their proposal was declined.
func (s *Service) SendSwapDeclined(to, requesterName, recipientName string) {
	subject := "Your swap request was declined"
	s.dispatch("swap_declined", to, subject, renderSwapDeclined(requesterName, recipientName, s.appURL))
}

// SendCompletionPending asks the second party to confirm, naming the
// auto-complete deadline.
func (s *Service) SendCompletionPending(to, name, otherName string, deadline time.Time) {
	subject := fmt.Sprintf("%s marked your swap as complete", otherName)
	s.dispatch("completion_pending", to, subject, renderCompletionPending(name, otherName, deadline, s.appURL))
}

// SendSwapCompleted reports the settlement outcome.
func (s *Service) SendSwapCompleted(to, name string, points, credits int) {
	subject := "Swap completed!"
	s.dispatch("swap_completed", to, subject, renderSwapCompleted(name, points, credits, s.appURL))
}

// SendDisputeOpened notifies the other party a dispute was filed.
func (s *Service) SendDisputeOpened(to, name, reason string) {
	subject := "A swap completion was disputed"
	s.dispatch("dispute_opened", to, subject, renderDisputeOpened(name, reason, s.appURL))
}

// SendNewMessage notifies about unread messages, at most once per window
// per (recipient, conversation).
func (s *Service) SendNewMessage(to, recipientUID, senderName, conversationID, preview string) {
	key := fmt.Sprintf("msg_notify:%s:%s", recipientUID, conversationID)
	if s.cache != nil && !s.cache.SetNX(key, []byte("1"), MessageDebounce) {
		log.Debug().Str("to", to).Str("conversation", conversationID).Msg("Message email debounced")
		return
	}
	subject := fmt.Sprintf("New message from %s", senderName)
	s.dispatch("new_message", to, subject, renderNewMessage(senderName, preview, s.appURL))
}

// SendMatchFound announces a strong reciprocal match. The cache key covers
// the unordered pair so both directions share one window.
func (s *Service) SendMatchFound(to, name, matchName string, score float64, pairKey string) {
	if s.cache != nil && pairKey != "" {
		if !s.cache.SetNX("match_notify:"+pairKey, []byte("1"), MatchDedupe) {
			log.Debug().Str("pair", pairKey).Msg("Match email deduped")
			return
		}
	}
	subject := fmt.Sprintf("You have a new skill match: %s", matchName)
	s.dispatch("match_found", to, subject, renderMatchFound(name, matchName, score, s.appURL))
}
