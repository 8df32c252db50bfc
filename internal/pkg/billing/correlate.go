package billing

import (
	"fmt"
	"strings"

	"github.com/ConradBeck/ReelForge/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// CorrelateByCustomer recovers the target subscription for an event that
// carries no explicit subscription id. Among the customer's rows still in
// incomplete or pending, the most recently created one is picked.
//
// This is a best-effort heuristic, not a guaranteed-correct join: two
// concurrently pending subscriptions for the same customer cannot be
// disambiguated with confidence, and the engine accepts that ambiguity.
func (s *Service) CorrelateByCustomer(stripeCustomerID string) (*models.Subscription, error) {
	customer := strings.TrimSpace(stripeCustomerID)
	if customer == "" {
		return nil, fmt.Errorf("%w: empty customer id", ErrCorrelationNotFound)
	}

	subs, err := s.repo.ListOpenSubscriptionsByCustomer(customer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if len(subs) == 0 {
		log.Infof("[Billing] No open subscription for customer %s, dropping uncorrelated event", customer)
		return nil, fmt.Errorf("%w: customer %q", ErrCorrelationNotFound, customer)
	}
	if len(subs) > 1 {
		log.Warnf("[Billing] %d open subscriptions for customer %s, picking the newest", len(subs), customer)
	}
	return &subs[0], nil
}
