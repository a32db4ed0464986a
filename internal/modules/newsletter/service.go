package newsletter

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mx-space/newsletter/internal/pkg/metrics"
	"go.uber.org/zap"
)

// Store persists subscriber records. Implementations must guarantee that
// concurrent creates for one email never leave two live records.
type Store interface {
	// FindActiveByEmail returns the live record for email, or nil, nil.
	FindActiveByEmail(ctx context.Context, email string) (*Subscriber, error)
	// Create inserts draft atomically and returns the new id. A live record
	// with the same email yields ErrDuplicateEmail.
	Create(ctx context.Context, draft SubscriberDraft) (string, error)
	SetMailActive(ctx context.Context, id string, active bool) error
	// Deactivate clears the mail flag and, with purge, soft-deletes the
	// record. Both changes commit together or not at all.
	Deactivate(ctx context.Context, id string, purge bool) error
}

// UnsubscribeNotice is what the administrator is told about an unsubscribe.
// HadGroups reflects memberships before any purge.
type UnsubscribeNotice struct {
	FirstName string
	LastName  string
	Email     string
	HadGroups bool
}

// Notifier delivers unsubscribe notices.
type Notifier interface {
	SendUnsubscribeNotice(ctx context.Context, notice UnsubscribeNotice) error
}

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// Service runs the subscription workflow against its collaborators.
type Service struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
	validate *validator.Validate
}

func NewService(store Store, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		validate: validator.New(),
	}
}

// Subscribe evaluates and applies a subscribe submission. Business results
// are reported through the outcome; the error is a *ValidationError or an
// *IntegrationError.
func (s *Service) Subscribe(ctx context.Context, input SubscribeInput) (SubscribeOutcome, error) {
	if input.Honeypot != "" {
		outcome := EvaluateSubscribe(nil, input)
		s.logger.Warn("subscribe rejected",
			zap.String("reason", outcome.Reason),
			zap.Error(ErrSpamRejected),
		)
		s.record(actionSubscribe, string(outcome.Kind))
		return outcome, nil
	}

	input.Email = strings.TrimSpace(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if err := s.validateEmail(input.Email); err != nil {
		return SubscribeOutcome{}, err
	}

	outcome, err := s.subscribe(ctx, input, true)
	if err != nil {
		return SubscribeOutcome{}, err
	}
	s.logger.Info("subscribe",
		zap.String("email", input.Email),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("subscriber_id", outcome.SubscriberID),
	)
	s.record(actionSubscribe, string(outcome.Kind))
	return outcome, nil
}

func (s *Service) subscribe(ctx context.Context, input SubscribeInput, retryOnConflict bool) (SubscribeOutcome, error) {
	lookup, err := s.store.FindActiveByEmail(ctx, input.Email)
	if err != nil {
		return SubscribeOutcome{}, s.integration("find", err)
	}

	outcome := EvaluateSubscribe(lookup, input)
	switch outcome.Kind {
	case SubscribeCreated:
		if err := validateNames(input); err != nil {
			return SubscribeOutcome{}, err
		}
		id, err := s.store.Create(ctx, *outcome.Draft)
		if errors.Is(err, ErrDuplicateEmail) && retryOnConflict {
			// Lost a create race; the winner's record decides.
			return s.subscribe(ctx, input, false)
		}
		if err != nil {
			return SubscribeOutcome{}, s.integration("create", err)
		}
		outcome.SubscriberID = id
	case SubscribeActivated:
		if err := s.store.SetMailActive(ctx, outcome.SubscriberID, true); err != nil {
			return SubscribeOutcome{}, s.integration("update", err)
		}
	}
	return outcome, nil
}

// Unsubscribe evaluates and applies an unsubscribe submission. A failed
// notice is logged and does not undo the store changes.
func (s *Service) Unsubscribe(ctx context.Context, email string) (UnsubscribeOutcome, error) {
	email = strings.TrimSpace(email)
	if err := s.validateEmail(email); err != nil {
		return UnsubscribeOutcome{}, err
	}

	lookup, err := s.store.FindActiveByEmail(ctx, email)
	if err != nil {
		return UnsubscribeOutcome{}, s.integration("find", err)
	}

	outcome := EvaluateUnsubscribe(lookup)
	if outcome.Kind == UnsubscribeDeactivated {
		if err := s.store.Deactivate(ctx, outcome.SubscriberID, outcome.Purge); err != nil {
			return UnsubscribeOutcome{}, s.integration("deactivate", err)
		}
		if outcome.Notify {
			s.notify(ctx, UnsubscribeNotice{
				FirstName: lookup.FirstName,
				LastName:  lookup.LastName,
				Email:     lookup.Email,
				HadGroups: lookup.GroupCount > 0,
			})
		}
	}

	s.logger.Info("unsubscribe",
		zap.String("email", email),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("subscriber_id", outcome.SubscriberID),
		zap.Bool("purged", outcome.Purge),
	)
	s.record(actionUnsubscribe, string(outcome.Kind))
	return outcome, nil
}

func (s *Service) notify(ctx context.Context, notice UnsubscribeNotice) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendUnsubscribeNotice(ctx, notice); err != nil {
		metrics.NoticeFailuresTotal.Inc()
		s.logger.Error("unsubscribe notice failed",
			zap.String("email", notice.Email),
			zap.Error(integrationError("notify", err)),
		)
	}
}

func (s *Service) validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Fields: []string{"email"}}
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return &ValidationError{Fields: []string{"email"}}
	}
	return nil
}

func validateNames(input SubscribeInput) error {
	var missing []string
	if input.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if input.LastName == "" {
		missing = append(missing, "last_name")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

func (s *Service) integration(op string, err error) error {
	metrics.IntegrationErrorsTotal.WithLabelValues(op).Inc()
	s.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return integrationError(op, err)
}

func (s *Service) record(action, outcome string) {
	metrics.OutcomesTotal.WithLabelValues(action, outcome).Inc()
}
