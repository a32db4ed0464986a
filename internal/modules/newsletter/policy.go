package newsletter

import "github.com/mx-space/newsletter/internal/config"

// Subscriber is the policy's view of a stored, non-deleted record.
type Subscriber struct {
	ID         string
	Email      string
	FirstName  string
	LastName   string
	MailActive bool
	MailHTML   bool
	// GroupCount is zero both for a list that was never assigned and for one
	// that was cleared.
	GroupCount int
}

// SubscribeInput carries the submitted subscribe form.
type SubscribeInput struct {
	Email         string
	FirstName     string
	LastName      string
	WantsHTMLMail bool
	Honeypot      string
	StoragePID    int
}

// SubscriberDraft is a record the caller must create.
type SubscriberDraft struct {
	Email      string
	FirstName  string
	LastName   string
	MailActive bool
	MailHTML   bool
	StoragePID int
}

type SubscribeKind string

const (
	SubscribeCreated       SubscribeKind = "created"
	SubscribeActivated     SubscribeKind = "activated"
	SubscribeAlreadyActive SubscribeKind = "already_active"
	SubscribeRejected      SubscribeKind = "rejected"
)

// RejectReasonSpam marks a submission with a filled honeypot.
const RejectReasonSpam = "spam"

// SubscribeOutcome is the decision for a subscribe submission. Draft is set
// for SubscribeCreated, SubscriberID for Activated and AlreadyActive.
type SubscribeOutcome struct {
	Kind         SubscribeKind
	SubscriberID string
	Draft        *SubscriberDraft
	Reason       string
}

type UnsubscribeKind string

const (
	UnsubscribeNotFound        UnsubscribeKind = "not_found"
	UnsubscribeAlreadyInactive UnsubscribeKind = "already_inactive"
	UnsubscribeDeactivated     UnsubscribeKind = "deactivated"
)

// UnsubscribeOutcome is the decision for an unsubscribe submission.
type UnsubscribeOutcome struct {
	Kind         UnsubscribeKind
	SubscriberID string
	Purge        bool
	Notify       bool
}

// EvaluateSubscribe decides what a subscribe submission does. lookup is the
// live record with the submitted email, or nil.
func EvaluateSubscribe(lookup *Subscriber, input SubscribeInput) SubscribeOutcome {
	if input.Honeypot != "" {
		return SubscribeOutcome{Kind: SubscribeRejected, Reason: RejectReasonSpam}
	}

	if lookup != nil {
		if !lookup.MailActive {
			return SubscribeOutcome{Kind: SubscribeActivated, SubscriberID: lookup.ID}
		}
		return SubscribeOutcome{Kind: SubscribeAlreadyActive, SubscriberID: lookup.ID}
	}

	return SubscribeOutcome{
		Kind: SubscribeCreated,
		Draft: &SubscriberDraft{
			Email:      input.Email,
			FirstName:  input.FirstName,
			LastName:   input.LastName,
			MailActive: true,
			MailHTML:   input.WantsHTMLMail,
			StoragePID: input.StoragePID,
		},
	}
}

// EvaluateUnsubscribe decides what an unsubscribe submission does. The
// caller applies a Deactivated outcome as: clear mail_active, then purge if
// requested, then notify.
func EvaluateUnsubscribe(lookup *Subscriber) UnsubscribeOutcome {
	if lookup == nil {
		return UnsubscribeOutcome{Kind: UnsubscribeNotFound}
	}
	if !lookup.MailActive {
		return UnsubscribeOutcome{Kind: UnsubscribeAlreadyInactive, SubscriberID: lookup.ID}
	}
	return UnsubscribeOutcome{
		Kind:         UnsubscribeDeactivated,
		SubscriberID: lookup.ID,
		Purge:        lookup.GroupCount == 0,
		Notify:       true,
	}
}

// ResolveStoragePID picks where a new record lives: the page of the content
// element that rendered the form, then the configured default, then 1.
func ResolveStoragePID(contentPID, configuredPID int) int {
	if contentPID > 0 {
		return contentPID
	}
	if configuredPID > 0 {
		return configuredPID
	}
	return config.DefaultStoragePID
}
