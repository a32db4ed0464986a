package newsletter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateSubscribe(t *testing.T) {
	input := SubscribeInput{Email: "a@x.com", FirstName: "A", LastName: "B", StoragePID: 7}

	cases := []struct {
		name   string
		lookup *Subscriber
		input  SubscribeInput
		want   SubscribeOutcome
	}{
		{
			name:  "new email creates",
			input: input,
			want: SubscribeOutcome{
				Kind: SubscribeCreated,
				Draft: &SubscriberDraft{
					Email:      "a@x.com",
					FirstName:  "A",
					LastName:   "B",
					MailActive: true,
					StoragePID: 7,
				},
			},
		},
		{
			name:   "inactive record is activated",
			lookup: &Subscriber{ID: "1", Email: "a@x.com", FirstName: "Old", MailActive: false},
			input:  input,
			want:   SubscribeOutcome{Kind: SubscribeActivated, SubscriberID: "1"},
		},
		{
			name:   "active record is left alone",
			lookup: &Subscriber{ID: "1", Email: "a@x.com", MailActive: true, GroupCount: 2},
			input:  input,
			want:   SubscribeOutcome{Kind: SubscribeAlreadyActive, SubscriberID: "1"},
		},
		{
			name:  "honeypot without lookup",
			input: SubscribeInput{Email: "a@x.com", Honeypot: "bot"},
			want:  SubscribeOutcome{Kind: SubscribeRejected, Reason: RejectReasonSpam},
		},
		{
			name:   "honeypot beats existing record",
			lookup: &Subscriber{ID: "1", MailActive: false},
			input:  SubscribeInput{Honeypot: " "},
			want:   SubscribeOutcome{Kind: SubscribeRejected, Reason: RejectReasonSpam},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EvaluateSubscribe(tc.lookup, tc.input))
		})
	}
}

func TestEvaluateSubscribeCarriesHTMLPreference(t *testing.T) {
	out := EvaluateSubscribe(nil, SubscribeInput{Email: "a@x.com", WantsHTMLMail: true})
	require.NotNil(t, out.Draft)
	assert.True(t, out.Draft.MailHTML)
	assert.True(t, out.Draft.MailActive)
}

func TestEvaluateSubscribeDoesNotTouchLookup(t *testing.T) {
	lookup := &Subscriber{ID: "1", FirstName: "Old", LastName: "Name", MailActive: false}
	before := *lookup

	out := EvaluateSubscribe(lookup, SubscribeInput{Email: "a@x.com", FirstName: "New", LastName: "Person"})
	assert.Equal(t, SubscribeActivated, out.Kind)
	assert.Nil(t, out.Draft)
	assert.Equal(t, before, *lookup)
}

func TestEvaluateUnsubscribe(t *testing.T) {
	cases := []struct {
		name   string
		lookup *Subscriber
		want   UnsubscribeOutcome
	}{
		{
			name: "absent",
			want: UnsubscribeOutcome{Kind: UnsubscribeNotFound},
		},
		{
			name:   "inactive",
			lookup: &Subscriber{ID: "1", MailActive: false},
			want:   UnsubscribeOutcome{Kind: UnsubscribeAlreadyInactive, SubscriberID: "1"},
		},
		{
			name:   "active without groups is purged",
			lookup: &Subscriber{ID: "1", Email: "a@x.com", MailActive: true},
			want:   UnsubscribeOutcome{Kind: UnsubscribeDeactivated, SubscriberID: "1", Purge: true, Notify: true},
		},
		{
			name:   "active with groups is kept",
			lookup: &Subscriber{ID: "1", MailActive: true, GroupCount: 1},
			want:   UnsubscribeOutcome{Kind: UnsubscribeDeactivated, SubscriberID: "1", Purge: false, Notify: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EvaluateUnsubscribe(tc.lookup))
		})
	}
}

func TestEvaluateUnsubscribeNotifiesOnce(t *testing.T) {
	// Grouped records survive the first call inactive.
	rec := &Subscriber{ID: "1", MailActive: true, GroupCount: 1}
	first := EvaluateUnsubscribe(rec)
	require.Equal(t, UnsubscribeDeactivated, first.Kind)
	rec.MailActive = false

	second := EvaluateUnsubscribe(rec)
	assert.Equal(t, UnsubscribeAlreadyInactive, second.Kind)
	assert.False(t, second.Notify)

	// Purged records disappear from lookups.
	rec = &Subscriber{ID: "2", MailActive: true}
	first = EvaluateUnsubscribe(rec)
	require.True(t, first.Purge)

	second = EvaluateUnsubscribe(nil)
	assert.Equal(t, UnsubscribeNotFound, second.Kind)
	assert.False(t, second.Notify)
}

func TestResolveStoragePID(t *testing.T) {
	assert.Equal(t, 42, ResolveStoragePID(42, 5))
	assert.Equal(t, 5, ResolveStoragePID(0, 5))
	assert.Equal(t, 1, ResolveStoragePID(0, 0))
	assert.Equal(t, 1, ResolveStoragePID(-3, -1))
}
