package newsletter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mx-space/newsletter/internal/pkg/metrics"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*Subscriber
	calls   []string
	nextID  int

	findErr   error
	createErr error
	updateErr error
	deleteErr error
	// beforeCreate runs once ahead of the next Create, outside the lock.
	beforeCreate func()
}

func newFakeStore(records ...*Subscriber) *fakeStore {
	s := &fakeStore{records: make(map[string]*Subscriber)}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *fakeStore) FindActiveByEmail(_ context.Context, email string) (*Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "find")
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, r := range s.records {
		if r.Email == email {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) Create(_ context.Context, draft SubscriberDraft) (string, error) {
	if hook := s.beforeCreate; hook != nil {
		s.beforeCreate = nil
		hook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "create")
	if s.createErr != nil {
		return "", s.createErr
	}
	for _, r := range s.records {
		if r.Email == draft.Email {
			return "", ErrDuplicateEmail
		}
	}
	s.nextID++
	id := fmt.Sprintf("id-%d", s.nextID)
	s.records[id] = &Subscriber{
		ID:         id,
		Email:      draft.Email,
		FirstName:  draft.FirstName,
		LastName:   draft.LastName,
		MailActive: draft.MailActive,
		MailHTML:   draft.MailHTML,
	}
	return id, nil
}

func (s *fakeStore) SetMailActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf("update:%t", active))
	if s.updateErr != nil {
		return s.updateErr
	}
	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	r.MailActive = active
	return nil
}

func (s *fakeStore) Deactivate(_ context.Context, id string, purge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if purge {
		s.calls = append(s.calls, "deactivate:purge")
	} else {
		s.calls = append(s.calls, "deactivate")
	}
	if s.updateErr != nil {
		return s.updateErr
	}
	if purge && s.deleteErr != nil {
		return s.deleteErr
	}
	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if purge {
		delete(s.records, id)
		return nil
	}
	r.MailActive = false
	return nil
}

func (s *fakeStore) put(r *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
}

type fakeNotifier struct {
	notices []UnsubscribeNotice
	err     error
}

func (n *fakeNotifier) SendUnsubscribeNotice(_ context.Context, notice UnsubscribeNotice) error {
	n.notices = append(n.notices, notice)
	return n.err
}

func validInput() SubscribeInput {
	return SubscribeInput{Email: "a@x.com", FirstName: "A", LastName: "B", StoragePID: 3}
}

func TestSubscribeCreatesNewRecord(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil, zap.NewNop())
	created := testutil.ToFloat64(metrics.OutcomesTotal.WithLabelValues(actionSubscribe, string(SubscribeCreated)))

	out, err := svc.Subscribe(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, SubscribeCreated, out.Kind)
	assert.Equal(t, "id-1", out.SubscriberID)
	require.NotNil(t, out.Draft)
	assert.Equal(t, "a@x.com", out.Draft.Email)
	assert.True(t, out.Draft.MailActive)
	assert.Equal(t, []string{"find", "create"}, store.calls)
	assert.Equal(t, created+1, testutil.ToFloat64(metrics.OutcomesTotal.WithLabelValues(actionSubscribe, string(SubscribeCreated))))
}

func TestSubscribeTrimsInput(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil, nil)

	out, err := svc.Subscribe(context.Background(), SubscribeInput{Email: "  a@x.com ", FirstName: " A", LastName: "B "})
	require.NoError(t, err)
	require.NotNil(t, out.Draft)
	assert.Equal(t, "a@x.com", out.Draft.Email)
	assert.Equal(t, "A", out.Draft.FirstName)
	assert.Equal(t, "B", out.Draft.LastName)
}

func TestSubscribeSpamMakesNoStoreCall(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := newFakeStore()
	svc := NewService(store, nil, zap.New(core))

	in := SubscribeInput{Email: "not an email", Honeypot: "bot"}
	out, err := svc.Subscribe(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, SubscribeRejected, out.Kind)
	assert.Equal(t, RejectReasonSpam, out.Reason)
	assert.Empty(t, store.calls)

	entries := logs.FilterMessage("subscribe rejected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, ErrSpamRejected.Error(), entries[0].ContextMap()["error"])
}

func TestSubscribeActivatesInactiveRecord(t *testing.T) {
	store := newFakeStore(&Subscriber{ID: "1", Email: "a@x.com", FirstName: "Old", LastName: "Name"})
	svc := NewService(store, nil, nil)

	out, err := svc.Subscribe(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, SubscribeActivated, out.Kind)
	assert.Equal(t, "1", out.SubscriberID)
	assert.Equal(t, []string{"find", "update:true"}, store.calls)
	assert.True(t, store.records["1"].MailActive)
	assert.Equal(t, "Old", store.records["1"].FirstName)
}

func TestSubscribeAlreadyActiveIsNoop(t *testing.T) {
	store := newFakeStore(&Subscriber{ID: "1", Email: "a@x.com", MailActive: true})
	svc := NewService(store, nil, nil)

	out, err := svc.Subscribe(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, SubscribeAlreadyActive, out.Kind)
	assert.Equal(t, []string{"find"}, store.calls)
}

func TestSubscribeValidation(t *testing.T) {
	cases := []struct {
		name   string
		input  SubscribeInput
		fields []string
		calls  []string
	}{
		{"missing email", SubscribeInput{FirstName: "A", LastName: "B"}, []string{"email"}, nil},
		{"malformed email", SubscribeInput{Email: "nope", FirstName: "A", LastName: "B"}, []string{"email"}, nil},
		{"missing names", SubscribeInput{Email: "a@x.com"}, []string{"first_name", "last_name"}, []string{"find"}},
		{"blank last name", SubscribeInput{Email: "a@x.com", FirstName: "A", LastName: "  "}, []string{"last_name"}, []string{"find"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			svc := NewService(store, nil, nil)

			_, err := svc.Subscribe(context.Background(), tc.input)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.fields, verr.Fields)
			assert.Equal(t, tc.calls, store.calls)
		})
	}
}

func TestSubscribeNamesOptionalForExistingRecord(t *testing.T) {
	store := newFakeStore(&Subscriber{ID: "1", Email: "a@x.com"})
	svc := NewService(store, nil, nil)

	out, err := svc.Subscribe(context.Background(), SubscribeInput{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, SubscribeActivated, out.Kind)
}

func TestSubscribeRetriesAfterLostCreateRace(t *testing.T) {
	store := newFakeStore()
	store.beforeCreate = func() {
		store.put(&Subscriber{ID: "winner", Email: "a@x.com", MailActive: true})
	}
	svc := NewService(store, nil, nil)

	out, err := svc.Subscribe(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, SubscribeAlreadyActive, out.Kind)
	assert.Equal(t, "winner", out.SubscriberID)
	assert.Equal(t, []string{"find", "create", "find"}, store.calls)
}

func TestSubscribeGivesUpAfterSecondConflict(t *testing.T) {
	store := newFakeStore()
	store.createErr = ErrDuplicateEmail
	svc := NewService(store, nil, nil)

	_, err := svc.Subscribe(context.Background(), validInput())
	var ierr *IntegrationError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "create", ierr.Op)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Equal(t, []string{"find", "create", "find", "create"}, store.calls)
}

func TestSubscribeStoreFailures(t *testing.T) {
	boom := errors.New("boom")

	cases := []struct {
		name  string
		setup func(*fakeStore)
		op    string
	}{
		{"find", func(s *fakeStore) { s.findErr = boom }, "find"},
		{"create", func(s *fakeStore) { s.createErr = boom }, "create"},
		{"update", func(s *fakeStore) {
			s.records["1"] = &Subscriber{ID: "1", Email: "a@x.com"}
			s.updateErr = boom
		}, "update"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			tc.setup(store)
			svc := NewService(store, nil, nil)

			_, err := svc.Subscribe(context.Background(), validInput())
			var ierr *IntegrationError
			require.ErrorAs(t, err, &ierr)
			assert.Equal(t, tc.op, ierr.Op)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestUnsubscribePurgesUngroupedRecord(t *testing.T) {
	store := newFakeStore(&Subscriber{ID: "1", Email: "a@x.com", FirstName: "A", LastName: "B", MailActive: true})
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier, nil)

	out, err := svc.Unsubscribe(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, UnsubscribeOutcome{Kind: UnsubscribeDeactivated, SubscriberID: "1", Purge: true, Notify: true}, out)
	assert.Equal(t, []string{"find", "deactivate:purge"}, store.calls)
	assert.Empty(t, store.records)
	assert.Equal(t, []UnsubscribeNotice{{FirstName: "A", LastName: "B", Email: "a@x.com", HadGroups: false}}, notifier.notices)
}

func TestUnsubscribeKeepsGroupedRecord(t *testing.T) {
	store := newFakeStore(&Subscriber{ID: "1", Email: "a@x.com", MailActive: true, GroupCount: 2})
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier, nil)

	out, err := svc.Unsubscribe(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.False(t, out.Purge)
	assert.Equal(t, []string{"find", "deactivate"}, store.calls)
	assert.False(t, store.records["1"].MailActive)
	require.Len(t, notifier.notices, 1)
	assert.True(t, notifier.notices[0].HadGroups)
}

func TestUnsubscribeTwiceNotifiesOnce(t *testing.T) {
	for _, groups := range []int{0, 1} {
		store := newFakeStore(&Subscriber{ID: "1", Email: "a@x.com", MailActive: true, GroupCount: groups})
		notifier := &fakeNotifier{}
		svc := NewService(store, notifier, nil)

		first, err := svc.Unsubscribe(context.Background(), "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, UnsubscribeDeactivated, first.Kind)

		second, err := svc.Unsubscribe(context.Background(), "a@x.com")
		require.NoError(t, err)
		assert.NotEqual(t, UnsubscribeDeactivated, second.Kind)
		assert.Len(t, notifier.notices, 1)
	}
}

func TestUnsubscribeNotFound(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier, nil)

	out, err := svc.Unsubscribe(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, UnsubscribeNotFound, out.Kind)
	assert.Equal(t, []string{"find"}, store.calls)
	assert.Empty(t, notifier.notices)
}

func TestUnsubscribeNoticeFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	store := newFakeStore(&Subscriber{ID: "1", Email: "a@x.com", MailActive: true})
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	svc := NewService(store, notifier, zap.New(core))
	failures := testutil.ToFloat64(metrics.NoticeFailuresTotal)

	out, err := svc.Unsubscribe(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, UnsubscribeDeactivated, out.Kind)
	assert.Empty(t, store.records)
	assert.Equal(t, 1, logs.FilterMessage("unsubscribe notice failed").Len())
	assert.Equal(t, failures+1, testutil.ToFloat64(metrics.NoticeFailuresTotal))
}

func TestUnsubscribeStoreFailures(t *testing.T) {
	boom := errors.New("boom")

	cases := []struct {
		name   string
		groups int
		setup  func(*fakeStore)
	}{
		{"purge", 0, func(s *fakeStore) { s.deleteErr = boom }},
		{"deactivate", 2, func(s *fakeStore) { s.updateErr = boom }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore(&Subscriber{ID: "1", Email: "a@x.com", MailActive: true, GroupCount: tc.groups})
			tc.setup(store)
			notifier := &fakeNotifier{}
			svc := NewService(store, notifier, nil)

			_, err := svc.Unsubscribe(context.Background(), "a@x.com")
			var ierr *IntegrationError
			require.ErrorAs(t, err, &ierr)
			assert.Equal(t, "deactivate", ierr.Op)
			assert.ErrorIs(t, err, boom)
			assert.Empty(t, notifier.notices)
			require.Contains(t, store.records, "1")
			assert.True(t, store.records["1"].MailActive)
		})
	}
}

func TestUnsubscribeRetryAfterFailedPurge(t *testing.T) {
	store := newFakeStore(&Subscriber{ID: "1", Email: "a@x.com", FirstName: "A", LastName: "B", MailActive: true})
	store.deleteErr = errors.New("db down")
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier, nil)

	_, err := svc.Unsubscribe(context.Background(), "a@x.com")
	require.Error(t, err)

	store.deleteErr = nil
	out, err := svc.Unsubscribe(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, UnsubscribeDeactivated, out.Kind)
	assert.True(t, out.Purge)
	assert.Empty(t, store.records)
	assert.Len(t, notifier.notices, 1)
	assert.Equal(t, []string{"find", "deactivate:purge", "find", "deactivate:purge"}, store.calls)
}

func TestUnsubscribeValidation(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil, nil)

	for _, email := range []string{"", "   ", "nope"} {
		_, err := svc.Unsubscribe(context.Background(), email)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, email)
		assert.Equal(t, []string{"email"}, verr.Fields)
	}
	assert.Empty(t, store.calls)
}
