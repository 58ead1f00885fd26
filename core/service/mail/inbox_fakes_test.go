package mail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"inbox_server/adapter/out/persistence"
	"inbox_server/core/domain"
	"inbox_server/core/port/out"
)

// memEmails enforces external id uniqueness like the real table.
type memEmails struct {
	mu     sync.Mutex
	rows   map[string]*domain.Email
	nextID int64
}

func newMemEmails() *memEmails {
	return &memEmails{rows: make(map[string]*domain.Email)}
}

func (m *memEmails) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[string]bool)
	for _, id := range ids {
		if _, ok := m.rows[id]; ok {
			found[id] = true
		}
	}
	return found, nil
}

func (m *memEmails) InsertBatch(ctx context.Context, emails []*domain.Email) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, e := range emails {
		if _, ok := m.rows[e.ExternalID]; ok {
			continue
		}
		m.nextID++
		cp := *e
		cp.ID = m.nextID
		m.rows[e.ExternalID] = &cp
		inserted++
	}
	return inserted, nil
}

func (m *memEmails) insertDirect(externalID string, accountID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.rows[externalID] = &domain.Email{ID: m.nextID, ExternalID: externalID, AccountID: accountID}
}

func (m *memEmails) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memEmails) ListUncategorized(ctx context.Context, accountID int64, limit int) ([]*domain.Email, error) {
	return nil, nil
}
func (m *memEmails) AssignCategories(ctx context.Context, accountID int64, a []out.CategoryAssignment) (int, error) {
	return len(a), nil
}
func (m *memEmails) UpdateCategory(ctx context.Context, accountID, emailID int64, categoryID *int64) error {
	return nil
}
func (m *memEmails) List(ctx context.Context, filter domain.EmailFilter) ([]*domain.Email, error) {
	return nil, nil
}

type memCredentials struct {
	creds map[int64]*domain.Credential
}

func (m *memCredentials) Get(ctx context.Context, accountID int64) (*domain.Credential, error) {
	c, ok := m.creds[accountID]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	cp := *c
	return &cp, nil
}
func (m *memCredentials) Save(ctx context.Context, cred *domain.Credential) error   { return nil }
func (m *memCredentials) Rotate(ctx context.Context, cred *domain.Credential) error { return nil }
func (m *memCredentials) ListAccountIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(m.creds))
	for id := range m.creds {
		ids = append(ids, id)
	}
	return ids, nil
}

type memAccounts struct {
	mu        sync.Mutex
	reconnect map[int64]bool
}

func (m *memAccounts) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	return &domain.Account{ID: id}, nil
}
func (m *memAccounts) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return nil, persistence.ErrNotFound
}
func (m *memAccounts) Upsert(ctx context.Context, account *domain.Account) error { return nil }
func (m *memAccounts) SetNeedsReconnect(ctx context.Context, id int64, needed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reconnect == nil {
		m.reconnect = make(map[int64]bool)
	}
	m.reconnect[id] = needed
	return nil
}

type stubTokens struct {
	token string
	err   error
}

func (s stubTokens) EnsureValid(ctx context.Context, cred *domain.Credential) (string, error) {
	return s.token, s.err
}

// fakeFetcher serves canned payloads. onGet runs before each GetFull returns.
type fakeFetcher struct {
	mu       sync.Mutex
	refs     []out.MessageRef
	payloads map[string]*out.RawMessage
	getErrs  map[string]error
	listErr  error
	delay    time.Duration
	onGet    func(id string)
	gets     map[string]int
	lists    int
}

func newFakeFetcher(ids ...string) *fakeFetcher {
	f := &fakeFetcher{
		payloads: make(map[string]*out.RawMessage),
		getErrs:  make(map[string]error),
		gets:     make(map[string]int),
	}
	for i, id := range ids {
		f.refs = append(f.refs, out.MessageRef{ID: id, ThreadID: "t-" + id})
		f.payloads[id] = &out.RawMessage{
			ID:           id,
			ThreadID:     "t-" + id,
			InternalDate: 1714560000000 + int64(i),
			LabelIDs:     []string{"INBOX", "UNREAD"},
			Snippet:      "snippet " + id,
			Headers: []out.Header{
				{Name: "From", Value: fmt.Sprintf("Sender %d <s%d@x.com>", i, i)},
				{Name: "Subject", Value: "subject " + id},
			},
		}
	}
	return f
}

func (f *fakeFetcher) ListRecent(ctx context.Context, token string, max int) ([]out.MessageRef, error) {
	f.mu.Lock()
	f.lists++
	f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	refs := f.refs
	if len(refs) > max {
		refs = refs[:max]
	}
	return refs, nil
}

func (f *fakeFetcher) GetFull(ctx context.Context, token string, ref out.MessageRef) (*out.RawMessage, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.gets[ref.ID]++
	f.mu.Unlock()
	if f.onGet != nil {
		f.onGet(ref.ID)
	}
	if err := f.getErrs[ref.ID]; err != nil {
		return nil, err
	}
	return f.payloads[ref.ID], nil
}

func (f *fakeFetcher) totalGets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.gets {
		n += c
	}
	return n
}

type recordingCategorizer struct {
	mu     sync.Mutex
	limits []int
}

func (r *recordingCategorizer) Categorize(ctx context.Context, accountID int64, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = append(r.limits, limit)
	return 0, nil
}

type recordingArchive struct {
	mu   sync.Mutex
	recs []out.ParseFailureRecord
}

func (r *recordingArchive) RecordParseFailure(ctx context.Context, rec out.ParseFailureRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}
