package classification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/keylock"
)

type fakeEmails struct {
	uncategorized []*domain.Email
	committed     [][]out.CategoryAssignment
	requested     int
}

func (f *fakeEmails) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	return nil, nil
}
func (f *fakeEmails) InsertBatch(ctx context.Context, emails []*domain.Email) (int, error) {
	return 0, nil
}
func (f *fakeEmails) ListUncategorized(ctx context.Context, accountID int64, limit int) ([]*domain.Email, error) {
	f.requested = limit
	if len(f.uncategorized) > limit {
		return f.uncategorized[:limit], nil
	}
	return f.uncategorized, nil
}
func (f *fakeEmails) AssignCategories(ctx context.Context, accountID int64, a []out.CategoryAssignment) (int, error) {
	f.committed = append(f.committed, a)
	return len(a), nil
}
func (f *fakeEmails) UpdateCategory(ctx context.Context, accountID, emailID int64, categoryID *int64) error {
	return nil
}
func (f *fakeEmails) List(ctx context.Context, filter domain.EmailFilter) ([]*domain.Email, error) {
	return nil, nil
}

type fakeCategories struct {
	items []*domain.Category
}

func (f *fakeCategories) ListByAccount(ctx context.Context, accountID int64) ([]*domain.Category, error) {
	return f.items, nil
}
func (f *fakeCategories) ListWithCounts(ctx context.Context, accountID int64) ([]*domain.CategoryWithCount, error) {
	return nil, nil
}
func (f *fakeCategories) Get(ctx context.Context, accountID, categoryID int64) (*domain.Category, error) {
	return nil, nil
}
func (f *fakeCategories) Create(ctx context.Context, category *domain.Category) error { return nil }
func (f *fakeCategories) DeleteDetaching(ctx context.Context, accountID, categoryID int64) (int, error) {
	return 0, nil
}

// scriptedClassifier answers by email subject.
type scriptedClassifier struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string]error
	calls   []out.ClassifyRequest
}

func (s *scriptedClassifier) Classify(ctx context.Context, req out.ClassifyRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	for subject, err := range s.errs {
		if strings.Contains(req.Prompt, "Subject: "+subject+"\n") {
			return "", err
		}
	}
	for subject, answer := range s.answers {
		if strings.Contains(req.Prompt, "Subject: "+subject+"\n") {
			return answer, nil
		}
	}
	return "null", nil
}

func testCategories() []*domain.Category {
	return []*domain.Category{
		{ID: 10, AccountID: 1, Name: "Work", Description: "work mail"},
		{ID: 11, AccountID: 1, Name: "Social", Description: "social networks"},
	}
}

func testEmails(subjects ...string) []*domain.Email {
	emails := make([]*domain.Email, 0, len(subjects))
	for i, s := range subjects {
		emails = append(emails, &domain.Email{ID: int64(i + 1), AccountID: 1, Subject: s, SenderName: "Bob", SenderEmail: "bob@x.com"})
	}
	return emails
}

func TestCategorize_ZeroCategoriesMakesNoCalls(t *testing.T) {
	emails := &fakeEmails{uncategorized: testEmails("a", "b")}
	classifier := &scriptedClassifier{}
	c := NewCategorizer(emails, &fakeCategories{}, classifier, keylock.New(), 4)

	n, err := c.Categorize(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
	if len(classifier.calls) != 0 {
		t.Errorf("expected no classifier calls, got %d", len(classifier.calls))
	}
}

func TestCategorize_NeverAssignsUnknownID(t *testing.T) {
	emails := &fakeEmails{uncategorized: testEmails("standup", "party", "spam", "junk")}
	classifier := &scriptedClassifier{answers: map[string]string{
		"standup": "10",
		"party":   " 11. ",
		"spam":    "999",
		"junk":    "Category: Work",
	}}
	c := NewCategorizer(emails, &fakeCategories{items: testCategories()}, classifier, keylock.New(), 4)

	n, err := c.Categorize(context.Background(), 1, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 categorized, got %d", n)
	}
	if len(emails.committed) != 1 {
		t.Fatalf("expected a single commit, got %d", len(emails.committed))
	}
	for _, a := range emails.committed[0] {
		if a.CategoryID != 10 && a.CategoryID != 11 {
			t.Errorf("assigned unknown category %d", a.CategoryID)
		}
	}
}

func TestCategorize_HardCapBoundsCalls(t *testing.T) {
	emails := &fakeEmails{uncategorized: testEmails("a", "b", "c", "d", "e", "f")}
	classifier := &scriptedClassifier{}
	c := NewCategorizer(emails, &fakeCategories{items: testCategories()}, classifier, keylock.New(), 4)

	if _, err := c.Categorize(context.Background(), 1, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emails.requested != 4 {
		t.Errorf("expected selection limited to 4, got %d", emails.requested)
	}
	if len(classifier.calls) != 4 {
		t.Errorf("expected 4 classifier calls, got %d", len(classifier.calls))
	}
}

func TestCategorize_ClassifierFailureKeepsEarlierMatches(t *testing.T) {
	emails := &fakeEmails{uncategorized: testEmails("first", "broken", "third")}
	classifier := &scriptedClassifier{
		answers: map[string]string{"first": "10", "third": "11"},
		errs:    map[string]error{"broken": domain.ErrProviderUnavailable},
	}
	c := NewCategorizer(emails, &fakeCategories{items: testCategories()}, classifier, keylock.New(), 4)

	n, err := c.Categorize(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 categorized, got %d", n)
	}
	if len(classifier.calls) != 3 {
		t.Errorf("expected all 3 candidates attempted, got %d", len(classifier.calls))
	}
}

func TestCategorize_NoMatchesSkipsCommit(t *testing.T) {
	emails := &fakeEmails{uncategorized: testEmails("a")}
	c := NewCategorizer(emails, &fakeCategories{items: testCategories()}, &scriptedClassifier{}, keylock.New(), 4)

	n, err := c.Categorize(context.Background(), 1, 3)
	if err != nil || n != 0 {
		t.Errorf("expected 0, nil; got %d, %v", n, err)
	}
	if len(emails.committed) != 0 {
		t.Errorf("expected no commit, got %d", len(emails.committed))
	}
}

func TestCategorize_NonPositiveLimit(t *testing.T) {
	classifier := &scriptedClassifier{}
	c := NewCategorizer(&fakeEmails{uncategorized: testEmails("a")}, &fakeCategories{items: testCategories()}, classifier, keylock.New(), 4)

	n, err := c.Categorize(context.Background(), 1, 0)
	if err != nil || n != 0 || len(classifier.calls) != 0 {
		t.Errorf("expected a no-op, got n=%d err=%v calls=%d", n, err, len(classifier.calls))
	}
}

func TestParseResponse(t *testing.T) {
	known := map[int64]bool{1: true, 7: true}

	tests := []struct {
		name      string
		resp      string
		expected  *int64
		ambiguous bool
	}{
		{"bare id", "7", ptr(7), false},
		{"padded id", "  1\n", ptr(1), false},
		{"quoted id", `"7"`, ptr(7), false},
		{"trailing period", "1.", ptr(1), false},
		{"null", "null", nil, false},
		{"NULL", "NULL", nil, false},
		{"empty", "", nil, false},
		{"none", "None", nil, false},
		{"unknown id", "3", nil, true},
		{"prose", "The answer is 1", nil, true},
		{"negative", "-1", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.resp, known)
			if tt.ambiguous {
				if !errors.Is(err, domain.ErrClassificationAmbiguous) {
					t.Errorf("expected ErrClassificationAmbiguous, got %v", err)
				}
				if got != nil {
					t.Errorf("expected no id, got %d", *got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (got == nil) != (tt.expected == nil) || (got != nil && *got != *tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestBuildRequest(t *testing.T) {
	email := &domain.Email{Subject: "Lunch?", SenderName: "Jane Doe", SenderEmail: "jane@x.com", Preview: "are you free"}
	req, err := BuildRequest(email, testCategories())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.SystemPrompt != SystemPrompt {
		t.Errorf("unexpected system prompt %q", req.SystemPrompt)
	}
	for _, want := range []string{
		"Subject: Lunch?",
		"From: Jane Doe (jane@x.com)",
		"Preview: are you free",
		`"id": 10`,
		`"name": "Social"`,
		`"description": "work mail"`,
		"or null",
	} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, req.Prompt)
		}
	}
}

func ptr(v int64) *int64 { return &v }
