package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/soaringjerry/Pollen/internal/docstore"
	"github.com/soaringjerry/Pollen/internal/identity"
	"github.com/soaringjerry/Pollen/internal/models"
)

var (
	respondent = identity.Identity{UserID: "resp12345", DisplayName: "Rita"}
	anonymous  = identity.Identity{UserID: "anon99999", IsAnonymous: true}
)

// untouchedStore fails the test on any call.
type untouchedStore struct {
	DocumentStore
	t *testing.T
}

func (s untouchedStore) Read(ctx context.Context, path string) (docstore.Snapshot, error) {
	s.t.Fatalf("store read for %s before link validation", path)
	return docstore.Snapshot{}, nil
}

func seedForm(t *testing.T, store docstore.Store, f models.Form) ShareLink {
	t.Helper()
	doc, err := encodeForm(f)
	if err != nil {
		t.Fatalf("encode form: %v", err)
	}
	if err := store.Write(context.Background(), FormPath("app", f.AuthorID, f.ID), doc, docstore.WriteOptions{}); err != nil {
		t.Fatalf("seed form: %v", err)
	}
	return ShareLink{FormID: f.ID, AuthorID: f.AuthorID}
}

func pollForm(status models.FormStatus) models.Form {
	return models.Form{
		ID:       "F1",
		Title:    "Lunch",
		AuthorID: "author1",
		Status:   status,
		Questions: []models.Question{
			{ID: "q1", Text: "Rate spots", Type: models.QuestionRatingPoll, Options: []models.Option{
				{ID: "A", Text: "Tacos", Ratings: map[string]int{}},
				{ID: "B", Text: "Sushi", Ratings: map[string]int{}},
			}},
			{ID: "q2", Text: "Day", Type: models.QuestionMultipleChoice, Required: true,
				Options: []models.Option{{ID: "d1", Text: "Mon"}, {ID: "d2", Text: "Tue"}}},
		},
	}
}

func newTestViewer(t *testing.T) (*ViewerService, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	svc := NewViewerService(store, ViewerConfig{AppID: "app"})
	svc.now = func() time.Time { return time.Date(2025, 9, 17, 12, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestViewerInvalidLinkSkipsStore(t *testing.T) {
	svc := NewViewerService(untouchedStore{t: t}, ViewerConfig{AppID: "app"})
	_, err := svc.Load(context.Background(), ShareLink{FormID: "F1"})
	if !HasCode(err, ErrorInvalidLink) {
		t.Fatalf("expected invalid link, got %v", err)
	}
	if se, _ := AsServiceError(err); se.Message != "Form link is invalid. It's missing key information." {
		t.Fatalf("message = %q", se.Message)
	}
}

func TestViewerLinkCannotLeaveFormsCollection(t *testing.T) {
	svc := NewViewerService(untouchedStore{t: t}, ViewerConfig{AppID: "app"})
	ctx := context.Background()
	for _, link := range []ShareLink{
		{FormID: "../../../accounts/bob@x.io", AuthorID: "a"},
		{FormID: "F1", AuthorID: "../../accounts"},
		{FormID: "..", AuthorID: "author1"},
	} {
		if _, err := svc.Load(ctx, link); !HasCode(err, ErrorInvalidLink) {
			t.Fatalf("Load(%+v) error = %v, want invalid link", link, err)
		}
		if _, err := svc.PostComment(ctx, link, respondent, "hi"); !HasCode(err, ErrorInvalidLink) {
			t.Fatalf("PostComment(%+v) error = %v, want invalid link", link, err)
		}
		_, err := svc.Submit(ctx, link, respondent, map[string]models.Answer{})
		if !HasCode(err, ErrorInvalidLink) {
			t.Fatalf("Submit(%+v) error = %v, want invalid link", link, err)
		}
	}
}

func TestViewerNotFound(t *testing.T) {
	svc, _ := newTestViewer(t)
	_, err := svc.Load(context.Background(), ShareLink{FormID: "nope", AuthorID: "author1"})
	if !HasCode(err, ErrorNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestViewerRateReadsAuthoritativeState(t *testing.T) {
	svc, store := newTestViewer(t)
	ctx := context.Background()
	link := seedForm(t, store, pollForm(models.StatusPublished))

	if _, err := svc.Rate(ctx, link, identity.Identity{UserID: "u1"}, 0, "A", 5); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	if _, err := svc.Rate(ctx, link, identity.Identity{UserID: "u2"}, 0, "A", 3); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	form, err := svc.Load(ctx, link)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	a := form.Questions[0].Options[0]
	if a.RatingCount != 2 || a.AvgRating != 4 {
		t.Fatalf("A = %.2f/%d, want 4.00/2", a.AvgRating, a.RatingCount)
	}
	if form.Title != "Lunch" {
		t.Fatalf("rating write clobbered title: %q", form.Title)
	}
}

func TestViewerClosedRejectsMutations(t *testing.T) {
	svc, store := newTestViewer(t)
	ctx := context.Background()
	link := seedForm(t, store, pollForm(models.StatusClosed))

	if _, err := svc.Rate(ctx, link, respondent, 0, "A", 4); !HasCode(err, ErrorClosed) {
		t.Fatalf("Rate: expected closed, got %v", err)
	}
	if _, err := svc.AddCrowdOption(ctx, link, respondent, 0, "Pizza"); !HasCode(err, ErrorClosed) {
		t.Fatalf("AddCrowdOption: expected closed, got %v", err)
	}
	if _, err := svc.PostComment(ctx, link, respondent, "hi"); !HasCode(err, ErrorClosed) {
		t.Fatalf("PostComment: expected closed, got %v", err)
	}
	_, err := svc.Submit(ctx, link, respondent, map[string]models.Answer{"q2": models.TextAnswer("Mon")})
	if !HasCode(err, ErrorClosed) {
		t.Fatalf("Submit: expected closed, got %v", err)
	}
	form, _ := svc.Load(ctx, link)
	if len(form.Questions[0].Options) != 2 || form.Questions[0].Options[0].RatingCount != 0 {
		t.Fatalf("closed form changed: %+v", form.Questions[0].Options)
	}
}

func TestViewerSubmitValidation(t *testing.T) {
	svc, store := newTestViewer(t)
	ctx := context.Background()
	link := seedForm(t, store, pollForm(models.StatusPublished))

	_, err := svc.Submit(ctx, link, respondent, map[string]models.Answer{})
	if !HasCode(err, ErrorValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	se, _ := AsServiceError(err)
	if len(se.Violations) != 1 || se.Violations[0].QuestionID != "q2" {
		t.Fatalf("violations = %+v", se.Violations)
	}
	snaps, _ := store.List(ctx, ResponsesPath(FormPath("app", "author1", "F1")), docstore.Query{})
	if len(snaps) != 0 {
		t.Fatalf("response persisted despite validation failure")
	}
}

func TestViewerSubmitAppliesRatings(t *testing.T) {
	svc, store := newTestViewer(t)
	ctx := context.Background()
	link := seedForm(t, store, pollForm(models.StatusPublished))

	if _, err := svc.Rate(ctx, link, respondent, 0, "A", 2); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	resp, err := svc.Submit(ctx, link, respondent, map[string]models.Answer{
		"q1":      models.RatingsAnswer(map[string]int{"A": 5, "B": 4, "gone": 3}),
		"q2":      models.TextAnswer("Tue"),
		"unknown": models.TextAnswer("dropped"),
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if resp.ID == "" || resp.SubmitterID != respondent.UserID {
		t.Fatalf("unexpected response %+v", resp)
	}
	if _, ok := resp.Answers["unknown"]; ok {
		t.Fatalf("answer for unknown question kept")
	}
	form, _ := svc.Load(ctx, link)
	a, b := form.Questions[0].Options[0], form.Questions[0].Options[1]
	if a.Ratings[respondent.UserID] != 5 || a.RatingCount != 1 {
		t.Fatalf("submit did not overwrite live rating: %+v", a)
	}
	if b.AvgRating != 4 {
		t.Fatalf("B avg = %.2f, want 4", b.AvgRating)
	}

	snaps, _ := store.List(ctx, ResponsesPath(FormPath("app", "author1", "F1")), docstore.Query{})
	if len(snaps) != 1 {
		t.Fatalf("len(responses) = %d, want 1", len(snaps))
	}
}

func TestViewerComments(t *testing.T) {
	svc, store := newTestViewer(t)
	ctx := context.Background()
	link := seedForm(t, store, pollForm(models.StatusPublished))

	if _, err := svc.PostComment(ctx, link, respondent, "   "); !HasCode(err, ErrorInvalid) {
		t.Fatalf("expected invalid for blank comment, got %v", err)
	}
	c1, err := svc.PostComment(ctx, link, anonymous, " first ")
	if err != nil {
		t.Fatalf("PostComment returned error: %v", err)
	}
	if c1.AuthorName != "Anonymous User" || c1.Text != "first" {
		t.Fatalf("unexpected comment %+v", c1)
	}
	svc.now = func() time.Time { return time.Date(2025, 9, 17, 12, 5, 0, 0, time.UTC) }
	if _, err := svc.PostComment(ctx, link, identity.Identity{UserID: "zzzzzzzz"}, "second"); err != nil {
		t.Fatalf("PostComment returned error: %v", err)
	}
	comments, err := svc.Comments(ctx, link)
	if err != nil {
		t.Fatalf("Comments returned error: %v", err)
	}
	if len(comments) != 2 || comments[0].Text != "first" || comments[1].AuthorName != "User zzzzz" {
		t.Fatalf("comments = %+v", comments)
	}

	views := CommentViews(comments, time.Date(2025, 9, 17, 12, 10, 0, 0, time.UTC))
	if views[0].Initials != "AN" || views[0].Posted != "10 minutes ago" {
		t.Fatalf("view = %+v", views[0])
	}
}

func TestViewerSession(t *testing.T) {
	svc, store := newTestViewer(t)
	ctx := context.Background()
	link := seedForm(t, store, pollForm(models.StatusPublished))

	v, err := svc.Open(ctx, link, respondent)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer v.Close()

	if _, err := v.Rate(ctx, 0, "B", 4); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	if id, ok := v.TopRated(); !ok || id != "B" {
		t.Fatalf("TopRated = %q,%v, want B", id, ok)
	}
	if a := v.Answers()["q1"]; !a.IsRatings() || a.Ratings["B"] != 4 {
		t.Fatalf("rating not recorded as answer: %+v", a)
	}

	if _, err := v.Submit(ctx); !HasCode(err, ErrorValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if len(v.Answers()) != 1 {
		t.Fatalf("answers dropped after failed submit")
	}
	v.SetAnswer("q2", models.TextAnswer("Mon"))
	if _, err := v.Submit(ctx); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if !v.Submitted() || len(v.Answers()) != 0 {
		t.Fatalf("session not reset after submit")
	}

	if _, err := v.PostComment(ctx, "nice"); err != nil {
		t.Fatalf("PostComment returned error: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		cs := v.Comments()
		if len(cs) == 1 && cs[0].Text == "nice" {
			break
		}
		if len(cs) > 1 {
			t.Fatalf("duplicate comments %+v", cs)
		}
		if time.Now().After(deadline) {
			t.Fatalf("comments = %+v", cs)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestViewerFormLocksReleased(t *testing.T) {
	svc, store := newTestViewer(t)
	ctx := context.Background()
	link := seedForm(t, store, pollForm(models.StatusPublished))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := identity.Identity{UserID: fmt.Sprintf("u%d", n)}
			if _, err := svc.Rate(ctx, link, user, 0, "A", 1+n%5); err != nil {
				t.Errorf("Rate returned error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	form, _ := svc.Load(ctx, link)
	if got := form.Questions[0].Options[0].RatingCount; got != 8 {
		t.Fatalf("RatingCount = %d, want 8", got)
	}
	svc.locksMu.Lock()
	defer svc.locksMu.Unlock()
	if len(svc.locks) != 0 {
		t.Fatalf("%d form locks left after all writers finished", len(svc.locks))
	}
}
