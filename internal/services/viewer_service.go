package services

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/soaringjerry/Pollen/internal/docstore"
	"github.com/soaringjerry/Pollen/internal/identity"
	"github.com/soaringjerry/Pollen/internal/models"
)

type ViewerConfig struct {
	AppID          string
	ValidationMode ValidationMode
}

// ViewerService serves respondents reaching a form through a share link.
type ViewerService struct {
	store DocumentStore
	cfg   ViewerConfig
	now   func() time.Time
	// locks serialises read-modify-write cycles on one form within this
	// process. Entries live only while someone holds or waits for them.
	locksMu sync.Mutex
	locks   map[string]*formLock
}

type formLock struct {
	mu   sync.Mutex
	refs int
}

func NewViewerService(store DocumentStore, cfg ViewerConfig) *ViewerService {
	if cfg.ValidationMode != ValidateAll {
		cfg.ValidationMode = ValidateFirst
	}
	return &ViewerService{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
		locks: map[string]*formLock{},
	}
}

func (s *ViewerService) formPath(link ShareLink) (string, error) {
	if err := link.Validate(); err != nil {
		return "", err
	}
	return FormPath(s.cfg.AppID, link.AuthorID, link.FormID), nil
}

func (s *ViewerService) lockForm(p string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[p]
	if !ok {
		l = &formLock{}
		s.locks[p] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, p)
		}
		s.locksMu.Unlock()
	}
}

// Load fetches the form a share link points at.
func (s *ViewerService) Load(ctx context.Context, link ShareLink) (models.Form, error) {
	p, err := s.formPath(link)
	if err != nil {
		return models.Form{}, err
	}
	return readForm(ctx, s.store, p)
}

// updateQuestions re-reads the stored form, applies fn and writes back the
// questions subtree. Concurrent writers elsewhere still race: last write wins.
func (s *ViewerService) updateQuestions(ctx context.Context, link ShareLink, op string, fn func(models.Form) (models.Form, error)) (models.Form, error) {
	p, err := s.formPath(link)
	if err != nil {
		return models.Form{}, err
	}
	unlock := s.lockForm(p)
	defer unlock()

	current, err := readForm(ctx, s.store, p)
	if err != nil {
		return models.Form{}, err
	}
	next, err := fn(current)
	if err != nil {
		return current, err
	}
	doc, err := encodeQuestions(next)
	if err != nil {
		return current, err
	}
	if err := s.store.Write(ctx, p, doc, docstore.WriteOptions{Merge: true}); err != nil {
		slog.Error("form update failed", slog.String("op", op), slog.String("form_id", link.FormID), slog.String("error", err.Error()))
		return current, NewPersistenceError(op, err)
	}
	return next, nil
}

// Rate records the caller's stars for a rating-poll option.
func (s *ViewerService) Rate(ctx context.Context, link ShareLink, user identity.Identity, qIndex int, optionID string, stars int) (models.Form, error) {
	if !user.Valid() {
		return models.Form{}, NewUnauthorizedError("unauthorized")
	}
	return s.updateQuestions(ctx, link, "rate option", func(f models.Form) (models.Form, error) {
		return RateOption(f, qIndex, optionID, user.UserID, stars)
	})
}

// AddCrowdOption lets a respondent suggest a new option on a rating poll.
func (s *ViewerService) AddCrowdOption(ctx context.Context, link ShareLink, user identity.Identity, qIndex int, text string) (models.Form, error) {
	if !user.Valid() {
		return models.Form{}, NewUnauthorizedError("unauthorized")
	}
	if strings.TrimSpace(text) == "" {
		return models.Form{}, NewInvalidError("option text required")
	}
	return s.updateQuestions(ctx, link, "add option", func(f models.Form) (models.Form, error) {
		return AddCrowdOption(f, qIndex, text, user.UserID)
	})
}

func (s *ViewerService) PostComment(ctx context.Context, link ShareLink, user identity.Identity, text string) (models.Comment, error) {
	if !user.Valid() {
		return models.Comment{}, NewUnauthorizedError("unauthorized")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Comment{}, NewInvalidError("comment text required")
	}
	p, err := s.formPath(link)
	if err != nil {
		return models.Comment{}, err
	}
	form, err := readForm(ctx, s.store, p)
	if err != nil {
		return models.Comment{}, err
	}
	if form.Status == models.StatusClosed {
		return models.Comment{}, NewClosedError("poll is closed")
	}
	c := models.Comment{
		Text:       text,
		AuthorID:   user.UserID,
		AuthorName: user.AuthorName(),
		CreatedAt:  s.now(),
	}
	doc, err := models.ToDocument(c)
	if err != nil {
		return models.Comment{}, err
	}
	delete(doc, "id")
	id, err := s.store.Append(ctx, CommentsPath(p), doc)
	if err != nil {
		return models.Comment{}, NewPersistenceError("post comment", err)
	}
	c.ID = id
	return c, nil
}

// Comments lists a form's comments oldest first.
func (s *ViewerService) Comments(ctx context.Context, link ShareLink) ([]models.Comment, error) {
	p, err := s.formPath(link)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.List(ctx, CommentsPath(p), docstore.Query{OrderBy: "createdAt"})
	if err != nil {
		return nil, NewPersistenceError("list comments", err)
	}
	out := make([]models.Comment, 0, len(snaps))
	for _, snap := range snaps {
		c, err := decodeComment(snap)
		if err != nil {
			slog.Warn("skipping undecodable comment", slog.String("path", snap.Path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Submit validates answers, applies any rating answers (replacing earlier
// ratings by the same user) and appends the response.
func (s *ViewerService) Submit(ctx context.Context, link ShareLink, user identity.Identity, answers map[string]models.Answer) (models.Response, error) {
	if !user.Valid() {
		return models.Response{}, NewUnauthorizedError("unauthorized")
	}
	p, err := s.formPath(link)
	if err != nil {
		return models.Response{}, err
	}
	form, err := readForm(ctx, s.store, p)
	if err != nil {
		return models.Response{}, err
	}
	if form.Status == models.StatusClosed {
		return models.Response{}, NewClosedError("poll is closed")
	}
	if violations := Validate(form, answers, s.cfg.ValidationMode); len(violations) > 0 {
		return models.Response{}, NewValidationError(violations)
	}

	kept := make(map[string]models.Answer, len(answers))
	rated := false
	for _, q := range form.Questions {
		a, ok := answers[q.ID]
		if !ok {
			continue
		}
		kept[q.ID] = a
		if q.Type == models.QuestionRatingPoll && a.IsRatings() && len(a.Ratings) > 0 {
			rated = true
		}
	}
	if rated {
		_, err := s.updateQuestions(ctx, link, "apply ratings", func(f models.Form) (models.Form, error) {
			return applyBulkRatings(f, kept, user.UserID)
		})
		if err != nil {
			return models.Response{}, err
		}
	}

	resp := models.Response{Answers: kept, SubmitterID: user.UserID, SubmittedAt: s.now()}
	doc, err := models.ToDocument(resp)
	if err != nil {
		return models.Response{}, err
	}
	delete(doc, "id")
	id, err := s.store.Append(ctx, ResponsesPath(p), doc)
	if err != nil {
		slog.Error("response submit failed", slog.String("form_id", link.FormID), slog.String("error", err.Error()))
		return models.Response{}, NewPersistenceError("submit response", err)
	}
	resp.ID = id
	slog.Info("response submitted", slog.String("form_id", link.FormID), slog.Int("answers", len(kept)))
	return resp, nil
}

func applyBulkRatings(form models.Form, answers map[string]models.Answer, userID string) (models.Form, error) {
	out := form
	for qi, q := range form.Questions {
		a, ok := answers[q.ID]
		if !ok || q.Type != models.QuestionRatingPoll || !a.IsRatings() {
			continue
		}
		optionIDs := make([]string, 0, len(a.Ratings))
		for id := range a.Ratings {
			optionIDs = append(optionIDs, id)
		}
		sort.Strings(optionIDs)
		for _, optID := range optionIDs {
			next, err := RateOption(out, qi, optID, userID, a.Ratings[optID])
			if HasCode(err, ErrorNotFound) {
				slog.Warn("rating for unknown option ignored", slog.String("option_id", optID))
				continue
			}
			if err != nil {
				return form, err
			}
			out = next
		}
	}
	return out, nil
}

func decodeComment(snap docstore.Snapshot) (models.Comment, error) {
	var c models.Comment
	if err := models.FromDocument(snap.Data, &c); err != nil {
		return models.Comment{}, err
	}
	c.ID = snap.ID
	return c, nil
}

// FeaturedOption is the top-rated option of the form's first question when
// that question is a rating poll.
func FeaturedOption(form models.Form) (string, bool) {
	if len(form.Questions) == 0 || form.Questions[0].Type != models.QuestionRatingPoll {
		return "", false
	}
	return TopRated(form.Questions[0].Options)
}

type CommentView struct {
	models.Comment
	Initials string `json:"initials"`
	Posted   string `json:"posted"`
}

// CommentViews decorates comments with author initials and a relative timestamp.
func CommentViews(comments []models.Comment, now time.Time) []CommentView {
	out := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		initials := []rune(c.AuthorName)
		if len(initials) > 2 {
			initials = initials[:2]
		}
		out = append(out, CommentView{
			Comment:  c,
			Initials: strings.ToUpper(string(initials)),
			Posted:   humanize.RelTime(c.CreatedAt, now, "ago", "from now"),
		})
	}
	return out
}
