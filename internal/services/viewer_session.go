package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/soaringjerry/Pollen/internal/docstore"
	"github.com/soaringjerry/Pollen/internal/identity"
	"github.com/soaringjerry/Pollen/internal/models"
)

// ViewerSession is a respondent's live view of a form: it follows the form
// and its comments and collects answers until Submit.
type ViewerSession struct {
	svc  *ViewerService
	link ShareLink
	user identity.Identity
	stop func()
	wg   sync.WaitGroup

	mu        sync.Mutex
	form      models.Form
	removed   bool
	comments  []models.Comment
	answers   map[string]models.Answer
	submitted bool
}

// Open resolves the link, loads the form and subscribes to it and its comments.
func (s *ViewerService) Open(ctx context.Context, link ShareLink, user identity.Identity) (*ViewerSession, error) {
	p, err := s.formPath(link)
	if err != nil {
		return nil, err
	}
	form, err := readForm(ctx, s.store, p)
	if err != nil {
		return nil, err
	}
	comments, err := s.Comments(ctx, link)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	formCh, stopForm, err := s.store.Subscribe(subCtx, p)
	if err != nil {
		cancel()
		return nil, NewPersistenceError("subscribe form", err)
	}
	commentCh, stopComments, err := s.store.Subscribe(subCtx, CommentsPath(p))
	if err != nil {
		stopForm()
		cancel()
		return nil, NewPersistenceError("subscribe comments", err)
	}
	select {
	case snap, ok := <-formCh:
		if ok && snap.Exists {
			if f, err := decodeForm(snap); err == nil {
				form = f
			}
		}
	case <-ctx.Done():
		stopForm()
		stopComments()
		cancel()
		return nil, ctx.Err()
	}

	v := &ViewerSession{
		svc:      s,
		link:     link,
		user:     user,
		form:     form,
		comments: comments,
		answers:  map[string]models.Answer{},
		stop: func() {
			stopForm()
			stopComments()
			cancel()
		},
	}
	v.wg.Add(2)
	go v.followForm(formCh)
	go v.followComments(commentCh)
	return v, nil
}

func (v *ViewerSession) followForm(ch <-chan docstore.Snapshot) {
	defer v.wg.Done()
	for snap := range ch {
		v.mu.Lock()
		if !snap.Exists {
			v.removed = true
			v.mu.Unlock()
			continue
		}
		f, err := decodeForm(snap)
		if err != nil {
			v.mu.Unlock()
			slog.Error("decode form snapshot", slog.String("form_id", v.link.FormID), slog.String("error", err.Error()))
			continue
		}
		v.form = f
		v.removed = false
		v.mu.Unlock()
	}
}

func (v *ViewerSession) followComments(ch <-chan docstore.Snapshot) {
	defer v.wg.Done()
	for snap := range ch {
		if !snap.Exists {
			continue
		}
		c, err := decodeComment(snap)
		if err != nil {
			slog.Warn("skipping undecodable comment", slog.String("path", snap.Path), slog.String("error", err.Error()))
			continue
		}
		v.mu.Lock()
		v.upsertCommentLocked(c)
		v.mu.Unlock()
	}
}

func (v *ViewerSession) upsertCommentLocked(c models.Comment) {
	for i := range v.comments {
		if v.comments[i].ID == c.ID {
			v.comments[i] = c
			return
		}
	}
	v.comments = append(v.comments, c)
	sort.SliceStable(v.comments, func(i, j int) bool {
		return v.comments[i].CreatedAt.Before(v.comments[j].CreatedAt)
	})
}

func (v *ViewerSession) Form() models.Form {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.form.Clone()
}

// Removed reports whether the form was deleted after the session opened.
func (v *ViewerSession) Removed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.removed
}

func (v *ViewerSession) Comments() []models.Comment {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Comment, len(v.comments))
	copy(out, v.comments)
	return out
}

func (v *ViewerSession) Answers() map[string]models.Answer {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]models.Answer, len(v.answers))
	for k, a := range v.answers {
		out[k] = a
	}
	return out
}

// TopRated is the highlighted option of the first rating-poll question.
func (v *ViewerSession) TopRated() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return FeaturedOption(v.form)
}

func (v *ViewerSession) SetAnswer(questionID string, a models.Answer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.answers[questionID] = a
}

// Rate stores the rating immediately and remembers it as part of the
// pending response.
func (v *ViewerSession) Rate(ctx context.Context, qIndex int, optionID string, stars int) (models.Form, error) {
	form, err := v.svc.Rate(ctx, v.link, v.user, qIndex, optionID, stars)
	if err != nil {
		return form, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.form = form
	qid := form.Questions[qIndex].ID
	ratings := map[string]int{}
	if prev, ok := v.answers[qid]; ok && prev.IsRatings() {
		for k, n := range prev.Ratings {
			ratings[k] = n
		}
	}
	ratings[optionID] = stars
	v.answers[qid] = models.RatingsAnswer(ratings)
	return form.Clone(), nil
}

func (v *ViewerSession) AddCrowdOption(ctx context.Context, qIndex int, text string) (models.Form, error) {
	form, err := v.svc.AddCrowdOption(ctx, v.link, v.user, qIndex, text)
	if err != nil {
		return form, err
	}
	v.mu.Lock()
	v.form = form
	v.mu.Unlock()
	return form.Clone(), nil
}

func (v *ViewerSession) PostComment(ctx context.Context, text string) (models.Comment, error) {
	c, err := v.svc.PostComment(ctx, v.link, v.user, text)
	if err != nil {
		return c, err
	}
	v.mu.Lock()
	v.upsertCommentLocked(c)
	v.mu.Unlock()
	return c, nil
}

// Submit sends the collected answers. Answers are kept on failure so the
// respondent can correct them.
func (v *ViewerSession) Submit(ctx context.Context) (models.Response, error) {
	resp, err := v.svc.Submit(ctx, v.link, v.user, v.Answers())
	if err != nil {
		return resp, err
	}
	v.mu.Lock()
	v.submitted = true
	v.answers = map[string]models.Answer{}
	v.mu.Unlock()
	return resp, nil
}

func (v *ViewerSession) Submitted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.submitted
}

func (v *ViewerSession) Close() {
	v.stop()
	v.wg.Wait()
}
