package services

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/soaringjerry/Pollen/internal/docstore"
	"github.com/soaringjerry/Pollen/internal/models"
)

type SummaryTimeseries struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type FormSummary struct {
	FormID         string              `json:"formId"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Status         models.FormStatus   `json:"status"`
	TotalResponses int                 `json:"totalResponses"`
	Questions      []QuestionTally     `json:"questions"`
	Timeseries     []SummaryTimeseries `json:"timeseries"`
}

type SummaryService struct {
	store DocumentStore
	appID string
}

func NewSummaryService(store DocumentStore, appID string) *SummaryService {
	return &SummaryService{store: store, appID: appID}
}

// Load reads a form and all of its responses concurrently.
func (s *SummaryService) Load(ctx context.Context, ownerID, formID string) (models.Form, []models.Response, error) {
	if ownerID == "" {
		return models.Form{}, nil, NewUnauthorizedError("unauthorized")
	}
	if formID == "" {
		return models.Form{}, nil, NewInvalidError("form id required")
	}
	p, err := ownedFormPath(s.appID, ownerID, formID)
	if err != nil {
		return models.Form{}, nil, err
	}

	var (
		form      models.Form
		responses []models.Response
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := readForm(gctx, s.store, p)
		form = f
		return err
	})
	g.Go(func() error {
		rs, err := listResponses(gctx, s.store, ResponsesPath(p))
		responses = rs
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Form{}, nil, err
	}
	return form, responses, nil
}

func (s *SummaryService) Summary(ctx context.Context, ownerID, formID string) (*FormSummary, error) {
	form, responses, err := s.Load(ctx, ownerID, formID)
	if err != nil {
		return nil, err
	}
	return Summarize(form, responses), nil
}

// Summarize tallies every question of form over responses.
func Summarize(form models.Form, responses []models.Response) *FormSummary {
	out := &FormSummary{
		FormID:         form.ID,
		Title:          form.Title,
		Description:    form.Description,
		Status:         form.Status,
		TotalResponses: len(responses),
		Questions:      make([]QuestionTally, 0, len(form.Questions)),
	}
	for _, q := range form.Questions {
		out.Questions = append(out.Questions, Tally(q, responses))
	}
	out.Timeseries = buildTimeseries(responses)
	return out
}

func buildTimeseries(responses []models.Response) []SummaryTimeseries {
	countsByDay := map[string]int{}
	for _, r := range responses {
		countsByDay[r.SubmittedAt.UTC().Format("2006-01-02")]++
	}
	days := make([]string, 0, len(countsByDay))
	for d := range countsByDay {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]SummaryTimeseries, 0, len(days))
	for _, d := range days {
		out = append(out, SummaryTimeseries{Date: d, Count: countsByDay[d]})
	}
	return out
}

func listResponses(ctx context.Context, store DocumentStore, collection string) ([]models.Response, error) {
	snaps, err := store.List(ctx, collection, docstore.Query{OrderBy: "submittedAt"})
	if err != nil {
		return nil, NewPersistenceError("list responses", err)
	}
	out := make([]models.Response, 0, len(snaps))
	for _, snap := range snaps {
		var r models.Response
		if err := models.FromDocument(snap.Data, &r); err != nil {
			slog.Warn("skipping undecodable response", slog.String("path", snap.Path), slog.String("error", err.Error()))
			continue
		}
		r.ID = snap.ID
		out = append(out, r)
	}
	return out, nil
}
