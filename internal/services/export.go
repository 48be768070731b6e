package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/soaringjerry/Pollen/internal/models"
)

type ExportFormat string

const (
	ExportWide ExportFormat = "wide"
	ExportLong ExportFormat = "long"
)

// Export renders a form's responses as CSV.
func (s *SummaryService) Export(ctx context.Context, ownerID, formID string, format ExportFormat) ([]byte, error) {
	form, responses, err := s.Load(ctx, ownerID, formID)
	if err != nil {
		return nil, err
	}
	switch format {
	case "", ExportWide:
		return ExportWideCSV(form, responses)
	case ExportLong:
		return ExportLongCSV(form, responses)
	}
	return nil, NewInvalidError(fmt.Sprintf("unsupported format %q", format))
}

// ExportWideCSV writes one row per response and one column per question.
func ExportWideCSV(form models.Form, responses []models.Response) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{"response_id", "submitter_id", "submitted_at"}
	for i, q := range form.Questions {
		header = append(header, questionHeader(i, q))
	}
	_ = w.Write(header)
	for _, r := range sortedResponses(responses) {
		row := make([]string, 0, len(header))
		row = append(row, r.ID, r.SubmitterID, r.SubmittedAt.UTC().Format(time.RFC3339))
		for _, q := range form.Questions {
			row = append(row, formatAnswer(q, r.Answers[q.ID]))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportLongCSV writes one row per answered question.
func ExportLongCSV(form models.Form, responses []models.Response) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"response_id", "submitter_id", "question_id", "question", "value", "submitted_at"})
	for _, r := range sortedResponses(responses) {
		for _, q := range form.Questions {
			a, ok := r.Answers[q.ID]
			if !ok {
				continue
			}
			rec := []string{r.ID, r.SubmitterID, q.ID, q.Text, formatAnswer(q, a), r.SubmittedAt.UTC().Format(time.RFC3339)}
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func sortedResponses(responses []models.Response) []models.Response {
	out := make([]models.Response, len(responses))
	copy(out, responses)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func questionHeader(i int, q models.Question) string {
	if t := strings.TrimSpace(q.Text); t != "" {
		return t
	}
	return "Q" + strconv.Itoa(i+1)
}

// formatAnswer flattens an answer into one cell; multiple values are joined with " | ".
func formatAnswer(q models.Question, a models.Answer) string {
	switch {
	case a.IsText():
		return a.Text
	case a.IsChoices():
		return strings.Join(a.Choices, " | ")
	case a.IsRatings():
		labels := map[string]string{}
		for _, o := range q.Options {
			labels[o.ID] = o.Text
		}
		parts := make([]string, 0, len(a.Ratings))
		for _, o := range q.Options {
			if v, ok := a.Ratings[o.ID]; ok {
				parts = append(parts, fmt.Sprintf("%s: %d", o.Text, v))
			}
		}
		var unknown []string
		for id := range a.Ratings {
			if _, ok := labels[id]; !ok {
				unknown = append(unknown, id)
			}
		}
		sort.Strings(unknown)
		for _, id := range unknown {
			parts = append(parts, fmt.Sprintf("%s: %d", id, a.Ratings[id]))
		}
		return strings.Join(parts, " | ")
	}
	return ""
}
