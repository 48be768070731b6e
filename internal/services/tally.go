package services

import (
	"sort"
	"strings"

	"github.com/soaringjerry/Pollen/internal/models"
)

type ChoiceCount struct {
	Option     string  `json:"option"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type StarBucket struct {
	Stars      int     `json:"stars"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type OptionRatingSummary struct {
	OptionID    string       `json:"optionId"`
	Text        string       `json:"text"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	AvgRating   float64      `json:"avgRating"`
	RatingCount int          `json:"ratingCount"`
	Histogram   []StarBucket `json:"histogram"`
}

// QuestionTally is the aggregated view of one question. Which fields are set
// depends on the question type.
type QuestionTally struct {
	QuestionID  string                `json:"questionId"`
	Text        string                `json:"text"`
	Type        models.QuestionType   `json:"type"`
	TextAnswers []string              `json:"textAnswers,omitempty"`
	Choices     []ChoiceCount         `json:"choices,omitempty"`
	TotalVotes  int                   `json:"totalVotes"`
	Ratings     []OptionRatingSummary `json:"ratings,omitempty"`
}

// Tally aggregates responses for a single question. Rating polls are read
// from the aggregates materialised on the question's options.
func Tally(q models.Question, responses []models.Response) QuestionTally {
	out := QuestionTally{QuestionID: q.ID, Text: q.Text, Type: q.Type}
	switch q.Type {
	case models.QuestionShortAnswer, models.QuestionParagraph:
		out.TextAnswers = []string{}
		for _, r := range responses {
			a, ok := r.Answers[q.ID]
			if !ok || !a.IsText() || strings.TrimSpace(a.Text) == "" {
				continue
			}
			out.TextAnswers = append(out.TextAnswers, a.Text)
		}
		out.TotalVotes = len(out.TextAnswers)
	case models.QuestionMultipleChoice, models.QuestionDropdown, models.QuestionCheckboxes:
		counts := map[string]int{}
		for _, r := range responses {
			a, ok := r.Answers[q.ID]
			if !ok {
				continue
			}
			switch {
			case a.IsChoices():
				for _, c := range a.Choices {
					counts[c]++
				}
			case a.IsText():
				counts[a.Text]++
			}
		}
		out.Choices, out.TotalVotes = choiceCounts(q.Options, counts)
	case models.QuestionRatingPoll:
		out.Ratings = make([]OptionRatingSummary, 0, len(q.Options))
		for _, o := range q.Options {
			out.Ratings = append(out.Ratings, summarizeRatings(o))
			out.TotalVotes += o.RatingCount
		}
		sort.SliceStable(out.Ratings, func(i, j int) bool {
			return out.Ratings[i].AvgRating > out.Ratings[j].AvgRating
		})
	}
	return out
}

func choiceCounts(options []models.Option, counts map[string]int) ([]ChoiceCount, int) {
	seen := map[string]bool{}
	out := make([]ChoiceCount, 0, len(options))
	total := 0
	for _, o := range options {
		if seen[o.Text] {
			continue
		}
		seen[o.Text] = true
		c := counts[o.Text]
		total += c
		out = append(out, ChoiceCount{Option: o.Text, Count: c})
	}
	for i := range out {
		out[i].Percentage = percentage(out[i].Count, total)
	}
	return out, total
}

// summarizeRatings builds the 5..1 star histogram for an option.
func summarizeRatings(o models.Option) OptionRatingSummary {
	byStar := make(map[int]int, MaxStars)
	for _, v := range o.Ratings {
		byStar[v]++
	}
	hist := make([]StarBucket, 0, MaxStars)
	for s := MaxStars; s >= MinStars; s-- {
		hist = append(hist, StarBucket{Stars: s, Count: byStar[s], Percentage: percentage(byStar[s], o.RatingCount)})
	}
	return OptionRatingSummary{
		OptionID:    o.ID,
		Text:        o.Text,
		ImageURL:    o.ImageURL,
		AvgRating:   o.AvgRating,
		RatingCount: o.RatingCount,
		Histogram:   hist,
	}
}

func percentage(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}
