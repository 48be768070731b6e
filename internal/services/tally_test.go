package services

import (
	"math"
	"testing"

	"github.com/soaringjerry/Pollen/internal/models"
)

func responsesWith(qid string, answers ...models.Answer) []models.Response {
	out := make([]models.Response, 0, len(answers))
	for _, a := range answers {
		out = append(out, models.Response{Answers: map[string]models.Answer{qid: a}})
	}
	return out
}

func sumPercent(cs []ChoiceCount) float64 {
	total := 0.0
	for _, c := range cs {
		total += c.Percentage
	}
	return total
}

func TestTallyTextAnswers(t *testing.T) {
	q := models.Question{ID: "q", Type: models.QuestionParagraph}
	rs := responsesWith("q", models.TextAnswer("one"), models.TextAnswer(""), models.TextAnswer("two"))
	rs = append(rs, models.Response{Answers: map[string]models.Answer{}})
	got := Tally(q, rs)
	if len(got.TextAnswers) != 2 || got.TextAnswers[0] != "one" || got.TextAnswers[1] != "two" {
		t.Fatalf("TextAnswers = %v", got.TextAnswers)
	}
}

func TestTallyMultipleChoice(t *testing.T) {
	q := models.Question{ID: "q", Type: models.QuestionMultipleChoice,
		Options: []models.Option{{ID: "a", Text: "Red"}, {ID: "b", Text: "Blue"}, {ID: "c", Text: "Green"}}}
	rs := responsesWith("q", models.TextAnswer("Red"), models.TextAnswer("Blue"), models.TextAnswer("Red"))
	got := Tally(q, rs)
	if got.TotalVotes != 3 {
		t.Fatalf("TotalVotes = %d, want 3", got.TotalVotes)
	}
	if got.Choices[0].Count != 2 || got.Choices[2].Count != 0 {
		t.Fatalf("unexpected counts %+v", got.Choices)
	}
	if math.Abs(sumPercent(got.Choices)-100) > 1e-9 {
		t.Fatalf("percentages sum to %.4f, want 100", sumPercent(got.Choices))
	}
}

func TestTallyCheckboxesFlattened(t *testing.T) {
	q := models.Question{ID: "q", Type: models.QuestionCheckboxes,
		Options: []models.Option{{ID: "a", Text: "Cheese"}, {ID: "b", Text: "Ham"}}}
	rs := responsesWith("q", models.ChoicesAnswer("Cheese", "Ham"), models.ChoicesAnswer("Cheese"))
	got := Tally(q, rs)
	if got.TotalVotes != 3 || got.Choices[0].Count != 2 || got.Choices[1].Count != 1 {
		t.Fatalf("unexpected tally %+v", got)
	}
	if math.Abs(sumPercent(got.Choices)-100) > 1e-9 {
		t.Fatalf("percentages sum to %.4f, want 100", sumPercent(got.Choices))
	}
}

func TestTallyNoVotesZeroPercent(t *testing.T) {
	q := models.Question{ID: "q", Type: models.QuestionDropdown, Options: []models.Option{{ID: "a", Text: "Red"}}}
	got := Tally(q, nil)
	if got.TotalVotes != 0 || got.Choices[0].Percentage != 0 {
		t.Fatalf("unexpected tally %+v", got)
	}
}

func TestTallyRatingPoll(t *testing.T) {
	q := models.Question{ID: "q", Type: models.QuestionRatingPoll, Options: []models.Option{
		Recompute(models.Option{ID: "B", Text: "B", Ratings: map[string]int{"u1": 4}}),
		Recompute(models.Option{ID: "A", Text: "A", Ratings: map[string]int{"u1": 5, "u2": 5, "u3": 3}}),
		{ID: "C", Text: "C"},
	}}
	got := Tally(q, nil)
	if len(got.Ratings) != 3 {
		t.Fatalf("len(Ratings) = %d, want 3", len(got.Ratings))
	}
	if got.Ratings[0].OptionID != "A" || got.Ratings[1].OptionID != "B" || got.Ratings[2].OptionID != "C" {
		t.Fatalf("ratings not ordered by average: %+v", got.Ratings)
	}
	a := got.Ratings[0]
	if a.Histogram[0].Stars != 5 || a.Histogram[0].Count != 2 {
		t.Fatalf("5-star bucket = %+v", a.Histogram[0])
	}
	if math.Abs(a.Histogram[2].Percentage-100.0/3) > 1e-9 || a.Histogram[2].Stars != 3 {
		t.Fatalf("3-star bucket = %+v", a.Histogram[2])
	}
	for _, b := range got.Ratings[2].Histogram {
		if b.Count != 0 || b.Percentage != 0 {
			t.Fatalf("unrated option bucket = %+v", b)
		}
	}
	if got.TotalVotes != 4 {
		t.Fatalf("TotalVotes = %d, want 4", got.TotalVotes)
	}
}
