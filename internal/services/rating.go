package services

import (
	"fmt"
	"strings"

	"github.com/soaringjerry/Pollen/internal/models"
)

const (
	MinStars = 1
	MaxStars = 5
)

// Recompute derives RatingCount and AvgRating from the ratings map.
func Recompute(opt models.Option) models.Option {
	out := opt.Clone()
	out.RatingCount = len(out.Ratings)
	if out.RatingCount == 0 {
		out.AvgRating = 0
		return out
	}
	sum := 0
	for _, v := range out.Ratings {
		sum += v
	}
	out.AvgRating = float64(sum) / float64(out.RatingCount)
	return out
}

// ApplyRating records userID's stars on the option, replacing any earlier
// rating by the same user, and recomputes the aggregates from the full map.
func ApplyRating(opt models.Option, userID string, stars int) (models.Option, error) {
	if stars < MinStars || stars > MaxStars {
		return opt.Clone(), NewInvalidError(fmt.Sprintf("rating must be between %d and %d", MinStars, MaxStars))
	}
	if strings.TrimSpace(userID) == "" {
		return opt.Clone(), NewUnauthorizedError("user id required")
	}
	out := opt.Clone()
	if out.Ratings == nil {
		out.Ratings = map[string]int{}
	}
	out.Ratings[userID] = stars
	return Recompute(out), nil
}

// RateOption applies a rating to the option with optionID in the question at qIndex.
func RateOption(form models.Form, qIndex int, optionID, userID string, stars int) (models.Form, error) {
	if form.Status == models.StatusClosed {
		return form.Clone(), NewClosedError("poll is closed")
	}
	oIndex, err := findRatingOption(form, qIndex, optionID)
	if err != nil {
		return form.Clone(), err
	}
	out := form.Clone()
	rated, err := ApplyRating(out.Questions[qIndex].Options[oIndex], userID, stars)
	if err != nil {
		return form.Clone(), err
	}
	out.Questions[qIndex].Options[oIndex] = rated
	return out, nil
}

// AddCrowdOption appends a respondent-suggested option to a rating poll.
func AddCrowdOption(form models.Form, qIndex int, text, creatorID string) (models.Form, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return form.Clone(), NewInvalidError("option text required")
	}
	if form.Status == models.StatusClosed {
		return form.Clone(), NewClosedError("poll is closed")
	}
	if err := checkQuestionIndex(form, qIndex); err != nil {
		return form.Clone(), err
	}
	if form.Questions[qIndex].Type != models.QuestionRatingPoll {
		return form.Clone(), NewInvalidError(fmt.Sprintf("question %d is not a rating poll", qIndex))
	}
	out := form.Clone()
	out.Questions[qIndex].Options = append(out.Questions[qIndex].Options, newRatingOption(text, creatorID))
	return out, nil
}

// TopRated returns the id of the first option with the highest average.
func TopRated(options []models.Option) (string, bool) {
	if len(options) == 0 {
		return "", false
	}
	best := 0
	for i := 1; i < len(options); i++ {
		if options[i].AvgRating > options[best].AvgRating {
			best = i
		}
	}
	return options[best].ID, true
}

func findRatingOption(form models.Form, qIndex int, optionID string) (int, error) {
	if qIndex < 0 || qIndex >= len(form.Questions) {
		return -1, NewNotFoundError("question not found")
	}
	q := form.Questions[qIndex]
	if q.Type != models.QuestionRatingPoll {
		return -1, NewInvalidError(fmt.Sprintf("question %d is not a rating poll", qIndex))
	}
	for i, o := range q.Options {
		if o.ID == optionID {
			return i, nil
		}
	}
	return -1, NewNotFoundError("option not found")
}
