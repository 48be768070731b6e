package services

import (
	"fmt"
	"strings"

	"github.com/soaringjerry/Pollen/internal/models"
)

type ValidationMode string

const (
	// ValidateFirst stops at the first failing question.
	ValidateFirst ValidationMode = "first"
	// ValidateAll reports every failing question.
	ValidateAll ValidationMode = "all"
)

type Violation struct {
	QuestionID    string `json:"questionId"`
	QuestionIndex int    `json:"questionIndex"`
	// Label is the question text, or "question N" when it has none.
	Label   string `json:"label"`
	Message string `json:"message"`
}

const requiredMessage = "Please answer the required question: %s"

// RequiredMessage renders the violation text for label using format,
// a translation of "Please answer the required question: %s".
func RequiredMessage(format, label string) string {
	return fmt.Sprintf(format, label)
}

// Validate checks required questions against answers. Rating polls never block submission.
func Validate(form models.Form, answers map[string]models.Answer, mode ValidationMode) []Violation {
	var out []Violation
	for i, q := range form.Questions {
		if !q.Required || q.Type == models.QuestionRatingPoll {
			continue
		}
		if answered(q, answers[q.ID]) {
			continue
		}
		label := strings.TrimSpace(q.Text)
		if label == "" {
			label = fmt.Sprintf("question %d", i+1)
		}
		out = append(out, Violation{
			QuestionID:    q.ID,
			QuestionIndex: i,
			Label:         label,
			Message:       RequiredMessage(requiredMessage, label),
		})
		if mode != ValidateAll {
			break
		}
	}
	return out
}

func answered(q models.Question, a models.Answer) bool {
	if q.Type == models.QuestionCheckboxes {
		return a.IsChoices() && len(a.Choices) > 0
	}
	if a.IsChoices() {
		return len(a.Choices) > 0
	}
	return a.IsText() && strings.TrimSpace(a.Text) != ""
}
