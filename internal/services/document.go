package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soaringjerry/Pollen/internal/models"
)

const defaultFormTitle = "Untitled Poll"

// newID generates question and option ids. Tests replace it for deterministic output.
var newID = func() string { return uuid.NewString() }

// NewForm returns the document written when an author creates a form.
func NewForm(authorID string, now time.Time) models.Form {
	return models.Form{
		Title:     defaultFormTitle,
		AuthorID:  authorID,
		Status:    models.StatusDraft,
		Questions: []models.Question{},
		CreatedAt: now,
	}
}

// SetField sets a top-level form field. Only title, description and status
// are editable; applying the same value twice yields the same form.
func SetField(form models.Form, field string, value any) (models.Form, error) {
	out := form.Clone()
	switch field {
	case "title":
		s, ok := value.(string)
		if !ok {
			return form.Clone(), NewInvalidError("title must be a string")
		}
		out.Title = s
	case "description":
		s, ok := value.(string)
		if !ok {
			return form.Clone(), NewInvalidError("description must be a string")
		}
		out.Description = s
	case "status":
		st, err := asStatus(value)
		if err != nil {
			return form.Clone(), err
		}
		out.Status = st
	default:
		return form.Clone(), NewInvalidError(fmt.Sprintf("unknown form field %q", field))
	}
	return out, nil
}

func asStatus(value any) (models.FormStatus, error) {
	var st models.FormStatus
	switch v := value.(type) {
	case models.FormStatus:
		st = v
	case string:
		st = models.FormStatus(v)
	default:
		return "", NewInvalidError("status must be a string")
	}
	if !st.Valid() {
		return "", NewInvalidError(fmt.Sprintf("unknown status %q", st))
	}
	return st, nil
}

func asQuestionType(value any) (models.QuestionType, error) {
	var qt models.QuestionType
	switch v := value.(type) {
	case models.QuestionType:
		qt = v
	case string:
		qt = models.QuestionType(v)
	default:
		return "", NewInvalidError("type must be a string")
	}
	if !qt.Valid() {
		return "", NewInvalidError(fmt.Sprintf("unknown question type %q", qt))
	}
	return qt, nil
}

// AddQuestion appends an empty, optional question of the given type.
// Choice questions start with a single placeholder option; rating polls start empty.
func AddQuestion(form models.Form, qt models.QuestionType) (models.Form, error) {
	if !qt.Valid() {
		return form.Clone(), NewInvalidError(fmt.Sprintf("unknown question type %q", qt))
	}
	out := form.Clone()
	q := models.Question{ID: newID(), Type: qt}
	switch {
	case qt == models.QuestionRatingPoll:
		q.Options = []models.Option{}
	case qt.HasOptions():
		q.Options = []models.Option{{ID: newID(), Text: placeholderText(1)}}
	}
	out.Questions = append(out.Questions, q)
	return out, nil
}

// UpdateQuestion sets text, type or required on the question at index.
func UpdateQuestion(form models.Form, index int, field string, value any) (models.Form, error) {
	if err := checkQuestionIndex(form, index); err != nil {
		return form.Clone(), err
	}
	out := form.Clone()
	q := &out.Questions[index]
	switch field {
	case "text":
		s, ok := value.(string)
		if !ok {
			return form.Clone(), NewInvalidError("text must be a string")
		}
		q.Text = s
	case "required":
		b, ok := value.(bool)
		if !ok {
			return form.Clone(), NewInvalidError("required must be a boolean")
		}
		q.Required = b
	case "type":
		qt, err := asQuestionType(value)
		if err != nil {
			return form.Clone(), err
		}
		q.Type = qt
		if !qt.HasOptions() {
			q.Options = nil
		} else if q.Options == nil {
			q.Options = []models.Option{}
		}
	default:
		return form.Clone(), NewInvalidError(fmt.Sprintf("unknown question field %q", field))
	}
	return out, nil
}

func DeleteQuestion(form models.Form, index int) (models.Form, error) {
	if err := checkQuestionIndex(form, index); err != nil {
		return form.Clone(), err
	}
	out := form.Clone()
	out.Questions = append(out.Questions[:index], out.Questions[index+1:]...)
	return out, nil
}

// AddOption appends a placeholder option. Rating-poll questions receive a
// rating option attributed to creatorID.
func AddOption(form models.Form, qIndex int, creatorID string) (models.Form, error) {
	if err := checkOptionQuestion(form, qIndex); err != nil {
		return form.Clone(), err
	}
	out := form.Clone()
	q := &out.Questions[qIndex]
	text := placeholderText(len(q.Options) + 1)
	if q.Type == models.QuestionRatingPoll {
		q.Options = append(q.Options, newRatingOption(text, creatorID))
	} else {
		q.Options = append(q.Options, models.Option{ID: newID(), Text: text})
	}
	return out, nil
}

// UpdateOption sets text, imageUrl or isFlagged on an option.
func UpdateOption(form models.Form, qIndex, oIndex int, field string, value any) (models.Form, error) {
	if err := checkOptionIndex(form, qIndex, oIndex); err != nil {
		return form.Clone(), err
	}
	out := form.Clone()
	opt := &out.Questions[qIndex].Options[oIndex]
	switch field {
	case "text":
		s, ok := value.(string)
		if !ok {
			return form.Clone(), NewInvalidError("text must be a string")
		}
		opt.Text = s
	case "imageUrl":
		s, ok := value.(string)
		if !ok {
			return form.Clone(), NewInvalidError("imageUrl must be a string")
		}
		opt.ImageURL = strings.TrimSpace(s)
	case "isFlagged":
		b, ok := value.(bool)
		if !ok {
			return form.Clone(), NewInvalidError("isFlagged must be a boolean")
		}
		opt.IsFlagged = b
	default:
		return form.Clone(), NewInvalidError(fmt.Sprintf("unknown option field %q", field))
	}
	return out, nil
}

func DeleteOption(form models.Form, qIndex, oIndex int) (models.Form, error) {
	if err := checkOptionIndex(form, qIndex, oIndex); err != nil {
		return form.Clone(), err
	}
	out := form.Clone()
	opts := out.Questions[qIndex].Options
	out.Questions[qIndex].Options = append(opts[:oIndex], opts[oIndex+1:]...)
	return out, nil
}

// ReorderOption swaps the option with its neighbour in direction (-1 or +1).
// Moving past either end leaves the form unchanged.
func ReorderOption(form models.Form, qIndex, oIndex, direction int) (models.Form, error) {
	if direction != -1 && direction != 1 {
		return form.Clone(), NewInvalidError("direction must be -1 or 1")
	}
	if err := checkOptionIndex(form, qIndex, oIndex); err != nil {
		return form.Clone(), err
	}
	out := form.Clone()
	opts := out.Questions[qIndex].Options
	target := oIndex + direction
	if target < 0 || target >= len(opts) {
		return out, nil
	}
	opts[oIndex], opts[target] = opts[target], opts[oIndex]
	return out, nil
}

func placeholderText(n int) string { return fmt.Sprintf("Option %d", n) }

func newRatingOption(text, creatorID string) models.Option {
	return models.Option{
		ID:        newID(),
		Text:      text,
		Ratings:   map[string]int{},
		CreatorID: creatorID,
	}
}

func checkQuestionIndex(form models.Form, index int) error {
	if index < 0 || index >= len(form.Questions) {
		return NewInvalidError(fmt.Sprintf("question index %d out of range", index))
	}
	return nil
}

func checkOptionQuestion(form models.Form, qIndex int) error {
	if err := checkQuestionIndex(form, qIndex); err != nil {
		return err
	}
	if !form.Questions[qIndex].Type.HasOptions() {
		return NewInvalidError(fmt.Sprintf("question %d does not take options", qIndex))
	}
	return nil
}

func checkOptionIndex(form models.Form, qIndex, oIndex int) error {
	if err := checkOptionQuestion(form, qIndex); err != nil {
		return err
	}
	if oIndex < 0 || oIndex >= len(form.Questions[qIndex].Options) {
		return NewInvalidError(fmt.Sprintf("option index %d out of range", oIndex))
	}
	return nil
}
