package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// FormStatus is the publication lifecycle of a form.
type FormStatus string

const (
	StatusDraft     FormStatus = "draft"
	StatusPublished FormStatus = "published"
	StatusClosed    FormStatus = "closed"
)

// Valid reports whether s is a known status.
func (s FormStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusClosed:
		return true
	}
	return false
}

type QuestionType string

const (
	QuestionShortAnswer    QuestionType = "short-answer"
	QuestionParagraph      QuestionType = "paragraph"
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionCheckboxes     QuestionType = "checkboxes"
	QuestionDropdown       QuestionType = "dropdown"
	QuestionRatingPoll     QuestionType = "rating-poll"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionShortAnswer, QuestionParagraph, QuestionMultipleChoice,
		QuestionCheckboxes, QuestionDropdown, QuestionRatingPoll:
		return true
	}
	return false
}

// HasOptions reports whether questions of this type carry an option list.
func (t QuestionType) HasOptions() bool {
	switch t {
	case QuestionMultipleChoice, QuestionCheckboxes, QuestionDropdown, QuestionRatingPoll:
		return true
	}
	return false
}

// Form is the root document a user authors and respondents answer.
type Form struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AuthorID    string     `json:"authorId"`
	Status      FormStatus `json:"status"`
	Questions   []Question `json:"questions"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type Question struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Required bool         `json:"required"`
	Options  []Option     `json:"options,omitempty"`
}

// Option is a selectable choice. Rating-poll options additionally carry the
// per-user ratings map and the aggregates derived from it.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`

	ImageURL    string         `json:"imageUrl,omitempty"`
	Ratings     map[string]int `json:"ratings,omitempty"`
	AvgRating   float64        `json:"avgRating,omitempty"`
	RatingCount int            `json:"ratingCount,omitempty"`
	CreatorID   string         `json:"creatorId,omitempty"`
	IsFlagged   bool           `json:"isFlagged,omitempty"`
}

// Response is one respondent's submission. Responses are never edited.
type Response struct {
	ID          string            `json:"id,omitempty"`
	Answers     map[string]Answer `json:"answers"`
	SubmitterID string            `json:"submitterId"`
	SubmittedAt time.Time         `json:"submittedAt"`
}

type Comment struct {
	ID         string    `json:"id,omitempty"`
	Text       string    `json:"text"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}

type answerKind uint8

const (
	answerNone answerKind = iota
	answerText
	answerChoices
	answerRatings
)

// Answer holds the value given for a single question: free or selected text,
// a checkbox selection, or a map of optionId to stars for rating polls.
type Answer struct {
	kind    answerKind
	Text    string
	Choices []string
	Ratings map[string]int
}

func TextAnswer(s string) Answer { return Answer{kind: answerText, Text: s} }

func ChoicesAnswer(choices ...string) Answer {
	cp := make([]string, len(choices))
	copy(cp, choices)
	return Answer{kind: answerChoices, Choices: cp}
}

func RatingsAnswer(r map[string]int) Answer {
	cp := make(map[string]int, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return Answer{kind: answerRatings, Ratings: cp}
}

func (a Answer) IsText() bool    { return a.kind == answerText }
func (a Answer) IsChoices() bool { return a.kind == answerChoices }
func (a Answer) IsRatings() bool { return a.kind == answerRatings }

func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case answerText:
		return json.Marshal(a.Text)
	case answerChoices:
		if a.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Choices)
	case answerRatings:
		if a.Ratings == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(a.Ratings)
	}
	return []byte("null"), nil
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = Answer{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = TextAnswer(s)
	case '[':
		var cs []string
		if err := json.Unmarshal(b, &cs); err != nil {
			return err
		}
		*a = Answer{kind: answerChoices, Choices: cs}
	case '{':
		var m map[string]int
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
		*a = Answer{kind: answerRatings, Ratings: m}
	default:
		return fmt.Errorf("unsupported answer value %s", string(b))
	}
	return nil
}
