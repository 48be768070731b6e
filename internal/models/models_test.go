package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerJSONShapes(t *testing.T) {
	cases := []struct {
		name string
		in   Answer
		want string
	}{
		{"text", TextAnswer("Mon"), `"Mon"`},
		{"choices", ChoicesAnswer("a", "b"), `["a","b"]`},
		{"empty choices", ChoicesAnswer(), `[]`},
		{"ratings", RatingsAnswer(map[string]int{"A": 4}), `{"A":4}`},
		{"zero", Answer{}, `null`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.in)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(b))
		})
	}
}

func TestAnswerDecodesByShape(t *testing.T) {
	var r Response
	raw := `{"answers":{"q1":"hi","q2":["x"],"q3":{"A":5}},"submitterId":"u1","submittedAt":"2025-09-17T10:00:00Z"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &r))

	assert.True(t, r.Answers["q1"].IsText())
	assert.Equal(t, "hi", r.Answers["q1"].Text)
	assert.True(t, r.Answers["q2"].IsChoices())
	assert.Equal(t, []string{"x"}, r.Answers["q2"].Choices)
	assert.True(t, r.Answers["q3"].IsRatings())
	assert.Equal(t, 5, r.Answers["q3"].Ratings["A"])

	var bad Answer
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestAnswerConstructorsCopy(t *testing.T) {
	src := map[string]int{"A": 1}
	a := RatingsAnswer(src)
	src["A"] = 5
	assert.Equal(t, 1, a.Ratings["A"])

	choices := []string{"x"}
	c := ChoicesAnswer(choices...)
	choices[0] = "y"
	assert.Equal(t, "x", c.Choices[0])
}

func TestFormCloneIsDeep(t *testing.T) {
	f := Form{
		Title: "Lunch",
		Questions: []Question{{
			ID: "q1", Type: QuestionRatingPoll,
			Options: []Option{{ID: "A", Ratings: map[string]int{"u1": 3}}},
		}},
	}
	c := f.Clone()
	c.Questions[0].Options[0].Ratings["u1"] = 5
	c.Questions[0].Options = append(c.Questions[0].Options, Option{ID: "B"})
	c.Questions[0].Text = "changed"

	assert.Equal(t, 3, f.Questions[0].Options[0].Ratings["u1"])
	assert.Len(t, f.Questions[0].Options, 1)
	assert.Empty(t, f.Questions[0].Text)
}

func TestDocumentRoundTrip(t *testing.T) {
	in := Comment{Text: "hi", AuthorID: "u1", AuthorName: "Ada", CreatedAt: time.Date(2025, 9, 17, 0, 0, 0, 0, time.UTC)}
	doc, err := ToDocument(in)
	require.NoError(t, err)
	assert.Equal(t, "Ada", doc["authorName"])

	var out Comment
	require.NoError(t, FromDocument(doc, &out))
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.Text, out.Text)
}

func TestEnumsValidate(t *testing.T) {
	assert.True(t, StatusClosed.Valid())
	assert.False(t, FormStatus("archived").Valid())
	assert.True(t, QuestionCheckboxes.HasOptions())
	assert.False(t, QuestionParagraph.HasOptions())
	assert.False(t, QuestionType("matrix").Valid())
}
