package api

import (
	"net/http"

	"github.com/soaringjerry/Pollen/internal/models"
	"github.com/soaringjerry/Pollen/internal/services"
)

type respondView struct {
	Form     models.Form            `json:"form"`
	Comments []services.CommentView `json:"comments"`
	TopRated string                 `json:"topRatedOptionId,omitempty"`
	Closed   bool                   `json:"closed"`
}

// GET /api/respond?formId=..&authorId=..
func (rt *Router) handleRespondView(w http.ResponseWriter, r *http.Request) {
	link, err := services.ShareLinkFromValues(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	form, err := rt.deps.Viewer.Load(r.Context(), link)
	if err != nil {
		writeError(w, r, err)
		return
	}
	comments, err := rt.deps.Viewer.Comments(r.Context(), link)
	if err != nil {
		writeError(w, r, err)
		return
	}
	top, _ := services.FeaturedOption(form)
	writeJSON(w, http.StatusOK, respondView{
		Form:     form,
		Comments: services.CommentViews(comments, rt.now()),
		TopRated: top,
		Closed:   form.Status == models.StatusClosed,
	})
}

// POST /api/respond/ratings?formId=..&authorId=..  { question, optionId, stars }
func (rt *Router) handleRate(w http.ResponseWriter, r *http.Request) {
	link, err := services.ShareLinkFromValues(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Question int    `json:"question"`
		OptionID string `json:"optionId"`
		Stars    int    `json:"stars"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	form, err := rt.deps.Viewer.Rate(r.Context(), link, caller(r), req.Question, req.OptionID, req.Stars)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// POST /api/respond/options?formId=..&authorId=..  { question, text }
func (rt *Router) handleCrowdOption(w http.ResponseWriter, r *http.Request) {
	link, err := services.ShareLinkFromValues(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Question int    `json:"question"`
		Text     string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	form, err := rt.deps.Viewer.AddCrowdOption(r.Context(), link, caller(r), req.Question, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, form)
}

// POST /api/respond/comments?formId=..&authorId=..  { text }
func (rt *Router) handleComment(w http.ResponseWriter, r *http.Request) {
	link, err := services.ShareLinkFromValues(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := rt.deps.Viewer.PostComment(r.Context(), link, caller(r), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, services.CommentViews([]models.Comment{c}, rt.now())[0])
}

// POST /api/respond/submit?formId=..&authorId=..  { answers: {questionId: "text" | ["a"] | {"optId": 4}} }
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	link, err := services.ShareLinkFromValues(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Answers map[string]models.Answer `json:"answers"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := rt.deps.Viewer.Submit(r.Context(), link, caller(r), req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}
