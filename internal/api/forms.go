package api

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/soaringjerry/Pollen/internal/models"
	"github.com/soaringjerry/Pollen/internal/services"
)

// GET /api/forms
func (rt *Router) handleListForms(w http.ResponseWriter, r *http.Request) {
	forms, err := rt.deps.Builder.ListForms(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"forms": forms})
}

// POST /api/forms
func (rt *Router) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	form, err := rt.deps.Builder.CreateForm(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"form":      form,
		"shareLink": rt.deps.Builder.ShareLink(form.AuthorID, form.ID),
	})
}

// GET /api/forms/{formId}
func (rt *Router) handleGetForm(w http.ResponseWriter, r *http.Request) {
	form, err := rt.deps.Builder.Load(r.Context(), caller(r).UserID, r.PathValue("formId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// GET /api/forms/{formId}/share
func (rt *Router) handleShare(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	form, err := rt.deps.Builder.Load(r.Context(), id.UserID, r.PathValue("formId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"shareLink": rt.deps.Builder.ShareLink(id.UserID, form.ID)})
}

// editOp is one builder operation. Question and Option are zero-based indexes.
type editOp struct {
	Op        string `json:"op"`
	Field     string `json:"field,omitempty"`
	Value     any    `json:"value,omitempty"`
	Type      string `json:"type,omitempty"`
	Question  int    `json:"question"`
	Option    int    `json:"option"`
	Direction int    `json:"direction,omitempty"`
}

type editRequest struct {
	Ops []editOp `json:"ops"`
	// Flush writes immediately instead of waiting for the debounce window.
	Flush bool `json:"flush"`
}

func applyOp(s *services.BuilderSession, op editOp) (models.Form, error) {
	switch op.Op {
	case "setField":
		return s.SetField(op.Field, op.Value)
	case "addQuestion":
		return s.AddQuestion(models.QuestionType(op.Type))
	case "updateQuestion":
		return s.UpdateQuestion(op.Question, op.Field, op.Value)
	case "deleteQuestion":
		return s.DeleteQuestion(op.Question)
	case "addOption":
		return s.AddOption(op.Question)
	case "updateOption":
		return s.UpdateOption(op.Question, op.Option, op.Field, op.Value)
	case "deleteOption":
		return s.DeleteOption(op.Question, op.Option)
	case "reorderOption":
		return s.ReorderOption(op.Question, op.Option, op.Direction)
	}
	return s.Form(), services.NewInvalidError(fmt.Sprintf("unknown op %q", op.Op))
}

// POST /api/forms/{formId}/edits
// { ops: [{op, field?, value?, type?, question?, option?, direction?}], flush? }
// Ops apply in order and stop at the first failure; earlier ops stay applied.
func (rt *Router) handleEdits(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Ops) == 0 {
		writeError(w, r, services.NewInvalidError("ops required"))
		return
	}
	ts, err := rt.sessions.acquire(r.Context(), caller(r), r.PathValue("formId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ts.ops.Lock()
	defer ts.ops.Unlock()

	var form models.Form
	for i, op := range req.Ops {
		form, err = applyOp(ts.session, op)
		if err != nil {
			se, _ := services.AsServiceError(err)
			if se != nil {
				se.Message = fmt.Sprintf("op %d (%s): %s", i, op.Op, se.Message)
			}
			writeError(w, r, err)
			return
		}
	}
	if req.Flush {
		if err := ts.session.Flush(); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"form": form, "pending": ts.session.Pending()})
}

// GET /api/forms/{formId}/summary
func (rt *Router) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := rt.deps.Summary.Summary(r.Context(), caller(r).UserID, r.PathValue("formId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GET /api/forms/{formId}/export?format=wide|long
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	format := services.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = services.ExportWide
	}
	formID := r.PathValue("formId")
	b, err := rt.deps.Summary.Export(r.Context(), caller(r).UserID, formID, format)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": fmt.Sprintf("%s-%s.csv", formID, format),
	}))
	_, _ = w.Write(b)
}
