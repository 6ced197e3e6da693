package assessment

import (
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"Wallcheck/internal/auth"
	"Wallcheck/internal/render"
	"Wallcheck/internal/repo"
)

type Handler struct {
	Service *Service

	pending pending
}

// maxPending bounds the unsaved assessments kept for a retry; the oldest go first.
const maxPending = 256

// pending holds assessments that were computed but could not be stored, by calculation id.
type pending struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*UnsavedError
}

func (p *pending) put(u *UnsavedError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byID == nil {
		p.byID = map[string]*UnsavedError{}
	}
	id := u.Calculation.ID
	if _, ok := p.byID[id]; !ok {
		p.order = append(p.order, id)
	}
	p.byID[id] = u
	for len(p.order) > maxPending {
		delete(p.byID, p.order[0])
		p.order = p.order[1:]
	}
}

func (p *pending) get(id string) (*UnsavedError, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[id]
	return u, ok
}

func (p *pending) drop(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byID[id]; !ok {
		return
	}
	delete(p.byID, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// UnsavedBody answers a failed write: the error, the computed result, and where to ask
// for the write again.
type UnsavedBody struct {
	render.ErrorBody
	Calculation repo.StoredCalculation `json:"calculation"`
	RBI         []repo.StoredRBI       `json:"rbi,omitempty"`
	Retry       string                 `json:"retry"`
}

func (h *Handler) unsaved(w http.ResponseWriter, err error) bool {
	var u *UnsavedError
	if !errors.As(err, &u) {
		return false
	}
	h.pending.put(u)
	render.JSON(w, http.StatusServiceUnavailable, UnsavedBody{
		ErrorBody:   render.ErrorBody{Error: "persistence", Message: err.Error(), Retryable: true},
		Calculation: u.Calculation,
		RBI:         u.RBI,
		Retry:       "/api/user/assessments/" + u.Calculation.ID + "/record",
	})
	return true
}

func notFound(w http.ResponseWriter, what string) {
	render.JSON(w, http.StatusNotFound, render.ErrorBody{Error: "not_found", Message: what + " not found"})
}

// Create assesses one inspection; ?rbi=true also derives the inspection interval.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}
	withRBI, _ := strconv.ParseBool(r.URL.Query().Get("rbi"))

	var (
		res Assessment
		err error
	)
	if withRBI {
		res, err = h.Service.AssessWithRBI(r.Context(), req, auth.Login(r.Context()))
	} else {
		res, err = h.Service.Assess(r.Context(), req, auth.Login(r.Context()))
	}
	if h.unsaved(w, err) {
		return
	}
	if err != nil {
		render.Error(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/user/assessments/"+res.ID)
	render.JSON(w, http.StatusCreated, res)
}

// Record writes an assessment whose first save failed, as computed at the time.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	u, ok := h.pending.get(id)
	if !ok {
		notFound(w, "unsaved calculation "+id)
		return
	}
	_, err := h.Service.Record(r.Context(), u.Calculation, u.RBI...)
	if h.unsaved(w, err) {
		return
	}
	if err != nil {
		render.Error(w, r, err)
		return
	}
	h.pending.drop(id)
	res, err := h.Service.Get(r.Context(), id)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/user/assessments/"+id)
	render.JSON(w, http.StatusCreated, res)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res, err := h.Service.Get(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		notFound(w, "calculation "+id)
		return
	}
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, res)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		render.Error(w, r, err)
		return
	}
	if list == nil {
		list = []repo.StoredCalculation{}
	}
	render.JSON(w, http.StatusOK, list)
}
