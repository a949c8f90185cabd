package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"diary/internal/auth"
	"diary/internal/calendar"
	"diary/internal/logger"
	"diary/internal/metrics"
	"diary/internal/models"
	"diary/internal/store"
	"diary/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

// Handlers carries everything the request handlers need; there is no package state.
type Handlers struct {
	store    store.Store
	sessions *auth.Manager
	creds    auth.Credentials
	pages    *web.Renderer
	log      *logger.Logger
	decoder  *schema.Decoder
	validate *validator.Validate
	now      func() time.Time
}

func NewHandlers(s store.Store, sessions *auth.Manager, creds auth.Credentials, pages *web.Renderer, log *logger.Logger) *Handlers {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &Handlers{
		store:    s,
		sessions: sessions,
		creds:    creds,
		pages:    pages,
		log:      log,
		decoder:  decoder,
		validate: validator.New(),
		now:      time.Now,
	}
}

type entryForm struct {
	Title string `schema:"title,required" validate:"max=120"`
	Text  string `schema:"text,required" validate:"max=360"`
}

type userForm struct {
	Username    string `schema:"username,required" validate:"max=80"`
	Email       string `schema:"email,required" validate:"max=120"`
	CreatedDate string `schema:"created_date"`
}

type loginForm struct {
	Username string `schema:"username"`
	Password string `schema:"password"`
}

type calendarView struct {
	Year      int
	Month     int
	MonthName string
	Weeks     []calendar.Week
	Days      []models.Day
	Marked    map[int]bool
	PrevYear  int
	PrevMonth int
	NextYear  int
	NextMonth int
}

type dayView struct {
	Year      int
	Month     int
	Day       int
	MonthName string
	Date      string
	Entries   []models.Entry
}

type loginView struct {
	Error string
}

// ShowDays renders the month grid for /{year}/{month}, defaulting to the
// current month. Every stored Day is listed, not only those of the month.
func (h *Handlers) ShowDays(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	year, month := now.Year(), int(now.Month())

	var err error
	if ys := chi.URLParam(r, "year"); ys != "" {
		if year, err = strconv.Atoi(ys); err != nil {
			http.Error(w, "Invalid year", http.StatusBadRequest)
			return
		}
	}
	if ms := chi.URLParam(r, "month"); ms != "" {
		if month, err = strconv.Atoi(ms); err != nil {
			http.Error(w, "Invalid month", http.StatusBadRequest)
			return
		}
	}

	weeks, err := calendar.MonthGrid(year, time.Month(month))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	monthName, _ := calendar.MonthName(time.Month(month))

	days, err := h.store.ListDays(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	marked := make(map[int]bool)
	for _, d := range days {
		if d.Date.Year == year && int(d.Date.Month) == month {
			marked[d.Date.Day] = true
		}
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	prev, next := first.AddDate(0, -1, 0), first.AddDate(0, 1, 0)

	h.render(w, r, http.StatusOK, web.PageShowDays, monthName, calendarView{
		Year:      year,
		Month:     month,
		MonthName: monthName,
		Weeks:     weeks,
		Days:      days,
		Marked:    marked,
		PrevYear:  prev.Year(),
		PrevMonth: int(prev.Month()),
		NextYear:  next.Year(),
		NextMonth: int(next.Month()),
	})
}

// ShowEntries lists the entries of one day; a day without a record is empty, not missing.
func (h *Handlers) ShowEntries(w http.ResponseWriter, r *http.Request) {
	view, ok := h.dayFromPath(w, r)
	if !ok {
		return
	}

	date, _ := models.ParseDate(view.Date)
	entries, err := h.store.ListEntriesByDate(r.Context(), date)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	view.Entries = entries

	h.render(w, r, http.StatusOK, web.PageShowEntries, view.Date, view)
}

// EntryPage renders the blank form for composing an entry on a date.
func (h *Handlers) EntryPage(w http.ResponseWriter, r *http.Request) {
	view, ok := h.dayFromPath(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, web.PageEntryPage, "New entry", view)
}

func (h *Handlers) dayFromPath(w http.ResponseWriter, r *http.Request) (dayView, bool) {
	date, err := models.DateFromParts(chi.URLParam(r, "year"), chi.URLParam(r, "month"), chi.URLParam(r, "day"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return dayView{}, false
	}
	return dayView{
		Year:      date.Year,
		Month:     int(date.Month),
		Day:       date.Day,
		MonthName: date.Month.String(),
		Date:      date.String(),
	}, true
}

// AddEntry stores a new entry for /add_entry/{date}, creating the Day if needed.
func (h *Handlers) AddEntry(w http.ResponseWriter, r *http.Request) {
	date, err := models.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var form entryForm
	if !h.decodeForm(w, r, &form) {
		return
	}

	entry, created, err := h.store.AddEntry(r.Context(), date, form.Title, form.Text)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	metrics.EntriesCreatedTotal.Inc()
	if created {
		metrics.DaysCreatedTotal.Inc()
	}
	h.log.WithFields(logger.Fields{"entry_id": entry.ID, "day_id": entry.DayID, "date": date}).Debug("entry added")

	h.flash(w, r, "New entry was successfully posted")
	http.Redirect(w, r, fmt.Sprintf("/show_entries/%d/%d/%d", date.Year, int(date.Month), date.Day), http.StatusSeeOther)
}

// AddUser creates a user; a taken username or email is a 409.
func (h *Handlers) AddUser(w http.ResponseWriter, r *http.Request) {
	var form userForm
	if !h.decodeForm(w, r, &form) {
		return
	}

	created := models.DateOf(h.now())
	if form.CreatedDate != "" {
		d, err := models.ParseDate(form.CreatedDate)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		created = d
	}

	u := &models.User{Username: form.Username, Email: form.Email, CreatedDate: created}
	if err := h.store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			http.Error(w, "Username or email already exists", http.StatusConflict)
			return
		}
		h.serverError(w, r, err)
		return
	}
	metrics.UsersCreatedTotal.Inc()

	h.flash(w, r, "New user was successfully added")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Login checks the submitted credentials against the configured pair.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.render(w, r, http.StatusOK, web.PageLogin, "Login", loginView{})
		return
	}

	var form loginForm
	if !h.decodeForm(w, r, &form) {
		return
	}

	if err := h.creds.Check(form.Username, form.Password); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		msg := "Invalid password"
		if errors.Is(err, auth.ErrInvalidUsername) {
			msg = "Invalid username"
		}
		h.render(w, r, http.StatusOK, web.PageLogin, "Login", loginView{Error: msg})
		return
	}
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()

	sess := h.session(r)
	if err := h.sessions.Renew(r.Context(), sess); err != nil {
		h.log.Warnf("drop pre-login session: %v", err)
	}
	sess.Login()
	h.flash(w, r, "You were logged in")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout clears the auth flag whether or not it was set.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.session(r).Logout()
	h.flash(w, r, "You were logged out")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type healthResponse struct {
	Status  string `json:"status"`
	Days    int    `json:"days"`
	Entries int    `json:"entries"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{Status: "ok"}
	var err error
	if err = h.store.Ping(r.Context()); err == nil {
		if resp.Days, err = h.store.CountDays(r.Context()); err == nil {
			resp.Entries, err = h.store.CountEntries(r.Context())
		}
	}
	if err != nil {
		h.log.Errorf("health check failed: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(healthResponse{Status: "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *Handlers) decodeForm(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return false
	}
	if err := h.decoder.Decode(dst, r.PostForm); err != nil {
		http.Error(w, fmt.Sprintf("Invalid form: %v", err), http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		http.Error(w, fmt.Sprintf("Invalid form: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// session returns the request's session; handlers mounted without the
// Session middleware get a throwaway anonymous one.
func (h *Handlers) session(r *http.Request) *auth.Session {
	if s, ok := auth.SessionFromContext(r.Context()); ok {
		return s
	}
	return auth.NewSession()
}

// flash queues msg and persists the session; it must run before the response is written.
func (h *Handlers) flash(w http.ResponseWriter, r *http.Request, msg string) {
	s := h.session(r)
	s.Flash(msg)
	if err := h.sessions.Save(r.Context(), w, s); err != nil {
		h.log.Errorf("save session: %v", err)
	}
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	s := h.session(r)
	p := web.Page{Title: title, LoggedIn: s.Authenticated, Data: data}
	if flashes := s.PopFlashes(); len(flashes) > 0 {
		p.Flashes = flashes
		if err := h.sessions.Save(r.Context(), w, s); err != nil {
			h.log.Errorf("save session: %v", err)
		}
	}
	if err := h.pages.Render(w, status, page, p); err != nil {
		h.serverError(w, r, err)
	}
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.WithFields(logger.Fields{"method": r.Method, "path": r.URL.Path}).Errorf("request failed: %v", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
