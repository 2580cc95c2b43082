package report

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	errs "fansync/pkg/errors"
)

// Scope tells which unit of work a failure aborted
type Scope string

const (
	ScopeAccount Scope = "account"
	ScopeUser    Scope = "user"
	ScopeItem    Scope = "item"
	ScopeAsset   Scope = "asset"
)

// Failure is one aborted unit with enough context to resume by hand
type Failure struct {
	Scope      Scope     `json:"scope"`
	Collection string    `json:"collection,omitempty"`
	UserID     int64     `json:"user_id,omitempty"`
	Username   string    `json:"username,omitempty"`
	Cursor     int       `json:"cursor,omitempty"`
	MediaID    int64     `json:"media_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Status     int       `json:"status,omitempty"`
	Error      string    `json:"error"`
	Time       time.Time `json:"time"`
}

// Report summarizes one pass of one account
type Report struct {
	ID         string    `json:"id"`
	Account    string    `json:"account"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Users      int       `json:"users"`
	Downloaded int       `json:"downloaded"`
	Skipped    int       `json:"skipped"`
	Bytes      int64     `json:"bytes"`
	Aborted    bool      `json:"aborted"`
	Failures   []Failure `json:"failures"`

	mu sync.Mutex
}

// New starts a report for account
func New(account string) *Report {
	return &Report{
		ID:        uuid.NewString(),
		Account:   account,
		StartedAt: time.Now(),
		Failures:  []Failure{},
	}
}

// Add records a failure
func (r *Report) Add(f Failure) {
	if f.Time.IsZero() {
		f.Time = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, f)
	if f.Scope == ScopeAccount {
		r.Aborted = true
	}
}

// AddError records err, copying the collection, user and cursor out of a
// wrapped ScrapeError.
func (r *Report) AddError(scope Scope, username string, err error) {
	f := Failure{Scope: scope, Username: username, Error: err.Error()}

	var se *errs.ScrapeError
	if errors.As(err, &se) {
		f.Collection = se.Collection
		f.UserID = se.UserID
		f.Cursor = se.Cursor
	}
	var typed *errs.Error
	if errors.As(err, &typed) {
		f.Kind = string(typed.Type)
		if typed.Type == errs.ErrorTypeTransport {
			f.Status = typed.Code
		}
	}
	r.Add(f)
}

// AddDownloaded counts a transferred item of n bytes
func (r *Report) AddDownloaded(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Downloaded++
	r.Bytes += n
}

// AddSkipped counts an item that needed no transfer
func (r *Report) AddSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped++
}

// SetUsers records how many remote users the pass covered
func (r *Report) SetUsers(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Users = n
}

// Finish stamps the end time
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
}

// FailureCount returns the number of recorded failures
func (r *Report) FailureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Failures)
}

// Duration is the pass wall time, or the time so far when unfinished
func (r *Report) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
