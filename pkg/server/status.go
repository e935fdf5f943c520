package server

import (
	"sync"

	"github.com/kylerisse/perfpoints/pkg/publisher"
)

// Status is the JSON body of GET /api/status.
type Status struct {
	Queued    int64  `json:"queued"`
	Published int64  `json:"published"`
	NoReport  int64  `json:"no_report"`
	Failed    int64  `json:"failed"`
	Dropped   int64  `json:"dropped"`
	Points    int64  `json:"points"`
	LastBuild string `json:"last_build,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// stats tracks request outcomes. It is safe for concurrent use.
type stats struct {
	mu sync.Mutex
	s  Status
}

func (st *stats) queued() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Queued++
}

func (st *stats) dropped() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Queued--
	st.s.Dropped++
}

// record moves one request out of the queue and into its outcome counter.
func (st *stats) record(build string, res publisher.Result, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s.Queued--
	st.s.LastBuild = build
	st.s.Points += int64(res.Points)
	switch {
	case err != nil:
		st.s.Failed++
		st.s.LastError = err.Error()
	case !res.HasReport:
		st.s.NoReport++
	default:
		st.s.Published++
	}
}

func (st *stats) snapshot() Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}
