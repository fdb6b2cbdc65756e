package publisher

import (
	"errors"
	"fmt"
	"sync"

	"github.com/social-scheduler/internal/models"
)

var (
	// ErrJobNotFound is returned for unknown job IDs
	ErrJobNotFound = errors.New("job not found")
	// ErrOccurrenceBusy is returned when an occurrence already belongs to an active job
	ErrOccurrenceBusy = errors.New("occurrence belongs to an active job")
)

// jobState is the live view of one bulk job. job is only mutated by the job's
// aggregator goroutine while holding mu.
type jobState struct {
	mu      sync.RWMutex
	job     *models.BulkJob
	index   map[string]int
	stopped bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newJobState(job *models.BulkJob) *jobState {
	index := make(map[string]int, len(job.Items))
	for i, it := range job.Items {
		index[it.ID] = i
	}
	return &jobState{
		job:   job,
		index: index,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (s *jobState) snapshot() *models.BulkJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.job.Clone()
}

func (s *jobState) item(i int) *models.Occurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.job.Items[i].Clone()
}

func (s *jobState) requestStop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.stop)
	})
}

func (s *jobState) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// JobStore tracks jobs started by this process and which occurrences they own
type JobStore struct {
	mu     sync.RWMutex
	jobs   map[string]*jobState
	owners map[string]string // occurrence ID -> active job ID
}

// NewJobStore creates an empty job store
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:   make(map[string]*jobState),
		owners: make(map[string]string),
	}
}

// add registers a job and reserves its occurrences, failing if any is owned by another active job
func (s *JobStore) add(state *jobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range state.job.ItemIDs {
		if owner, ok := s.owners[id]; ok {
			return fmt.Errorf("%w: %s is in job %s", ErrOccurrenceBusy, id, owner)
		}
	}
	for _, id := range state.job.ItemIDs {
		s.owners[id] = state.job.ID
	}
	s.jobs[state.job.ID] = state
	return nil
}

// release frees the occurrences of a finished job
func (s *JobStore) release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, owner := range s.owners {
		if owner == jobID {
			delete(s.owners, id)
		}
	}
}

// forget drops a job that failed to start
func (s *JobStore) forget(jobID string) {
	s.release(jobID)
	s.mu.Lock()
	delete(s.jobs, jobID)
	s.mu.Unlock()
}

func (s *JobStore) get(jobID string) (*jobState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[jobID]
	return st, ok
}

// Active returns the IDs of jobs that are still running
func (s *JobStore) Active() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, st := range s.jobs {
		select {
		case <-st.done:
		default:
			ids = append(ids, id)
		}
	}
	return ids
}
