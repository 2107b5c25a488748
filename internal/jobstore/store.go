// Package jobstore persists batch-job status and result records in an
// embedded Badger database. Two records exist per job: "status" and
// "results". The store serializes all mutating and listing operations
// through one mutex; it is built for a single process, not shared writers.
package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/sourcestack/resume-batch/internal/entity"
)

const (
	statusPrefix  = "job/"
	statusSuffix  = "/status"
	resultsSuffix = "/results"
)

// Store is a durable key-value job store with retention-based cleanup.
type Store struct {
	db        *badger.DB
	retention time.Duration
	mu        sync.Mutex
	logger    *slog.Logger
}

// statusRecord wraps a status with the time it was written, the last-resort
// reference time for retention when the status itself carries no timestamps.
type statusRecord struct {
	SavedAt time.Time        `json:"saved_at"`
	Status  entity.JobStatus `json:"status"`
}

type resultsRecord struct {
	SavedAt    time.Time          `json:"saved_at"`
	Candidates []entity.Candidate `json:"candidates"`
}

// NewStore opens (creating if needed) the store under dataDir. Retention
// below one hour is clamped to one hour.
func NewStore(dataDir string, retentionHours int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if retentionHours < 1 {
		retentionHours = 1
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "jobs"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	return &Store{
		db:        db,
		retention: time.Duration(retentionHours) * time.Hour,
		logger:    logger,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveStatus upserts the status record for its job id.
func (s *Store) SaveStatus(_ context.Context, status *entity.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := statusRecord{SavedAt: time.Now().UTC(), Status: *status}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(statusKey(status.JobID)), data)
	})
}

// LoadStatus returns the stored status, or nil when the job is unknown.
func (s *Store) LoadStatus(_ context.Context, jobID string) (*entity.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.loadStatusRecord(jobID)
	if err != nil || rec == nil {
		return nil, err
	}
	return &rec.Status, nil
}

// SaveResults upserts the full result list for a job.
func (s *Store) SaveResults(_ context.Context, jobID string, candidates []entity.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if candidates == nil {
		candidates = []entity.Candidate{}
	}
	rec := resultsRecord{SavedAt: time.Now().UTC(), Candidates: candidates}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(resultsKey(jobID)), data)
	})
}

// LoadResults returns the stored result list, or nil when none was saved.
func (s *Store) LoadResults(_ context.Context, jobID string) ([]entity.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadResultsRecord(jobID)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Candidates, nil
}

// ListJobs returns all known job ids, newest first by creation time,
// after a cleanup pass.
func (s *Store) ListJobs(ctx context.Context) ([]string, error) {
	if err := s.CleanupExpiredJobs(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.jobIDs()
	if err != nil {
		return nil, err
	}

	created := make(map[string]time.Time, len(ids))
	for _, jobID := range ids {
		rec, err := s.loadStatusRecord(jobID)
		if err != nil {
			return nil, err
		}
		switch {
		case rec != nil && rec.Status.CreatedAt != nil:
			created[jobID] = *rec.Status.CreatedAt
		case rec != nil:
			created[jobID] = rec.SavedAt
		default:
			if res, err := s.loadResultsRecord(jobID); err == nil && res != nil {
				created[jobID] = res.SavedAt
			}
		}
	}

	sort.Slice(ids, func(i, j int) bool {
		ti, tj := created[ids[i]], created[ids[j]]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ids[i] > ids[j]
	})
	return ids, nil
}

// CleanupExpiredJobs deletes every job whose reference time (completion
// time, else creation time, else the time the record was written) is older
// than the retention window.
func (s *Store) CleanupExpiredJobs(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.jobIDs()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, jobID := range ids {
		rec, err := s.loadStatusRecord(jobID)
		if err != nil {
			return err
		}

		reference := now
		if rec != nil {
			switch {
			case rec.Status.CompletedAt != nil:
				reference = *rec.Status.CompletedAt
			case rec.Status.CreatedAt != nil:
				reference = *rec.Status.CreatedAt
			case !rec.SavedAt.IsZero():
				reference = rec.SavedAt
			}
		} else {
			// Orphaned results record (crash between the results and
			// status writes): age it by its own write time so it still
			// expires.
			res, err := s.loadResultsRecord(jobID)
			if err != nil {
				return err
			}
			if res != nil && !res.SavedAt.IsZero() {
				reference = res.SavedAt
			}
		}

		if now.Sub(reference) <= s.retention {
			continue
		}

		err = s.db.Update(func(txn *badger.Txn) error {
			if err := txn.Delete([]byte(statusKey(jobID))); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			if err := txn.Delete([]byte(resultsKey(jobID))); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("delete expired job %s: %w", jobID, err)
		}
		s.logger.Info("jobstore.cleanup.deleted", "job_id", jobID, "reference_time", reference)
	}

	return nil
}

func (s *Store) loadResultsRecord(jobID string) (*resultsRecord, error) {
	var rec resultsRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(resultsKey(jobID)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) loadStatusRecord(jobID string) (*statusRecord, error) {
	var rec statusRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(statusKey(jobID)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// jobIDs collects ids from both status and results keys, so a job with
// only one record present is still visible to cleanup.
func (s *Store) jobIDs() ([]string, error) {
	seen := map[string]struct{}{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(statusPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			rest := strings.TrimPrefix(key, statusPrefix)
			var id string
			switch {
			case strings.HasSuffix(rest, statusSuffix):
				id = strings.TrimSuffix(rest, statusSuffix)
			case strings.HasSuffix(rest, resultsSuffix):
				id = strings.TrimSuffix(rest, resultsSuffix)
			default:
				continue
			}
			if id != "" {
				seen[id] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids, nil
}

func statusKey(jobID string) string {
	return statusPrefix + jobID + statusSuffix
}

func resultsKey(jobID string) string {
	return statusPrefix + jobID + resultsSuffix
}
