package scrape_engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/models"
)

// memStore enforces UNIQUE(client_id, root_url) like the real table.
type memStore struct {
	mu       sync.Mutex
	clients  map[string]string // client -> tenant
	sources  map[string]*models.WebSource
	chunks   []models.DocumentChunk
	progress []int
	// beforeInsert runs without the lock held, to widen race windows.
	beforeInsert func()
	// beforeProgress and beforeFinish run under the lock and may rewrite
	// the row to simulate a requeue by another request.
	beforeProgress func(ws *models.WebSource)
	beforeFinish   func(ws *models.WebSource)
}

func newMemStore() *memStore {
	return &memStore{
		clients: map[string]string{"c1": "t1"},
		sources: map[string]*models.WebSource{},
	}
}

func (s *memStore) GetClient(_ context.Context, tenantID, clientID string) (*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[clientID] != tenantID {
		return nil, fmt.Errorf("client %s: %w", clientID, core.ErrNotFound)
	}
	return &models.Client{ID: clientID, TenantID: tenantID}, nil
}

func (s *memStore) GetWebSource(_ context.Context, id string) (*models.WebSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("web source: %w", core.ErrNotFound)
	}
	cp := *ws
	return &cp, nil
}

func (s *memStore) GetWebSourceForTenant(ctx context.Context, tenantID, id string) (*models.WebSource, error) {
	ws, err := s.GetWebSource(ctx, id)
	if err != nil || ws.TenantID != tenantID {
		return nil, fmt.Errorf("web source: %w", core.ErrNotFound)
	}
	return ws, nil
}

func (s *memStore) GetWebSourceByRoot(_ context.Context, clientID, rootURL string) (*models.WebSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.sources {
		if ws.ClientID == clientID && ws.RootURL == rootURL {
			cp := *ws
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("web source: %w", core.ErrNotFound)
}

func (s *memStore) CreateWebSource(_ context.Context, ws *models.WebSource) error {
	if s.beforeInsert != nil {
		s.beforeInsert()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sources {
		if existing.ClientID == ws.ClientID && existing.RootURL == ws.RootURL {
			return fmt.Errorf("create web source: %w", core.ErrDuplicateJob)
		}
	}
	ws.CreatedAt = time.Now()
	ws.UpdatedAt = ws.CreatedAt
	cp := *ws
	s.sources[ws.ID] = &cp
	return nil
}

func (s *memStore) ResetWebSource(_ context.Context, id, seedURL string, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.sources[id]
	if !ws.Status.IsTerminal() && !ws.UpdatedAt.Before(staleBefore) {
		return false, nil
	}
	ws.Status = models.WebSourcePending
	ws.SeedURL = seedURL
	ws.PagesCrawled = 0
	ws.LastURL = ""
	ws.ErrorMessage = ""
	ws.RunID = ""
	ws.StartedAt = nil
	ws.CompletedAt = nil
	ws.UpdatedAt = time.Now()
	return true, nil
}

func (s *memStore) TransitionWebSource(_ context.Context, id string, from, to models.WebSourceStatus, errMsg string) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, core.Validationf("bad transition %s -> %s", from, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.sources[id]
	if ws.Status != from {
		return false, nil
	}
	now := time.Now()
	ws.Status = to
	ws.ErrorMessage = errMsg
	ws.UpdatedAt = now
	if to.IsTerminal() {
		ws.CompletedAt = &now
	}
	return true, nil
}

func (s *memStore) StartWebSource(_ context.Context, id, runID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.sources[id]
	if ws.Status != models.WebSourcePending {
		return false, nil
	}
	now := time.Now()
	ws.Status = models.WebSourceScraping
	ws.RunID = runID
	ws.StartedAt = &now
	ws.UpdatedAt = now
	return true, nil
}

func (s *memStore) FinishWebSource(_ context.Context, id, runID string, to models.WebSourceStatus, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.sources[id]
	if s.beforeFinish != nil {
		s.beforeFinish(ws)
	}
	if ws.Status != models.WebSourceScraping || ws.RunID != runID {
		return false, nil
	}
	now := time.Now()
	ws.Status = to
	ws.ErrorMessage = errMsg
	ws.CompletedAt = &now
	ws.UpdatedAt = now
	if to == models.WebSourceCompleted {
		kept := s.chunks[:0]
		for _, c := range s.chunks {
			if !(c.WebSourceID != nil && *c.WebSourceID == id && c.RunID != runID) {
				kept = append(kept, c)
			}
		}
		s.chunks = kept
	}
	return true, nil
}

func (s *memStore) UpdateWebSourceProgress(_ context.Context, id, runID string, pages int, lastURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.sources[id]
	if s.beforeProgress != nil {
		s.beforeProgress(ws)
	}
	if ws.Status != models.WebSourceScraping || ws.RunID != runID {
		return false, nil
	}
	ws.PagesCrawled = pages
	ws.LastURL = lastURL
	ws.UpdatedAt = time.Now()
	s.progress = append(s.progress, pages)
	return true, nil
}

func (s *memStore) InsertDocumentChunks(_ context.Context, chunks []models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *memStore) DeleteRunChunks(_ context.Context, owner core.ChunkOwner, runID string) error {
	s.filter(func(c models.DocumentChunk) bool { return *c.WebSourceID == owner.WebSourceID && c.RunID == runID })
	return nil
}

func (s *memStore) filter(drop func(models.DocumentChunk) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if !drop(c) {
			kept = append(kept, c)
		}
	}
	s.chunks = kept
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

func (s *memStore) source(id string) models.WebSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.sources[id]
}

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []core.ScrapeJob
	err  error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, jobName string, job core.ScrapeJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

type fakeEmbedder struct{}

func (fakeEmbedder) ModelName() string { return "fake-embed" }

func (fakeEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
