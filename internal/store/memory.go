package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/temario/internal/types"
)

// Memory implements Store in process memory. All operations run under one
// mutex, so CompareAndSetStatus and RecordResult are atomic here.
// Error injection fields let tests exercise failure paths.
type Memory struct {
	mu sync.Mutex

	areas      map[string]*types.ContentArea
	pages      map[string]map[int]types.Page // area -> page number -> page
	topics     map[string]*types.Topic
	topicPages map[string]map[int]types.TopicPage // topic -> page number -> page
	jobs       map[string]*types.BatchJob

	// ErrOn makes the named method fail, e.g. ErrOn["UpsertTopicPages"].
	ErrOn map[string]error

	// ErrAfterNWrites fails every write after N successful ones (0 = off).
	ErrAfterNWrites int
	writeErr        error
	writes          int

	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		areas:      make(map[string]*types.ContentArea),
		pages:      make(map[string]map[int]types.Page),
		topics:     make(map[string]*types.Topic),
		topicPages: make(map[string]map[int]types.TopicPage),
		jobs:       make(map[string]*types.BatchJob),
		ErrOn:      make(map[string]error),
		now:        time.Now,
	}
}

// FailAfterWrites makes every write after n successful writes return err.
func (m *Memory) FailAfterWrites(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrAfterNWrites = n
	m.writeErr = err
	m.writes = 0
}

// SetError injects (or with nil clears) an error for one method.
func (m *Memory) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.ErrOn, method)
		return
	}
	m.ErrOn[method] = err
}

func (m *Memory) check(method string) error {
	if err, ok := m.ErrOn[method]; ok {
		return err
	}
	return nil
}

func (m *Memory) checkWrite(method string) error {
	if err := m.check(method); err != nil {
		return err
	}
	if m.ErrAfterNWrites > 0 {
		if m.writes >= m.ErrAfterNWrites {
			return m.writeErr
		}
		m.writes++
	}
	return nil
}

// Areas

func (m *Memory) GetArea(_ context.Context, id string) (*types.ContentArea, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetArea"); err != nil {
		return nil, err
	}
	a, ok := m.areas[id]
	if !ok {
		return nil, fmt.Errorf("area %s: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) ListAreas(_ context.Context) ([]*types.ContentArea, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListAreas"); err != nil {
		return nil, err
	}
	out := make([]*types.ContentArea, 0, len(m.areas))
	for _, a := range m.areas {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) EnsureArea(_ context.Context, id string) (*types.ContentArea, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.areas[id]; ok {
		cp := *a
		return &cp, nil
	}
	if err := m.checkWrite("EnsureArea"); err != nil {
		return nil, err
	}
	now := m.now()
	a := &types.ContentArea{ID: id, Status: types.AreaPending, CreatedAt: now, UpdatedAt: now}
	m.areas[id] = a
	cp := *a
	return &cp, nil
}

func (m *Memory) UpdateArea(_ context.Context, id string, upd types.AreaUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite("UpdateArea"); err != nil {
		return err
	}
	a, ok := m.areas[id]
	if !ok {
		return fmt.Errorf("area %s: %w", id, ErrNotFound)
	}
	upd.Apply(a)
	a.UpdatedAt = m.now()
	return nil
}

func (m *Memory) CompareAndSetStatus(_ context.Context, id string, from, to types.AreaStatus, upd types.AreaUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite("CompareAndSetStatus"); err != nil {
		return err
	}
	a, ok := m.areas[id]
	if !ok {
		return fmt.Errorf("area %s: %w", id, ErrNotFound)
	}
	if a.Status != from {
		return fmt.Errorf("area %s is %s, expected %s: %w", id, a.Status, from, ErrStatusConflict)
	}
	upd.Status = &to
	upd.Apply(a)
	a.UpdatedAt = m.now()
	return nil
}

// Pages

func (m *Memory) UpsertPages(_ context.Context, pages []types.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pages {
		if err := m.checkWrite("UpsertPages"); err != nil {
			return err
		}
		byNum, ok := m.pages[p.AreaID]
		if !ok {
			byNum = make(map[int]types.Page)
			m.pages[p.AreaID] = byNum
		}
		byNum[p.PageNumber] = p
	}
	return nil
}

func (m *Memory) ListPages(_ context.Context, areaID string, r types.PageRange) ([]types.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListPages"); err != nil {
		return nil, err
	}
	out := []types.Page{}
	for n, p := range m.pages[areaID] {
		if r.Contains(n) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}

func (m *Memory) CountPages(_ context.Context, areaID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("CountPages"); err != nil {
		return 0, err
	}
	return len(m.pages[areaID]), nil
}

func (m *Memory) PrunePages(_ context.Context, areaID string, keep []int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite("PrunePages"); err != nil {
		return 0, err
	}
	wanted := make(map[int]bool, len(keep))
	for _, n := range keep {
		wanted[n] = true
	}
	removed := 0
	for n := range m.pages[areaID] {
		if !wanted[n] {
			delete(m.pages[areaID], n)
			removed++
		}
	}
	return removed, nil
}

// Topics

func (m *Memory) ListTopics(_ context.Context, areaID, version string) ([]types.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListTopics"); err != nil {
		return nil, err
	}
	out := []types.Topic{}
	for _, t := range m.topics {
		if t.AreaID == areaID && t.StructureVersion == version {
			out = append(out, copyTopic(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *Memory) GetTopic(_ context.Context, id string) (*types.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetTopic"); err != nil {
		return nil, err
	}
	t, ok := m.topics[id]
	if !ok {
		return nil, fmt.Errorf("topic %s: %w", id, ErrNotFound)
	}
	cp := copyTopic(t)
	return &cp, nil
}

func (m *Memory) CreateTopics(_ context.Context, topics []types.Topic) ([]types.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Topic, 0, len(topics))
	for _, t := range topics {
		if err := m.checkWrite("CreateTopics"); err != nil {
			return nil, err
		}
		t.ID = uuid.NewString()
		stored := copyTopic(&t)
		m.topics[t.ID] = &stored
		out = append(out, t)
	}
	return out, nil
}

func (m *Memory) SetTopicCover(_ context.Context, topicID, coverRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite("SetTopicCover"); err != nil {
		return err
	}
	t, ok := m.topics[topicID]
	if !ok {
		return fmt.Errorf("topic %s: %w", topicID, ErrNotFound)
	}
	t.CoverRef = coverRef
	return nil
}

func (m *Memory) ListTopicVersions(_ context.Context, areaID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListTopicVersions"); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, t := range m.topics {
		if t.AreaID == areaID && !seen[t.StructureVersion] {
			seen[t.StructureVersion] = true
			out = append(out, t.StructureVersion)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) DeleteTopicVersion(_ context.Context, areaID, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite("DeleteTopicVersion"); err != nil {
		return err
	}
	for id, t := range m.topics {
		if t.AreaID == areaID && t.StructureVersion == version {
			delete(m.topics, id)
			delete(m.topicPages, id)
		}
	}
	return nil
}

func (m *Memory) UpsertTopicPages(_ context.Context, pages []types.TopicPage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pages {
		if err := m.checkWrite("UpsertTopicPages"); err != nil {
			return err
		}
		byNum, ok := m.topicPages[p.TopicID]
		if !ok {
			byNum = make(map[int]types.TopicPage)
			m.topicPages[p.TopicID] = byNum
		}
		byNum[p.PageNumber] = p
	}
	return nil
}

func (m *Memory) ListTopicPages(_ context.Context, topicID string) ([]types.TopicPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListTopicPages"); err != nil {
		return nil, err
	}
	out := []types.TopicPage{}
	for _, p := range m.topicPages[topicID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}

func copyTopic(t *types.Topic) types.Topic {
	cp := *t
	if t.Subtopics != nil {
		cp.Subtopics = append([]string(nil), t.Subtopics...)
	}
	return cp
}

// Jobs

func (m *Memory) CreateJob(_ context.Context, job *types.BatchJob) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite("CreateJob"); err != nil {
		return "", err
	}
	cp := copyJob(job)
	cp.ID = uuid.NewString()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
	}
	m.jobs[cp.ID] = cp
	return cp.ID, nil
}

func (m *Memory) GetJob(_ context.Context, id string) (*types.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetJob"); err != nil {
		return nil, err
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return copyJob(j), nil
}

func (m *Memory) GetProgress(_ context.Context, id string) (*types.BatchProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetProgress"); err != nil {
		return nil, err
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return &types.BatchProgress{Status: j.Status, TotalItems: j.TotalItems, CompletedItems: j.CompletedItems}, nil
}

func (m *Memory) ListJobs(_ context.Context, status types.BatchStatus) ([]*types.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListJobs"); err != nil {
		return nil, err
	}
	var out []*types.BatchJob
	for _, j := range m.jobs {
		if status == "" || j.Status == status {
			out = append(out, copyJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (m *Memory) SetJobStatus(_ context.Context, id string, status types.BatchStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite("SetJobStatus"); err != nil {
		return err
	}
	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if j.Status.Terminal() {
		return fmt.Errorf("job %s: %w", id, ErrJobFinished)
	}
	now := m.now()
	j.Status = status
	j.Error = errMsg
	if status == types.BatchRunning && j.StartedAt == nil {
		j.StartedAt = &now
	}
	if status.Terminal() {
		j.CompletedAt = &now
	}
	return nil
}

func (m *Memory) RecordResult(_ context.Context, jobID string, result types.BatchResult) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite("RecordResult"); err != nil {
		return 0, err
	}
	j, ok := m.jobs[jobID]
	if !ok {
		return 0, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if j.Status.Terminal() {
		return j.CompletedItems, fmt.Errorf("job %s: %w", jobID, ErrJobFinished)
	}

	replaced := false
	for i := range j.Results {
		if j.Results[i].ItemID == result.ItemID {
			j.Results[i] = result
			replaced = true
			break
		}
	}
	if !replaced {
		j.Results = append(j.Results, result)
	}

	j.CompletedItems = raiseCompleted(j.CompletedItems, len(j.Results), j.TotalItems)
	return j.CompletedItems, nil
}

func copyJob(j *types.BatchJob) *types.BatchJob {
	cp := *j
	cp.Items = append([]types.BatchItem(nil), j.Items...)
	cp.Results = append([]types.BatchResult(nil), j.Results...)
	if j.Context != nil {
		cp.Context = make(map[string]any, len(j.Context))
		for k, v := range j.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}

// raiseCompleted returns the new completed count: the number of recorded
// results capped at total, never lower than the current value.
func raiseCompleted(current, results, total int) int {
	n := results
	if n > total {
		n = total
	}
	if n < current {
		return current
	}
	return n
}

var _ Store = (*Memory)(nil)
