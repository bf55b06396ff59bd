package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/temario/internal/defra"
	"github.com/jackzampolin/temario/internal/types"
)

// Collection names. They must match the SDL registered by internal/schema.
const (
	CollArea       = "ContentArea"
	CollPage       = "Page"
	CollTopic      = "Topic"
	CollTopicPage  = "TopicPage"
	CollJob        = "BatchJob"
	CollJobResult  = "BatchResult"
	defaultWorkers = 8
)

var (
	areaFields = []string{
		"_docID", "area_id", "source_url", "status", "failed_stage", "last_error",
		"total_pages", "total_themes", "default_cover_ref", "structure_version",
		"created_at", "updated_at",
	}
	topicFields = []string{
		"_docID", "area_id", "structure_version", "position", "title",
		"page_start", "page_end", "subtopics", "cover_ref", "status",
	}
	jobFields = []string{
		"_docID", "job_type", "status", "total_items", "completed_items", "items",
		"context", "error", "created_at", "started_at", "completed_at",
	}
	resultFields = []string{"item_id", "success", "payload", "error", "completed_at"}
)

// Defra implements Store on DefraDB collections.
//
// DefraDB has no multi-document transactions. Status compare-and-set and
// result recording are serialized per key inside this process; running two
// servers against one node gives up those guarantees.
type Defra struct {
	client  *defra.Client
	workers int
	now     func() time.Time

	areaLocks keyedMutex
	jobLocks  keyedMutex
}

// DefraOption configures a Defra store.
type DefraOption func(*Defra)

// WithWriteConcurrency bounds parallel upserts for page batches.
func WithWriteConcurrency(n int) DefraOption {
	return func(d *Defra) {
		if n > 0 {
			d.workers = n
		}
	}
}

// NewDefra creates a store backed by the given DefraDB client.
func NewDefra(client *defra.Client, opts ...DefraOption) *Defra {
	d := &Defra{client: client, workers: defaultWorkers, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Areas

func (d *Defra) GetArea(ctx context.Context, id string) (*types.ContentArea, error) {
	doc, err := d.areaDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	return docToArea(doc), nil
}

func (d *Defra) areaDoc(ctx context.Context, id string) (map[string]any, error) {
	docs, err := defra.NewQuery(CollArea).
		Filter("area_id", id).
		Fields(areaFields...).
		Limit(1).
		Execute(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("get area %s: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("area %s: %w", id, ErrNotFound)
	}
	return docs[0], nil
}

func (d *Defra) ListAreas(ctx context.Context) ([]*types.ContentArea, error) {
	docs, err := defra.NewQuery(CollArea).
		Fields(areaFields...).
		OrderBy("area_id", "ASC").
		Execute(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	out := make([]*types.ContentArea, 0, len(docs))
	for _, doc := range docs {
		out = append(out, docToArea(doc))
	}
	return out, nil
}

func (d *Defra) EnsureArea(ctx context.Context, id string) (*types.ContentArea, error) {
	a, err := d.GetArea(ctx, id)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return a, err
	}

	now := d.now().UTC().Format(time.RFC3339Nano)
	create := map[string]any{
		"area_id":     id,
		"status":      string(types.AreaPending),
		"total_pages": 0, "total_themes": 0,
		"created_at": now, "updated_at": now,
	}
	// Upsert keyed on area_id so two concurrent ensures converge on one doc.
	if _, err := d.client.Upsert(ctx, CollArea, defra.Eq(map[string]any{"area_id": id}), create, map[string]any{"area_id": id}); err != nil {
		return nil, fmt.Errorf("create area %s: %w", id, err)
	}
	return d.GetArea(ctx, id)
}

func (d *Defra) UpdateArea(ctx context.Context, id string, upd types.AreaUpdate) error {
	doc, err := d.areaDoc(ctx, id)
	if err != nil {
		return err
	}
	docID, _ := doc["_docID"].(string)
	if err := d.client.Update(ctx, CollArea, docID, d.areaInput(upd)); err != nil {
		return fmt.Errorf("update area %s: %w", id, err)
	}
	return nil
}

func (d *Defra) CompareAndSetStatus(ctx context.Context, id string, from, to types.AreaStatus, upd types.AreaUpdate) error {
	unlock := d.areaLocks.Lock(id)
	defer unlock()

	doc, err := d.areaDoc(ctx, id)
	if err != nil {
		return err
	}
	if current := types.AreaStatus(str(doc, "status")); current != from {
		return fmt.Errorf("area %s is %s, expected %s: %w", id, current, from, ErrStatusConflict)
	}
	upd.Status = &to
	docID, _ := doc["_docID"].(string)
	if err := d.client.Update(ctx, CollArea, docID, d.areaInput(upd)); err != nil {
		return fmt.Errorf("update area %s: %w", id, err)
	}
	return nil
}

func (d *Defra) areaInput(u types.AreaUpdate) map[string]any {
	in := map[string]any{"updated_at": d.now().UTC().Format(time.RFC3339Nano)}
	if u.SourceURL != nil {
		in["source_url"] = *u.SourceURL
	}
	if u.TotalPages != nil {
		in["total_pages"] = *u.TotalPages
	}
	if u.TotalThemes != nil {
		in["total_themes"] = *u.TotalThemes
	}
	if u.DefaultCoverRef != nil {
		in["default_cover_ref"] = *u.DefaultCoverRef
	}
	if u.StructureVersion != nil {
		in["structure_version"] = *u.StructureVersion
	}
	if u.Status != nil {
		in["status"] = string(*u.Status)
	}
	if u.FailedStage != nil {
		in["failed_stage"] = string(*u.FailedStage)
	}
	if u.LastError != nil {
		in["last_error"] = *u.LastError
	}
	return in
}

// Pages

func (d *Defra) UpsertPages(ctx context.Context, pages []types.Page) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for _, p := range pages {
		g.Go(func() error {
			key := map[string]any{"area_id": p.AreaID, "page_number": p.PageNumber}
			create := map[string]any{"area_id": p.AreaID, "page_number": p.PageNumber, "text": p.Text}
			if _, err := d.client.Upsert(gctx, CollPage, defra.Eq(key), create, map[string]any{"text": p.Text}); err != nil {
				return fmt.Errorf("upsert page %s/%d: %w", p.AreaID, p.PageNumber, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Defra) ListPages(ctx context.Context, areaID string, r types.PageRange) ([]types.Page, error) {
	q := defra.NewQuery(CollPage).
		Filter("area_id", areaID).
		Fields("page_number", "text").
		OrderBy("page_number", "ASC")
	if r.Start > 0 {
		q.FilterGTE("page_number", r.Start)
	}
	if r.End > 0 {
		q.FilterLTE("page_number", r.End)
	}
	docs, err := q.Execute(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("list pages %s: %w", areaID, err)
	}
	out := make([]types.Page, 0, len(docs))
	for _, doc := range docs {
		out = append(out, types.Page{AreaID: areaID, PageNumber: num(doc, "page_number"), Text: str(doc, "text")})
	}
	return out, nil
}

func (d *Defra) CountPages(ctx context.Context, areaID string) (int, error) {
	docs, err := defra.NewQuery(CollPage).Filter("area_id", areaID).Execute(ctx, d.client)
	if err != nil {
		return 0, fmt.Errorf("count pages %s: %w", areaID, err)
	}
	return len(docs), nil
}

func (d *Defra) PrunePages(ctx context.Context, areaID string, keep []int) (int, error) {
	filter := map[string]any{"area_id": map[string]any{"_eq": areaID}}
	if len(keep) > 0 {
		filter["page_number"] = map[string]any{"_nin": keep}
	}
	n, err := d.client.DeleteWhere(ctx, CollPage, filter)
	if err != nil {
		return 0, fmt.Errorf("prune pages %s: %w", areaID, err)
	}
	return n, nil
}

// Topics

func (d *Defra) ListTopics(ctx context.Context, areaID, version string) ([]types.Topic, error) {
	docs, err := defra.NewQuery(CollTopic).
		Filter("area_id", areaID).
		Filter("structure_version", version).
		Fields(topicFields...).
		OrderBy("position", "ASC").
		Execute(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("list topics %s: %w", areaID, err)
	}
	out := make([]types.Topic, 0, len(docs))
	for _, doc := range docs {
		out = append(out, docToTopic(doc))
	}
	return out, nil
}

func (d *Defra) GetTopic(ctx context.Context, id string) (*types.Topic, error) {
	doc, err := d.byDocID(ctx, CollTopic, id, topicFields)
	if err != nil {
		return nil, err
	}
	t := docToTopic(doc)
	return &t, nil
}

func (d *Defra) CreateTopics(ctx context.Context, topics []types.Topic) ([]types.Topic, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	byPos := make(map[int]int, len(topics))
	inputs := make([]map[string]any, 0, len(topics))
	for i, t := range topics {
		if _, dup := byPos[t.Order]; dup {
			return nil, fmt.Errorf("create topics: duplicate order %d", t.Order)
		}
		byPos[t.Order] = i
		inputs = append(inputs, map[string]any{
			"area_id":           t.AreaID,
			"structure_version": t.StructureVersion,
			"position":          t.Order,
			"title":             t.Title,
			"page_start":        t.PageStart,
			"page_end":          t.PageEnd,
			"subtopics":         nonNil(t.Subtopics),
			"cover_ref":         t.CoverRef,
			"status":            string(t.Status),
		})
	}

	docs, err := d.client.CreateMany(ctx, CollTopic, inputs, "position")
	if err != nil {
		return nil, fmt.Errorf("create topics: %w", err)
	}

	out := append([]types.Topic(nil), topics...)
	for _, doc := range docs {
		i, ok := byPos[num(doc, "position")]
		if !ok {
			return nil, fmt.Errorf("create topics: unexpected position %v", doc["position"])
		}
		out[i].ID = str(doc, "_docID")
	}
	return out, nil
}

func (d *Defra) SetTopicCover(ctx context.Context, topicID, coverRef string) error {
	if _, err := d.byDocID(ctx, CollTopic, topicID, []string{"_docID"}); err != nil {
		return err
	}
	if err := d.client.Update(ctx, CollTopic, topicID, map[string]any{"cover_ref": coverRef}); err != nil {
		return fmt.Errorf("set cover %s: %w", topicID, err)
	}
	return nil
}

func (d *Defra) ListTopicVersions(ctx context.Context, areaID string) ([]string, error) {
	docs, err := defra.NewQuery(CollTopic).
		Filter("area_id", areaID).
		Fields("structure_version").
		Execute(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("list topic versions %s: %w", areaID, err)
	}
	seen := map[string]bool{}
	var out []string
	for _, doc := range docs {
		v := str(doc, "structure_version")
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (d *Defra) DeleteTopicVersion(ctx context.Context, areaID, version string) error {
	docs, err := defra.NewQuery(CollTopic).
		Filter("area_id", areaID).
		Filter("structure_version", version).
		Execute(ctx, d.client)
	if err != nil {
		return fmt.Errorf("delete topic version %s/%s: %w", areaID, version, err)
	}
	if len(docs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, str(doc, "_docID"))
	}

	// Pages first: a crash in between leaves topics without copies, which
	// the next delete of this version still finds.
	if _, err := d.client.DeleteWhere(ctx, CollTopicPage, map[string]any{"topic_id": map[string]any{"_in": ids}}); err != nil {
		return fmt.Errorf("delete topic pages %s/%s: %w", areaID, version, err)
	}
	filter := defra.Eq(map[string]any{"area_id": areaID, "structure_version": version})
	if _, err := d.client.DeleteWhere(ctx, CollTopic, filter); err != nil {
		return fmt.Errorf("delete topics %s/%s: %w", areaID, version, err)
	}
	return nil
}

func (d *Defra) UpsertTopicPages(ctx context.Context, pages []types.TopicPage) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for _, p := range pages {
		g.Go(func() error {
			key := map[string]any{"topic_id": p.TopicID, "page_number": p.PageNumber}
			create := map[string]any{
				"topic_id": p.TopicID, "area_id": p.AreaID,
				"page_number": p.PageNumber, "text": p.Text,
			}
			if _, err := d.client.Upsert(gctx, CollTopicPage, defra.Eq(key), create, map[string]any{"text": p.Text}); err != nil {
				return fmt.Errorf("upsert topic page %s/%d: %w", p.TopicID, p.PageNumber, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Defra) ListTopicPages(ctx context.Context, topicID string) ([]types.TopicPage, error) {
	docs, err := defra.NewQuery(CollTopicPage).
		Filter("topic_id", topicID).
		Fields("area_id", "page_number", "text").
		OrderBy("page_number", "ASC").
		Execute(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("list topic pages %s: %w", topicID, err)
	}
	out := make([]types.TopicPage, 0, len(docs))
	for _, doc := range docs {
		out = append(out, types.TopicPage{
			TopicID:    topicID,
			AreaID:     str(doc, "area_id"),
			PageNumber: num(doc, "page_number"),
			Text:       str(doc, "text"),
		})
	}
	return out, nil
}

// Jobs

func (d *Defra) CreateJob(ctx context.Context, job *types.BatchJob) (string, error) {
	items, err := json.Marshal(job.Items)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	jobCtx, err := json.Marshal(job.Context)
	if err != nil {
		return "", fmt.Errorf("encode context: %w", err)
	}
	created := job.CreatedAt
	if created.IsZero() {
		created = d.now()
	}
	id, err := d.client.Create(ctx, CollJob, map[string]any{
		"job_type":        job.Type,
		"status":          string(job.Status),
		"total_items":     job.TotalItems,
		"completed_items": job.CompletedItems,
		"items":           string(items),
		"context":         string(jobCtx),
		"error":           job.Error,
		"created_at":      created.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return id, nil
}

func (d *Defra) GetJob(ctx context.Context, id string) (*types.BatchJob, error) {
	doc, err := d.byDocID(ctx, CollJob, id, jobFields)
	if err != nil {
		return nil, err
	}
	job, err := docToJob(doc)
	if err != nil {
		return nil, err
	}

	docs, err := defra.NewQuery(CollJobResult).
		Filter("job_id", id).
		Fields(resultFields...).
		OrderBy("completed_at", "ASC").
		Execute(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("list results %s: %w", id, err)
	}
	for _, r := range docs {
		ok, _ := r["success"].(bool)
		job.Results = append(job.Results, types.BatchResult{
			ItemID:      str(r, "item_id"),
			Success:     ok,
			Payload:     str(r, "payload"),
			Error:       str(r, "error"),
			CompletedAt: parseTime(str(r, "completed_at")),
		})
	}
	return job, nil
}

func (d *Defra) GetProgress(ctx context.Context, id string) (*types.BatchProgress, error) {
	doc, err := d.byDocID(ctx, CollJob, id, []string{"status", "total_items", "completed_items"})
	if err != nil {
		return nil, err
	}
	return &types.BatchProgress{
		Status:         types.BatchStatus(str(doc, "status")),
		TotalItems:     num(doc, "total_items"),
		CompletedItems: num(doc, "completed_items"),
	}, nil
}

// ListJobs returns jobs without their results; use GetJob for those.
func (d *Defra) ListJobs(ctx context.Context, status types.BatchStatus) ([]*types.BatchJob, error) {
	q := defra.NewQuery(CollJob).Fields(jobFields...).OrderBy("created_at", "ASC")
	if status != "" {
		q.Filter("status", string(status))
	}
	docs, err := q.Execute(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]*types.BatchJob, 0, len(docs))
	for _, doc := range docs {
		job, err := docToJob(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (d *Defra) SetJobStatus(ctx context.Context, id string, status types.BatchStatus, errMsg string) error {
	unlock := d.jobLocks.Lock(id)
	defer unlock()

	doc, err := d.byDocID(ctx, CollJob, id, []string{"status", "started_at"})
	if err != nil {
		return err
	}
	if types.BatchStatus(str(doc, "status")).Terminal() {
		return fmt.Errorf("job %s: %w", id, ErrJobFinished)
	}

	now := d.now().UTC().Format(time.RFC3339Nano)
	in := map[string]any{"status": string(status), "error": errMsg}
	if status == types.BatchRunning && str(doc, "started_at") == "" {
		in["started_at"] = now
	}
	if status.Terminal() {
		in["completed_at"] = now
	}
	if err := d.client.Update(ctx, CollJob, id, in); err != nil {
		return fmt.Errorf("set job status %s: %w", id, err)
	}
	return nil
}

func (d *Defra) RecordResult(ctx context.Context, jobID string, result types.BatchResult) (int, error) {
	unlock := d.jobLocks.Lock(jobID)
	defer unlock()

	doc, err := d.byDocID(ctx, CollJob, jobID, []string{"status", "total_items", "completed_items"})
	if err != nil {
		return 0, err
	}
	current := num(doc, "completed_items")
	if types.BatchStatus(str(doc, "status")).Terminal() {
		return current, fmt.Errorf("job %s: %w", jobID, ErrJobFinished)
	}

	completedAt := result.CompletedAt
	if completedAt.IsZero() {
		completedAt = d.now()
	}
	fields := map[string]any{
		"success":      result.Success,
		"payload":      result.Payload,
		"error":        result.Error,
		"completed_at": completedAt.UTC().Format(time.RFC3339Nano),
	}
	create := map[string]any{"job_id": jobID, "item_id": result.ItemID}
	for k, v := range fields {
		create[k] = v
	}
	key := defra.Eq(map[string]any{"job_id": jobID, "item_id": result.ItemID})
	if _, err := d.client.Upsert(ctx, CollJobResult, key, create, fields); err != nil {
		return current, fmt.Errorf("record result %s/%s: %w", jobID, result.ItemID, err)
	}

	docs, err := defra.NewQuery(CollJobResult).Filter("job_id", jobID).Execute(ctx, d.client)
	if err != nil {
		return current, fmt.Errorf("count results %s: %w", jobID, err)
	}
	completed := raiseCompleted(current, len(docs), num(doc, "total_items"))
	if completed != current {
		if err := d.client.Update(ctx, CollJob, jobID, map[string]any{"completed_items": completed}); err != nil {
			return current, fmt.Errorf("update progress %s: %w", jobID, err)
		}
	}
	return completed, nil
}

// byDocID loads one document by DefraDB document ID.
func (d *Defra) byDocID(ctx context.Context, collection, id string, fields []string) (map[string]any, error) {
	if err := defra.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%s %q: %w", strings.ToLower(collection), id, ErrNotFound)
	}
	query := fmt.Sprintf(`{ %s(docID: %q) { %s } }`, collection, id, strings.Join(fields, " "))
	resp, err := d.client.Query(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", strings.ToLower(collection), id, err)
	}
	docs := resp.Docs(collection)
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s %s: %w", strings.ToLower(collection), id, ErrNotFound)
	}
	return docs[0], nil
}

func docToArea(doc map[string]any) *types.ContentArea {
	return &types.ContentArea{
		ID:               str(doc, "area_id"),
		SourceURL:        str(doc, "source_url"),
		Status:           types.AreaStatus(str(doc, "status")),
		FailedStage:      types.AreaStatus(str(doc, "failed_stage")),
		LastError:        str(doc, "last_error"),
		TotalPages:       num(doc, "total_pages"),
		TotalThemes:      num(doc, "total_themes"),
		DefaultCoverRef:  str(doc, "default_cover_ref"),
		StructureVersion: str(doc, "structure_version"),
		CreatedAt:        parseTime(str(doc, "created_at")),
		UpdatedAt:        parseTime(str(doc, "updated_at")),
	}
}

func docToTopic(doc map[string]any) types.Topic {
	t := types.Topic{
		ID:               str(doc, "_docID"),
		AreaID:           str(doc, "area_id"),
		StructureVersion: str(doc, "structure_version"),
		Order:            num(doc, "position"),
		Title:            str(doc, "title"),
		PageStart:        num(doc, "page_start"),
		PageEnd:          num(doc, "page_end"),
		CoverRef:         str(doc, "cover_ref"),
		Status:           types.TopicStatus(str(doc, "status")),
	}
	if raw, ok := doc["subtopics"].([]any); ok {
		for _, s := range raw {
			if v, ok := s.(string); ok {
				t.Subtopics = append(t.Subtopics, v)
			}
		}
	}
	return t
}

func docToJob(doc map[string]any) (*types.BatchJob, error) {
	job := &types.BatchJob{
		ID:             str(doc, "_docID"),
		Type:           str(doc, "job_type"),
		Status:         types.BatchStatus(str(doc, "status")),
		TotalItems:     num(doc, "total_items"),
		CompletedItems: num(doc, "completed_items"),
		Error:          str(doc, "error"),
		CreatedAt:      parseTime(str(doc, "created_at")),
	}
	if s := str(doc, "items"); s != "" {
		if err := json.Unmarshal([]byte(s), &job.Items); err != nil {
			return nil, fmt.Errorf("decode items of job %s: %w", job.ID, err)
		}
	}
	if s := str(doc, "context"); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &job.Context); err != nil {
			return nil, fmt.Errorf("decode context of job %s: %w", job.ID, err)
		}
	}
	if t := parseTime(str(doc, "started_at")); !t.IsZero() {
		job.StartedAt = &t
	}
	if t := parseTime(str(doc, "completed_at")); !t.IsZero() {
		job.CompletedAt = &t
	}
	return job, nil
}

func str(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

// num reads an Int field. JSON numbers decode as float64; strings are
// tolerated for fields written by older schema versions.
func num(doc map[string]any, key string) int {
	switch v := doc[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

var _ Store = (*Defra)(nil)
