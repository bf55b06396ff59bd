package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/temario/internal/types"
)

// runContract exercises the behaviour every Store adapter must share.
func runContract(t *testing.T, s Store) {
	ctx := context.Background()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())

	t.Run("areas", func(t *testing.T) {
		id := "area-" + suffix

		if _, err := s.GetArea(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetArea(missing) error = %v, want ErrNotFound", err)
		}

		a, err := s.EnsureArea(ctx, id)
		if err != nil {
			t.Fatalf("EnsureArea() error = %v", err)
		}
		if a.Status != types.AreaPending {
			t.Errorf("new area status = %s, want pending", a.Status)
		}
		again, err := s.EnsureArea(ctx, id)
		if err != nil || again.ID != id {
			t.Fatalf("EnsureArea(existing) = %v, %v", again, err)
		}

		url := "https://example.com/a.pdf"
		if err := s.UpdateArea(ctx, id, types.AreaUpdate{SourceURL: &url}); err != nil {
			t.Fatalf("UpdateArea() error = %v", err)
		}

		version, themes := "00000000000000000042", 3
		upd := types.AreaUpdate{StructureVersion: &version, TotalThemes: &themes}
		err = s.CompareAndSetStatus(ctx, id, types.AreaFormatting, types.AreaReady, upd)
		if !errors.Is(err, ErrStatusConflict) {
			t.Fatalf("CompareAndSetStatus(wrong from) error = %v, want ErrStatusConflict", err)
		}
		if err := s.CompareAndSetStatus(ctx, id, types.AreaPending, types.AreaReady, upd); err != nil {
			t.Fatalf("CompareAndSetStatus() error = %v", err)
		}

		got, err := s.GetArea(ctx, id)
		if err != nil {
			t.Fatalf("GetArea() error = %v", err)
		}
		if got.Status != types.AreaReady || got.StructureVersion != version || got.TotalThemes != 3 || got.SourceURL != url {
			t.Errorf("area after CAS = %+v", got)
		}
	})

	t.Run("pages", func(t *testing.T) {
		id := "pages-" + suffix
		pages := []types.Page{
			{AreaID: id, PageNumber: 2, Text: "two"},
			{AreaID: id, PageNumber: 1, Text: "one"},
			{AreaID: id, PageNumber: 3, Text: "three"},
		}
		if err := s.UpsertPages(ctx, pages); err != nil {
			t.Fatalf("UpsertPages() error = %v", err)
		}
		if err := s.UpsertPages(ctx, []types.Page{{AreaID: id, PageNumber: 2, Text: "two v2"}}); err != nil {
			t.Fatalf("UpsertPages(overwrite) error = %v", err)
		}

		n, err := s.CountPages(ctx, id)
		if err != nil || n != 3 {
			t.Fatalf("CountPages() = %d, %v; want 3", n, err)
		}

		got, err := s.ListPages(ctx, id, types.PageRange{Start: 2, End: 3})
		if err != nil {
			t.Fatalf("ListPages() error = %v", err)
		}
		if len(got) != 2 || got[0].PageNumber != 2 || got[0].Text != "two v2" || got[1].PageNumber != 3 {
			t.Errorf("ListPages(2..3) = %+v", got)
		}

		all, _ := s.ListPages(ctx, id, types.AllPages)
		if len(all) != 3 || all[0].PageNumber != 1 {
			t.Errorf("ListPages(all) = %+v", all)
		}

		removed, err := s.PrunePages(ctx, id, []int{1, 3})
		if err != nil || removed != 1 {
			t.Fatalf("PrunePages() = %d, %v; want 1", removed, err)
		}
		left, _ := s.ListPages(ctx, id, types.AllPages)
		if len(left) != 2 || left[0].PageNumber != 1 || left[1].PageNumber != 3 {
			t.Errorf("ListPages() after prune = %+v", left)
		}
	})

	t.Run("topics", func(t *testing.T) {
		id := "topics-" + suffix
		v1 := "00000000000000000001"
		in := []types.Topic{
			{AreaID: id, StructureVersion: v1, Order: 1, Title: "Contratos", PageStart: 1, PageEnd: 2, Subtopics: []string{"Formação"}, Status: types.TopicReady},
			{AreaID: id, StructureVersion: v1, Order: 2, Title: "Posse", PageStart: 3, PageEnd: 3, Status: types.TopicEmpty},
		}
		created, err := s.CreateTopics(ctx, in)
		if err != nil {
			t.Fatalf("CreateTopics() error = %v", err)
		}
		if len(created) != 2 || created[0].ID == "" || created[0].Title != "Contratos" || created[1].Title != "Posse" {
			t.Fatalf("CreateTopics() = %+v", created)
		}

		if err := s.UpsertTopicPages(ctx, []types.TopicPage{
			{TopicID: created[0].ID, AreaID: id, PageNumber: 2, Text: "b"},
			{TopicID: created[0].ID, AreaID: id, PageNumber: 1, Text: "a"},
		}); err != nil {
			t.Fatalf("UpsertTopicPages() error = %v", err)
		}
		tp, err := s.ListTopicPages(ctx, created[0].ID)
		if err != nil || len(tp) != 2 || tp[0].PageNumber != 1 {
			t.Fatalf("ListTopicPages() = %+v, %v", tp, err)
		}

		if err := s.SetTopicCover(ctx, created[1].ID, "covers/posse.png"); err != nil {
			t.Fatalf("SetTopicCover() error = %v", err)
		}
		topic, err := s.GetTopic(ctx, created[1].ID)
		if err != nil || topic.CoverRef != "covers/posse.png" {
			t.Fatalf("GetTopic() = %+v, %v", topic, err)
		}

		v2 := "00000000000000000002"
		if _, err := s.CreateTopics(ctx, []types.Topic{{AreaID: id, StructureVersion: v2, Order: 1, Title: "Tudo", PageStart: 1, PageEnd: 3}}); err != nil {
			t.Fatalf("CreateTopics(v2) error = %v", err)
		}
		versions, err := s.ListTopicVersions(ctx, id)
		if err != nil || len(versions) != 2 || versions[0] != v1 {
			t.Fatalf("ListTopicVersions() = %v, %v", versions, err)
		}

		listed, err := s.ListTopics(ctx, id, v1)
		if err != nil || len(listed) != 2 || listed[0].Order != 1 || len(listed[0].Subtopics) != 1 {
			t.Fatalf("ListTopics(v1) = %+v, %v", listed, err)
		}

		if err := s.DeleteTopicVersion(ctx, id, v1); err != nil {
			t.Fatalf("DeleteTopicVersion() error = %v", err)
		}
		if left, _ := s.ListTopics(ctx, id, v1); len(left) != 0 {
			t.Errorf("topics of deleted version remain: %+v", left)
		}
		if left, _ := s.ListTopicPages(ctx, created[0].ID); len(left) != 0 {
			t.Errorf("topic pages of deleted version remain: %+v", left)
		}
		if kept, _ := s.ListTopics(ctx, id, v2); len(kept) != 1 {
			t.Errorf("other version affected: %+v", kept)
		}
	})

	t.Run("jobs", func(t *testing.T) {
		job := &types.BatchJob{
			Type:       "cover_image",
			Status:     types.BatchPending,
			TotalItems: 3,
			Items: []types.BatchItem{
				{ID: "i1", Prompt: "p1"}, {ID: "i2", Prompt: "p2"}, {ID: "i3", Prompt: "p3"},
			},
			Context: map[string]any{"area_id": "x"},
		}
		id, err := s.CreateJob(ctx, job)
		if err != nil {
			t.Fatalf("CreateJob() error = %v", err)
		}

		if err := s.SetJobStatus(ctx, id, types.BatchRunning, ""); err != nil {
			t.Fatalf("SetJobStatus(running) error = %v", err)
		}

		var wg sync.WaitGroup
		for _, item := range []string{"i1", "i2", "i1"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.RecordResult(ctx, id, types.BatchResult{ItemID: item, Success: true, Payload: "ok"}); err != nil {
					t.Errorf("RecordResult(%s) error = %v", item, err)
				}
			}()
		}
		wg.Wait()

		p, err := s.GetProgress(ctx, id)
		if err != nil {
			t.Fatalf("GetProgress() error = %v", err)
		}
		if p.CompletedItems != 2 || p.TotalItems != 3 || p.Status != types.BatchRunning {
			t.Errorf("progress = %+v, want 2/3 running", p)
		}

		got, err := s.GetJob(ctx, id)
		if err != nil {
			t.Fatalf("GetJob() error = %v", err)
		}
		if len(got.Results) != 2 || got.StartedAt == nil || got.Context["area_id"] != "x" {
			t.Errorf("job = %+v", got)
		}
		if pending := got.Pending(); len(pending) != 1 || pending[0].ID != "i3" {
			t.Errorf("Pending() = %+v", pending)
		}

		if _, err := s.RecordResult(ctx, id, types.BatchResult{ItemID: "i3", Error: "boom"}); err != nil {
			t.Fatalf("RecordResult(i3) error = %v", err)
		}
		if err := s.SetJobStatus(ctx, id, types.BatchCompleted, ""); err != nil {
			t.Fatalf("SetJobStatus(completed) error = %v", err)
		}
		if err := s.SetJobStatus(ctx, id, types.BatchRunning, ""); !errors.Is(err, ErrJobFinished) {
			t.Errorf("SetJobStatus(after completed) error = %v, want ErrJobFinished", err)
		}
		if _, err := s.RecordResult(ctx, id, types.BatchResult{ItemID: "i3"}); !errors.Is(err, ErrJobFinished) {
			t.Errorf("RecordResult(after completed) error = %v, want ErrJobFinished", err)
		}

		done, err := s.ListJobs(ctx, types.BatchCompleted)
		if err != nil {
			t.Fatalf("ListJobs() error = %v", err)
		}
		found := false
		for _, j := range done {
			if j.ID == id {
				found = j.CompletedItems == 3 && j.CompletedAt != nil
			}
		}
		if !found {
			t.Errorf("completed job missing from ListJobs: %+v", done)
		}

		if _, err := s.GetJob(ctx, "bae-missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetJob(missing) error = %v, want ErrNotFound", err)
		}
	})
}
