package types

// Theme is a raw table-of-contents entry before it is committed.
// JSON tags match the shape requested from the LLM.
type Theme struct {
	Order     int      `json:"ordem"`
	Title     string   `json:"titulo"`
	PageStart int      `json:"paginaInicial"`
	PageEnd   int      `json:"paginaFinal"`
	Subtopics []string `json:"subtopicos,omitempty"`
}

// TopicStatus reports whether a committed topic has content.
type TopicStatus string

const (
	TopicReady TopicStatus = "ready" // at least one page linked
	TopicEmpty TopicStatus = "empty" // no ingested page inside its range
)

// Topic is a committed theme. The set of topics for an area is replaced as a
// whole on every commit; only CoverRef values are carried forward.
type Topic struct {
	ID               string      `json:"id"`
	AreaID           string      `json:"area_id"`
	Order            int         `json:"order"`
	Title            string      `json:"title"`
	PageStart        int         `json:"page_start"`
	PageEnd          int         `json:"page_end"`
	Subtopics        []string    `json:"subtopics,omitempty"`
	CoverRef         string      `json:"cover_ref,omitempty"`
	Status           TopicStatus `json:"status"`
	StructureVersion string      `json:"structure_version"`
}

// Range returns the topic's page range.
func (t Topic) Range() PageRange {
	return PageRange{Start: t.PageStart, End: t.PageEnd}
}

// TopicPage is a copy of a page scoped to a topic, keyed by (TopicID, PageNumber).
// It is derived data and can be rebuilt from Page rows and topic ranges.
type TopicPage struct {
	TopicID    string `json:"topic_id"`
	AreaID     string `json:"area_id"`
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}
