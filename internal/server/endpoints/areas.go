package endpoints

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/temario/internal/api"
	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/pipeline"
	"github.com/jackzampolin/temario/internal/types"
)

// ListAreasResponse is the response for GET /api/areas.
type ListAreasResponse struct {
	Areas []*types.ContentArea `json:"areas"`
}

// ListAreasEndpoint handles GET /api/areas.
type ListAreasEndpoint struct{}

func (e *ListAreasEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/areas", e.handler
}

func (e *ListAreasEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List content areas
//	@Tags		areas
//	@Produce	json
//	@Success	200	{object}	ListAreasResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/areas [get]
func (e *ListAreasEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := pipelineFrom(w, r)
	if svc == nil {
		return
	}
	areas, err := svc.ListAreas(r.Context())
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if areas == nil {
		areas = []*types.ContentArea{}
	}
	writeJSON(w, http.StatusOK, ListAreasResponse{Areas: areas})
}

func (e *ListAreasEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List content areas",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListAreasResponse
			if err := client.Get(cmd.Context(), "/api/areas", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetAreaEndpoint handles GET /api/areas/{id}.
type GetAreaEndpoint struct{}

func (e *GetAreaEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/areas/{id}", e.handler
}

func (e *GetAreaEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a content area
//	@Description	Status, counts and the stages the area can enter next
//	@Tags			areas
//	@Produce		json
//	@Param			id	path		string	true	"Area ID"
//	@Success		200	{object}	pipeline.AreaReport
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/areas/{id} [get]
func (e *GetAreaEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := pipelineFrom(w, r)
	if svc == nil {
		return
	}
	report, err := svc.GetArea(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (e *GetAreaEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <area-id>",
		Short: "Get a content area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp pipeline.AreaReport
			if err := client.Get(cmd.Context(), "/api/areas/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ListPagesResponse is the response for GET /api/areas/{id}/pages.
type ListPagesResponse struct {
	Pages []types.Page `json:"pages"`
	Total int          `json:"total"`
}

// ListPagesEndpoint handles GET /api/areas/{id}/pages.
type ListPagesEndpoint struct{}

func (e *ListPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/areas/{id}/pages", e.handler
}

func (e *ListPagesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List extracted pages of an area
//	@Tags		areas
//	@Produce	json
//	@Param		id		path		string	true	"Area ID"
//	@Param		start	query		int		false	"First page (1-based, inclusive)"
//	@Param		end		query		int		false	"Last page (inclusive)"
//	@Success	200		{object}	ListPagesResponse
//	@Failure	400		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/api/areas/{id}/pages [get]
func (e *ListPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := pipelineFrom(w, r)
	if svc == nil {
		return
	}

	var rng types.PageRange
	var err error
	if rng.Start, err = pageParam(r, "start"); err != nil {
		writeFault(w, r, err)
		return
	}
	if rng.End, err = pageParam(r, "end"); err != nil {
		writeFault(w, r, err)
		return
	}

	pages, err := svc.GetPages(r.Context(), r.PathValue("id"), rng)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if pages == nil {
		pages = []types.Page{}
	}
	writeJSON(w, http.StatusOK, ListPagesResponse{Pages: pages, Total: len(pages)})
}

// pageParam parses an optional positive page number from the query string.
func pageParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fault.New(fault.InvalidInput, "pages", "%s must be a positive page number, got %q", name, s)
	}
	return n, nil
}

func (e *ListPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	var start, end int
	cmd := &cobra.Command{
		Use:   "pages <area-id>",
		Short: "List extracted pages of an area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if start > 0 {
				q.Set("start", strconv.Itoa(start))
			}
			if end > 0 {
				q.Set("end", strconv.Itoa(end))
			}
			path := "/api/areas/" + args[0] + "/pages"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			client := api.NewClient(getServerURL())
			var resp ListPagesResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "First page")
	cmd.Flags().IntVar(&end, "end", 0, "Last page")
	return cmd
}

// ListTopicsResponse is the response for GET /api/areas/{id}/topics.
type ListTopicsResponse struct {
	Topics []types.Topic `json:"topics"`
}

// ListTopicsEndpoint handles GET /api/areas/{id}/topics.
type ListTopicsEndpoint struct{}

func (e *ListTopicsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/areas/{id}/topics", e.handler
}

func (e *ListTopicsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List committed topics of an area
//	@Description	Only the committed structure is visible; an area that was never committed has no topics.
//	@Tags			topics
//	@Produce		json
//	@Param			id	path		string	true	"Area ID"
//	@Success		200	{object}	ListTopicsResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/areas/{id}/topics [get]
func (e *ListTopicsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := pipelineFrom(w, r)
	if svc == nil {
		return
	}
	topics, err := svc.ListTopics(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if topics == nil {
		topics = []types.Topic{}
	}
	writeJSON(w, http.StatusOK, ListTopicsResponse{Topics: topics})
}

func (e *ListTopicsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "topics <area-id>",
		Short: "List committed topics of an area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListTopicsResponse
			if err := client.Get(cmd.Context(), "/api/areas/"+args[0]+"/topics", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// TopicPagesResponse is the response for GET /api/topics/{id}/pages.
type TopicPagesResponse struct {
	TopicID string            `json:"topic_id"`
	Pages   []types.TopicPage `json:"pages"`
}

// TopicPagesEndpoint handles GET /api/topics/{id}/pages.
type TopicPagesEndpoint struct{}

func (e *TopicPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/topics/{id}/pages", e.handler
}

func (e *TopicPagesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List the pages linked to a topic
//	@Tags		topics
//	@Produce	json
//	@Param		id	path		string	true	"Topic ID"
//	@Success	200	{object}	TopicPagesResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/topics/{id}/pages [get]
func (e *TopicPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := pipelineFrom(w, r)
	if svc == nil {
		return
	}
	id := r.PathValue("id")
	tp, err := svc.ListTopicPages(r.Context(), id)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if tp == nil {
		tp = []types.TopicPage{}
	}
	writeJSON(w, http.StatusOK, TopicPagesResponse{TopicID: id, Pages: tp})
}

func (e *TopicPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "pages <topic-id>",
		Short: "List the pages linked to a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp TopicPagesResponse
			if err := client.Get(cmd.Context(), "/api/topics/"+args[0]+"/pages", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// CoversRequest is the request body for POST /api/areas/{id}/covers.
type CoversRequest struct {
	Provider    string `json:"provider,omitempty"`
	AreaDefault bool   `json:"area_default,omitempty"`
}

// CoversEndpoint handles POST /api/areas/{id}/covers.
type CoversEndpoint struct{}

func (e *CoversEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/areas/{id}/covers", e.handler
}

func (e *CoversEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Generate missing topic covers
//	@Description	Creates a cover_image batch job for every committed topic without a cover. Returns immediately.
//	@Tags			areas
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Area ID"
//	@Param			request	body		CoversRequest	false	"Cover options"
//	@Success		202		{object}	pipeline.CoverJob
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/api/areas/{id}/covers [post]
func (e *CoversEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := pipelineFrom(w, r)
	if svc == nil {
		return
	}

	var req CoversRequest
	if err := decodeBody(r, &req); err != nil {
		writeFault(w, r, err)
		return
	}

	job, err := svc.RequestCovers(r.Context(), pipeline.CoverRequest{
		AreaID:      r.PathValue("id"),
		Provider:    req.Provider,
		AreaDefault: req.AreaDefault,
	})
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (e *CoversEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req CoversRequest
	cmd := &cobra.Command{
		Use:   "covers <area-id>",
		Short: "Generate missing topic covers in the background",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp pipeline.CoverJob
			if err := client.Post(cmd.Context(), "/api/areas/"+args[0]+"/covers", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&req.Provider, "provider", "", "Image provider (default from config)")
	cmd.Flags().BoolVar(&req.AreaDefault, "area-default", false, "Also generate the area's default cover")
	return cmd
}
