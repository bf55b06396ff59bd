package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/temario/internal/api"
	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/jobs"
	"github.com/jackzampolin/temario/internal/svcctx"
	"github.com/jackzampolin/temario/internal/types"
)

// CreateJobResponse is the response for POST /api/jobs.
type CreateJobResponse struct {
	JobID string `json:"job_id"`
}

// ListJobsResponse is the response for GET /api/jobs.
type ListJobsResponse struct {
	Jobs []*types.BatchJob `json:"jobs"`
}

// jobsFrom returns the orchestrator or writes 503.
func jobsFrom(w http.ResponseWriter, r *http.Request) *jobs.Orchestrator {
	orch := svcctx.JobsFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "job orchestrator not initialized")
	}
	return orch
}

// CreateJobEndpoint handles POST /api/jobs.
type CreateJobEndpoint struct{}

func (e *CreateJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs", e.handler
}

func (e *CreateJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Create a batch job
//	@Description	Persists the job and returns its id at once. Items are processed in the background.
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Param			request	body		jobs.CreateRequest	true	"Job type, items and context"
//	@Success		202		{object}	CreateJobResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/jobs [post]
func (e *CreateJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	orch := jobsFrom(w, r)
	if orch == nil {
		return
	}

	var req jobs.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeFault(w, r, err)
		return
	}
	if req.Type == "" {
		writeFault(w, r, fault.New(fault.InvalidInput, "jobs.create", "type is required"))
		return
	}

	id, err := orch.CreateJob(r.Context(), req)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CreateJobResponse{JobID: id})
}

func (e *CreateJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a batch job from a JSON file",
		Long: `Create a batch job. The file holds the request body:

  {"type": "text_generate", "items": [{"id": "a", "prompt": "..."}], "context": {"model": "..."}}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read job file: %w", err)
			}
			var req jobs.CreateRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("invalid job file: %w", err)
			}

			client := api.NewClient(getServerURL())
			var resp CreateJobResponse
			if err := client.Post(cmd.Context(), "/api/jobs", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the job request")
	cmd.MarkFlagRequired("file")
	return cmd
}

// JobStatusEndpoint handles GET /api/jobs/{id}/status.
type JobStatusEndpoint struct{}

func (e *JobStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}/status", e.handler
}

func (e *JobStatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Poll job progress
//	@Tags		jobs
//	@Produce	json
//	@Param		id	path		string	true	"Job ID"
//	@Success	200	{object}	types.BatchProgress
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/jobs/{id}/status [get]
func (e *JobStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	orch := jobsFrom(w, r)
	if orch == nil {
		return
	}
	p, err := orch.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *JobStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Poll job progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp types.BatchProgress
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0]+"/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetJobEndpoint handles GET /api/jobs/{id}.
type GetJobEndpoint struct{}

func (e *GetJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}", e.handler
}

func (e *GetJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get a job with its items and results
//	@Tags		jobs
//	@Produce	json
//	@Param		id	path		string	true	"Job ID"
//	@Success	200	{object}	types.BatchJob
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/jobs/{id} [get]
func (e *GetJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	orch := jobsFrom(w, r)
	if orch == nil {
		return
	}
	job, err := orch.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (e *GetJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Get a job with its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp types.BatchJob
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ListJobsEndpoint handles GET /api/jobs.
type ListJobsEndpoint struct{}

func (e *ListJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs", e.handler
}

func (e *ListJobsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List batch jobs
//	@Tags		jobs
//	@Produce	json
//	@Param		status	query		string	false	"Filter by status"	Enums(pending, running, completed, failed)
//	@Success	200		{object}	ListJobsResponse
//	@Failure	400		{object}	ErrorResponse
//	@Router		/api/jobs [get]
func (e *ListJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	orch := jobsFrom(w, r)
	if orch == nil {
		return
	}

	status := types.BatchStatus(r.URL.Query().Get("status"))
	switch status {
	case "", types.BatchPending, types.BatchRunning, types.BatchCompleted, types.BatchFailed:
	default:
		writeFault(w, r, fault.New(fault.InvalidInput, "jobs.list", "unknown status %q", status))
		return
	}

	list, err := orch.List(r.Context(), status)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if list == nil {
		list = []*types.BatchJob{}
	}
	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: list})
}

func (e *ListJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batch jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/jobs"
			if status != "" {
				path += "?status=" + status
			}
			client := api.NewClient(getServerURL())
			var resp ListJobsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, running, completed, failed)")
	return cmd
}
