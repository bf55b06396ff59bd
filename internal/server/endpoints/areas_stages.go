package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/temario/internal/api"
	"github.com/jackzampolin/temario/internal/ingest"
	"github.com/jackzampolin/temario/internal/structure"
	"github.com/jackzampolin/temario/internal/types"
)

// IngestRequest is the request body for POST /api/areas/{id}/ingest.
type IngestRequest struct {
	DocumentURL string `json:"document_url"`
	Provider    string `json:"provider,omitempty"`
}

// IngestEndpoint handles POST /api/areas/{id}/ingest.
type IngestEndpoint struct{}

func (e *IngestEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/areas/{id}/ingest", e.handler
}

func (e *IngestEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Ingest a document into an area
//	@Description	Downloads the document, extracts its pages through OCR and stores them. Creates the area on first use.
//	@Tags			areas
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Area ID"
//	@Param			request	body		IngestRequest	true	"Document to ingest"
//	@Success		200		{object}	ingest.Result
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Router			/api/areas/{id}/ingest [post]
func (e *IngestEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := pipelineFrom(w, r)
	if svc == nil {
		return
	}

	var req IngestRequest
	if err := decodeBody(r, &req); err != nil {
		writeFault(w, r, err)
		return
	}

	res, err := svc.Ingest(r.Context(), ingest.Request{
		AreaID:      r.PathValue("id"),
		DocumentURL: req.DocumentURL,
		Provider:    req.Provider,
	})
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *IngestEndpoint) Command(getServerURL func() string) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "ingest <area-id> <document-url>",
		Short: "Extract the pages of a document into an area",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ingest.Result
			body := IngestRequest{DocumentURL: args[1], Provider: provider}
			if err := client.Post(cmd.Context(), "/api/areas/"+args[0]+"/ingest", body, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "OCR provider (default from config)")
	return cmd
}

// AnalyzeRequest is the request body for POST /api/areas/{id}/analyze.
type AnalyzeRequest struct {
	Provider string `json:"provider,omitempty"`
}

// AnalyzeEndpoint handles POST /api/areas/{id}/analyze.
type AnalyzeEndpoint struct{}

func (e *AnalyzeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/areas/{id}/analyze", e.handler
}

func (e *AnalyzeEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Propose a theme structure
//	@Description	Asks the LLM for the table of contents of the area's leading pages. Nothing is committed.
//	@Tags			areas
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Area ID"
//	@Param			request	body		AnalyzeRequest	false	"Provider override"
//	@Success		200		{object}	structure.Analysis
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		429		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Router			/api/areas/{id}/analyze [post]
func (e *AnalyzeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := pipelineFrom(w, r)
	if svc == nil {
		return
	}

	var req AnalyzeRequest
	if err := decodeBody(r, &req); err != nil {
		writeFault(w, r, err)
		return
	}

	res, err := svc.Analyze(r.Context(), structure.AnalyzeRequest{
		AreaID:   r.PathValue("id"),
		Provider: req.Provider,
	})
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *AnalyzeEndpoint) Command(getServerURL func() string) *cobra.Command {
	var provider string
	var themesOut string
	cmd := &cobra.Command{
		Use:   "analyze <area-id>",
		Short: "Propose a theme structure for an area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp structure.Analysis
			if err := client.Post(cmd.Context(), "/api/areas/"+args[0]+"/analyze", AnalyzeRequest{Provider: provider}, &resp); err != nil {
				return err
			}
			if themesOut != "" {
				return api.OutputToFile(resp.Normalized, themesOut)
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (default from config)")
	cmd.Flags().StringVar(&themesOut, "themes-out", "", "Write the normalized themes to a file for review before commit")
	return cmd
}

// CommitRequest is the request body for POST /api/areas/{id}/commit.
type CommitRequest struct {
	Themes []types.Theme `json:"themes"`
}

// CommitEndpoint handles POST /api/areas/{id}/commit.
type CommitEndpoint struct{}

func (e *CommitEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/areas/{id}/commit", e.handler
}

func (e *CommitEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Commit a theme structure
//	@Description	Replaces the area's topics with the given themes and links the stored pages to them. Existing covers are carried forward by title.
//	@Tags			areas
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Area ID"
//	@Param			request	body		CommitRequest	true	"Themes to commit"
//	@Success		200		{object}	structure.CommitResult
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/api/areas/{id}/commit [post]
func (e *CommitEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := pipelineFrom(w, r)
	if svc == nil {
		return
	}

	var req CommitRequest
	if err := decodeBody(r, &req); err != nil {
		writeFault(w, r, err)
		return
	}

	res, err := svc.Commit(r.Context(), r.PathValue("id"), req.Themes)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *CommitEndpoint) Command(getServerURL func() string) *cobra.Command {
	var themesFile string
	cmd := &cobra.Command{
		Use:   "commit <area-id>",
		Short: "Commit a reviewed theme list to an area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(themesFile)
			if err != nil {
				return fmt.Errorf("failed to read themes: %w", err)
			}
			var themes []types.Theme
			if err := json.Unmarshal(data, &themes); err != nil {
				return fmt.Errorf("themes file must hold a JSON array: %w", err)
			}

			client := api.NewClient(getServerURL())
			var resp structure.CommitResult
			if err := client.Post(cmd.Context(), "/api/areas/"+args[0]+"/commit", CommitRequest{Themes: themes}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&themesFile, "themes", "f", "", "JSON file with the themes to commit")
	cmd.MarkFlagRequired("themes")
	return cmd
}
