package endpoints

import (
	"github.com/jackzampolin/temario/internal/api"
	"github.com/jackzampolin/temario/internal/defra"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	DefraManager *defra.DockerManager
	StoreBackend string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{StoreBackend: cfg.StoreBackend},
		&StatusEndpoint{DefraManager: cfg.DefraManager, StoreBackend: cfg.StoreBackend},

		// Area endpoints
		&ListAreasEndpoint{},
		&GetAreaEndpoint{},
		&IngestEndpoint{},
		&AnalyzeEndpoint{},
		&CommitEndpoint{},
		&ListPagesEndpoint{},
		&ListTopicsEndpoint{},
		&CoversEndpoint{},

		// Topic endpoints
		&TopicPagesEndpoint{},

		// Job endpoints
		&CreateJobEndpoint{},
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&JobStatusEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}
