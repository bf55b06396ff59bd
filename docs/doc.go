// Package docs provides generated OpenAPI documentation.
//
// temario API
//
//	@title			temario API
//	@version		1.0
//	@description	Legal study material pipeline: document ingestion, theme structuring, topic pages and batch cover generation.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/temario
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/temario/serve.go -o . --outputTypes go --parseDependency --parseInternal
