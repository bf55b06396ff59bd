// Package structure turns stored pages into a committed topic set: the
// analyzer proposes themes, Normalize merges split sections, and the
// Committer swaps the new topics in with their pages and covers.
package structure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackzampolin/temario/internal/areastatus"
	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/keypool"
	"github.com/jackzampolin/temario/internal/pages"
	"github.com/jackzampolin/temario/internal/providers"
	"github.com/jackzampolin/temario/internal/store"
	"github.com/jackzampolin/temario/internal/types"
)

const (
	DefaultMaxPages = 40
	DefaultMaxChars = 60000
)

// LLMProviders looks up a text generator and its credential pool by name.
type LLMProviders interface {
	LLM(name string) (providers.Generator, *keypool.Pool, error)
}

// AnalyzerConfig configures an Analyzer.
type AnalyzerConfig struct {
	Areas     store.Areas
	Status    *areastatus.Machine
	Pages     *pages.Store
	Providers LLMProviders
	Rotator   *keypool.Rotator
	Backoff   keypool.Backoff

	LLMProvider string // "" = registry default
	Model       string // "" = provider default
	MaxPages    int
	MaxChars    int
	// RepairAttempts is the number of follow-up prompts sent when the
	// output does not parse. 0 disables repair.
	RepairAttempts int
	Logger         *slog.Logger
}

// Analyzer proposes a theme list for an area from a prefix of its pages.
// It never writes topics; the caller reviews the result and commits it.
type Analyzer struct {
	cfg    AnalyzerConfig
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Rotator == nil {
		cfg.Rotator = keypool.NewRotator(keypool.Config{Logger: cfg.Logger})
	}
	return &Analyzer{cfg: cfg, logger: cfg.Logger.With("component", "analyzer")}
}

// AnalyzeRequest selects the area and optionally the LLM provider.
type AnalyzeRequest struct {
	AreaID   string `json:"area_id"`
	Provider string `json:"provider,omitempty"`
}

// Analysis is the analyzer's proposal.
type Analysis struct {
	AreaID string `json:"area_id"`
	// Raw is the model output the themes were parsed from.
	Raw string `json:"raw"`
	// Themes are the parsed entries as emitted.
	Themes []types.Theme `json:"themes"`
	// Normalized are Themes with split sections merged.
	Normalized []types.Theme `json:"normalized"`
	PagesUsed  int           `json:"pages_used"`
	Repairs    int           `json:"repairs,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Analyze runs the structuring prompt for an area. The area must allow the
// analyzing stage and have stored pages. It stays in analyzing on success
// and moves to error on failure.
func (a *Analyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	const op = "analyze"
	start := time.Now()

	if strings.TrimSpace(req.AreaID) == "" {
		return nil, fault.New(fault.InvalidInput, op, "area id is required")
	}
	log := a.logger.With("area_id", req.AreaID)

	area, err := a.cfg.Areas.GetArea(ctx, req.AreaID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if !areastatus.CanAnalyze(area) {
		return nil, fault.New(fault.InvalidState, op, "area %s is %s; ingest it first", area.ID, area.Status)
	}

	limit := types.PageRange{Start: 1, End: a.cfg.MaxPages}.Clamp(area.TotalPages)
	pg, err := a.cfg.Pages.GetPages(ctx, req.AreaID, limit)
	if err != nil {
		return nil, err
	}
	if len(pg) == 0 {
		return nil, fault.New(fault.InvalidState, op, "area %s has no stored pages", area.ID)
	}

	if _, err := a.cfg.Status.Transition(ctx, req.AreaID, types.AreaAnalyzing, types.AreaUpdate{}); err != nil {
		return nil, err
	}
	log.Info("analysis started", "pages", len(pg))

	res, err := a.analyze(ctx, log, req, pg)
	if err != nil {
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if ferr := a.cfg.Status.Fail(failCtx, req.AreaID, types.AreaAnalyzing, err); ferr != nil {
			log.Error("failed to record analysis failure", "error", ferr)
		}
		return nil, err
	}
	res.Duration = time.Since(start)
	log.Info("analysis finished",
		"themes", len(res.Themes), "normalized", len(res.Normalized),
		"pages_used", res.PagesUsed, "repairs", res.Repairs, "duration", res.Duration)
	return res, nil
}

func (a *Analyzer) analyze(ctx context.Context, log *slog.Logger, req AnalyzeRequest, pg []types.Page) (*Analysis, error) {
	const op = "analyze.llm"

	name := req.Provider
	if name == "" {
		name = a.cfg.LLMProvider
	}
	client, pool, err := a.cfg.Providers.LLM(name)
	if err != nil {
		return nil, fault.Wrap(fault.StructuringParse, op, err)
	}

	prompt, used := BuildPrompt(pg, a.cfg.MaxChars)
	gen := providers.GenerateRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		Model:       a.cfg.Model,
		Temperature: 0,
		JSON:        true,
	}

	raw, err := a.generate(ctx, client, pool, gen)
	if err != nil {
		return nil, err
	}
	themes, perr := ParseThemes(raw)

	repairs := 0
	for perr != nil && repairs < a.cfg.RepairAttempts {
		repairs++
		log.Warn("model output did not parse, asking for a repair", "attempt", repairs, "error", perr)
		gen.Prompt = repairPrompt(raw, perr)
		if raw, err = a.generate(ctx, client, pool, gen); err != nil {
			return nil, err
		}
		themes, perr = ParseThemes(raw)
	}
	if perr != nil {
		return nil, perr
	}

	return &Analysis{
		AreaID:     req.AreaID,
		Raw:        raw,
		Themes:     themes,
		Normalized: Normalize(themes),
		PagesUsed:  used,
		Repairs:    repairs,
	}, nil
}

func (a *Analyzer) generate(ctx context.Context, client providers.Generator, pool *keypool.Pool, req providers.GenerateRequest) (string, error) {
	out, err := keypool.Retry(ctx, a.cfg.Backoff, func(ctx context.Context) (string, error) {
		return keypool.Call(ctx, a.cfg.Rotator, pool, func(ctx context.Context, cred keypool.Credential) (string, error) {
			return client.Generate(ctx, req, cred)
		})
	})
	if err != nil {
		// Provider failures keep their kind when classified (rate limits);
		// anything else is reported against the structuring stage.
		return "", fault.Wrap(fault.StructuringParse, "analyze.llm", err)
	}
	return out, nil
}

const systemPrompt = `Você é um assistente que organiza material de estudo jurídico.
Responda somente com JSON válido, sem markdown e sem comentários.`

// BuildPrompt renders pages into the structuring prompt, stopping before
// maxChars characters of page text. It returns the prompt and the number of
// pages included. The first page is always included, truncated if needed.
func BuildPrompt(pg []types.Page, maxChars int) (string, int) {
	var body strings.Builder
	used, chars := 0, 0
	for _, p := range pg {
		text := strings.TrimSpace(p.Text)
		n := utf8.RuneCountInString(text)
		if maxChars > 0 && chars+n > maxChars {
			if used > 0 {
				break
			}
			text = truncateRunes(text, maxChars)
			n = maxChars
		}
		fmt.Fprintf(&body, "--- PÁGINA %d ---\n%s\n\n", p.PageNumber, text)
		chars += n
		used++
	}

	return fmt.Sprintf(`Abaixo estão as primeiras páginas de um material de estudo, com o número de cada página.
Identifique o sumário ou a divisão do material em temas e devolva um objeto JSON no formato:

{"temas":[{"ordem":1,"titulo":"...","paginaInicial":1,"paginaFinal":10,"subtopicos":["..."]}]}

Regras:
- Liste os temas na ordem em que aparecem no material.
- paginaInicial e paginaFinal são números de página do documento (inteiros).
- Não sobreponha intervalos de páginas entre temas.
- subtopicos é opcional.

%s`, strings.TrimSpace(body.String())), used
}

func repairPrompt(lastOutput string, issue error) string {
	lastOutput = strings.TrimSpace(lastOutput)
	if len(lastOutput) > 12000 {
		lastOutput = lastOutput[:12000] + "\n...[truncado]"
	}
	return fmt.Sprintf(`Devolva SOMENTE JSON válido (sem markdown, sem comentários) neste esquema:

%s

Sua resposta anterior:
%s

Problema encontrado:
%v`, ThemeSchema, lastOutput, issue)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fault.Wrap(fault.NotFound, op, err)
	}
	return fault.Wrap(fault.Persistence, op, err)
}
