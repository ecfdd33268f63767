package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/bilgi/internal/adapters/driven/ai"
	"github.com/custodia-labs/bilgi/internal/adapters/driven/config/file"
	"github.com/custodia-labs/bilgi/internal/adapters/driven/storage/manifest"
	"github.com/custodia-labs/bilgi/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/bilgi/internal/adapters/driven/storage/qdrant"
	"github.com/custodia-labs/bilgi/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/bilgi/internal/adapters/driven/websearch/duckduckgo"
	"github.com/custodia-labs/bilgi/internal/adapters/driven/websearch/google"
	"github.com/custodia-labs/bilgi/internal/adapters/driven/websearch/weather"
	"github.com/custodia-labs/bilgi/internal/adapters/driving/cli"
	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
	"github.com/custodia-labs/bilgi/internal/core/ports/driving"
	"github.com/custodia-labs/bilgi/internal/core/services"
	"github.com/custodia-labs/bilgi/internal/extractors"
	"github.com/custodia-labs/bilgi/internal/extractors/html"
	"github.com/custodia-labs/bilgi/internal/extractors/pdf"
	"github.com/custodia-labs/bilgi/internal/extractors/text"
	"github.com/custodia-labs/bilgi/internal/logger"
	"github.com/custodia-labs/bilgi/internal/postprocessors"
)

// app owns the long-lived resources behind the CLI services.
type app struct {
	services *cli.Services
	store    driven.VectorStore
	ai       *ai.InitResult
}

// newApp wires the services for settings rooted at the bilgi home directory.
func newApp(ctx context.Context, home string, settings domain.AppSettings) (*app, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	storeSettings := settings.Store
	if storeSettings.Backend == domain.StoreBackendSQLite && storeSettings.Path == "" {
		storeSettings.Path = filepath.Join(home, "data", sqlite.DatabaseFile)
	}
	store, err := openStore(ctx, storeSettings)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	imageDir := settings.Ingest.ImageDir
	if imageDir == "" {
		imageDir = filepath.Join(home, "images")
	}
	manifests, err := manifest.NewStore(imageDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	pipeline, err := postprocessors.DefaultPipeline(settings.Chunker)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build chunker pipeline: %w", err)
	}

	registry := extractors.NewRegistry()
	registry.Register(text.New())
	registry.Register(html.New())
	registry.Register(pdf.New(pdf.Config{ImageDir: imageDir}))

	aiResult := ai.Init(settings)
	for _, w := range aiResult.Warnings {
		logger.Warn("%s", w)
	}

	prompts, err := file.NewPromptStore(filepath.Join(home, "prompts"))
	if err != nil {
		aiResult.Close()
		store.Close()
		return nil, err
	}

	webService := newWebService(settings.Web)
	webService.SetPromptStore(prompts)
	var web driving.WebAugmenter
	if len(webService.Providers()) > 0 {
		web = webService
	}

	ingest := services.NewIngestService(store, registry, pipeline, aiResult.EmbeddingService, manifests, services.IngestConfig{
		Workers:    settings.Ingest.Workers,
		Collection: settings.Ingest.Collection,
		Department: settings.Ingest.Department,
	})

	answer := services.NewAnswerService(store, aiResult.EmbeddingService, aiResult.LLMService, web, services.AnswerConfig{
		TopK:          settings.Answer.TopK,
		MinScore:      settings.Answer.MinScore,
		Timeout:       settings.Answer.Timeout,
		WebMode:       settings.Answer.WebMode,
		WebMaxResults: settings.Web.MaxResults,
	})
	answer.SetPromptStore(prompts)

	syncer := services.NewCollectionSynchronizer(store, aiResult.EmbeddingService)

	return &app{
		services: &cli.Services{
			Ingest:       ingest,
			Answer:       answer,
			Web:          web,
			Synchronizer: syncer,
			Copier:       syncer,
			OpenStore:    openStore,
		},
		store: store,
		ai:    aiResult,
	}, nil
}

// Close releases the store and AI clients.
func (a *app) Close() {
	a.ai.Close()
	if err := a.store.Close(); err != nil {
		logger.Warn("close store: %v", err)
	}
}

// openStore opens the vector store described by settings.
func openStore(_ context.Context, settings domain.StoreSettings) (driven.VectorStore, error) {
	switch settings.Backend {
	case domain.StoreBackendSQLite, "":
		if settings.Path == "" {
			return sqlite.NewStore("")
		}
		return sqlite.Open(settings.Path)
	case domain.StoreBackendMemory:
		return memory.NewVectorStore(), nil
	case domain.StoreBackendQdrant:
		return qdrant.NewStore(qdrant.Config{URL: settings.URL, APIKey: settings.APIKey})
	default:
		return nil, fmt.Errorf("%w: store backend %q", domain.ErrUnsupportedType, settings.Backend)
	}
}

// newWebService builds the provider chain: weather first so its card leads,
// then Google when configured, then DuckDuckGo.
func newWebService(settings domain.WebSettings) *services.WebSearchService {
	var providers []driven.SearchProvider
	if settings.Weather {
		providers = append(providers, weather.New(weather.Config{Timeout: settings.Timeout}))
	}
	if settings.GoogleAPIKey != "" && settings.GoogleCX != "" {
		g, err := google.New(google.Config{
			APIKey:   settings.GoogleAPIKey,
			CX:       settings.GoogleCX,
			Timeout:  settings.Timeout,
			Language: "lang_tr",
		})
		if err != nil {
			logger.Warn("google search disabled: %v", err)
		} else {
			providers = append(providers, g)
		}
	}
	providers = append(providers, duckduckgo.New(duckduckgo.Config{Timeout: settings.Timeout}))
	return services.NewWebSearchService(settings.Timeout, providers...)
}
