package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	goredis "github.com/scriptdeck/greenlight-backend/internal/clients/redis"
	"github.com/scriptdeck/greenlight-backend/internal/embedding"
	"github.com/scriptdeck/greenlight-backend/internal/extract"
	"github.com/scriptdeck/greenlight-backend/internal/ingestion"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/platform/openai"
	"github.com/scriptdeck/greenlight-backend/internal/retrieval"
	"github.com/scriptdeck/greenlight-backend/internal/review"
	"github.com/scriptdeck/greenlight-backend/internal/sse"
)

type Services struct {
	OpenAI       openai.Client
	Embedding    *embedding.Store
	Retriever    *retrieval.Retriever
	Pipeline     *ingestion.Pipeline
	Orchestrator *review.Orchestrator
	Bus          goredis.Bus
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, hub *sse.Hub) (Services, error) {
	log.Info("Wiring services...")

	openaiClient, err := openai.NewClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init openai client: %w", err)
	}

	store := embedding.NewStore(openaiClient, reposet.Chunk, db, log)
	retriever := retrieval.NewRetriever(db, reposet.Document, store, log)

	extractor := extract.NewNativeExtractor(extract.NewFSReader(cfg.StorageRoot))
	pipeline := ingestion.NewPipeline(db, extractor, reposet.Chunk, store, log)

	// The bus is optional: without redis, progress events stay local to
	// this instance's hub.
	var bus goredis.Bus
	if b, bErr := goredis.NewBus(log); bErr != nil {
		log.Warn("Redis event bus unavailable; review events will not fan out", "error", bErr)
	} else {
		bus = b
		if fErr := bus.StartForwarder(context.Background(), func(m sse.Message) {
			hub.Broadcast(m)
		}); fErr != nil {
			log.Warn("Could not start redis event forwarder", "error", fErr)
		}
	}

	evaluator := review.NewLLMEvaluator(openaiClient, log)
	synthesizer := review.NewSynthesizer(openaiClient, log)
	orchestrator := review.NewOrchestrator(
		reposet.Submission,
		reposet.FinalReport,
		retriever,
		evaluator,
		synthesizer,
		pipeline,
		busOrNil(bus),
		log,
	)

	return Services{
		OpenAI:       openaiClient,
		Embedding:    store,
		Retriever:    retriever,
		Pipeline:     pipeline,
		Orchestrator: orchestrator,
		Bus:          bus,
	}, nil
}

// busOrNil keeps a typed-nil Bus from sneaking into the orchestrator's
// interface field.
func busOrNil(b goredis.Bus) review.Publisher {
	if b == nil {
		return nil
	}
	return b
}
