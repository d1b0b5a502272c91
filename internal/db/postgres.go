package db

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/types"
	"github.com/scriptdeck/greenlight-backend/internal/utils"
)

// VectorDim matches the embedding model output (text-embedding-3-small).
const VectorDim = 1536

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	port := utils.GetEnv("POSTGRES_PORT", "5432", log)
	user := utils.GetEnv("POSTGRES_USER", "postgres", log)
	password := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	name := utils.GetEnv("POSTGRES_NAME", "greenlight", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	serviceLog.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := s.db.AutoMigrate(
		&types.Document{},
		&types.Submission{},
		&types.Chunk{},
		&types.FinalReport{},
	); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return s.EnsureSearchIndexes()
}

// EnsureSearchIndexes creates the lexical rank index and, when pgvector is
// installed, the native vector column plus its ANN index.
func (s *PostgresService) EnsureSearchIndexes() error {
	if err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chunk_text_fts
		ON chunk USING GIN (to_tsvector('english', text));
	`).Error; err != nil {
		return fmt.Errorf("create fts index: %w", err)
	}

	if !s.probeVector() {
		s.log.Warn("pgvector extension not installed; embeddings stay in jsonb only")
		return nil
	}
	if err := s.db.Exec(fmt.Sprintf(`
		ALTER TABLE chunk ADD COLUMN IF NOT EXISTS embedding_vec vector(%d);
	`, VectorDim)).Error; err != nil {
		return fmt.Errorf("add embedding_vec column: %w", err)
	}
	if err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chunk_embedding_vec
		ON chunk USING ivfflat (embedding_vec vector_cosine_ops);
	`).Error; err != nil {
		// ivfflat needs rows to train; non-fatal on an empty table.
		s.log.Warn("Could not create ivfflat index", "error", err)
	}
	return nil
}

// ProbeVectorSupport checks whether the chunk table carries a native vector
// column. Callers probe once per pipeline run and cache the result.
func ProbeVectorSupport(ctx context.Context, gdb *gorm.DB) bool {
	if gdb == nil {
		return false
	}
	var n int64
	err := gdb.WithContext(ctx).Raw(`
		SELECT COUNT(*)
		FROM information_schema.columns
		WHERE table_name = 'chunk' AND column_name = 'embedding_vec'
	`).Scan(&n).Error
	return err == nil && n > 0
}

func (s *PostgresService) probeVector() bool {
	var n int64
	err := s.db.Raw(`SELECT COUNT(*) FROM pg_extension WHERE extname = 'vector'`).Scan(&n).Error
	if err != nil {
		s.log.Warn("pgvector probe failed", "error", err)
		return false
	}
	return n > 0
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
