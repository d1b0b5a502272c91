package app

import (
	"gorm.io/gorm"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/repos"
)

type Repos struct {
	Chunk       repos.ChunkRepo
	Document    repos.DocumentRepo
	Submission  repos.SubmissionRepo
	FinalReport repos.FinalReportRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Chunk:       repos.NewChunkRepo(db, log),
		Document:    repos.NewDocumentRepo(db, log),
		Submission:  repos.NewSubmissionRepo(db, log),
		FinalReport: repos.NewFinalReportRepo(db, log),
	}
}
