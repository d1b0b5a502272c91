package app

import (
	"strings"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/utils"
)

type Config struct {
	Port         string
	StorageRoot  string
	AllowOrigins []string
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	storageRoot := utils.GetEnv("STORAGE_ROOT", "./data", log)
	rawOrigins := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173", log)

	var origins []string
	for _, o := range strings.Split(rawOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return Config{
		Port:         port,
		StorageRoot:  storageRoot,
		AllowOrigins: origins,
	}
}
