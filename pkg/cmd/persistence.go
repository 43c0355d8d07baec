package cmd

import (
	"strings"

	"github.com/healthsim/healthsim/pkg/persistence"
	"github.com/healthsim/healthsim/pkg/persistence/file"
)

var supportedPersistenceProviders = []string{"file"}

func NewPersistence(dataURL string) persistence.Persistence {
	provider := parsePersistenceProvider(dataURL)

	switch provider {
	default:
		return file.NewPersistence(dataURL)
	}
}

func parsePersistenceProvider(dataURL string) string {
	parts := strings.Split(dataURL, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
