package app

import (
	"github.com/yungbote/intentbase-backend/internal/handlers"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
)

type Handlers struct {
	Taxonomy *handlers.TaxonomyHandler
	Phrase   *handlers.PhraseHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Taxonomy: handlers.NewTaxonomyHandler(services.Taxonomy),
		Phrase:   handlers.NewPhraseHandler(services.Taxonomy),
	}
}
