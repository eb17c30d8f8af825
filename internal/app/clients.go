package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yungbote/intentbase-backend/internal/clients/openai"
	"github.com/yungbote/intentbase-backend/internal/clients/pinecone"
	"github.com/yungbote/intentbase-backend/internal/clients/redis"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
)

type Clients struct {
	OpenaiClient openai.Client
	VectorStore  pinecone.VectorStore
	Leases       redis.LeaseStore
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	// Openai
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	// Pinecone
	pc, err := pinecone.New(log, pinecone.Config{
		APIKey:  os.Getenv("PINECONE_API_KEY"),
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return Clients{}, fmt.Errorf("init pinecone client: %w", err)
	}
	store, err := pinecone.NewVectorStore(log, pc)
	if err != nil {
		return Clients{}, fmt.Errorf("init vector store: %w", err)
	}

	// Redis
	var leases redis.LeaseStore
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		l, err := redis.NewLeaseStore(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis lease store: %w", err)
		}
		leases = l
	}

	return Clients{
		OpenaiClient: openaiClient,
		VectorStore:  store,
		Leases:       leases,
	}, nil
}
