package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// NewStore creates a Store for the given provider name.
//
//   - "chromem" (default): embedded chromem-go, no external service needed
//   - "qdrant": external Qdrant server over gRPC
//
// The unused config pointer may be nil.
func NewStore(provider string, chromemCfg *ChromemConfig, qdrantCfg *QdrantConfig, logger *zap.Logger) (Store, error) {
	switch provider {
	case "chromem", "":
		if chromemCfg == nil {
			chromemCfg = &ChromemConfig{}
		}
		return NewChromemStore(*chromemCfg, logger)

	case "qdrant":
		if qdrantCfg == nil {
			qdrantCfg = &QdrantConfig{}
		}
		return NewQdrantStore(*qdrantCfg, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant)", ErrInvalidConfig, provider)
	}
}
