package app

import (
	"fmt"

	"github.com/catvomitingrainbows/vocal-liquid/config"
	"github.com/catvomitingrainbows/vocal-liquid/stt"
)

// newBackend builds the transcription backend selected by cfg.
func newBackend(cfg *config.Config) (stt.Backend, error) {
	switch cfg.Provider {
	case config.ProviderWhisperLocal:
		return stt.NewWhisperLocal(stt.WhisperLocalConfig{
			ModelPath: cfg.ModelPath,
			BinPath:   cfg.WhisperBin,
			Language:  cfg.Language,
		})
	case config.ProviderWhisperAPI:
		return stt.NewWhisperAPI(stt.WhisperAPIConfig{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.APIBaseURL,
			Model:    cfg.APIModel,
			Language: cfg.Language,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", stt.ErrModelLoading, cfg.Provider)
	}
}
