package cli

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fpang/muted-image-editor/internal/auth"
	"github.com/fpang/muted-image-editor/internal/chat"
	"github.com/fpang/muted-image-editor/internal/config"
)

// InitImageClient builds the Gemini image client with a key resolver and,
// when validate is set, checks the key once before returning.
// Exits fatally when no key can be found or validation fails.
func InitImageClient(ctx context.Context, cfg *config.Config, validate bool) *chat.GeminiImageClient {
	var ssmClient auth.ParameterGetter
	if cfg.UseSSM {
		client, err := auth.NewSSMClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create SSM client")
		}
		ssmClient = client
	}
	resolver := auth.NewResolver(ssmClient, cfg.SSMParam)

	apiKey, err := resolver.Key(ctx)
	if err != nil {
		HandleValidationError(&auth.ValidationError{Type: auth.ErrTypeNoKey, Message: "no API key", Err: err})
	}

	if validate {
		genaiClient, err := chat.NewGeminiClient(ctx, apiKey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Gemini client")
		}
		log.Info().Msg("connection successful - Gemini client initialized")

		if err := auth.ValidateAPIKey(ctx, genaiClient); err != nil {
			HandleValidationError(err)
		}
		log.Info().Msg("API key validation complete - ready for operations")
	}

	return chat.NewGeminiImageClient(cfg.ImageModel, resolver.Key)
}
