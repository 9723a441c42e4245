package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/damacus/your-files/internal/config"
	"github.com/damacus/your-files/internal/logger"
	"github.com/damacus/your-files/internal/services"
	"github.com/damacus/your-files/internal/storage"
	"github.com/damacus/your-files/internal/storage/miniostore"
	"github.com/damacus/your-files/internal/storage/s3store"
)

// credentialsFor picks the provider for cfg. Nil means the AWS default chain.
func credentialsFor(cfg *config.Config) aws.CredentialsProvider {
	switch {
	case cfg.CredentialsURL != "":
		return services.NewCredentialsRefresher(cfg.CredentialsURL, nil)
	case cfg.UsesStaticCredentials():
		return services.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	creds := credentialsFor(cfg)
	if r, ok := creds.(*services.CredentialsRefresher); ok {
		// Fail fast on a bad endpoint; later refreshes happen on demand.
		if err := r.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	logger.Ctx(ctx).Debug().
		Str("backend", cfg.Backend).
		Str("bucket", cfg.Bucket).
		Str("endpoint", cfg.Endpoint).
		Msg("opening store")

	if cfg.Backend == config.BackendMinio {
		return miniostore.New(miniostore.Config{
			Bucket:      cfg.Bucket,
			Endpoint:    cfg.Endpoint,
			Region:      cfg.Region,
			Credentials: creds,
		}, nil)
	}
	return s3store.New(ctx, s3store.Config{
		Bucket:         cfg.Bucket,
		Region:         cfg.Region,
		Endpoint:       cfg.Endpoint,
		ForcePathStyle: cfg.ForcePathStyle,
		Credentials:    creds,
		ExpiryWindow:   services.RefreshWindow,
	})
}
