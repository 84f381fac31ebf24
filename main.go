package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tundra/catalog"
	"tundra/commit"
	"tundra/config"
	"tundra/gologger"
	"tundra/storage"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to config file")
	cleanOrphans := flag.Bool("clean-orphans", false, "Delete unreferenced table objects and exit")
	flag.Parse()

	logger := gologger.NewLogger()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := newStorage(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create storage")
	}

	var pointer commit.Pointer
	if cfg.Catalog.DSN != "" {
		cat, err := catalog.Connect(ctx, cfg.Catalog.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to catalog")
		}
		defer cat.Close()
		pointer = cat.Pointer(cfg.Table.Name, store, cfg.Table.Location)
	} else {
		pointer = &commit.StorePointer{Store: store, Location: cfg.Table.Location}
	}

	if *cleanOrphans {
		removed, err := commit.CleanOrphans(ctx, store, cfg.Table.Location)
		if err != nil {
			logger.Fatal().Err(err).Msg("orphan cleanup failed")
		}
		logger.Info().Int("removed", len(removed)).Msg("orphan cleanup complete")
		return
	}

	md, token, err := pointer.Load(ctx)
	if err != nil {
		logger.Fatal().Err(err).Str("location", cfg.Table.Location).Msg("failed to load table")
	}

	event := logger.Info().
		Str("table_uuid", md.UUID).
		Str("metadata", token.Path).
		Int64("last_sequence_number", md.LastSequenceNumber).
		Int("schemas", len(md.Schemas)).
		Int("partition_specs", len(md.Specs)).
		Int("snapshots", len(md.Snapshots))
	if cur := md.CurrentSnapshot(); cur != nil {
		event = event.
			Int64("current_snapshot_id", cur.SnapshotID).
			Str("operation", string(cur.Operation)).
			Str("manifest_list", cur.ManifestList)
	}
	event.Msg("table state")
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "s3":
		opts := s3.Options{
			Region: cfg.Storage.S3.Region,
			Credentials: aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
					SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
					SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				}, nil
			}),
		}
		if cfg.Storage.S3.Endpoint != "" {
			opts.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
			opts.UsePathStyle = true
		}
		client := s3.New(opts)
		return storage.NewS3Storage(client, cfg.Storage.S3.Bucket, cfg.Storage.S3.Prefix), nil
	case "fs":
		return storage.NewFSStorage(cfg.Storage.FS.Path), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
