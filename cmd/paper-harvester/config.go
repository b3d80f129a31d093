package main

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-harvester/internal/batch"
	"github.com/pdiddy/paper-harvester/internal/history"
	"github.com/pdiddy/paper-harvester/internal/secrets"
	"github.com/pdiddy/paper-harvester/internal/storage"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

const (
	defaultUserAgent    = "paper-harvester/0.1"
	defaultContactEmail = "paper-harvester@example.org"
)

func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("harvest.output_dir", "downloads")
	viper.SetDefault("harvest.identifier_column", "DOI")
	viper.SetDefault("harvest.user_agent", defaultUserAgent)
	viper.SetDefault("harvest.timeout", 60*time.Second)
	viper.SetDefault("harvest.lookup_timeout", 30*time.Second)
	viper.SetDefault("harvest.mirror_timeout", 20*time.Second)
	viper.SetDefault("harvest.fetch_timeout", 30*time.Second)
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.upload_dir", "uploads")
	viper.SetDefault("server.max_upload_bytes", 32<<20)
	viper.SetDefault("history.db_path", "data/history.db")
	viper.SetDefault("publish.bucket", "paper-harvester")
}

// bindFlag binds a flag to a config key. Unset flags leave the config and
// environment value in place.
func bindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// loadConfig assembles the typed configuration from viper and .secrets/.
func loadConfig() types.Config {
	return types.Config{
		Harvest: types.HarvestConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("harvest.timeout"),
				UserAgent: viper.GetString("harvest.user_agent"),
			},
			OutputDir:        viper.GetString("harvest.output_dir"),
			IdentifierColumn: viper.GetString("harvest.identifier_column"),
			ContactEmail: secretDefault(secrets.UnpaywallEmail,
				viper.GetString("harvest.contact_email")),
			LookupTimeout: viper.GetDuration("harvest.lookup_timeout"),
			MirrorTimeout: viper.GetDuration("harvest.mirror_timeout"),
			FetchTimeout:  viper.GetDuration("harvest.fetch_timeout"),
			RowDelay:      viper.GetDuration("harvest.row_delay"),
			VerifyPDF:     viper.GetBool("harvest.verify_pdf"),
		},
		Server: types.ServerConfig{
			Addr:           viper.GetString("server.addr"),
			UploadDir:      viper.GetString("server.upload_dir"),
			MaxUploadBytes: viper.GetInt64("server.max_upload_bytes"),
		},
		History: types.HistoryConfig{
			DBPath: viper.GetString("history.db_path"),
		},
		Publish: types.PublishConfig{
			Endpoint:  viper.GetString("publish.endpoint"),
			AccessKey: secretDefault(secrets.MinioAccessKey, viper.GetString("publish.access_key")),
			SecretKey: secretDefault(secrets.MinioSecretKey, viper.GetString("publish.secret_key")),
			Bucket:    viper.GetString("publish.bucket"),
			Prefix:    viper.GetString("publish.prefix"),
			UseSSL:    viper.GetBool("publish.use_ssl"),
		},
		LogLevel: viper.GetString("log_level"),
	}
}

// harvester bundles the runner and its optional collaborators.
type harvester struct {
	runner    *batch.Runner
	history   *history.Store
	publisher *storage.MinioStore
}

// newHarvester builds a runner for cfg. History and publishing failures are
// logged and leave the feature disabled rather than aborting.
func newHarvester(ctx context.Context, cfg types.Config, events batch.Emitter) *harvester {
	if cfg.Harvest.ContactEmail == "" {
		cfg.Harvest.ContactEmail = defaultContactEmail
	}

	h := &harvester{}
	opts := []batch.Option{batch.WithLogger(logrus.StandardLogger())}

	if cfg.History.DBPath != "" {
		store, err := history.NewStore(cfg.History.DBPath)
		if err != nil {
			logrus.WithError(err).Warn("run history disabled")
		} else {
			h.history = store
			opts = append(opts, batch.WithRecorder(store))
		}
	}

	if cfg.Publish.Enabled() {
		pub, err := storage.NewMinioStore(ctx, cfg.Publish)
		if err != nil {
			logrus.WithError(err).Warn("publishing disabled")
		} else {
			h.publisher = pub
			opts = append(opts, batch.WithPublisher(pub))
		}
	}

	client := &http.Client{Timeout: cfg.Harvest.Timeout}
	h.runner = batch.NewRunner(cfg.Harvest, client, events, &batch.StopFlag{}, opts...)
	return h
}

func (h *harvester) Close() {
	if h.history != nil {
		if err := h.history.Close(); err != nil {
			logrus.WithError(err).Warn("closing history")
		}
	}
}
