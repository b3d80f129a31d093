// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout used when a stage sets none of its own.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paper-harvester/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// HarvestConfig holds settings for a batch run.
type HarvestConfig struct {
	HTTPConfig `yaml:",inline"`

	// OutputDir receives downloaded PDFs, the report, and the archive.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// IdentifierColumn is the spreadsheet header holding DOIs (default "DOI").
	IdentifierColumn string `json:"identifier_column" yaml:"identifier_column"`

	// ContactEmail is sent to Unpaywall as the email query parameter.
	ContactEmail string `json:"contact_email" yaml:"contact_email"`

	// LookupTimeout bounds the Unpaywall lookup request (default 30s).
	LookupTimeout time.Duration `json:"lookup_timeout" yaml:"lookup_timeout"`

	// MirrorTimeout bounds the mirror form submission (default 20s).
	MirrorTimeout time.Duration `json:"mirror_timeout" yaml:"mirror_timeout"`

	// FetchTimeout bounds the PDF download request (default 30s).
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout"`

	// RowDelay is the minimum spacing between consecutive rows (default 0).
	RowDelay time.Duration `json:"row_delay" yaml:"row_delay"`

	// VerifyPDF validates each downloaded file and warns when it is not a PDF.
	VerifyPDF bool `json:"verify_pdf" yaml:"verify_pdf"`
}

// ServerConfig holds settings for the HTTP service.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr"`

	// UploadDir receives uploaded spreadsheets (default "uploads").
	UploadDir string `json:"upload_dir" yaml:"upload_dir"`

	// MaxUploadBytes caps the size of an uploaded spreadsheet.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// HistoryConfig holds settings for the run history database.
type HistoryConfig struct {
	// DBPath is the SQLite file path. Empty disables history.
	DBPath string `json:"db_path" yaml:"db_path"`
}

// PublishConfig holds settings for uploading reports and archives to
// S3-compatible object storage. Publishing is disabled when Endpoint is empty.
type PublishConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	Prefix    string `json:"prefix" yaml:"prefix"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`
}

// Enabled reports whether publishing is configured.
func (c PublishConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Config groups all settings for the harvester.
type Config struct {
	Harvest  HarvestConfig `json:"harvest" yaml:"harvest"`
	Server   ServerConfig  `json:"server" yaml:"server"`
	History  HistoryConfig `json:"history" yaml:"history"`
	Publish  PublishConfig `json:"publish" yaml:"publish"`
	LogLevel string        `json:"log_level" yaml:"log_level"`
}
