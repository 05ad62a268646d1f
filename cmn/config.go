package cmn

import (
	"os"
	"strconv"
	"time"
)

// Config is the agent's runtime configuration, loaded once at startup from
// the environment variables named in spec.md §6 (see LoadFromEnv, which
// cmd/slideagentd calls before wiring any component).
type Config struct {
	InboxDir   string
	RawDir     string
	DerivedDir string
	DBPath     string

	ScannerEnabled    bool
	ScannerDir        string
	ScannerIntervalMS int

	TileConcurrency       int
	TileGenerationTimeout time.Duration
	StableSeconds         int

	PreviewRemoteEnabled     bool
	PreviewMaxLevel          int
	PreviewTargetMaxDim      int
	PreviewUploadConcurrency int
	PreviewPrefix            string

	ObjStore ObjStoreConfig
	Tunnel   TunnelConfig
}

type ObjStoreConfig struct {
	Provider  string // "s3" | "azure" | "gcs" | ""
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type TunnelConfig struct {
	URL     string
	Token   string
	AgentID string
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		InboxDir:                 "inbox",
		RawDir:                   "raw",
		DerivedDir:               "derived",
		DBPath:                   "slideagent.db",
		ScannerEnabled:           false,
		ScannerDir:               "scanner",
		ScannerIntervalMS:        60_000,
		TileConcurrency:          4,
		TileGenerationTimeout:    60 * time.Second,
		StableSeconds:            5,
		PreviewRemoteEnabled:     false,
		PreviewMaxLevel:          6,
		PreviewTargetMaxDim:      2048,
		PreviewUploadConcurrency: 8,
		PreviewPrefix:            "previews",
	}
}

// LoadFromEnv overlays recognised environment variables onto DefaultConfig.
func LoadFromEnv() Config {
	c := DefaultConfig()
	str(&c.InboxDir, "INGEST_DIR")
	str(&c.RawDir, "RAW_DIR")
	str(&c.DerivedDir, "DERIVED_DIR")
	str(&c.DBPath, "DB_PATH")
	boolean(&c.ScannerEnabled, "SCANNER_ENABLED")
	str(&c.ScannerDir, "SCANNER_DIR")
	integer(&c.ScannerIntervalMS, "SCANNER_INTERVAL_MS")
	integer(&c.TileConcurrency, "TILE_CONCURRENCY")
	var timeoutMS int
	timeoutMS = int(c.TileGenerationTimeout / time.Millisecond)
	integer(&timeoutMS, "TILE_GENERATION_TIMEOUT_MS")
	c.TileGenerationTimeout = time.Duration(timeoutMS) * time.Millisecond
	boolean(&c.PreviewRemoteEnabled, "PREVIEW_REMOTE_ENABLED")
	integer(&c.PreviewMaxLevel, "PREVIEW_MAX_LEVEL")
	integer(&c.PreviewTargetMaxDim, "PREVIEW_TARGET_MAX_DIM")
	integer(&c.PreviewUploadConcurrency, "PREVIEW_UPLOAD_CONCURRENCY")

	str(&c.ObjStore.Provider, "OBJSTORE_PROVIDER")
	str(&c.ObjStore.Bucket, "OBJSTORE_BUCKET")
	str(&c.ObjStore.Region, "OBJSTORE_REGION")
	str(&c.ObjStore.Endpoint, "OBJSTORE_ENDPOINT")
	str(&c.ObjStore.AccessKey, "OBJSTORE_ACCESS_KEY")
	str(&c.ObjStore.SecretKey, "OBJSTORE_SECRET_KEY")

	str(&c.Tunnel.URL, "TUNNEL_URL")
	str(&c.Tunnel.Token, "TUNNEL_TOKEN")
	str(&c.Tunnel.AgentID, "TUNNEL_AGENT_ID")

	return c
}

func str(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func boolean(dst *bool, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func integer(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
