package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"sdpflow/internal/llm"
	"sdpflow/internal/tools"
)

type Config struct {
	Port          string
	RunsRoot      string
	ToolsManifest string
	DefaultTool   string
	Model         llm.ModelConfig
	Artifact      ArtifactConfig
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

var (
	flagOnce sync.Once
	portFlag *string
	runsFlag *string
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	flagOnce.Do(func() {
		portFlag = flag.String("port", ":8080", "server port")
		runsFlag = flag.String("runs-root", "runs", "root directory for run artifacts")
		flag.Parse()
	})

	port := *portFlag
	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			port = envPort
		} else {
			port = ":" + envPort
		}
	}

	runsRoot := firstNonEmpty(strings.TrimSpace(os.Getenv("SDPFLOW_RUNS_ROOT")), *runsFlag)

	return &Config{
		Port:          port,
		RunsRoot:      runsRoot,
		ToolsManifest: strings.TrimSpace(os.Getenv("SDPFLOW_TOOLS_MANIFEST")),
		DefaultTool:   firstNonEmpty(strings.TrimSpace(os.Getenv("SDPFLOW_TOOL_CMD")), tools.DefaultCommand),
		Model: llm.ModelConfig{
			APIKey:  strings.TrimSpace(os.Getenv("SDPFLOW_API_KEY")),
			BaseURL: strings.TrimSpace(os.Getenv("SDPFLOW_BASE_URL")),
			Model:   strings.TrimSpace(os.Getenv("SDPFLOW_MODEL")),
		},
		Artifact: loadArtifactConfig(),
	}, nil
}

func loadArtifactConfig() ArtifactConfig {
	endpoint := strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "sdpflow-artifacts"),
		UseSSL:    resolveUseSSL(),
	}
}

func resolveUseSSL() bool {
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
