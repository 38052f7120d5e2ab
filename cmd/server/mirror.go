package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"kartetris.ai/internal/persistence/mirror"
)

// buildMirror returns nil unless KT_MIRROR is true.
func buildMirror(baseDir string, logger *slog.Logger) (*mirror.Mirror, error) {
	if !envBool("KT_MIRROR", false) {
		return nil, nil
	}
	creds := mirror.Credentials{
		Endpoint:        os.Getenv("KT_MIRROR_ENDPOINT"),
		Bucket:          os.Getenv("KT_MIRROR_BUCKET"),
		Region:          os.Getenv("KT_MIRROR_REGION"),
		AccessKeyID:     os.Getenv("KT_MIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("KT_MIRROR_SECRET_ACCESS_KEY"),
	}
	client, err := mirror.NewClient(creds)
	if err != nil {
		return nil, fmt.Errorf("KT_MIRROR=true: %w", err)
	}
	return mirror.New(client, mirror.Options{
		BaseDir: baseDir,
		Prefix:  strings.TrimSpace(os.Getenv("KT_MIRROR_PREFIX")),
		Workers: envInt("KT_MIRROR_UPLOAD_WORKERS", 2),
		Logger:  logger,
	}), nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
