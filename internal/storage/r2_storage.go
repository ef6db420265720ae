package storage

import (
	"cleancycle/internal/config"
	"fmt"
	"strings"
)

// r2SettingsFromConfig 未配置 endpoint 时按账户 ID 推导，R2 只支持 path-style
func r2SettingsFromConfig(cfg config.Config) (s3Settings, error) {
	endpoint := normalizeEndpoint(cfg.StorageR2Endpoint)
	if endpoint == "" {
		accountID := strings.TrimSpace(cfg.StorageR2AccountID)
		if accountID == "" {
			return s3Settings{}, fmt.Errorf("storage: missing R2 endpoint or account id")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	}

	region := strings.TrimSpace(cfg.StorageR2Region)
	if region == "" {
		region = "auto"
	}

	opts := s3Settings{
		Bucket:          strings.TrimSpace(cfg.StorageR2Bucket),
		Prefix:          trimPrefix(cfg.StorageR2Prefix),
		Region:          region,
		Endpoint:        endpoint,
		AccessKeyID:     strings.TrimSpace(cfg.StorageR2AccessKeyID),
		SecretAccessKey: strings.TrimSpace(cfg.StorageR2SecretAccessKey),
		ForcePathStyle:  true,
	}
	return opts, opts.validate("R2")
}

// NewR2Storage Cloudflare R2 复用 S3 客户端
func NewR2Storage(cfg config.Config) (Storage, error) {
	opts, err := r2SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return newRemoteS3Storage(opts), nil
}
