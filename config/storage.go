package config

import (
	"errors"
	"fmt"
	"os"
)

const (
	StorageTypeLocal = "local"
	StorageTypeS3    = "s3"
	StorageTypeMinio = "minio"
)

type StorageConfig struct {
	// Type is "local", "s3" or "minio".
	Type          string      `yaml:"type"`
	BasePath      string      `yaml:"basePath"`
	MaxUploadSize string      `yaml:"maxUploadSize"`
	S3            S3Config    `yaml:"s3"`
	Minio         MinioConfig `yaml:"minio"`

	maxUploadSizeBytes int64
}

// MaxUploadSizeBytes is MaxUploadSize parsed by Validate.
func (c *StorageConfig) MaxUploadSizeBytes() int64 {
	return c.maxUploadSizeBytes
}

func (c *StorageConfig) loadEnv() {
	setString(&c.Type, "RAG_STORAGE_TYPE")
	setString(&c.BasePath, "RAG_STORAGE_PATH")
	setString(&c.MaxUploadSize, "RAG_MAX_UPLOAD_SIZE")
	c.S3.loadEnv()
	c.Minio.loadEnv()
}

func (c *StorageConfig) validate() error {
	size, err := parseSize(c.MaxUploadSize)
	if err != nil {
		return err
	}
	c.maxUploadSizeBytes = size

	switch c.Type {
	case StorageTypeLocal:
		if c.BasePath == "" {
			return errors.New("config: storage basePath is required for local storage")
		}
	case StorageTypeS3:
		if c.S3.BucketName == "" || c.S3.Region == "" {
			return errors.New("config: s3 bucket and region are required")
		}
	case StorageTypeMinio:
		if c.Minio.Endpoint == "" || c.Minio.BucketName == "" {
			return errors.New("config: minio endpoint and bucket are required")
		}
	default:
		return fmt.Errorf("config: unsupported storage type %q", c.Type)
	}
	return nil
}

func getenvBool(key string) (bool, bool) {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True":
		return true, true
	case "0", "false", "FALSE", "False":
		return false, true
	}
	return false, false
}
