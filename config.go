package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jinzhu/configor"
)

const envPrefix = "FS2BLOB"

type AppConfig struct {
	Provider              string `default:"azure"`
	Container             string `required:"true"`
	BaseDir               string
	FolderToSync          string `required:"true"`
	GrantWriteAccess      bool
	Azure                 AzureConfig
	AWS                   AWSConfig
	GCS                   GCSConfig
	Workers               int `default:"4"`
	QueueSize             int `default:"64"`
	Concurrency           int `default:"1"`
	Retry                 RetryConfig
	RenameWindowMillis    int `default:"100"`
	Exclude               []string
	Notify                NotifyConfig
	ReportIntervalMinutes int
	LogLevel              string `default:"info"`
	LogFormat             string `default:"text"`
}

type AzureConfig struct {
	AccountName string
	AccountKey  string
	Endpoint    string
}

type AWSConfig struct {
	Region  string
	Profile string
}

type GCSConfig struct {
	ProjectID       string
	CredentialsFile string
}

type RetryConfig struct {
	MaxAttempts           int `default:"1"`
	InitialIntervalMillis int `default:"500"`
	MaxIntervalMillis     int `default:"30000"`
}

type NotifyConfig struct {
	Topic   string
	Region  string
	Profile string
}

func LoadConfig(configFilePath string) (AppConfig, error) {
	var appConfig AppConfig
	loader := configor.New(&configor.Config{ENVPrefix: envPrefix})
	if err := loader.Load(&appConfig, configFilePath); err != nil {
		return appConfig, fmt.Errorf("loading %s: %w", configFilePath, err)
	}
	if err := appConfig.Validate(); err != nil {
		return appConfig, err
	}
	return appConfig, nil
}

func (c AppConfig) Validate() error {
	switch c.Provider {
	case "azure", "s3", "gcs":
	default:
		return fmt.Errorf("unknown cloud provider: %s", c.Provider)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.ReportIntervalMinutes < 0 {
		return fmt.Errorf("report interval cannot be negative")
	}
	if _, err := NewExclusionFilter(c.Exclude); err != nil {
		return err
	}
	return nil
}

// WatchRoot resolves the absolute directory to keep in sync.
func (c AppConfig) WatchRoot() (string, error) {
	root := c.FolderToSync
	if c.BaseDir != "" {
		root = filepath.Join(c.BaseDir, c.FolderToSync)
	}
	return filepath.Abs(root)
}

func (c AppConfig) ClientFromConfig(ctx context.Context) (RemoteStore, error) {
	switch c.Provider {
	case "azure":
		return NewAzureBlobClient(c)
	case "s3":
		return NewS3BucketClient(ctx, c)
	case "gcs":
		return NewGCSBucketClient(ctx, c)
	default:
		return nil, fmt.Errorf("unknown cloud provider: %s", c.Provider)
	}
}

func (c AppConfig) NotifierFromConfig(ctx context.Context) (Notifier, error) {
	if c.Notify.Topic == "" {
		return nil, nil
	}
	return NewSNSNotifier(ctx, c)
}

func (c AppConfig) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     c.Retry.MaxAttempts,
		InitialInterval: time.Duration(c.Retry.InitialIntervalMillis) * time.Millisecond,
		MaxInterval:     time.Duration(c.Retry.MaxIntervalMillis) * time.Millisecond,
	}
}

func (c AppConfig) EngineConfig() (EngineConfig, error) {
	root, err := c.WatchRoot()
	if err != nil {
		return EngineConfig{}, fmt.Errorf("resolving watch root: %w", err)
	}
	return EngineConfig{
		WatchRoot:      root,
		Container:      c.Container,
		Workers:        c.Workers,
		QueueSize:      c.QueueSize,
		Concurrency:    c.Concurrency,
		Exclude:        c.Exclude,
		Retry:          c.RetryPolicy(),
		ReportInterval: time.Duration(c.ReportIntervalMinutes) * time.Minute,
	}, nil
}

func (c AppConfig) ConfigStringArray() []string {
	configStrArr := make([]string, 0)
	configStrArr = append(configStrArr, fmt.Sprintf("  - Provider: %s", c.Provider))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Container: %s", c.Container))
	root, _ := c.WatchRoot()
	configStrArr = append(configStrArr, fmt.Sprintf("  - WatchRoot: %s", root))

	switch c.Provider {
	case "azure":
		configStrArr = append(configStrArr, fmt.Sprintf("  - AccountName: %s", c.Azure.AccountName))
		configStrArr = append(configStrArr, fmt.Sprintf("  - AccountKey: %s", maskSecret(c.Azure.AccountKey)))
		if c.Azure.Endpoint != "" {
			configStrArr = append(configStrArr, fmt.Sprintf("  - Endpoint: %s", c.Azure.Endpoint))
		}
	case "s3":
		configStrArr = append(configStrArr, fmt.Sprintf("  - AWSRegion: %s", c.AWS.Region))
		configStrArr = append(configStrArr, fmt.Sprintf("  - IAMProfile: %s", c.AWS.Profile))
	case "gcs":
		configStrArr = append(configStrArr, fmt.Sprintf("  - ProjectID: %s", c.GCS.ProjectID))
	}

	configStrArr = append(configStrArr, fmt.Sprintf("  - Workers: %d (queue %d)", c.Workers, c.QueueSize))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Concurrent Downloads: %d", c.Concurrency))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Retry Attempts: %d", c.Retry.MaxAttempts))

	if c.Notify.Topic != "" {
		configStrArr = append(configStrArr, fmt.Sprintf("  - SNSTopic: %s", c.Notify.Topic))
	}
	if len(c.Exclude) > 0 {
		configStrArr = append(configStrArr, fmt.Sprintf("  - Exclude: %v", c.Exclude))
	}

	return configStrArr
}

func maskSecret(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "********"
}
