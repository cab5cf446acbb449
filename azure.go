package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// local storage emulator
const azuriteConnectionString = "DefaultEndpointsProtocol=http;" +
	"AccountName=devstoreaccount1;" +
	"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
	"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

type AzureClient struct {
	Client *container.Client
}

func NewAzureBlobClient(appConfig AppConfig) (RemoteStore, error) {
	var containerClient *container.Client
	var err error

	if appConfig.Azure.AccountName == "" || appConfig.Azure.AccountKey == "" {
		containerClient, err = container.NewClientFromConnectionString(azuriteConnectionString, appConfig.Container, nil)
		if err != nil {
			return nil, fmt.Errorf("error creating development storage client: %w", err)
		}
		return &AzureClient{Client: containerClient}, nil
	}

	cred, err := blob.NewSharedKeyCredential(appConfig.Azure.AccountName, appConfig.Azure.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("error creating shared key credential: %w", err)
	}

	endpoint := appConfig.Azure.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", appConfig.Azure.AccountName)
	}
	containerURL := strings.TrimSuffix(endpoint, "/") + "/" + appConfig.Container

	containerClient, err = container.NewClientWithSharedKeyCredential(containerURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating container client: %w", err)
	}

	return &AzureClient{Client: containerClient}, nil
}

func (a *AzureClient) EnsureContainer(ctx context.Context) error {
	_, err := a.Client.Create(ctx, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return err
	}
	return nil
}

func (a *AzureClient) ListObjects(ctx context.Context) (map[string]ObjectInfo, error) {
	objects := make(map[string]ObjectInfo)
	pager := a.Client.NewListBlobsFlatPager(nil)
	for pager.More() {
		page, pageErr := pager.NextPage(ctx)
		if pageErr != nil {
			return objects, pageErr
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := ObjectInfo{Name: *item.Name}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					info.Size = *item.Properties.ContentLength
				}
				info.ModTime = derefTime(item.Properties.LastModified)
			}
			objects[info.Name] = info
		}
	}

	return objects, nil
}

func (a *AzureClient) GetObject(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := a.Client.NewBlobClient(name).DownloadStream(ctx, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (a *AzureClient) PutObject(ctx context.Context, name string, body io.Reader, size int64) error {
	_, err := a.Client.NewBlockBlobClient(name).UploadStream(ctx, body, nil)
	return err
}

func (a *AzureClient) DeleteObject(ctx context.Context, name string) error {
	_, err := a.Client.NewBlobClient(name).Delete(ctx, &blob.DeleteOptions{
		DeleteSnapshots: to.Ptr(blob.DeleteSnapshotsOptionTypeInclude),
	})
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return err
	}
	return nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
