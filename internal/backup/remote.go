package backup

import (
	"context"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
	"github.com/dsrplatform/fleetcore/infrastructure/resilience"
)

// RemoteUploader ships a completed archive off-host. The default
// implementation targets Azure Blob Storage; nil disables remote upload.
type RemoteUploader interface {
	Upload(ctx context.Context, localPath, remoteName string) (location string, err error)
}

// AzureBlobUploader uploads archives to a container in an Azure Storage
// account, authenticating via DefaultAzureCredential (managed identity,
// environment, or CLI login, whichever is available).
type AzureBlobUploader struct {
	client    *azblob.Client
	container string
}

// NewAzureBlobUploader builds an uploader for accountURL (e.g.
// "https://<account>.blob.core.windows.net") and container.
func NewAzureBlobUploader(accountURL, container string) (*AzureBlobUploader, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, errors.AdapterFailure("azure-credential", err)
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, errors.AdapterFailure("azure-blob-client", err)
	}
	return &AzureBlobUploader{client: client, container: container}, nil
}

func (u *AzureBlobUploader) Upload(ctx context.Context, localPath, remoteName string) (string, error) {
	retryCfg := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, Jitter: 0.2}

	err := resilience.Retry(ctx, retryCfg, func() error {
		f, openErr := os.Open(localPath)
		if openErr != nil {
			return openErr
		}
		defer f.Close()

		_, uploadErr := u.client.UploadFile(ctx, u.container, remoteName, f, nil)
		return uploadErr
	})
	if err != nil {
		return "", errors.AdapterFailure("azure-blob-upload", err)
	}
	return u.container + "/" + remoteName, nil
}
