package azure

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// ErrBlobNotFound is matched by every error caused by a missing blob or container
var ErrBlobNotFound = errors.New("blob not found")

// StorageOptions holds what is needed to reach a storage account.
// ConnectionString wins over the account name and key pair.
type StorageOptions struct {
	AccountName      string
	AccountKey       string
	ConnectionString string
	// BlobEndpoint overrides https://<account>.blob.core.windows.net/, e.g. for Azurite
	BlobEndpoint string
}

// ServiceURL returns the blob service URL the shared key client talks to
func (o StorageOptions) ServiceURL() string {
	if o.BlobEndpoint != "" {
		return strings.TrimSuffix(o.BlobEndpoint, "/") + "/"
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", o.AccountName)
}

// NewClient creates the Azure Blob Storage client shared by the block and append services
func NewClient(opts StorageOptions) (*azblob.Client, error) {
	if opts.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(opts.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create blob client from connection string: %w", err)
		}
		return client, nil
	}

	if opts.AccountName == "" || opts.AccountKey == "" {
		return nil, fmt.Errorf("accountName and accountKey are required")
	}

	credential, err := azblob.NewSharedKeyCredential(opts.AccountName, opts.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(opts.ServiceURL(), credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return client, nil
}

// isNotFound reports whether the service answered with a missing blob or container
func isNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound)
}

// wrapError adds the operation to err and tags missing resources with ErrBlobNotFound
func wrapError(op string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, ErrBlobNotFound, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
