package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

var (
	// ErrScanNotFound indicates the referenced container or blob does not exist
	ErrScanNotFound = errors.New("stored scan not found")
	// ErrScanTooLarge indicates the blob exceeds the configured size cap
	ErrScanTooLarge = errors.New("stored scan exceeds size limit")
)

// ScanObject is a downloaded scan with the content type recorded on the blob
type ScanObject struct {
	Name        string
	ContentType string
	Data        []byte
}

// ScanStore reads previously uploaded scans
type ScanStore interface {
	FetchScan(ctx context.Context, container, blob string) (*ScanObject, error)
}

type azureScanStore struct {
	client   *azblob.Client
	maxBytes int64
}

// NewAzureScanStore creates a ScanStore backed by an Azure storage account
func NewAzureScanStore(accountName, accountKey string, maxBytes int64) (ScanStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid storage credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net/", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}

	return newAzureScanStore(client, maxBytes), nil
}

func newAzureScanStore(client *azblob.Client, maxBytes int64) *azureScanStore {
	return &azureScanStore{client: client, maxBytes: maxBytes}
}

func (s *azureScanStore) FetchScan(ctx context.Context, container, blob string) (*ScanObject, error) {
	resp, err := s.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
			return nil, fmt.Errorf("%s/%s: %w", container, blob, ErrScanNotFound)
		}
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.ContentLength != nil && s.maxBytes > 0 && *resp.ContentLength > s.maxBytes {
		return nil, ErrScanTooLarge
	}

	reader := io.Reader(resp.Body)
	if s.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, ErrScanTooLarge
	}

	obj := &ScanObject{Name: blob, Data: data}
	if resp.ContentType != nil {
		obj.ContentType = *resp.ContentType
	}
	return obj, nil
}
