// Package miniostore implements storage.ObjectStore on minio-go.
package miniostore

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/madmin-go/v3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Credentials are the login details a client is built from.
type Credentials struct {
	Endpoint     string
	Secure       bool
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
}

// Client is the subset of *minio.Client the store uses.
type Client interface {
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObjects(ctx context.Context, bucketName string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// AdminClient is the subset of the madmin client the store uses.
type AdminClient interface {
	DataUsageInfo(ctx context.Context) (madmin.DataUsageInfo, error)
}

// ClientFactory creates authenticated clients.
type ClientFactory interface {
	NewClient(creds Credentials) (Client, error)
	NewAdminClient(creds Credentials) (AdminClient, error)
}

// RealFactory is the production ClientFactory.
type RealFactory struct{}

func (RealFactory) NewClient(creds Credentials) (Client, error) {
	return minio.New(creds.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKey, creds.SecretKey, creds.SessionToken),
		Secure: creds.Secure,
		Region: creds.Region,
	})
}

func (RealFactory) NewAdminClient(creds Credentials) (AdminClient, error) {
	return madmin.NewWithOptions(creds.Endpoint, &madmin.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKey, creds.SecretKey, creds.SessionToken),
		Secure: creds.Secure,
	})
}

// ParseEndpoint splits an endpoint into the host:port minio-go expects and
// whether TLS should be used. An explicit scheme wins; otherwise local
// development endpoints (localhost, 127.0.0.1 and docker service names such
// as minio:9000) are plain HTTP.
func ParseEndpoint(endpoint string) (host string, secure bool) {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https") {
		return u.Host, u.Scheme == "https"
	}
	return endpoint, shouldUseSSL(endpoint)
}

func shouldUseSSL(endpoint string) bool {
	hostname := strings.Split(endpoint, ":")[0]
	if hostname == "localhost" || hostname == "127.0.0.1" {
		return false
	}
	// Only simple hostnames without dots (not minio.example.com)
	if strings.HasPrefix(hostname, "minio") && !strings.Contains(hostname, ".") && strings.Contains(endpoint, ":9000") {
		return false
	}
	return true
}
