// Package storage uploads archive blobs to content-storage servers.
//
// Servers address blobs by the sha2-256 digest of their bytes. A Coordinator
// obtains one authorization token, tries every server, and keeps the
// descriptor of the first server in list order that succeeded.
package storage

import (
	"context"

	"github.com/ipfs/go-cid"

	"xdao.co/pwapub/cidutil"
)

// Blob is a payload to upload.
type Blob struct {
	Name string
	Data []byte
	Type string
}

// SHA256 is the lowercase hex digest storage servers address the blob by.
func (b Blob) SHA256() string { return cidutil.SHA256Hex(b.Data) }

// CID is the CIDv1 (raw, sha2-256) of the blob.
func (b Blob) CID() (cid.Cid, error) { return cidutil.CIDv1RawSHA256CID(b.Data) }

// Descriptor is a storage server's record of an uploaded blob.
type Descriptor struct {
	URL      string `json:"url"`
	SHA256   string `json:"sha256"`
	Size     int64  `json:"size"`
	Type     string `json:"type,omitempty"`
	Uploaded int64  `json:"uploaded,omitempty"`
}

// CID wraps the reported digest as a CIDv1.
func (d Descriptor) CID() (cid.Cid, error) { return cidutil.FromSHA256Hex(d.SHA256) }

// Uploader sends a blob to one server using a pre-computed authorization
// header value.
//
// Contract:
// - Upload MUST NOT retry.
// - A non-2xx response MUST be returned as an error.
type Uploader interface {
	Upload(ctx context.Context, server string, blob Blob, auth string) (Descriptor, error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, server string, blob Blob, auth string) (Descriptor, error)

func (f UploaderFunc) Upload(ctx context.Context, server string, blob Blob, auth string) (Descriptor, error) {
	return f(ctx, server, blob, auth)
}

// Authorizer produces the authorization value for blob. It is called once
// per upload, whatever the number of servers.
type Authorizer func(ctx context.Context, blob Blob) (string, error)
