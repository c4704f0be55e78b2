package testkit

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"xdao.co/pwapub/storage"
)

// NewUploader constructs the Uploader under test.
type NewUploader func(t *testing.T) storage.Uploader

// RunUploaderConformance checks an Uploader against Server. authorize must
// produce values the server accepts.
func RunUploaderConformance(t *testing.T, newUploader NewUploader, authorize storage.Authorizer) {
	t.Helper()
	ctx := context.Background()
	blob := storage.Blob{Name: "app_1-0.pwa", Data: []byte("hello, pwapub storage"), Type: "application/pwa+zip"}

	t.Run("UploadReturnsDescriptor", func(t *testing.T) {
		srv := NewServer(t)
		up := newUploader(t)
		auth, err := authorize(ctx, blob)
		if err != nil {
			t.Fatalf("authorize failed: %v", err)
		}
		d, err := up.Upload(ctx, srv.URL, blob, auth)
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
		if d.SHA256 != blob.SHA256() {
			t.Fatalf("descriptor sha256: got %s want %s", d.SHA256, blob.SHA256())
		}
		if d.Size != int64(len(blob.Data)) {
			t.Fatalf("descriptor size: got %d want %d", d.Size, len(blob.Data))
		}
		gotID, err := d.CID()
		if err != nil {
			t.Fatalf("descriptor CID failed: %v", err)
		}
		wantID, err := blob.CID()
		if err != nil {
			t.Fatalf("blob CID failed: %v", err)
		}
		if gotID != wantID {
			t.Fatalf("CID mismatch: got %s want %s", gotID, wantID)
		}

		resp, err := http.Get(d.URL)
		if err != nil {
			t.Fatalf("GET %s failed: %v", d.URL, err)
		}
		defer resp.Body.Close()
		got, _ := io.ReadAll(resp.Body)
		if !bytes.Equal(got, blob.Data) {
			t.Fatalf("served bytes mismatch")
		}
	})

	t.Run("UploadIdempotent", func(t *testing.T) {
		srv := NewServer(t)
		up := newUploader(t)
		auth, err := authorize(ctx, blob)
		if err != nil {
			t.Fatalf("authorize failed: %v", err)
		}
		d1, err := up.Upload(ctx, srv.URL, blob, auth)
		if err != nil {
			t.Fatalf("Upload(1) failed: %v", err)
		}
		d2, err := up.Upload(ctx, srv.URL, blob, auth)
		if err != nil {
			t.Fatalf("Upload(2) failed: %v", err)
		}
		if d1.URL != d2.URL || d1.SHA256 != d2.SHA256 {
			t.Fatalf("Upload not idempotent: %+v vs %+v", d1, d2)
		}
	})

	t.Run("BadAuthorizationIsError", func(t *testing.T) {
		srv := NewServer(t)
		up := newUploader(t)
		if _, err := up.Upload(ctx, srv.URL, blob, "Nostr bm90LWpzb24="); err == nil {
			t.Fatalf("Upload with bad authorization should fail")
		}
	})

	t.Run("ServerFailureCarriesReason", func(t *testing.T) {
		srv := NewServer(t).Fail(http.StatusInsufficientStorage, "quota exceeded")
		up := newUploader(t)
		auth, err := authorize(ctx, blob)
		if err != nil {
			t.Fatalf("authorize failed: %v", err)
		}
		_, err = up.Upload(ctx, srv.URL, blob, auth)
		if err == nil {
			t.Fatalf("Upload should fail when the server does")
		}
		if !strings.Contains(err.Error(), "quota exceeded") {
			t.Fatalf("error %q does not carry X-Reason", err)
		}
	})
}
