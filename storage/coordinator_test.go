package storage_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/storage"
)

var blob = storage.Blob{Name: "app_1-0.pwa", Data: []byte("archive bytes"), Type: "application/pwa+zip"}

// fakeUploader fails for servers in fail and succeeds elsewhere.
func fakeUploader(fail map[string]bool) storage.UploaderFunc {
	return func(_ context.Context, server string, b storage.Blob, auth string) (storage.Descriptor, error) {
		if auth != "token" {
			return storage.Descriptor{}, errors.New("unauthorized")
		}
		if fail[server] {
			return storage.Descriptor{}, errors.New("boom")
		}
		return storage.Descriptor{URL: server + "/" + b.SHA256(), SHA256: b.SHA256(), Size: int64(len(b.Data))}, nil
	}
}

func staticAuth(calls *int32) storage.Authorizer {
	return func(context.Context, storage.Blob) (string, error) {
		atomic.AddInt32(calls, 1)
		return "token", nil
	}
}

func TestCoordinator_FirstSuccessInListOrder(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var calls int32
	c := storage.Coordinator{
		Uploader:  fakeUploader(map[string]bool{"https://s1": true, "https://s3": true}),
		Authorize: staticAuth(&calls),
		Logger:    zap.New(core),
	}

	res, err := c.Upload(context.Background(), blob, []string{"https://s1", "https://s2", "https://s3"})
	require.NoError(t, err)
	assert.Equal(t, "https://s2", res.Server)
	assert.Equal(t, "https://s2/"+blob.SHA256(), res.Descriptor.URL)
	assert.EqualValues(t, 1, calls)

	var failed []string
	for _, e := range logs.FilterMessage("upload failed").All() {
		failed = append(failed, e.ContextMap()["server"].(string))
	}
	assert.ElementsMatch(t, []string{"https://s1", "https://s3"}, failed)
}

func TestCoordinator_LowestIndexWinsAmongSuccesses(t *testing.T) {
	var calls int32
	c := storage.Coordinator{Uploader: fakeUploader(nil), Authorize: staticAuth(&calls)}
	res, err := c.Upload(context.Background(), blob, []string{"https://a", "https://b", "https://c"})
	require.NoError(t, err)
	assert.Equal(t, "https://a", res.Server)
	assert.Len(t, res.Attempts, 3)
}

func TestCoordinator_AllFail(t *testing.T) {
	var calls int32
	c := storage.Coordinator{
		Uploader:  fakeUploader(map[string]bool{"https://s1": true, "https://s2": true}),
		Authorize: staticAuth(&calls),
	}
	res, err := c.Upload(context.Background(), blob, []string{"https://s1", "https://s2"})
	require.Error(t, err)
	assert.Equal(t, errs.KindUploadFailed, errs.KindOf(err))
	assert.Len(t, res.Attempts, 2)
}

func TestCoordinator_HashMismatchFailsServer(t *testing.T) {
	var calls int32
	liar := storage.UploaderFunc(func(_ context.Context, server string, b storage.Blob, _ string) (storage.Descriptor, error) {
		return storage.Descriptor{URL: server + "/x", SHA256: "00"}, nil
	})
	c := storage.Coordinator{Uploader: liar, Authorize: staticAuth(&calls)}
	res, err := c.Upload(context.Background(), blob, []string{"https://s1"})
	assert.Equal(t, errs.KindUploadFailed, errs.KindOf(err))
	require.Len(t, res.Attempts, 1)
	assert.ErrorIs(t, res.Attempts[0].Err, storage.ErrHashMismatch)
}

func TestCoordinator_NoServers(t *testing.T) {
	var calls int32
	c := storage.Coordinator{Uploader: fakeUploader(nil), Authorize: staticAuth(&calls)}
	_, err := c.Upload(context.Background(), blob, nil)
	assert.Equal(t, errs.KindNoServersConfigured, errs.KindOf(err))
	assert.Zero(t, calls)
}

func TestCoordinator_AuthorizeFailureKeepsKind(t *testing.T) {
	c := storage.Coordinator{
		Uploader: fakeUploader(nil),
		Authorize: func(context.Context, storage.Blob) (string, error) {
			return "", errs.New(errs.KindHandshakeTimeout, "signer gone")
		},
	}
	_, err := c.Upload(context.Background(), blob, []string{"https://s1"})
	assert.Equal(t, errs.KindHandshakeTimeout, errs.KindOf(err))
}
