package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xdao.co/pwapub/errs"
)

// Attempt is the outcome of uploading to one server.
type Attempt struct {
	Server     string
	Descriptor Descriptor
	Err        error
}

// Result is the kept descriptor plus every attempt, in server order.
type Result struct {
	Server     string
	Descriptor Descriptor
	Attempts   []Attempt
}

// Coordinator uploads one blob to several servers.
//
// Uploads run concurrently. The kept descriptor is from the lowest-index
// server that succeeded; later successes are discarded.
type Coordinator struct {
	Uploader  Uploader
	Authorize Authorizer
	Logger    *zap.Logger
	// Timeout bounds each server attempt. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// Upload fails with UploadFailed when no server succeeds. Per-server
// failures are logged with the server and do not stop the others.
func (c Coordinator) Upload(ctx context.Context, blob Blob, servers []string) (Result, error) {
	if len(servers) == 0 {
		return Result{}, errs.Wrap(errs.KindNoServersConfigured, "no storage servers", ErrNoServers)
	}
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}

	auth, err := c.Authorize(ctx, blob)
	if err != nil {
		if errs.KindOf(err) != "" {
			return Result{}, err
		}
		return Result{}, errs.Wrap(errs.KindUploadFailed, "could not authorize upload", err)
	}
	want := blob.SHA256()

	attempts := make([]Attempt, len(servers))
	var g errgroup.Group
	for i, server := range servers {
		g.Go(func() error {
			actx := ctx
			if c.Timeout > 0 {
				var cancel context.CancelFunc
				actx, cancel = context.WithTimeout(ctx, c.Timeout)
				defer cancel()
			}
			d, err := c.Uploader.Upload(actx, server, blob, auth)
			if err == nil && !strings.EqualFold(d.SHA256, want) {
				err = fmt.Errorf("%w: got %q want %q", ErrHashMismatch, d.SHA256, want)
			}
			attempts[i] = Attempt{Server: server, Descriptor: d, Err: err}
			if err != nil {
				log.Warn("upload failed", zap.String("server", server), zap.Error(err))
				return nil
			}
			log.Debug("upload succeeded", zap.String("server", server), zap.String("url", d.URL))
			return nil
		})
	}
	_ = g.Wait()

	for _, a := range attempts {
		if a.Err == nil {
			return Result{Server: a.Server, Descriptor: a.Descriptor, Attempts: attempts}, nil
		}
	}
	return Result{Attempts: attempts}, errs.Newf(errs.KindUploadFailed, "upload failed on all %d servers", len(servers))
}
