package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/events"
	"xdao.co/pwapub/keys"
	"xdao.co/pwapub/publish"
	"xdao.co/pwapub/signer"
	"xdao.co/pwapub/storage"
	"xdao.co/pwapub/storage/blossom"
)

func (a *app) cmdPublish(ctx context.Context, args []string) int {
	fs, common := newFlagSet("publish", a.errOut)
	nsec := fs.String("nsec", "", "Secret key used to sign (hex or nsec; - to prompt)")
	connect := fs.StringP("connect", "c", "", "Pairing string of a remote signer")
	connectNsec := fs.StringP("connect-nsec", "s", "", "Session key for the remote signer")
	connectKeyName := fs.String("connect-key-name", "", "Saved session key for the remote signer")
	connectRelay := fs.String("connect-relay", "", "Extra relay to reach the remote signer on")
	relays := fs.StringSliceP("relays", "r", nil, "Comma separated relays to publish to")
	servers := fs.StringSliceP("servers", "b", nil, "Comma separated storage servers")
	thumb := fs.String("thumb", "", "URL of a thumbnail image")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.errOut, "usage: pwapub publish <file.pwa> (--nsec <key> | --connect <pairing-string>) --relays <r1,r2,...>")
		return 2
	}
	if *connectNsec != "" && *connectKeyName != "" {
		fmt.Fprintln(a.errOut, "--connect-nsec and --connect-key-name are mutually exclusive")
		return 2
	}

	cfg, log, err := a.setup(common)
	if err != nil {
		return a.fail(err)
	}
	defer func() { _ = log.Sync() }()

	if !fs.Changed("relays") {
		*relays = cfg.Relays
	}
	if len(*relays) == 0 {
		return a.fail(errs.New(errs.KindInvalidInput, "must specify at least one relay with --relays"))
	}
	if !fs.Changed("servers") {
		*servers = cfg.Servers
	}

	in := signer.Inputs{
		Nsec:         *nsec,
		Connect:      *connect,
		ConnectNsec:  *connectNsec,
		ConnectRelay: *connectRelay,
	}
	if in.Nsec == "" && in.Connect == "" {
		in.Nsec = cfg.Nsec
	}
	if in.Nsec == "-" {
		in.Nsec, err = keys.ReadSecret(a.stdin, a.errOut, "Secret key: ")
		if err != nil {
			return a.fail(errs.Wrap(errs.KindMissingCredentials, "reading --nsec", err))
		}
	}
	if *connectKeyName != "" {
		ks, err := keys.CreateKeyStore(cfg.KeyDir)
		if err != nil {
			return a.fail(err)
		}
		c, err := ks.Load(*connectKeyName)
		if err != nil {
			return a.fail(errs.Wrap(errs.KindInvalidCredential, "loading --connect-key-name", err))
		}
		in.ConnectNsec = c.Hex()
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return a.fail(errs.Wrap(errs.KindInvalidInput, "reading archive", err))
	}
	blob := storage.Blob{Name: filepath.Base(path), Data: data, Type: events.MimePWA}

	pool := a.newPool(cfg, log)
	defer pool.Close()
	targets := pool.Add(*relays...)

	if in.Nsec != "" {
		log.Debug("using secret key to sign")
	} else if in.Connect != "" {
		log.Debug("using remote signer")
		fmt.Fprintln(a.out, "Connecting to remote signer...")
	}
	res, err := signer.Resolve(ctx, in, signer.Deps{
		Pool:      pool,
		Resolver:  a.resolver,
		Timeout:   cfg.HandshakeTimeout,
		Logger:    log,
		OnAuthURL: a.authNotice,
	})
	if err != nil {
		return a.fail(err)
	}
	defer res.Close()
	if res.Session != nil && in.ConnectNsec == "" {
		fmt.Fprintln(a.out, "Session key (reuse with --connect-nsec):", res.Session.LocalKey().Hex())
	}

	owner, err := signer.LookupOwner(ctx, res.Signer, pool, targets, log)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, "Signing as", owner.Label())

	p := &publish.Publisher{
		Pool:   pool,
		Signer: res.Signer,
		Coordinator: storage.Coordinator{
			Uploader:  &blossom.Client{HTTP: a.http, Logger: log},
			Authorize: blossom.Authorizer(res.Signer, 0),
			Logger:    log,
			Timeout:   cfg.UploadTimeout,
		},
		Logger: log,
	}
	fmt.Fprintln(a.out, "Uploading", blob.Name)
	result, err := p.Publish(ctx, blob, publish.Options{Relays: targets, Servers: *servers, Thumb: *thumb})
	if err != nil {
		return a.fail(err)
	}

	if common.verbose {
		dump(a.out, "Got response", result.Upload.Descriptor, log)
		dump(a.out, "Created event", result.Unsigned, log)
		dump(a.out, "Signed event", result.Event, log)
	}

	fmt.Fprintln(a.out, "Published", result.Event.ID, result.Reference)
	fmt.Fprintln(a.out, "To relays:")
	for _, r := range result.Accepted {
		fmt.Fprintln(a.out, "  "+r)
	}
	if w := result.Warning(); w != nil {
		fmt.Fprintln(a.out, "  (none)")
		fmt.Fprintf(a.errOut, "warning: %s: %v\n", errs.KindOf(w), w)
	}
	return 0
}

func dump(w io.Writer, label string, v any, log *zap.Logger) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Debug("cannot render", zap.String("what", label), zap.Error(err))
		return
	}
	fmt.Fprintf(w, "%s %s\n", label, b)
}
