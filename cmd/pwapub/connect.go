package main

import (
	"context"
	"fmt"

	"xdao.co/pwapub/keys"
	"xdao.co/pwapub/pairing"
)

const keyFrame = "================================================================"

func (a *app) cmdConnect(ctx context.Context, args []string) int {
	fs, common := newFlagSet("connect", a.errOut)
	extraRelay := fs.StringP("relay", "r", "", "Extra relay to reach the remote signer on")
	save := fs.String("save", "", "Save the session key under this name")
	force := fs.Bool("force", false, "Overwrite a saved key with the same name")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.errOut, "usage: pwapub connect <pairing-string> [--relay <url>] [--save <name>]")
		return 2
	}
	if *save != "" {
		if err := keys.CheckKeyName(*save); err != nil {
			fmt.Fprintf(a.errOut, "invalid --save: %v\n", err)
			return 2
		}
	}

	cfg, log, err := a.setup(common)
	if err != nil {
		return a.fail(err)
	}
	defer func() { _ = log.Sync() }()

	pool := a.newPool(cfg, log)
	defer pool.Close()
	pool.Add(cfg.ConnectRelays...)

	fmt.Fprintln(a.out, "Connecting to remote signer...")
	s, err := pairing.Open(ctx, fs.Arg(0), pairing.Options{
		Pool:       pool,
		Resolver:   a.resolver,
		ExtraRelay: *extraRelay,
		Timeout:    cfg.HandshakeTimeout,
		Logger:     log,
		OnAuthURL:  a.authNotice,
	})
	if err != nil {
		return a.fail(err)
	}
	defer s.Close()

	fmt.Fprintln(a.out, "Successfully connected to remote signer")
	fmt.Fprintln(a.out, "Save the signer key for use later in the publish command:")
	fmt.Fprintln(a.out, keyFrame)
	fmt.Fprintln(a.out, s.LocalKey().Hex())
	fmt.Fprintln(a.out, keyFrame)

	if *save != "" {
		ks, err := keys.CreateKeyStore(cfg.KeyDir)
		if err != nil {
			return a.fail(err)
		}
		path, err := ks.Save(*save, s.LocalKey(), *force)
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintf(a.out, "Saved as %s (%s)\n", *save, path)
	}
	return 0
}
