package main

import (
	"fmt"

	"go.uber.org/zap"

	"xdao.co/pwapub/archive"
	"xdao.co/pwapub/errs"
)

func (a *app) cmdPackage(args []string) int {
	fs, common := newFlagSet("package", a.errOut)
	name := fs.StringP("app-name", "n", "", "The name of the app")
	version := fs.StringP("app-version", "v", "", "The version of the app")
	manifest := fs.StringP("package", "p", "", "Read the name and version from a package.json")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(a.errOut, "usage: pwapub package [dir] (--app-name <n> --app-version <v> | --package <package.json>)")
		return 2
	}
	dir := archive.DefaultDir
	if fs.NArg() == 1 {
		dir = fs.Arg(0)
	}

	_, log, err := a.setup(common)
	if err != nil {
		return a.fail(err)
	}
	defer func() { _ = log.Sync() }()

	var m archive.Manifest
	switch {
	case *manifest != "":
		log.Debug("reading manifest", zap.String("path", *manifest))
		m, err = archive.ReadManifest(*manifest)
		if err != nil {
			return a.fail(err)
		}
	case *name != "" && *version != "":
		m = archive.Manifest{Name: *name, Version: *version}
	default:
		return a.fail(errs.New(errs.KindInvalidInput, "missing --app-name and --app-version, or --package"))
	}

	output := archive.OutputName(m.Name, m.Version)
	log.Debug("packaging", zap.String("dir", dir), zap.String("output", output))
	if _, err := archive.Create(dir, output, log); err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, "Created", output)
	return 0
}
