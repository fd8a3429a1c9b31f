// Package main provides docarchive, the CLI wrapper around the archive
// store's backup, restore and rebuild-fulltext operations. The RPC
// transport and authentication handshake are not implemented here; this
// wrapper only demonstrates the global flags a host process would
// otherwise supply.
package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/docarchive/internal/alog"
	"github.com/calvinalkan/docarchive/pkg/archive"
)

type globalFlags struct {
	host     string
	port     int
	user     string
	password string
	data     string
	backends int
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVarP(&g.host, "address", "a", "localhost", "server host")
	fs.IntVarP(&g.port, "port", "n", 0, "server port")
	fs.StringVarP(&g.user, "user", "u", "", "login user")
	fs.StringVarP(&g.password, "password", "p", "", "login password")
	fs.StringVar(&g.data, "data", ".", "data directory")
	fs.IntVar(&g.backends, "backends", 1, "shard count")
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut *os.File) int {
	if len(args) == 0 {
		printUsage(errOut)

		return 2
	}

	switch args[0] {
	case "backup":
		return runBackup(args[1:], out, errOut)
	case "restore":
		return runRestore(args[1:], out, errOut)
	case "rebuild":
		return runRebuild(args[1:], out, errOut)
	case "-h", "--help":
		printUsage(out)

		return 0
	default:
		fmt.Fprintf(errOut, "unknown command %q\n", args[0])
		printUsage(errOut)

		return 2
	}
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "Usage: docarchive <backup|restore|rebuild> [flags]")
	fmt.Fprintln(w, "  backup  -t <dir>   write a consistent shard backup to <dir>")
	fmt.Fprintln(w, "  restore -s <dir>   restore shard files from <dir>")
	fmt.Fprintln(w, "  rebuild            rebuild the full-text index on every shard")
	fmt.Fprintln(w, "Global flags: -a host -n port -u user -p password --data dir --backends n")
}

func runBackup(args []string, out, errOut *os.File) int {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	g := &globalFlags{}
	g.register(fs)

	target := fs.StringP("target", "t", "", "backup target directory")
	if err := fs.Parse(args); err != nil {
		return exitOnParseError(err, errOut)
	}

	if *target == "" {
		fmt.Fprintln(errOut, "backup: -t <dir> is required")

		return 2
	}

	ctx := context.Background()

	store, err := archive.Open(ctx, archive.Config{DataLocation: g.data, Backends: g.backends})
	if err != nil {
		alog.Errorf("open store", err)

		return 1
	}
	defer store.Close()

	if err := store.Backup(ctx, *target); err != nil {
		alog.Errorf("backup failed", err)

		return 1
	}

	fmt.Fprintln(out, "backup complete:", *target)

	return 0
}

func runRestore(args []string, out, errOut *os.File) int {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	g := &globalFlags{}
	g.register(fs)

	source := fs.StringP("source", "s", "", "restore source directory")
	if err := fs.Parse(args); err != nil {
		return exitOnParseError(err, errOut)
	}

	if *source == "" {
		fmt.Fprintln(errOut, "restore: -s <dir> is required")

		return 2
	}

	cfg := archive.Config{DataLocation: g.data, Backends: g.backends}

	if err := archive.Restore(cfg, *source); err != nil {
		alog.Errorf("restore failed", err)

		return 1
	}

	fmt.Fprintln(out, "restore complete from:", *source)

	return 0
}

func runRebuild(args []string, out, errOut *os.File) int {
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	g := &globalFlags{}
	g.register(fs)

	if err := fs.Parse(args); err != nil {
		return exitOnParseError(err, errOut)
	}

	ctx := context.Background()

	store, err := archive.Open(ctx, archive.Config{DataLocation: g.data, Backends: g.backends})
	if err != nil {
		alog.Errorf("open store", err)

		return 1
	}
	defer store.Close()

	if err := store.RebuildFulltext(ctx); err != nil {
		alog.Errorf("rebuild failed", err)

		return 1
	}

	fmt.Fprintln(out, "full-text index rebuilt")

	return 0
}

func exitOnParseError(err error, errOut *os.File) int {
	fmt.Fprintln(errOut, err)

	return 2
}
