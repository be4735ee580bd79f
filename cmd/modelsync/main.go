package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/config"
	"xdao.co/modelsync/criteria"
	"xdao.co/modelsync/daemon"
	"xdao.co/modelsync/keys"
	"xdao.co/modelsync/publish"
	"xdao.co/modelsync/storage/bundle"
	"xdao.co/modelsync/storage/registry"
	"xdao.co/modelsync/tracker"

	_ "xdao.co/modelsync/storage/dirstore"
	_ "xdao.co/modelsync/storage/grpcstore"
	_ "xdao.co/modelsync/storage/ipfsstore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "hash":
		return cmdHash(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "publish":
		return cmdPublish(args[1:], out, errOut)
	case "sync-once":
		return cmdSyncOnce(args[1:], out, errOut)
	case "evict":
		return cmdEvict(args[1:], out, errOut)
	case "show-state":
		return cmdShowState(args[1:], out, errOut)
	case "criteria":
		return cmdCriteria(args[1:], out, errOut)
	case "bundle":
		return cmdBundle(args[1:], out, errOut)
	case "backends":
		for _, b := range registry.List(registry.UsageClient) {
			fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "modelsync: publisher artifact sync tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  modelsync hash <file>")
	fmt.Fprintln(w, "  modelsync key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  modelsync key derive --from <name> --label <label> [--force]")
	fmt.Fprintln(w, "  modelsync key list")
	fmt.Fprintln(w, "  modelsync key show --name <name> [--label <label>]")
	fmt.Fprintln(w, "  modelsync publish --config <yaml> --key <name> [--label <label>] --namespace <ns> --name <name> --height <n> <file>")
	fmt.Fprintln(w, "  modelsync sync-once --config <yaml>")
	fmt.Fprintln(w, "  modelsync evict --config <yaml>")
	fmt.Fprintln(w, "  modelsync show-state --state <path>")
	fmt.Fprintln(w, "  modelsync criteria [--config <yaml>] --height <n>")
	fmt.Fprintln(w, "  modelsync bundle export --config <yaml> --out <file.tar> [publisher...]")
	fmt.Fprintln(w, "  modelsync bundle import --config <yaml> <file.tar>")
	fmt.Fprintln(w, "  modelsync backends")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - keys live under ~/.modelsync/keys/<name> unless --keys-dir is given")
	fmt.Fprintln(w, "  - publisher ids are the ed25519:<base64> public key of the signing key")
	fmt.Fprintln(w, "  - MODELSYNC_* environment variables override the config file")
}

func cmdHash(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: modelsync hash <file>")
		return 2
	}
	b, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read file: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, artifact.NewIdentity("", "", b).ContentHash)
	return 0
}

func loadConfig(path string, errOut io.Writer) (*config.Config, *zap.Logger, bool) {
	cfg, err := config.NewLoader().WithConfigPath(path).Load()
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return nil, nil, false
	}
	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		fmt.Fprintf(errOut, "logger: %v\n", err)
		return nil, nil, false
	}
	return cfg, logger, true
}

func cmdPublish(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var configPath, keysDir, keyName, label, namespace, name string
	var height uint64
	fs.StringVar(&configPath, "config", "", "Config file (YAML)")
	fs.StringVar(&keysDir, "keys-dir", "", "Key store directory (default ~/.modelsync/keys)")
	fs.StringVar(&keyName, "key", "", "Publisher key name")
	fs.StringVar(&label, "label", "", "Optional derived key label")
	fs.StringVar(&namespace, "namespace", "", "Artifact namespace")
	fs.StringVar(&name, "name", "", "Artifact name")
	fs.Uint64Var(&height, "height", 0, "Publish height")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || keyName == "" || namespace == "" || name == "" {
		fmt.Fprintln(errOut, "usage: modelsync publish --config <yaml> --key <name> --namespace <ns> --name <name> --height <n> <file>")
		return 2
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read file: %v\n", err)
		return 1
	}
	ks, err := keys.OpenKeyStore(keysDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	seed, err := ks.Load(keyName, label)
	if err != nil {
		fmt.Fprintf(errOut, "load key: %v\n", err)
		return 1
	}
	signer, err := keys.NewEd25519Signer(seed)
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 1
	}

	cfg, logger, ok := loadConfig(configPath, errOut)
	if !ok {
		return 2
	}
	defer func() { _ = logger.Sync() }()
	table, err := cfg.CriteriaTable()
	if err != nil {
		fmt.Fprintf(errOut, "criteria: %v\n", err)
		return 2
	}

	ctx := context.Background()
	remote, closeRemote, err := cfg.Remote.Open(registry.UsageClient)
	if err != nil {
		fmt.Fprintf(errOut, "open remote: %v\n", err)
		return 1
	}
	defer closeRemote()
	ledger, closeLedger, err := daemon.OpenLedger(ctx, cfg.Oracle)
	if err != nil {
		fmt.Fprintf(errOut, "open oracle: %v\n", err)
		return 1
	}
	defer closeLedger()

	p := &publish.Publisher{Remote: remote, Ledger: ledger, Signer: signer, Criteria: table, Logger: logger}
	rec, err := p.Publish(ctx, namespace, name, data, height)
	if err != nil {
		fmt.Fprintf(errOut, "publish: %v\n", err)
		return 1
	}
	return writeJSON(out, errOut, map[string]any{
		"publisher": signer.PublisherKey(),
		"record":    rec,
	})
}

func cmdSyncOnce(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("sync-once", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "Config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, ok := loadConfig(*configPath, errOut)
	if !ok {
		return 2
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	d, closeFn, err := daemon.New(ctx, cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(errOut, "daemon: %v\n", err)
		return 1
	}
	defer closeFn()
	if err := d.Restore(); err != nil {
		fmt.Fprintf(errOut, "restore: %v\n", err)
		return 1
	}

	results, err := d.SyncOnce(ctx)
	pubs := make([]string, 0, len(results))
	for p := range results {
		pubs = append(pubs, p)
	}
	sort.Strings(pubs)
	for _, p := range pubs {
		fmt.Fprintf(out, "%s\t%s\n", p, results[p])
	}
	if err != nil {
		fmt.Fprintf(errOut, "sync: %v\n", err)
		return 1
	}
	return 0
}

func cmdEvict(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("evict", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "Config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, ok := loadConfig(*configPath, errOut)
	if !ok {
		return 2
	}
	defer func() { _ = logger.Sync() }()

	d, closeFn, err := daemon.New(context.Background(), cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(errOut, "daemon: %v\n", err)
		return 1
	}
	defer closeFn()
	// Without the persisted retention set every entry would look stale.
	if err := d.Restore(); err != nil {
		fmt.Fprintf(errOut, "restore: %v\n", err)
		return 1
	}
	st, err := d.EvictOnce()
	if err != nil {
		fmt.Fprintf(errOut, "evict: %v\n", err)
		return 1
	}
	return writeJSON(out, errOut, st)
}

func cmdShowState(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("show-state", flag.ContinueOnError)
	fs.SetOutput(errOut)
	path := fs.String("state", "", "Tracker state file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *path == "" {
		fmt.Fprintln(errOut, "missing --state")
		return 2
	}
	tr := tracker.New(nil)
	if err := tr.Restore(*path); err != nil {
		fmt.Fprintf(errOut, "restore: %v\n", err)
		return 1
	}
	return writeJSON(out, errOut, tr.Snapshot())
}

func cmdCriteria(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("criteria", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "Optional config file (YAML)")
	heightStr := fs.String("height", "", "Publish height")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	height, err := strconv.ParseUint(*heightStr, 10, 64)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --height: %v\n", err)
		return 2
	}

	table := criteria.Default()
	if *configPath != "" {
		cfg, _, ok := loadConfig(*configPath, errOut)
		if !ok {
			return 2
		}
		if table, err = cfg.CriteriaTable(); err != nil {
			fmt.Fprintf(errOut, "criteria: %v\n", err)
			return 2
		}
	}
	c, ok := table.For(height)
	if !ok {
		fmt.Fprintf(errOut, "no criteria in effect at height %d\n", height)
		return 1
	}
	return writeJSON(out, errOut, c)
}

func cmdBundle(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: modelsync bundle export|import ...")
		return 2
	}
	switch args[0] {
	case "export":
		return cmdBundleExport(args[1:], out, errOut)
	case "import":
		return cmdBundleImport(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown bundle subcommand: %s\n", args[0])
		return 2
	}
}

// cmdBundleExport writes the oracle's current artifact for each publisher
// (every listed publisher when none are named) into one bundle.
func cmdBundleExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "Config file (YAML)")
	outPath := fs.String("out", "", "Bundle output path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *outPath == "" {
		fmt.Fprintln(errOut, "missing --out")
		return 2
	}

	cfg, logger, ok := loadConfig(*configPath, errOut)
	if !ok {
		return 2
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	remote, closeRemote, err := cfg.Remote.Open(registry.UsageClient)
	if err != nil {
		fmt.Fprintf(errOut, "open remote: %v\n", err)
		return 1
	}
	defer closeRemote()
	ledger, closeLedger, err := daemon.OpenLedger(ctx, cfg.Oracle)
	if err != nil {
		fmt.Fprintf(errOut, "open oracle: %v\n", err)
		return 1
	}
	defer closeLedger()

	pubs := fs.Args()
	if len(pubs) == 0 {
		if pubs, err = ledger.Publishers(ctx); err != nil {
			fmt.Fprintf(errOut, "list publishers: %v\n", err)
			return 1
		}
	}
	var ids []artifact.Identity
	for _, p := range pubs {
		rec, found, err := ledger.Record(ctx, p)
		if err != nil {
			fmt.Fprintf(errOut, "record %s: %v\n", p, err)
			return 1
		}
		if !found {
			fmt.Fprintf(errOut, "skipping %s: no record\n", p)
			continue
		}
		ids = append(ids, rec.Identity)
	}

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(errOut, "create bundle: %v\n", err)
		return 1
	}
	if err := bundle.Export(ctx, f, remote, ids, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		_ = f.Close()
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(errOut, "close bundle: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "exported %d artifacts to %s\n", len(ids), *outPath)
	return 0
}

func cmdBundleImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "Config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: modelsync bundle import --config <yaml> <file.tar>")
		return 2
	}

	cfg, logger, ok := loadConfig(*configPath, errOut)
	if !ok {
		return 2
	}
	defer func() { _ = logger.Sync() }()

	remote, closeRemote, err := cfg.Remote.Open(registry.UsageClient)
	if err != nil {
		fmt.Fprintf(errOut, "open remote: %v\n", err)
		return 1
	}
	defer closeRemote()

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open bundle: %v\n", err)
		return 1
	}
	defer f.Close()

	ids, err := bundle.Import(context.Background(), f, remote)
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	return 0
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "show":
		return cmdKeyShow(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "modelsync key: local publisher key management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  modelsync key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  modelsync key derive --from <name> --label <label> [--force]")
	fmt.Fprintln(w, "  modelsync key list")
	fmt.Fprintln(w, "  modelsync key show --name <name> [--label <label>]")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name, seedHex, keysDir string
	var force bool
	fs.StringVar(&name, "name", "", "Key name (directory under the key store)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible setups)")
	fs.StringVar(&keysDir, "keys-dir", "", "Key store directory")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := keys.CheckName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	ks, err := keys.OpenKeyStore(keysDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}

	var seed []byte
	if seedHex != "" {
		if seed, err = keys.ParseSeedHex(seedHex); err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	publisher, path, err := ks.Init(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created publisher key: %s\n", publisher)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var from, label, keysDir string
	var force bool
	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&label, "label", "", "Derived key label")
	fs.StringVar(&keysDir, "keys-dir", "", "Key store directory")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" || label == "" {
		fmt.Fprintln(errOut, "missing --from or --label")
		return 2
	}
	ks, err := keys.OpenKeyStore(keysDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	publisher, path, err := ks.Derive(from, label, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created derived key: %s\n", publisher)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	keysDir := fs.String("keys-dir", "", "Key store directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := keys.OpenKeyStore(*keysDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	names, err := ks.Names()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, n := range names {
		fmt.Fprintln(out, n)
	}
	return 0
}

func cmdKeyShow(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key show", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var name, label, keysDir string
	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&label, "label", "", "Optional derived key label")
	fs.StringVar(&keysDir, "keys-dir", "", "Key store directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := keys.OpenKeyStore(keysDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	seed, err := ks.Load(name, label)
	if err != nil {
		fmt.Fprintf(errOut, "load key: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, keys.PublisherKeyFromSeed(seed))
	return 0
}

func writeJSON(out io.Writer, errOut io.Writer, v any) int {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(errOut, "encode: %v\n", err)
		return 1
	}
	return 0
}
