// relayd is the coordination daemon: it serves the delegation and
// interrupt APIs over HTTP and exposes Prometheus metrics.
//
// Usage:
//
//	relayd serve                     # start the daemon
//	relayd serve --config relay.yaml # with a config file
//	relayd version                   # print version info
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/lumakit/relay/config"
)

// Injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	_ = fs.Parse(args)

	cfg, err := config.NewLoader().
		WithConfigPath(*configPath).
		WithValidator(func(c *config.Config) error { return c.Validate() }).
		Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting relayd",
		zap.String("version", Version),
		zap.String("commit", GitCommit),
	)

	srv := NewServer(cfg, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	srv.WaitForShutdown()
}

func printVersion() {
	fmt.Printf("relayd %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
}

func printUsage() {
	fmt.Print(`relayd - agent coordination daemon

Commands:
  serve [--config path]   start the HTTP and metrics servers
  version                 print version information
  help                    show this message
`)
}
