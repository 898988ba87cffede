package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/y-scope/logroller/internal/config"
	"github.com/y-scope/logroller/internal/s3client"
)

// Set with -ldflags "-X main.version=..." at release.
var version = "dev"

type (
	cmd struct {
		Version struct{}  `cmd:"" help:"Show version."`
		Env     struct{}  `cmd:"" help:"Show environment variables understood by logroller."`
		Check   cmdCheck  `cmd:"" help:"Validate the configuration and check that the bucket is reachable."`
		Upload  cmdUpload `cmd:"" help:"Upload files with the same keying as rolled files, then exit."`
		Run     cmdRun    `cmd:"" help:"Write stdin to a rolling log file and upload every rolled file."`
	}
	cmdCheck struct {
		Config string `help:"Path to YAML configuration file. Without it only the environment is read." short:"c" type:"path"`
	}
	cmdUpload struct {
		Config string   `help:"Path to YAML configuration file. Without it only the environment is read." short:"c" type:"path"`
		Paths  []string `arg:"" name:"path" help:"Files to upload." type:"path"`
	}
	cmdRun struct {
		Config string `help:"Path to YAML configuration file. Without it only the environment is read." short:"c" type:"path"`
		Tee    bool   `help:"Also copy stdin to stdout."`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := doMain(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logroller: %v\n", err)
		os.Exit(1)
	}
}

// doMain parses args and runs the selected command. Client options are passed to every storage
// client the command builds.
func doMain(
	ctx context.Context,
	stdin io.Reader,
	stdout, stderr io.Writer,
	args []string,
	clientOpts ...s3client.Option,
) error {
	var c cmd
	parser, err := kong.New(&c,
		kong.Name("logroller"),
		kong.Description("Rolling log files shipped to S3."),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return fmt.Errorf("error creating parser: %w", err)
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	switch kctx.Command() {
	case "version":
		_, err = fmt.Fprintf(stdout, "logroller: %s\n", version)
		return err
	case "env":
		description, err := config.Describe()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, description)
		return err
	case "check":
		return check(ctx, c.Check, stdout, stderr, clientOpts)
	case "upload <path>":
		return uploadFiles(ctx, c.Upload, stderr, clientOpts)
	case "run":
		return run(ctx, c.Run, stdin, stdout, stderr, clientOpts)
	default:
		panic("unreachable")
	}
}
