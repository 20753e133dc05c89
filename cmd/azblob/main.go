package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/vcscsvcscs/azblobfile/internal/config"
	"github.com/vcscsvcscs/azblobfile/internal/logging"
	"github.com/vcscsvcscs/azblobfile/pkg/blobfile"
	"go.uber.org/zap"
)

const usage = `usage: azblob [flags] <command> [args]

commands:
  ls <container>                     list blob names
  cat <container> <blob>             print a blob (--append-blob reads an append blob directly)
  put <container> <blob> [file|-]    write a block blob through a staging file
  upload <container> <blob> <file>   upload a local file as a block blob
  append <container> <blob> [file|-] append to an append blob
  rm <container> <blob>              delete a blob
  mkcontainer <container>            create a container
  mkappend <container> <blob>        create an empty append blob

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "azblob: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := pflag.NewFlagSet("azblob", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	appendBlob := fs.Bool("append-blob", false, "cat reads an append blob without staging")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadWithFlags(fs)
	if err != nil {
		return err
	}

	logger, err := logging.New(config.LoggingConfig{Level: cfg.Logging.Level, Format: "console"})
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := append(cfg.SessionOptions(), blobfile.WithLogger(logger))
	s, err := blobfile.Connect(cfg.Account(), opts...)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	cmd := command{
		session:    s,
		logger:     logger,
		stdin:      stdin,
		stdout:     stdout,
		appendBlob: *appendBlob,
	}
	return cmd.execute(ctx, fs.Args())
}

var errUsage = errors.New("invalid arguments, run with --help for usage")

// command runs one CLI command against a session
type command struct {
	session    *blobfile.Session
	logger     *zap.Logger
	stdin      io.Reader
	stdout     io.Writer
	appendBlob bool
}

func (c *command) execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	name, args := args[0], args[1:]

	need := func(min, max int) error {
		if len(args) < min || len(args) > max {
			return fmt.Errorf("%s: %w", name, errUsage)
		}
		return nil
	}

	switch name {
	case "ls":
		if err := need(1, 1); err != nil {
			return err
		}
		return c.session.PrintList(ctx, c.stdout, args[0])

	case "cat":
		if err := need(2, 2); err != nil {
			return err
		}
		return c.cat(ctx, args[0], args[1])

	case "put":
		if err := need(2, 3); err != nil {
			return err
		}
		return c.put(ctx, args[0], args[1], source(args, 2))

	case "upload":
		if err := need(3, 3); err != nil {
			return err
		}
		return c.session.Upload(ctx, args[0], args[1], blobfile.Path(args[2]))

	case "append":
		if err := need(2, 3); err != nil {
			return err
		}
		return c.appendTo(ctx, args[0], args[1], source(args, 2))

	case "rm":
		if err := need(2, 2); err != nil {
			return err
		}
		return c.session.DeleteBlob(ctx, args[0], args[1])

	case "mkcontainer":
		if err := need(1, 1); err != nil {
			return err
		}
		return c.session.CreateContainer(ctx, args[0])

	case "mkappend":
		if err := need(2, 2); err != nil {
			return err
		}
		return c.session.CreateAppendBlob(ctx, args[0], args[1])
	}

	return fmt.Errorf("unknown command %q: %w", name, errUsage)
}

// source returns the optional file argument at i; "-" and a missing argument mean stdin
func source(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return "-"
}

func (c *command) cat(ctx context.Context, containerName, blobName string) error {
	if c.appendBlob {
		if _, err := c.session.Open(ctx, containerName, blobName, blobfile.ModeRemoteStream); err != nil {
			return err
		}
		defer c.session.Close(ctx)

		p, err := c.session.Read(ctx)
		if err != nil {
			return err
		}
		_, err = io.Copy(c.stdout, p.(blobfile.Stream))
		return err
	}

	f, err := c.session.Open(ctx, containerName, blobName, blobfile.ModeReadBinary)
	if err != nil {
		return err
	}
	defer c.session.Close(ctx)

	_, err = io.Copy(c.stdout, f)
	return err
}

func (c *command) put(ctx context.Context, containerName, blobName, src string) error {
	if _, err := c.session.Open(ctx, containerName, blobName, blobfile.ModeWriteBinary); err != nil {
		return err
	}

	p := blobfile.Payload(blobfile.Path(src))
	if src == "-" {
		p = blobfile.Stream{Reader: c.stdin}
	}

	if err := c.session.Write(ctx, p); err != nil {
		return errors.Join(err, c.session.Discard())
	}
	if err := c.session.Close(ctx); err != nil {
		if c.session.IsOpen() {
			err = errors.Join(err, c.session.Discard())
		}
		return err
	}

	c.logger.Debug("blob written", zap.String("container", containerName), zap.String("blob", blobName))
	return nil
}

// appendTo sends a file with blobap or stdin with blobas, straight to the append blob
func (c *command) appendTo(ctx context.Context, containerName, blobName, src string) error {
	mode, p := blobfile.ModeRemotePath, blobfile.Payload(blobfile.Path(src))
	if src == "-" {
		mode, p = blobfile.ModeRemoteStream, blobfile.Stream{Reader: c.stdin}
	}

	if _, err := c.session.Open(ctx, containerName, blobName, mode); err != nil {
		return err
	}
	defer c.session.Close(ctx)

	return c.session.Write(ctx, p)
}
