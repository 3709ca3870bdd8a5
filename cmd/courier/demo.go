package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/mattjoyce/courier/internal/channel"
	"github.com/mattjoyce/courier/internal/dispatch"
	"github.com/mattjoyce/courier/internal/log"
	"github.com/mattjoyce/courier/internal/message"
	"github.com/mattjoyce/courier/internal/storage"
	"github.com/mattjoyce/courier/internal/worker"
)

// Demo message kinds. The parent pings, the child pongs; each direction has
// its own channel so neither side's drain or rendezvous eats the other's
// traffic.
type pingMsg struct {
	Seq int `json:"seq"`
}

func (pingMsg) Type() message.Type { return "ping" }

type pongMsg struct {
	Seq int `json:"seq"`
}

func (pongMsg) Type() message.Type { return "pong" }

const (
	demoChildChannel  = "demo-to-child"
	demoParentChannel = "demo-to-parent"
	demoRounds        = 3
)

func demoCodec() *message.Codec {
	c := message.NewCodec()
	c.MustRegister("ping", message.JSON[pingMsg]())
	c.MustRegister("pong", message.JSON[pongMsg]())
	return c
}

func runDemoNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Fprintln(os.Stderr, "Usage: courier demo pingpong [--db path]")
		if len(args) > 0 && isHelpToken(args[0]) {
			return 0
		}
		return 1
	}
	switch args[0] {
	case "pingpong":
		return runDemoPingPong(args[1:])
	case "child":
		// Spawned by pingpong; not a user-facing action.
		return runDemoChild(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown demo action: %s\n", args[0])
		return 1
	}
}

func runDemoPingPong(args []string) int {
	fs := flag.NewFlagSet("demo pingpong", flag.ExitOnError)
	dbPath := fs.String("db", "", "channel database path (default: temporary file)")
	_ = fs.Parse(args)

	log.Setup("INFO", "text")
	logger := log.WithComponent("demo")

	if *dbPath == "" {
		dir, err := os.MkdirTemp("", "courier-demo-")
		if err != nil {
			logger.Error("create temp dir", "error", err)
			return 1
		}
		defer func() { _ = os.RemoveAll(dir) }()
		*dbPath = filepath.Join(dir, "bus.db")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := storage.Open(ctx, *dbPath)
	if err != nil {
		logger.Error("open channel database", "error", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	toChild, err := channel.AttachSQLite(ctx, db, demoChildChannel)
	if err != nil {
		logger.Error("attach channel", "error", err)
		return 1
	}
	toParent, err := channel.AttachSQLite(ctx, db, demoParentChannel)
	if err != nil {
		logger.Error("attach channel", "error", err)
		return 1
	}

	// Spawn the child worker process against the same database.
	self, err := os.Executable()
	if err != nil {
		logger.Error("resolve executable", "error", err)
		return 1
	}
	child := exec.CommandContext(ctx, self, "demo", "child", "--db", *dbPath)
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	if err := child.Start(); err != nil {
		logger.Error("spawn child", "error", err)
		return 1
	}

	codec := demoCodec()
	sender := defaultSender()
	disp := dispatch.New(codec, dispatch.NewRegistry().Freeze())

	for seq := 1; seq <= demoRounds; seq++ {
		frame, err := codec.Encode(pingMsg{Seq: seq}, sender)
		if err != nil {
			logger.Error("encode ping", "error", err)
			return 1
		}
		if err := toChild.Send(ctx, frame); err != nil {
			logger.Error("send ping", "error", err)
			return 1
		}
		logger.Info("sent ping", "seq", seq)

		// Rendezvous: block until the matching reply type arrives.
		reply, err := disp.WaitFor(ctx, toParent, "pong", 10*time.Second)
		if err != nil {
			logger.Error("wait for pong", "error", err)
			return 1
		}
		logger.Info("got pong", "seq", reply.(pongMsg).Seq)
	}

	// Closing the child's channel shuts its worker loop down cleanly.
	if err := toChild.Close(); err != nil {
		logger.Error("close channel", "error", err)
		return 1
	}
	if err := child.Wait(); err != nil {
		logger.Error("child exited with error", "error", err)
		return 1
	}

	logger.Info("demo complete", "rounds", demoRounds)
	return 0
}

func runDemoChild(args []string) int {
	fs := flag.NewFlagSet("demo child", flag.ExitOnError)
	dbPath := fs.String("db", "", "channel database path")
	_ = fs.Parse(args)

	log.Setup("INFO", "text")
	logger := log.WithWorker("demo-child")

	if *dbPath == "" {
		logger.Error("--db is required")
		return 1
	}

	ctx := context.Background()
	db, err := storage.Open(ctx, *dbPath)
	if err != nil {
		logger.Error("open channel database", "error", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	toChild, err := channel.AttachSQLite(ctx, db, demoChildChannel)
	if err != nil {
		logger.Error("attach channel", "error", err)
		return 1
	}
	toParent, err := channel.AttachSQLite(ctx, db, demoParentChannel)
	if err != nil {
		logger.Error("attach channel", "error", err)
		return 1
	}

	codec := demoCodec()
	sender := defaultSender()

	reg := dispatch.NewRegistry().
		On("ping", func(ctx context.Context, msg message.Message) error {
			seq := msg.(pingMsg).Seq
			logger.Info("handling ping", "seq", seq)
			frame, err := codec.Encode(pongMsg{Seq: seq}, sender)
			if err != nil {
				return err
			}
			return toParent.Send(ctx, frame)
		}).
		Freeze()

	w := worker.New("demo-child", toChild, dispatch.New(codec, reg),
		worker.WithTickInterval(25*time.Millisecond))

	// Run returns nil when the parent closes the channel.
	if err := w.Run(ctx); err != nil {
		logger.Error("worker failed", "error", err)
		return 1
	}
	return 0
}
