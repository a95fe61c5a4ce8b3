package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tradewise-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  strategies   List strategy families and presets\n")
		fmt.Fprintf(os.Stderr, "  backtest     Run a backtest locally or on a server\n")
		fmt.Fprintf(os.Stderr, "  runs         List stored backtest runs\n")
		fmt.Fprintf(os.Stderr, "  show         Show one stored run\n")
		fmt.Fprintf(os.Stderr, "\nRun 'tradewise-cli <command> -h' for command options.\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "version":
		fmt.Printf("tradewise-cli %s\n", version)
	case "strategies":
		err = runStrategies(ctx, args)
	case "backtest":
		err = runBacktest(ctx, args)
	case "runs":
		err = runList(ctx, args)
	case "show":
		err = runShow(ctx, args)
	case "-h", "-help", "--help", "help":
		flag.Usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
