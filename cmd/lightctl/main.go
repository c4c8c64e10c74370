// Lightctl is an interactive datagram console for a lightbridge.
//
// Usage:
//
//	lightctl -addr 127.0.0.1:8090
//	lightctl -discover
//
// Lines are sent as datagrams; replies and fan-out are printed as they
// arrive. Type "help" for shortcuts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/lightbridge/internal/discovery"
)

const discoverTimeout = 3 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, args []string) error {
	fs := flag.NewFlagSet("lightctl", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:8090", "bridge datagram address")
	discover := fs.Bool("discover", false, "locate the bridge via mDNS instead of -addr")
	iface := fs.String("iface", "", "network interface for -discover")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target := *addr
	if *discover {
		found, err := discoverBridge(ctx, *iface)
		if err != nil {
			return err
		}
		fmt.Printf("Found %s (%s) at %s\n", found.Instance, found.ID, found.Address())
		target = found.Address()
	}

	c, err := newConsole(target)
	if err != nil {
		return err
	}
	return c.Run(ctx, cancel)
}

// discoverBridge returns the first bridge answering within discoverTimeout.
func discoverBridge(ctx context.Context, iface string) (discovery.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	found, err := discovery.Browse(ctx, iface)
	if err != nil {
		return discovery.Info{}, fmt.Errorf("browsing: %w", err)
	}
	for info := range found {
		if info.Address() != "" {
			return info, nil
		}
	}
	return discovery.Info{}, errors.New("no bridge found")
}
