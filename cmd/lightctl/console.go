package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/nerrad567/lightbridge/internal/wire"
)

const (
	maxDatagram  = 65507
	readDeadline = 500 * time.Millisecond
)

// Console control results of translate.
var (
	errQuit = errors.New("quit")
	errHelp = errors.New("help")
)

// console sends typed lines to one bridge and prints whatever comes back.
type console struct {
	conn *net.UDPConn
	rl   *readline.Instance
	out  io.Writer
}

func newConsole(addr string) (*console, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lightbridge> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("ls"),
			readline.PcItem("reload"),
			readline.PcItem("unloop"),
			readline.PcItem("holler"),
			readline.PcItem("tell:"),
			readline.PcItem("wonder:"),
			readline.PcItem("wish:"),
			readline.PcItem("enloop:"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &console{conn: conn, rl: rl, out: rl.Stdout()}, nil
}

// Run reads lines until EOF, "quit" or ctx is cancelled.
func (c *console) Run(ctx context.Context, cancel context.CancelFunc) error {
	defer c.conn.Close()
	defer c.rl.Close()

	fmt.Fprintf(c.out, "Connected to %s. Type \"help\" for shortcuts.\n", c.conn.RemoteAddr())

	go c.receive(ctx)
	go func() {
		<-ctx.Done()
		c.rl.Close()
	}()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			cancel()
			return nil
		}

		datagram, err := translate(line)
		switch {
		case errors.Is(err, errQuit):
			cancel()
			return nil
		case errors.Is(err, errHelp):
			printHelp(c.out)
			continue
		case err != nil:
			fmt.Fprintf(c.out, "! %v\n", err)
			continue
		case datagram == nil:
			continue
		}

		if _, err := c.conn.Write(datagram); err != nil {
			fmt.Fprintf(c.out, "! send failed: %v\n", err)
		}
	}
}

// receive prints every datagram from the bridge until ctx is done.
func (c *console) receive(ctx context.Context) {
	buf := make([]byte, maxDatagram)
	for ctx.Err() == nil {
		_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, err := c.conn.Read(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() == nil {
				fmt.Fprintf(c.out, "! receive failed: %v\n", err)
			}
			return
		}
		fmt.Fprintf(c.out, "< %s\n", buf[:n])
	}
}

// translate turns one console line into a datagram. Shortcuts expand to
// their bridge commands; anything else must parse as a datagram.
func translate(line string) ([]byte, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "quit", "exit", "q":
		return nil, errQuit
	case "help", "?":
		return nil, errHelp
	case "ls", "list":
		return wire.Format(wire.VerbBridge, "list"), nil
	case "reload":
		return wire.Format(wire.VerbBridge, "reload"), nil
	case "unloop":
		if len(fields) > 1 {
			return wire.Format(wire.VerbBridge, "unloop", fields[1]), nil
		}
		return wire.Format(wire.VerbBridge, "unloop"), nil
	case "holler":
		if len(fields) == 1 {
			return wire.Format(wire.VerbHoller, "", "", ""), nil
		}
	case wire.Hello:
		return []byte(wire.Hello), nil
	}

	if _, err := wire.Parse([]byte(line)); err != nil {
		return nil, err
	}
	return []byte(line), nil
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `Shortcuts:
  ls                 bridge:list
  reload             bridge:reload
  unloop [pattern]   bridge:unloop[:pattern]
  holler             holler:::
  hello              legacy handshake
  help               this text
  quit               leave

Anything else is sent verbatim, for example:
  wonder:bulb-1:power
  wish:*bulb-.*:power=true:brightness=500
  enloop:bulb-2
`)
}
