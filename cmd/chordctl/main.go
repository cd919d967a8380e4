// Command chordctl is an interactive client for inspecting a running
// Chord node over the wire protocol: info/successor/predecessor/
// fingers/ping/find against one node at a time, with "use <addr>" to
// hop the session to another node.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"chordring/internal/chordctl"
	"chordring/internal/chordid"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:2017", "address of the Chord node to connect to")
	bits := flag.Int("bits", 128, "identifier bitcount of the ring (must match the node's configured idBits)")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	maxPending := flag.Int("max-pending", 64, "outstanding-request bound on the client connection")
	flag.Parse()

	space, err := chordid.NewSpace(*bits)
	if err != nil {
		fmt.Printf("invalid -bits: %v\n", err)
		return
	}

	ctx := context.Background()
	c, err := chordctl.Connect(ctx, *addr, *maxPending)
	if err != nil {
		fmt.Printf("failed to connect to %s: %v\n", *addr, err)
		return
	}
	currentAddr := *addr

	fmt.Printf("chordctl. Connected to %s\n", currentAddr)
	fmt.Println("Available commands: info/successor/predecessor/fingers [n]/ping/find <hex-id>/use <addr>/exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(fmt.Sprintf("chord[%s]> ", currentAddr))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("Aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}
		cmd := args[0]
		reqCtx, cancel := context.WithTimeout(context.Background(), *timeout)

		switch cmd {
		case "info":
			v, delay, err := chordctl.Info(reqCtx, c, space)
			if err != nil {
				fmt.Printf("info failed: %v | latency=%s\n", err, delay)
				break
			}
			fmt.Printf("hash=%s successor=%s predecessor=%s | latency=%s\n",
				v.Hash, orNone(v.SuccessorAddr), orNone(v.PredecessorAddr), delay)

		case "successor":
			v, delay, err := chordctl.Info(reqCtx, c, space)
			if err != nil {
				fmt.Printf("successor failed: %v | latency=%s\n", err, delay)
				break
			}
			fmt.Printf("successor=%s | latency=%s\n", orNone(v.SuccessorAddr), delay)

		case "predecessor":
			v, delay, err := chordctl.Info(reqCtx, c, space)
			if err != nil {
				fmt.Printf("predecessor failed: %v | latency=%s\n", err, delay)
				break
			}
			fmt.Printf("predecessor=%s | latency=%s\n", orNone(v.PredecessorAddr), delay)

		case "fingers":
			count := 10
			if len(args) >= 2 {
				if n, err := strconv.Atoi(args[1]); err == nil {
					count = n
				}
			}
			self, _, err := chordctl.Info(reqCtx, c, space)
			if err != nil {
				fmt.Printf("fingers failed: %v\n", err)
				break
			}
			entries, err := chordctl.Fingers(reqCtx, c, space, self.Hash, count)
			if err != nil {
				fmt.Printf("fingers: %v\n", err)
			}
			for i, e := range entries {
				fmt.Printf("  [%d] start=%s -> %s (%s)\n", i, e.Start, e.NodeHash, orNone(e.ListenAddr))
			}

		case "ping":
			delay, err := chordctl.Ping(reqCtx, c)
			if err != nil {
				fmt.Printf("ping failed: %v | latency=%s\n", err, delay)
			} else {
				fmt.Printf("pong | latency=%s\n", delay)
			}

		case "find":
			if len(args) < 2 {
				fmt.Println("Usage: find <hex-id>")
				break
			}
			target, err := parseHash(space, args[1])
			if err != nil {
				fmt.Printf("invalid id: %v\n", err)
				break
			}
			hash, addr, delay, err := chordctl.Find(reqCtx, c, space, target)
			if err != nil {
				fmt.Printf("find failed: %v | latency=%s\n", err, delay)
			} else {
				fmt.Printf("successor=%s (%s) | latency=%s\n", hash, orNone(addr), delay)
			}

		case "use":
			if len(args) < 2 {
				fmt.Println("Usage: use <addr>")
				break
			}
			newAddr := args[1]
			newClient, err := chordctl.Connect(reqCtx, newAddr, *maxPending)
			if err != nil {
				fmt.Printf("failed to connect to %s: %v\n", newAddr, err)
				break
			}
			_ = c.Close()
			c = newClient
			currentAddr = newAddr
			fmt.Printf("switched connection to %s\n", currentAddr)

		case "exit", "quit":
			fmt.Println("bye")
			cancel()
			_ = c.Close()
			return

		default:
			fmt.Printf("unknown command: %s\n", cmd)
		}

		cancel()
	}
	_ = c.Close()
}

func orNone(addr string) string {
	if addr == "" {
		return "<none>"
	}
	return addr
}

// parseHash accepts either a hex digest of sp.HashLen bytes or a small
// decimal integer, so "find 21" works on a toy ring without spelling
// out a full digest.
func parseHash(sp chordid.Space, s string) (chordid.Hash, error) {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return sp.FromUint64(n), nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return chordid.Hash{}, fmt.Errorf("not a decimal integer or hex digest: %w", err)
	}
	return sp.FromBytes(b)
}
