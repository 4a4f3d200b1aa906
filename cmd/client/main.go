// Command client speaks the wire protocol directly against a running
// cluster: "get KEY" or "put KEY VALUE", following redirect replies
// until it finds the leader (or gives up after a fixed number of
// hops).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/arcflux/ledgerraft/internal/transport"
	"github.com/arcflux/ledgerraft/internal/wire"
)

const maxRedirects = 5

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: client <target-id> get <key>")
		fmt.Fprintln(os.Stderr, "       client <target-id> put <key> <value>")
		os.Exit(1)
	}

	target := os.Args[1]
	op := os.Args[2]

	var req wire.Message
	switch op {
	case "get":
		req = wire.Message{Type: wire.TypeGet, Key: os.Args[3], MID: uuid.NewString()}
	case "put":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "put requires a value")
			os.Exit(1)
		}
		req = wire.Message{Type: wire.TypePut, Key: os.Args[3], Value: os.Args[4], MID: uuid.NewString()}
	default:
		fmt.Fprintf(os.Stderr, "unknown operation %q\n", op)
		os.Exit(1)
	}

	sockDir := os.Getenv("RAFTKV_SOCK_DIR")
	if sockDir == "" {
		sockDir = "/tmp/ledgerraft"
	}

	selfID := "client-" + uuid.NewString()
	endpoint, err := transport.NewUnixgramEndpoint(sockDir, selfID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bind client endpoint: %v\n", err)
		os.Exit(1)
	}
	defer endpoint.Close()

	req.Src = selfID
	req.Dst = target

	for hop := 0; hop <= maxRedirects; hop++ {
		if err := endpoint.Send(req.Dst, mustEncode(req)); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			os.Exit(1)
		}

		frame, ok, err := endpoint.Recv(2 * time.Second)
		if err != nil {
			fmt.Fprintf(os.Stderr, "recv: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "timed out waiting for a reply")
			os.Exit(1)
		}

		resp, err := wire.Decode(frame)
		if err != nil {
			fmt.Fprintf(os.Stderr, "decode reply: %v\n", err)
			os.Exit(1)
		}

		switch resp.Type {
		case wire.TypeOK:
			if op == "get" {
				fmt.Println(resp.Value)
			} else {
				fmt.Println("ok")
			}
			return
		case wire.TypeFail:
			fmt.Fprintln(os.Stderr, "fail")
			os.Exit(1)
		case wire.TypeRedirect:
			if resp.Leader == "" || resp.Leader == wire.Broadcast {
				fmt.Fprintln(os.Stderr, "no leader known yet, retry later")
				os.Exit(1)
			}
			req.Dst = resp.Leader
		default:
			fmt.Fprintf(os.Stderr, "unexpected reply type %q\n", resp.Type)
			os.Exit(1)
		}
	}

	fmt.Fprintln(os.Stderr, "gave up after too many redirects")
	os.Exit(1)
}

func mustEncode(msg wire.Message) []byte {
	frame, err := wire.Encode(msg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
	return frame
}
