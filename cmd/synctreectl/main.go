// Command synctreectl is a diagnostic client for a synctreed peer: it
// can run the handshake against a server and report the resulting
// session state, or push a single value
// write into its tree over a throwaway session. Grounded on the
// teacher's cmd/*ctl-style thin cobra wrapper pattern.
package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/synctree/synctree/handle"
	"github.com/synctree/synctree/link"
	"github.com/synctree/synctree/session"
)

type nullBinder struct{}

func (nullBinder) ApplyFlux(string, session.FluxRecord)      {}
func (nullBinder) ApplyEvent(session.EventRecord)            {}
func (nullBinder) ApplyAtomicOp(session.AtomicOpRecord)      {}
func (nullBinder) ApplyDestroy(session.DestroyRecord)        {}

func main() {
	var root = &cobra.Command{Use: "synctreectl"}

	pingCmd := &cobra.Command{
		Use:   "ping <host:port>",
		Short: "connect, negotiate, and report the resulting session state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ping(args[0])
		},
	}

	var value string
	setCmd := &cobra.Command{
		Use:   "set <host:port> <path>",
		Short: "push one value write to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pushValue(args[0], args[1], value)
		},
	}
	setCmd.Flags().StringVarP(&value, "value", "v", "", "string value to write")

	root.AddCommand(pingCmd, setCmd)
	if err := root.Execute(); err != nil {
		fmt.Println("synctreectl:", err)
	}
}

func dial(addr string) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, 5*time.Second)
}

func ping(addr string) error {
	conn, err := dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	sess := session.New(conn, nullBinder{}, session.Info{WhoIAm: "synctreectl"}, true)
	if err := sess.Handshake(context.Background()); err != nil {
		return err
	}
	fmt.Printf("synctreectl: connected, session state=%s\n", sess.State())
	return nil
}

func pushValue(addr, path, value string) error {
	conn, err := dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	sess := session.New(conn, nullBinder{}, session.Info{WhoIAm: "synctreectl"}, true)
	if err := sess.Handshake(context.Background()); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go sess.Serve(ctx)

	blob := handle.ExportValue(link.StringValue(value))
	sess.QueueFlux(session.FluxRecord{Path: path, Type: session.FluxSubsequent, Blob: blob}, "")

	<-ctx.Done()
	fmt.Printf("synctreectl: pushed %q to %s\n", value, path)
	return nil
}
