// Command btpair connects to one LE peripheral by address and waits for
// pairing (or plain connection, if the peer needs no security) to settle.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/gothel-btcore/btcore/bt"
	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/gothel-btcore/btcore/smp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:      "btpair",
		Usage:     "connect and pair with an LE device",
		ArgsUsage: "<peer-address>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "dev", Value: -1, Usage: "HCI device index (-1 = first available)"},
			&cli.BoolFlag{Name: "random", Usage: "treat the peer address as random rather than public"},
			&cli.StringFlag{Name: "keydir", Usage: "directory to persist/reload bonded keys"},
		},
		Action: pairAction,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "btpair:", err)
		os.Exit(1)
	}
}

func pairAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one peer address argument", 1)
	}
	mac, err := net.ParseMAC(c.Args().Get(0))
	if err != nil {
		return err
	}
	peerType := btaddr.LEPublic
	if c.Bool("random") {
		peerType = btaddr.LERandom
	}
	peer := btaddr.New(mac, peerType)

	local := btaddr.New(net.HardwareAddr{0, 0, 0, 0, 0, 0}, btaddr.LEPublic)
	a := bt.NewAdapter(c.Int("dev"), local, c.String("keydir"))
	if err := a.Open(); err != nil {
		return err
	}
	defer a.Close()

	d, err := a.Connect(peer, bt.DefaultConnectParams())
	if err != nil {
		return err
	}
	fmt.Printf("connected to %s, awaiting pairing...\n", peer.Address)

	deadline := time.Now().Add(30 * time.Second)
	for {
		switch d.PairingState() {
		case smp.StateCompleted:
			fmt.Println("pairing complete")
			return nil
		case smp.StateFailed:
			return fmt.Errorf("pairing with %s failed", peer.Address)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for pairing with %s", peer.Address)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
