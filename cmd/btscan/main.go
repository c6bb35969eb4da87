// Command btscan starts LE discovery on one HCI adapter and prints every
// advertising device seen until the scan duration elapses.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/gothel-btcore/btcore/bt"
	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "btscan",
		Usage: "scan for nearby LE devices",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "dev", Value: -1, Usage: "HCI device index (-1 = first available)"},
			&cli.DurationFlag{Name: "duration", Value: 10 * time.Second, Usage: "how long to scan"},
			&cli.BoolFlag{Name: "active", Usage: "use active scanning (issue SCAN_REQ)"},
		},
		Action: scanAction,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "btscan:", err)
		os.Exit(1)
	}
}

func scanAction(c *cli.Context) error {
	local := btaddr.New(net.HardwareAddr{0, 0, 0, 0, 0, 0}, btaddr.LEPublic)
	a := bt.NewAdapter(c.Int("dev"), local, "")
	if err := a.Open(); err != nil {
		return err
	}
	defer a.Close()

	if err := a.StartDiscovery(c.Bool("active")); err != nil {
		return err
	}
	time.Sleep(c.Duration("duration"))
	if err := a.StopDiscovery(); err != nil {
		return err
	}

	for _, d := range a.DiscoveredDevices() {
		eir := d.EIR()
		fmt.Printf("%-20s %-4d %s\n", d.Addr.Address, eir.RSSI, d.Name())
	}
	return nil
}
