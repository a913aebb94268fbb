package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chaz8081/sipsmart/internal/ble"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "how long to scan")
	flag.Parse()

	fmt.Printf("Scanning for bottles (%s)...\n", *timeout)
	devices, err := ble.ScanForDevices(ble.NewTinyGoAdapter(), *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("No bottles found. Make sure the cap is awake and nearby.")
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI\tSIGNAL")
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.Address, name, d.RSSI, bars(ble.SignalStrength(d.RSSI)))
	}
	w.Flush()
	fmt.Println("\nUse the address with: sipsmart -device <address>")
}

// bars renders a 0..1 strength as four signal bars.
func bars(strength float64) string {
	n := int(strength*4 + 0.5)
	return strings.Repeat("▮", n) + strings.Repeat("▯", 4-n)
}
