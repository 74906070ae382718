// avlreplay feeds a captured or live AVL byte stream through the frame reader
// and prints every decoded packet as one JSON line.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"avl-gateway/internal/codec"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		file     string
		port     string
		baud     int
		chunk    int
		maxBytes int
	)
	cmd := &cobra.Command{
		Use:          "avlreplay",
		Short:        "Decode an AVL capture file or serial stream",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (file == "") == (port == "") {
				return fmt.Errorf("exactly one of --file or --serial is required")
			}
			src, err := openSource(file, port, baud)
			if err != nil {
				return err
			}
			defer src.Close()

			limits := codec.DefaultLimits()
			if maxBytes > 0 {
				limits.MaxBuffered = maxBytes
			}
			st, err := replay(src, cmd.OutOrStdout(), cmd.ErrOrStderr(), chunk, limits)
			fmt.Fprintf(cmd.ErrOrStderr(), "packets=%d records=%d malformed=%d bytes=%d\n", st.Packets, st.Records, st.Malformed, st.Bytes)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "capture file to replay")
	cmd.Flags().StringVarP(&port, "serial", "s", "", "serial port to read from (e.g. /dev/ttyUSB0)")
	cmd.Flags().IntVarP(&baud, "baud", "b", 115200, "serial baud rate")
	cmd.Flags().IntVar(&chunk, "chunk", 0, "bytes per read (0 = largest frame size)")
	cmd.Flags().IntVar(&maxBytes, "max-buffered", 0, "accumulator ceiling in bytes (0 = default)")
	return cmd
}

func openSource(file, port string, baud int) (io.ReadCloser, error) {
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open capture: %w", err)
		}
		return f, nil
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return p, nil
}
