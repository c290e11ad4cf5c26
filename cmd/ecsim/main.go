// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/system76/ecsim/internal/ec"
	"github.com/system76/ecsim/internal/hostport"
	"github.com/system76/ecsim/internal/mmio"
	"github.com/system76/ecsim/internal/trace"
)

var (
	chipFlag          = flag.String("chip", "8587", "EC chip family: 5570 or 8587")
	firmwareFlag      = flag.String("firmware", "", "Path to the flat firmware image")
	versionFlag       = flag.Uint("version", 0, "EC version byte reported at reset")
	hostPortFlag      = flag.String("hostport", "", "UDP address to bind the host-port socket (empty disables it)")
	hostPortFramFlag  = flag.String("hostport-framing", "16", "Host-port envelope: 16 or 8 (bit width of the port field)")
	traceFlag         = flag.String("trace", "", "Write a diagnostic trace to this file")
	maxStepsFlag      = flag.Uint64("max-steps", 0, "Stop after N steps (0 = unlimited)")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *firmwareFlag == "" {
		usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*firmwareFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading firmware image: %v\n", err)
		os.Exit(1)
	}

	var tracer *trace.Tracer
	if *traceFlag != "" {
		f, err := os.Create(*traceFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating trace file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		tracer = trace.New(f)
	}

	chip, err := parseChip(*chipFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctrl := ec.New(chip, byte(*versionFlag), tracer)
	ctrl.LoadFirmware(data)
	ctrl.Reset()

	var server *hostport.Server
	if *hostPortFlag != "" {
		conn, err := net.ListenPacket("udp", *hostPortFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error binding host port: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()

		framing := hostport.Framing16
		if *hostPortFramFlag == "8" {
			framing = hostport.Framing8
		}
		server = hostport.NewServer(conn, framing, ctrl, tracer)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	startTime := time.Now()
	steps := run(ctrl, server, quit, *maxStepsFlag)
	elapsed := time.Since(startTime)

	fmt.Fprintf(os.Stderr, "\nSteps: %d\n", steps)
	fmt.Fprintf(os.Stderr, "Time: %v\n", elapsed.Round(time.Millisecond))
}

// run interleaves host-port servicing with instruction stepping on a
// single timeline, per §5: no concurrent execution of the two actors is
// permitted, so the servicer is drained non-blockingly before each step.
func run(ctrl *ec.Controller, server *hostport.Server, quit chan os.Signal, maxSteps uint64) uint64 {
	var steps uint64
	for {
		select {
		case <-quit:
			return steps
		default:
		}

		if server != nil {
			server.PollOnce()
		}

		ctrl.Step()
		steps++

		if maxSteps > 0 && steps >= maxSteps {
			return steps
		}
	}
}

func parseChip(s string) (mmio.Chip, error) {
	switch s {
	case "5570":
		return mmio.Chip5570, nil
	case "8587":
		return mmio.Chip8587, nil
	default:
		return 0, fmt.Errorf("unknown chip family %q (want 5570 or 8587)", s)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -firmware <image> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "IT5570/IT8587E embedded controller simulator.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
}
