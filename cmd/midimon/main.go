package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"

	"stemdeck/midi"
	"stemdeck/registry"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "dump":
		dumpPort()
	case "send":
		sendNote()
	case "watch":
		watchDevices()
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI monitor")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list           - List all MIDI ports")
	fmt.Println("  dump <port>    - Decode and print traffic on an input port")
	fmt.Println("  send <port> <note> - Send a NoteOn/NoteOff pair")
	fmt.Println("  watch          - Watch device connect/disconnect events")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! MIDI subsystem is hung.")
	}
}

func inPortArg(arg string) drivers.In {
	ins := gomidi.GetInPorts()
	if idx, err := strconv.Atoi(arg); err == nil {
		if idx >= 0 && idx < len(ins) {
			return ins[idx]
		}
		return nil
	}
	for _, p := range ins {
		if p.String() == arg {
			return p
		}
	}
	return nil
}

func dumpPort() {
	if len(os.Args) < 3 {
		usage()
		return
	}

	in := inPortArg(os.Args[2])
	if in == nil {
		fmt.Printf("No input port %q\n", os.Args[2])
		return
	}

	if err := in.Open(); err != nil {
		fmt.Printf("Error opening port: %v\n", err)
		return
	}
	defer in.Close()

	fmt.Printf("Listening on %s (ctrl+c to stop)...\n", in.String())

	var dec midi.StreamDecoder
	stop, err := in.Listen(func(chunk []byte, _ int32) {
		for _, m := range dec.Feed(chunk) {
			fmt.Println(m)
		}
	}, drivers.ListenConfig{TimeCode: true, SysEx: true})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer stop()

	wait := make(chan os.Signal, 1)
	signal.Notify(wait, os.Interrupt, syscall.SIGTERM)
	<-wait
}

func sendNote() {
	if len(os.Args) < 4 {
		usage()
		return
	}

	note, err := strconv.Atoi(os.Args[3])
	if err != nil || note < 0 || note > 127 {
		fmt.Printf("Bad note %q\n", os.Args[3])
		return
	}

	var out drivers.Out
	outs := gomidi.GetOutPorts()
	if idx, err := strconv.Atoi(os.Args[2]); err == nil && idx >= 0 && idx < len(outs) {
		out = outs[idx]
	} else {
		for _, p := range outs {
			if p.String() == os.Args[2] {
				out = p
				break
			}
		}
	}
	if out == nil {
		fmt.Printf("No output port %q\n", os.Args[2])
		return
	}

	send, err := gomidi.SendTo(out)
	if err != nil {
		fmt.Printf("Error opening port: %v\n", err)
		return
	}
	defer out.Close()

	on, _ := midi.Encode(midi.Message{Kind: midi.KindNoteOn, Channel: 0, Note: uint8(note), Velocity: 100})
	off, _ := midi.Encode(midi.Message{Kind: midi.KindNoteOff, Channel: 0, Note: uint8(note), Velocity: 0})

	fmt.Printf("Sending note %d to %s\n", note, out.String())
	if err := send(gomidi.Message(on)); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	time.Sleep(200 * time.Millisecond)
	if err := send(gomidi.Message(off)); err != nil {
		fmt.Printf("Error: %v\n", err)
	}
}

func watchDevices() {
	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New(log, registry.Options{})
	events := reg.Events("midimon")
	go reg.Run(ctx)

	fmt.Println("Watching for device changes (ctrl+c to stop)...")

	wait := make(chan os.Signal, 1)
	signal.Notify(wait, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case ev := <-events:
			verb := "connected"
			if ev.Type == registry.DeviceDisconnected {
				verb = "disconnected"
			}
			fmt.Printf("%s %s (%s, %s)\n", verb, ev.Device.Name, ev.Device.Transport, ev.Device.Direction)
		case <-wait:
			return
		}
	}
}
