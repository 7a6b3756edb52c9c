package registry

import (
	"time"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver
)

// enumeration can hang when the platform MIDI service is wedged
const enumerateTimeout = 3 * time.Second

// enumerateLocal queries the platform MIDI layer for current ports, merging
// input and output port lists by name. The query runs with a timeout guard
// because CoreMIDI has been seen to hang indefinitely.
func enumerateLocal() ([]LocalPort, error) {
	type result struct {
		ins  []string
		outs []string
	}

	ch := make(chan result, 1)
	go func() {
		var res result
		for _, p := range gomidi.GetInPorts() {
			res.ins = append(res.ins, p.String())
		}
		for _, p := range gomidi.GetOutPorts() {
			res.outs = append(res.outs, p.String())
		}
		ch <- res
	}()

	select {
	case res := <-ch:
		byName := make(map[string]*LocalPort)
		order := make([]string, 0, len(res.ins)+len(res.outs))
		for _, name := range res.ins {
			if _, ok := byName[name]; !ok {
				byName[name] = &LocalPort{Name: name}
				order = append(order, name)
			}
			byName[name].In = true
		}
		for _, name := range res.outs {
			if _, ok := byName[name]; !ok {
				byName[name] = &LocalPort{Name: name}
				order = append(order, name)
			}
			byName[name].Out = true
		}
		ports := make([]LocalPort, 0, len(order))
		for _, name := range order {
			ports = append(ports, *byName[name])
		}
		return ports, nil
	case <-time.After(enumerateTimeout):
		return nil, errors.New("MIDI port enumeration timed out")
	}
}
