package dispatch

import (
	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver
)

// openInputPort is the real-driver OpenFunc: it opens the named port and
// listens for raw byte chunks, SysEx included.
func openInputPort(name string, onBytes func([]byte), onErr func(error)) (func(), error) {
	in, err := gomidi.FindInPort(name)
	if err != nil {
		return nil, errors.Wrapf(err, "finding input port %q", name)
	}
	if err := in.Open(); err != nil {
		return nil, errors.Wrapf(err, "opening input port %q", name)
	}

	stop, err := in.Listen(func(chunk []byte, _ int32) {
		onBytes(chunk)
	}, drivers.ListenConfig{
		TimeCode: true, // clock bytes drive tempo recovery
		SysEx:    true,
		OnErr:    onErr,
	})
	if err != nil {
		_ = in.Close()
		return nil, errors.Wrapf(err, "listening on %q", name)
	}

	return func() {
		stop()
		_ = in.Close()
	}, nil
}
