package output

import (
	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver
)

// openOutputPort is the real-driver OpenFunc.
func openOutputPort(name string) (func([]byte) error, func(), error) {
	out, err := gomidi.FindOutPort(name)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "finding output port %q", name)
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening output port %q", name)
	}
	return func(raw []byte) error {
			return send(gomidi.Message(raw))
		}, func() {
			_ = out.Close()
		}, nil
}
