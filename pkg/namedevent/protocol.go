// Package namedevent provides manual-reset events that unrelated local
// processes share by name.
//
// The process that creates a name runs a broker listening on a Unix domain
// socket in the rendezvous directory. Every handle, the creator's included,
// is a client connection to that broker. Clients send one-byte opcodes; the
// broker answers a WAIT with a single byte once the event is posted.
package namedevent

import (
	stderrors "errors"
	"io"
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/odvcencio/uisync/pkg/errors"
)

// Opcode is a client-to-broker message. The numbering is the wire format.
type Opcode byte

const (
	OpReset       Opcode = 0
	OpPost        Opcode = 1
	OpWait        Opcode = 2
	OpDoneWaiting Opcode = 3
)

// replyByte is sent by the broker to satisfy a WAIT. Its value carries no
// meaning.
const replyByte byte = 1

func (o Opcode) String() string {
	switch o {
	case OpReset:
		return "RESET"
	case OpPost:
		return "POST"
	case OpWait:
		return "WAIT"
	case OpDoneWaiting:
		return "DONE_WAITING"
	default:
		return "OP(" + strconv.Itoa(int(o)) + ")"
	}
}

// classify maps a socket error onto the status taxonomy.
func classify(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, unix.EINTR):
		return errors.Wrap(err, errors.ErrCodeInterrupt, op+" interrupted")
	case stderrors.Is(err, os.ErrDeadlineExceeded):
		return errors.Wrap(err, errors.ErrCodeTimeout, op+" timed out")
	case stderrors.Is(err, io.EOF), stderrors.Is(err, net.ErrClosed), stderrors.Is(err, unix.EPIPE):
		return errors.Wrap(err, errors.ErrCodeGeneral, op+": broker connection lost")
	default:
		return errors.Wrap(err, errors.ErrCodeGeneral, op+" failed")
	}
}
