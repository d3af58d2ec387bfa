package node

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"net"

	"github.com/pkg/errors"

	"github.com/utxochain/ledger/chainerr"
)

// cmdLen is the width of the ASCII command tag every message starts with:
// a 4-byte command followed by a 4-byte big-endian length and a gob payload.
const cmdLen = 4

const (
	cmdVersion   = "vers"
	cmdAddr      = "addr"
	cmdTx        = "tx\x00\x00"
	cmdBlock     = "blc\x00"
	cmdInv       = "inv\x00"
	cmdGetBlocks = "gbl\x00"
	cmdGetData   = "gdt\x00"
)

func cmdString(b []byte) string {
	var out []byte
	for _, c := range b {
		if c != 0 {
			out = append(out, c)
		}
	}
	return string(out)
}

type versionMsg struct {
	BestHeight int32
	AddrFrom   string
}

type addrMsg struct {
	Addrs []string
}

type txMsg struct {
	AddrFrom string
	Tx       []byte
}

type blockMsg struct {
	AddrFrom string
	Block    []byte
}

type invMsg struct {
	AddrFrom string
	Kind     string
	Items    []string
}

type getBlocksMsg struct {
	AddrFrom string
}

type getDataMsg struct {
	AddrFrom string
	Kind     string
	ID       string
}

// gobEncode serializes a message payload for the wire. Network envelopes
// are not consensus-critical (unlike block/tx hashing) so plain gob is
// fine here.
func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.Wrap(err, "node: encode message payload")
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return errors.Wrap(err, "node: decode message payload")
	}
	return nil
}

// writeFrame writes cmd ++ len(payload) ++ payload to w, both the 4-byte
// command tag and the 4-byte big-endian length prefix fixed-width.
func writeFrame(w io.Writer, cmd string, payload []byte) error {
	var header [cmdLen + 4]byte
	copy(header[:cmdLen], cmd)
	binary.BigEndian.PutUint32(header[cmdLen:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one command tag plus its length-prefixed payload from r.
func readFrame(r io.Reader) (cmd string, payload []byte, err error) {
	var header [cmdLen + 4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", nil, err
	}
	cmd = cmdString(header[:cmdLen])
	length := binary.BigEndian.Uint32(header[cmdLen:])

	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", nil, err
	}
	return cmd, payload, nil
}

// sendTo dials addr, writes one framed message, and closes the connection
// without reading anything back — each message travels one way over a
// fresh connection, and any reply arrives on a connection of its own.
func sendTo(addr, cmd string, payload interface{}) error {
	data, err := gobEncode(payload)
	if err != nil {
		return err
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.Wrapf(chainerr.ErrPeerUnreachable, "%s", addr)
	}
	defer conn.Close() //nolint:errcheck

	return writeFrame(conn, cmd, data)
}
