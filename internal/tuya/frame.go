package tuya

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Command is the Tuya LAN command word.
type Command uint32

// Commands used by colour bulbs on protocol 3.3.
const (
	// CmdControl writes data points. Payload carries the version header.
	CmdControl Command = 0x07

	// CmdStatus is an unsolicited status report from the device.
	CmdStatus Command = 0x08

	// CmdHeartbeat keeps the session alive.
	CmdHeartbeat Command = 0x09

	// CmdDPQuery asks for every data point.
	CmdDPQuery Command = 0x0a
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdControl:
		return "CONTROL"
	case CmdStatus:
		return "STATUS"
	case CmdHeartbeat:
		return "HEART_BEAT"
	case CmdDPQuery:
		return "DP_QUERY"
	default:
		return fmt.Sprintf("CMD_0x%02X", uint32(c))
	}
}

// Frame layout.
//
//	Byte 0-3:   prefix 0x000055AA
//	Byte 4-7:   sequence number
//	Byte 8-11:  command
//	Byte 12-15: length of everything after this field (payload + crc + suffix)
//	Byte 16-n:  payload
//	n+1..n+4:   CRC32 (IEEE) over bytes 0..n
//	n+5..n+8:   suffix 0x0000AA55
const (
	framePrefix uint32 = 0x000055AA
	frameSuffix uint32 = 0x0000AA55

	headerSize  = 16
	trailerSize = 8

	// maxFrameSize guards against reading garbage lengths after a desync.
	maxFrameSize = 64 * 1024
)

// Frame is one Tuya LAN protocol message.
type Frame struct {
	Seq     uint32
	Cmd     Command
	Payload []byte
}

// Encode serialises the frame including checksum and suffix.
func (f Frame) Encode() []byte {
	buf := make([]byte, headerSize+len(f.Payload)+trailerSize)

	binary.BigEndian.PutUint32(buf[0:4], framePrefix)
	binary.BigEndian.PutUint32(buf[4:8], f.Seq)
	binary.BigEndian.PutUint32(buf[8:12], uint32(f.Cmd))
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(f.Payload)+trailerSize)) //nolint:gosec // bounded by maxFrameSize
	copy(buf[headerSize:], f.Payload)

	end := headerSize + len(f.Payload)
	binary.BigEndian.PutUint32(buf[end:end+4], crc32.ChecksumIEEE(buf[:end]))
	binary.BigEndian.PutUint32(buf[end+4:end+8], frameSuffix)
	return buf
}

// DecodeFrame parses one complete frame.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < headerSize+trailerSize {
		return Frame{}, fmt.Errorf("%w: too short (%d bytes)", ErrInvalidFrame, len(data))
	}
	if p := binary.BigEndian.Uint32(data[0:4]); p != framePrefix {
		return Frame{}, fmt.Errorf("%w: bad prefix 0x%08X", ErrInvalidFrame, p)
	}

	length := int(binary.BigEndian.Uint32(data[12:16]))
	if length < trailerSize || headerSize+length != len(data) {
		return Frame{}, fmt.Errorf("%w: length field %d does not match %d bytes", ErrInvalidFrame, length, len(data))
	}

	end := len(data) - trailerSize
	if s := binary.BigEndian.Uint32(data[end+4:]); s != frameSuffix {
		return Frame{}, fmt.Errorf("%w: bad suffix 0x%08X", ErrInvalidFrame, s)
	}
	if want, got := binary.BigEndian.Uint32(data[end:end+4]), crc32.ChecksumIEEE(data[:end]); want != got {
		return Frame{}, fmt.Errorf("%w: want 0x%08X, got 0x%08X", ErrBadCRC, want, got)
	}

	payload := make([]byte, end-headerSize)
	copy(payload, data[headerSize:end])

	return Frame{
		Seq:     binary.BigEndian.Uint32(data[4:8]),
		Cmd:     Command(binary.BigEndian.Uint32(data[8:12])),
		Payload: payload,
	}, nil
}

// ReadFrame reads exactly one frame from r. A bad prefix or an oversized
// length returns ErrProtocolDesync because the stream position is lost.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, fmt.Errorf("read header: %w", err)
	}

	if p := binary.BigEndian.Uint32(header[0:4]); p != framePrefix {
		return Frame{}, fmt.Errorf("%w: bad prefix 0x%08X", ErrProtocolDesync, p)
	}
	length := int(binary.BigEndian.Uint32(header[12:16]))
	if length < trailerSize || length > maxFrameSize {
		return Frame{}, fmt.Errorf("%w: length %d", ErrProtocolDesync, length)
	}

	data := make([]byte, headerSize+length)
	copy(data, header)
	if _, err := io.ReadFull(r, data[headerSize:]); err != nil {
		return Frame{}, fmt.Errorf("read body: %w", err)
	}

	return DecodeFrame(data)
}
