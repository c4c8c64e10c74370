package tuya

import "errors"

// Domain errors for the Tuya LAN client.
var (
	// ErrNotConnected is returned when an operation requires a session
	// but none is established.
	ErrNotConnected = errors.New("tuya: not connected")

	// ErrConnectionFailed is returned when dialling the device fails.
	ErrConnectionFailed = errors.New("tuya: connection failed")

	// ErrInvalidKey is returned when the local key is not 16 bytes.
	ErrInvalidKey = errors.New("tuya: local key must be 16 bytes")

	// ErrInvalidFrame is returned when a frame is malformed.
	ErrInvalidFrame = errors.New("tuya: invalid frame")

	// ErrBadCRC is returned when a frame checksum does not match.
	ErrBadCRC = errors.New("tuya: frame checksum mismatch")

	// ErrProtocolDesync is returned when framing is lost; the session is dropped.
	ErrProtocolDesync = errors.New("tuya: protocol desync")

	// ErrDecrypt is returned when a payload cannot be decrypted.
	ErrDecrypt = errors.New("tuya: decrypt failed")

	// ErrDeviceRejected is returned when the device answers with a non-zero
	// return code or an unreadable body.
	ErrDeviceRejected = errors.New("tuya: device rejected request")

	// ErrTimeout is returned when the caller's context ends before the answer.
	ErrTimeout = errors.New("tuya: request timed out")
)
