package tuya

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
	"time"

	"github.com/nerrad567/lightbridge/internal/bulb"
)

// versionHeaderSize is "3.3" followed by 12 reserved bytes.
const versionHeaderSize = 15

// ProtocolVersion is the only protocol version this client speaks.
const ProtocolVersion = "3.3"

// controlRequest is the CONTROL body.
type controlRequest struct {
	DevID string   `json:"devId"`
	UID   string   `json:"uid"`
	T     string   `json:"t"`
	DPS   bulb.DPS `json:"dps"`
}

// queryRequest is the DP_QUERY body.
type queryRequest struct {
	GwID  string `json:"gwId"`
	DevID string `json:"devId"`
	UID   string `json:"uid"`
	T     string `json:"t"`
}

// statusBody is what devices send back for queries and status reports.
type statusBody struct {
	DevID string   `json:"devId,omitempty"`
	DPS   bulb.DPS `json:"dps"`
	T     int64    `json:"t,omitempty"`
}

// codec encrypts outbound bodies and decrypts inbound ones for one device.
type codec struct {
	deviceID string
	cipher   *ecbCipher
	now      func() time.Time
}

func newCodec(deviceID, key string) (*codec, error) {
	c, err := newECBCipher(key)
	if err != nil {
		return nil, err
	}
	return &codec{deviceID: deviceID, cipher: c, now: time.Now}, nil
}

func (c *codec) timestamp() string {
	return strconv.FormatInt(c.now().Unix(), 10)
}

// controlPayload builds an encrypted CONTROL payload with version header.
func (c *codec) controlPayload(dps bulb.DPS) ([]byte, error) {
	body, err := json.Marshal(controlRequest{
		DevID: c.deviceID,
		UID:   c.deviceID,
		T:     c.timestamp(),
		DPS:   finite(dps),
	})
	if err != nil {
		return nil, fmt.Errorf("encode control: %w", err)
	}
	return withVersionHeader(c.cipher.encrypt(body)), nil
}

// finite replaces NaN and infinite numbers with nil so they encode as JSON
// null. The device ignores a null data point and applies the rest.
func finite(dps bulb.DPS) bulb.DPS {
	var out bulb.DPS
	for code, v := range dps {
		f, ok := v.(float64)
		if !ok || (!math.IsNaN(f) && !math.IsInf(f, 0)) {
			continue
		}
		if out == nil {
			out = maps.Clone(dps)
		}
		out[code] = nil
	}
	if out == nil {
		return dps
	}
	return out
}

// queryPayload builds an encrypted DP_QUERY payload. Queries carry no
// version header.
func (c *codec) queryPayload() ([]byte, error) {
	body, err := json.Marshal(queryRequest{
		GwID:  c.deviceID,
		DevID: c.deviceID,
		UID:   c.deviceID,
		T:     c.timestamp(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	return c.cipher.encrypt(body), nil
}

// decodeDPS extracts the data points from an inbound payload. An empty body
// (plain acknowledgement) yields nil data points and no error.
func (c *codec) decodeDPS(payload []byte) (bulb.DPS, error) {
	code, body := splitReturnCode(payload)
	if code != 0 {
		return nil, fmt.Errorf("%w: return code %d", ErrDeviceRejected, code)
	}
	body = stripVersionHeader(body)
	if len(body) == 0 {
		return nil, nil
	}

	plain, err := c.cipher.decrypt(body)
	if err != nil {
		// Some firmware answers errors in plain text.
		if json.Valid(body) || isPrintable(body) {
			return nil, fmt.Errorf("%w: %q", ErrDeviceRejected, body)
		}
		return nil, err
	}

	var status statusBody
	if err := json.Unmarshal(plain, &status); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrDeviceRejected, plain)
	}
	return status.DPS, nil
}

// splitReturnCode strips the 4-byte return code devices prepend to replies.
// Frames without one start with a byte that cannot begin a return code.
func splitReturnCode(payload []byte) (uint32, []byte) {
	if len(payload) < 4 { //nolint:mnd // return code width
		return 0, payload
	}
	code := binary.BigEndian.Uint32(payload[:4])
	if code&0xFFFFFF00 != 0 {
		return 0, payload
	}
	return code, payload[4:]
}

func withVersionHeader(ciphertext []byte) []byte {
	out := make([]byte, versionHeaderSize+len(ciphertext))
	copy(out, ProtocolVersion)
	copy(out[versionHeaderSize:], ciphertext)
	return out
}

func stripVersionHeader(body []byte) []byte {
	if len(body) >= versionHeaderSize && bytes.HasPrefix(body, []byte(ProtocolVersion)) {
		return body[versionHeaderSize:]
	}
	return body
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
