package marketapi

import (
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

var ErrInvalidMeasurement = errors.New("invalid measurement")

// EncodeMeasurement serializes a measurement to CBOR.
func EncodeMeasurement(m MeasurementMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal measurement: %w", err)
	}
	return data, nil
}

// DecodeMeasurement parses and validates a CBOR measurement.
func DecodeMeasurement(data []byte) (MeasurementMessage, error) {
	var m MeasurementMessage
	if err := cbor.Unmarshal(data, &m); err != nil {
		return MeasurementMessage{}, fmt.Errorf("%w: parse CBOR: %v", ErrInvalidMeasurement, err)
	}
	if err := m.Validate(); err != nil {
		return MeasurementMessage{}, err
	}
	return m, nil
}

func (m MeasurementMessage) Validate() error {
	if m.NodeID == "" {
		return fmt.Errorf("%w: node id is required", ErrInvalidMeasurement)
	}
	if math.IsNaN(m.Flow) || math.IsInf(m.Flow, 0) {
		return fmt.Errorf("%w: flow must be finite", ErrInvalidMeasurement)
	}
	return nil
}

// ExtractCOSEPayload returns the payload of a COSE_Sign1 message without
// verifying it. Both the tagged and the untagged 4-element form are accepted:
// [protected, unprotected, payload, signature].
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	var coseArray []any
	if err := cbor.Unmarshal(stripSign1Tag(coseBytes), &coseArray); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}

	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}

	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}

	return payload, nil
}

// sign1Tag is CBOR tag 18 (COSE_Sign1).
const sign1Tag = 0xd2

func stripSign1Tag(data []byte) []byte {
	if len(data) > 0 && data[0] == sign1Tag {
		return data[1:]
	}
	return data
}

// IsCOSE reports whether data looks like a COSE_Sign1 message rather than a bare
// CBOR map.
func IsCOSE(data []byte) bool {
	data = stripSign1Tag(data)
	// A 4-element CBOR array starts with 0x84.
	return len(data) > 0 && data[0] == 0x84
}
