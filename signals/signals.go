// Package signals - Values that may be missing from a perception record.
//
// A record flowing through the pipeline carries either a real payload (an image, a mask, a
// distance) or a reason why the payload is absent. Absence is encoded on the wire as the bare
// reason token, which is what downstream consumers match against.
package signals

import (
	"bytes"
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
)

// Reason names why a value is absent.
type Reason string

const (
	// ReasonMissing marks a value that was never set. It is the zero state of Value.
	ReasonMissing Reason = "MISSING_VALUE"
	// ReasonNotObserved marks a value the producer looked for and could not observe.
	ReasonNotObserved Reason = "NOT_OBSERVED"
)

// Known reports whether r is one of the reason tokens understood by the pipeline.
func (r Reason) Known() bool {
	return r == ReasonMissing || r == ReasonNotObserved
}

// Value is either a present payload of type T or an absence reason.
// The zero Value is absent with ReasonMissing.
type Value[T any] struct {
	v       T
	present bool
	reason  Reason
}

// Present wraps v as a present value.
func Present[T any](v T) Value[T] {
	return Value[T]{v: v, present: true}
}

// Absent returns an absent value carrying reason.
func Absent[T any](reason Reason) Value[T] {
	if reason == "" {
		reason = ReasonMissing
	}
	return Value[T]{reason: reason}
}

// NotObserved returns an absent value with ReasonNotObserved.
func NotObserved[T any]() Value[T] {
	return Absent[T](ReasonNotObserved)
}

// Get returns the payload and whether it is present.
func (s Value[T]) Get() (T, bool) {
	return s.v, s.present
}

// MustGet returns the payload and panics if the value is absent.
func (s Value[T]) MustGet() T {
	if !s.present {
		panic("signals: MustGet on absent value (" + string(s.Reason()) + ")")
	}
	return s.v
}

// OrElse returns the payload, or def when absent.
func (s Value[T]) OrElse(def T) T {
	if s.present {
		return s.v
	}
	return def
}

// IsPresent reports whether the value carries a payload.
func (s Value[T]) IsPresent() bool {
	return s.present
}

// IsSet reports whether the value was assigned at all, present or explicitly absent.
func (s Value[T]) IsSet() bool {
	return s.present || (s.reason != "" && s.reason != ReasonMissing)
}

// Reason returns the absence reason, or "" when the value is present.
func (s Value[T]) Reason() Reason {
	if s.present {
		return ""
	}
	if s.reason == "" {
		return ReasonMissing
	}
	return s.reason
}

// String implements fmt.Stringer for log fields.
func (s Value[T]) String() string {
	if s.present {
		return "present"
	}
	return string(s.Reason())
}

// MarshalJSON encodes the payload, or the reason token when absent.
func (s Value[T]) MarshalJSON() ([]byte, error) {
	if s.present {
		return json.Marshal(s.v)
	}
	return json.Marshal(string(s.Reason()))
}

// UnmarshalJSON decodes a known reason token as absence, anything else as the payload.
func (s *Value[T]) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		var token string
		if err := json.Unmarshal(data, &token); err == nil && Reason(token).Known() {
			*s = Absent[T](Reason(token))
			return nil
		}
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Present(v)
	return nil
}

// MarshalCBOR encodes the payload, or the reason token as a text string when absent.
func (s Value[T]) MarshalCBOR() ([]byte, error) {
	if s.present {
		return cbor.Marshal(s.v)
	}
	return cbor.Marshal(string(s.Reason()))
}

// UnmarshalCBOR decodes a known reason token as absence, anything else as the payload.
func (s *Value[T]) UnmarshalCBOR(data []byte) error {
	var token string
	if err := cbor.Unmarshal(data, &token); err == nil && Reason(token).Known() {
		*s = Absent[T](Reason(token))
		return nil
	}
	var v T
	if err := cbor.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Present(v)
	return nil
}
