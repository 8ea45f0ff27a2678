package codec

import (
	"errors"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

type session struct {
	User    string    `json:"user" msgpack:"user" cbor:"user"`
	Hits    int       `json:"hits" msgpack:"hits" cbor:"hits"`
	Created time.Time `json:"created" msgpack:"created" cbor:"created"`
}

func roundTrip[V any](t *testing.T, c Codec[V], v V) V {
	t.Helper()
	b, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return out
}

func TestStructCodecs(t *testing.T) {
	in := session{User: "ada", Hits: 3, Created: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	for name, c := range map[string]Codec[session]{
		"json":           JSON[session]{},
		"msgpack":        Msgpack[session]{},
		"cbor":           MustCBOR[session](false),
		"cbor-canonical": MustCBOR[session](true),
	} {
		t.Run(name, func(t *testing.T) {
			out := roundTrip(t, c, in)
			if out.User != in.User || out.Hits != in.Hits || !out.Created.Equal(in.Created) {
				t.Fatalf("got %+v want %+v", out, in)
			}
		})
	}
}

func TestCBORCanonicalIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	a, err := c.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatalf("canonical encoding differs: %x vs %x", a, b)
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) })
	out := roundTrip[*wrapperspb.StringValue](t, c, wrapperspb.String("hello"))
	if out.GetValue() != "hello" {
		t.Fatalf("got %q", out.GetValue())
	}
}

func TestRaw(t *testing.T) {
	if got := roundTrip[[]byte](t, Bytes{}, []byte{0, 1, 2}); len(got) != 3 || got[2] != 2 {
		t.Fatalf("Bytes round trip: %v", got)
	}
	if got := roundTrip[string](t, String{}, "héllo"); got != "héllo" {
		t.Fatalf("String round trip: %q", got)
	}
}

func TestLimit(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxEncode: 4, MaxDecode: 2}

	if _, err := c.Encode("hello"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Encode over limit: %v", err)
	}
	if b, err := c.Encode("abc"); err != nil || string(b) != "abc" {
		t.Fatalf("Encode under limit: %q %v", b, err)
	}
	if _, err := c.Decode([]byte("abc")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Decode over limit: %v", err)
	}
	if v, err := c.Decode([]byte("ab")); err != nil || v != "ab" {
		t.Fatalf("Decode under limit: %q %v", v, err)
	}

	unbounded := Limit[string]{Inner: String{}}
	big := strings.Repeat("x", 1<<16)
	if v := roundTrip[string](t, unbounded, big); v != big {
		t.Fatalf("unbounded Limit altered payload")
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := (JSON[session]{}).Decode([]byte("{not json")); err == nil {
		t.Fatalf("JSON accepted garbage")
	}
	if _, err := (Msgpack[session]{}).Decode([]byte{0xc1}); err == nil {
		t.Fatalf("msgpack accepted reserved byte 0xc1")
	}
}
