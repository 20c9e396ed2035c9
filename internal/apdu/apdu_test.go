package apdu_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dantte-lp/nfcd/internal/apdu"
)

func TestRoundTripCase1(t *testing.T) {
	t.Parallel()

	cmd := apdu.Command{CLA: 0x00, INS: 0xA4, P1: 0x04, P2: 0x00}

	wire, err := apdu.Encode(cmd)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(wire, []byte{0x00, 0xA4, 0x04, 0x00}) {
		t.Fatalf("wire = % X", wire)
	}

	got, extended, err := apdu.Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if extended {
		t.Fatal("case1 must not decode as extended")
	}
	if got.CLA != cmd.CLA || got.INS != cmd.INS || got.P1 != cmd.P1 || got.P2 != cmd.P2 ||
		!bytes.Equal(got.Data, cmd.Data) || got.Le != cmd.Le {
		t.Fatalf("got %+v, want %+v", got, cmd)
	}
}

func TestRoundTripAllCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cmd      apdu.Command
		wantCase apdu.Case
	}{
		{"case1", apdu.Command{CLA: 0x00, INS: 0xA4, P1: 0x04, P2: 0x00}, apdu.Case1},
		{"case2s le=1", apdu.Command{CLA: 0x00, INS: 0xB0, Le: 1}, apdu.Case2S},
		{"case2s le=256", apdu.Command{CLA: 0x00, INS: 0xB0, Le: 256}, apdu.Case2S},
		{"case2e le=257", apdu.Command{CLA: 0x00, INS: 0xB0, Le: 257}, apdu.Case2E},
		{"case2e le=65536", apdu.Command{CLA: 0x00, INS: 0xB0, Le: apdu.MaxLe}, apdu.Case2E},
		{"case3s", apdu.Command{CLA: 0x00, INS: 0xA4, P1: 0x04, Data: []byte{0x01, 0x02, 0x03, 0x04}}, apdu.Case3S},
		{"case3e", apdu.Command{CLA: 0x00, INS: 0xA4, Data: bytes.Repeat([]byte{0xAB}, 256)}, apdu.Case3E},
		{"case4s", apdu.Command{CLA: 0x00, INS: 0xA4, Data: []byte{0x01, 0x02, 0x03, 0x04}, Le: 256}, apdu.Case4S},
		{"case4e data extended", apdu.Command{CLA: 0x00, INS: 0xA4, Data: bytes.Repeat([]byte{0xCD}, 256), Le: 1}, apdu.Case4E},
		{"case4e le extended", apdu.Command{CLA: 0x00, INS: 0xA4, Data: []byte{0x01, 0x02}, Le: 257}, apdu.Case4E},
		{"case4e le=65536", apdu.Command{CLA: 0x00, INS: 0xA4, Data: []byte{0x01, 0x02}, Le: apdu.MaxLe}, apdu.Case4E},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wire, err := apdu.Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			got, extended, err := apdu.Decode(wire)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if gotCase := apdu.CaseOf(got, extended); gotCase != tt.wantCase {
				t.Fatalf("case = %v, want %v", gotCase, tt.wantCase)
			}

			if got.CLA != tt.cmd.CLA || got.INS != tt.cmd.INS || got.P1 != tt.cmd.P1 || got.P2 != tt.cmd.P2 {
				t.Fatalf("header mismatch: got %+v, want %+v", got, tt.cmd)
			}
			if !bytes.Equal(got.Data, tt.cmd.Data) {
				t.Fatalf("data mismatch: got % X, want % X", got.Data, tt.cmd.Data)
			}
			if got.Le != tt.cmd.Le {
				t.Fatalf("le mismatch: got %d, want %d", got.Le, tt.cmd.Le)
			}
		})
	}
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	if _, err := apdu.Encode(apdu.Command{Data: make([]byte, apdu.MaxDataLen+1)}); !errors.Is(err, apdu.ErrDataTooLong) {
		t.Fatalf("want ErrDataTooLong, got %v", err)
	}

	if _, err := apdu.Encode(apdu.Command{Le: apdu.MaxLe + 1}); !errors.Is(err, apdu.ErrLeOutOfRange) {
		t.Fatalf("want ErrLeOutOfRange, got %v", err)
	}

	if _, err := apdu.Encode(apdu.Command{Le: -1}); !errors.Is(err, apdu.ErrLeOutOfRange) {
		t.Fatalf("want ErrLeOutOfRange, got %v", err)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	t.Parallel()

	t.Run("too short", func(t *testing.T) {
		t.Parallel()
		if _, _, err := apdu.Decode([]byte{0x00, 0xA4, 0x04}); !errors.Is(err, apdu.ErrTooShort) {
			t.Fatalf("want ErrTooShort, got %v", err)
		}
	})

	t.Run("length 5 is always case 2s", func(t *testing.T) {
		t.Parallel()
		cmd, extended, err := apdu.Decode([]byte{0x00, 0xA4, 0x04, 0x00, 0x00})
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if extended {
			t.Fatalf("want short form")
		}
		if cmd.Le != 256 {
			t.Fatalf("want Le=256 (0x00 short-form encoding), got %d", cmd.Le)
		}
	})

	t.Run("bad length for declared LC", func(t *testing.T) {
		t.Parallel()
		if _, _, err := apdu.Decode([]byte{0x00, 0xA4, 0x04, 0x00, 0x05, 0x01, 0x02}); !errors.Is(err, apdu.ErrMalformedLength) {
			t.Fatalf("want ErrMalformedLength, got %v", err)
		}
	})

	t.Run("extended zero LC", func(t *testing.T) {
		t.Parallel()
		if _, _, err := apdu.Decode([]byte{0x00, 0xA4, 0x04, 0x00, 0x00, 0x00, 0x00, 0x01}); !errors.Is(err, apdu.ErrZeroLC) {
			t.Fatalf("want ErrZeroLC, got %v", err)
		}
	})
}

func TestSelectByAIDWireShape(t *testing.T) {
	t.Parallel()

	// S1 from the end-to-end scenarios: SELECT by name, AID 01020304, Le=256 (encoded as 00).
	cmd := apdu.Command{CLA: 0x00, INS: 0xA4, P1: 0x04, P2: 0x00, Data: []byte{0x01, 0x02, 0x03, 0x04}, Le: 256}

	wire, err := apdu.Encode(cmd)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := []byte{0x00, 0xA4, 0x04, 0x00, 0x04, 0x01, 0x02, 0x03, 0x04, 0x00}
	if !bytes.Equal(wire, want) {
		t.Fatalf("wire = % X, want % X", wire, want)
	}
}
