package escrow

import (
	"bytes"
	"errors"
	"testing"
)

func TestOnchainApprovalRoundTrip(t *testing.T) {
	original := &OnchainApprovalData{
		Destination:    newTestAddress(0x77),
		Data:           []byte{0x70, 0xa0, 0x82, 0x31},
		ExpectedResult: []byte{0x00, 0x01},
	}
	extraData, err := EncodeOnchainApproval(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeOnchainApproval(extraData)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Destination != original.Destination {
		t.Fatalf("destination mismatch")
	}
	if !bytes.Equal(decoded.Data, original.Data) || !bytes.Equal(decoded.ExpectedResult, original.ExpectedResult) {
		t.Fatalf("payload bytes mismatch")
	}
}

func TestDecodeOnchainApprovalRejections(t *testing.T) {
	zeroDest, err := EncodeOnchainApproval(&OnchainApprovalData{
		ExpectedResult: []byte{0x01},
	})
	if err != nil {
		t.Fatalf("encode zero destination: %v", err)
	}
	emptyExpected, err := EncodeOnchainApproval(&OnchainApprovalData{
		Destination: newTestAddress(0x77),
		Data:        []byte{0x01},
	})
	if err != nil {
		t.Fatalf("encode empty expected: %v", err)
	}

	cases := []struct {
		name      string
		extraData []byte
		wantErr   error
	}{
		{"garbage", []byte{0x01, 0x02, 0x03}, ErrInvalidExtraData},
		{"empty", nil, ErrInvalidExtraData},
		{"zero destination", zeroDest, ErrZeroAddress},
		{"empty expected result", emptyExpected, ErrInvalidExtraData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeOnchainApproval(tc.extraData); !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestAPIApprovalRoundTrip(t *testing.T) {
	original := &APIApprovalData{
		Source:               "return Functions.encodeUint256(1);",
		EncryptedSecretsURLs: []byte{0xAA, 0xBB},
		Args:                 []string{"order-42", "carrier-7"},
		BytesArgs:            [][]byte{{0x01}, {0x02, 0x03}},
	}
	extraData, err := EncodeAPIApproval(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeAPIApproval(extraData)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Source != original.Source {
		t.Fatalf("source mismatch")
	}
	if !bytes.Equal(decoded.EncryptedSecretsURLs, original.EncryptedSecretsURLs) {
		t.Fatalf("secrets mismatch")
	}
	if len(decoded.Args) != 2 || decoded.Args[0] != "order-42" || decoded.Args[1] != "carrier-7" {
		t.Fatalf("args mismatch: %v", decoded.Args)
	}
	if len(decoded.BytesArgs) != 2 || !bytes.Equal(decoded.BytesArgs[1], []byte{0x02, 0x03}) {
		t.Fatalf("bytes args mismatch")
	}
	if decoded.RequestID != ([32]byte{}) {
		t.Fatalf("request id must stay zero at fill time")
	}
}

func TestDecodeAPIApprovalRejections(t *testing.T) {
	withRequestID, err := EncodeAPIApproval(&APIApprovalData{
		Source:    "return Functions.encodeUint256(1);",
		RequestID: newTestID(0x01),
	})
	if err != nil {
		t.Fatalf("encode with request id: %v", err)
	}
	emptySource, err := EncodeAPIApproval(&APIApprovalData{})
	if err != nil {
		t.Fatalf("encode empty source: %v", err)
	}

	cases := []struct {
		name      string
		extraData []byte
	}{
		{"garbage", []byte{0xFF}},
		{"caller-supplied request id", withRequestID},
		{"empty source", emptySource},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeAPIApproval(tc.extraData); !errors.Is(err, ErrInvalidExtraData) {
				t.Fatalf("got %v, want %v", err, ErrInvalidExtraData)
			}
		})
	}
}
