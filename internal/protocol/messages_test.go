package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mshq-dev/oraclectl/internal/testutil/testlog"
)

func TestNewDecompileWireShape(t *testing.T) {
	testlog.Start(t)
	data, err := json.Marshal(NewDecompile("QUJD"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"decompile","data":["QUJD"]}`
	if string(data) != want {
		t.Fatalf("unexpected wire shape: %s", data)
	}
}

func TestDecodeClientboundResult(t *testing.T) {
	testlog.Start(t)
	raw := `{"type":"decompilation_result","success":true,"data":"print(1)","input_hash":"abc123"}`
	res, err := DecodeClientbound([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.Data != "print(1)" || res.InputHash != "abc123" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDecodeClientboundUnknownType(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeClientbound([]byte(`{"type":"server_notice","text":"maintenance"}`))
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestDecodeClientboundGarbage(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeClientbound([]byte("not json"))
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestOptionsEnvelopeOmitsUnsetFields(t *testing.T) {
	testlog.Start(t)
	renaming := RenamingUnique
	removeDotZero := true
	opts := V1Options{
		RenamingType:  &renaming,
		RemoveDotZero: &removeDotZero,
	}
	data, err := json.Marshal(NewOptions(opts))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"options","options":{"renamingType":"UNIQUE","removeDotZero":true}}`
	if string(data) != want {
		t.Fatalf("unexpected wire shape: %s", data)
	}
}

func TestV2OptionsEnvelopeIsEmptyObject(t *testing.T) {
	testlog.Start(t)
	data, err := json.Marshal(NewOptions(V2Options{}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"options","options":{}}`
	if string(data) != want {
		t.Fatalf("unexpected wire shape: %s", data)
	}
}

func TestV1OptionsValidate(t *testing.T) {
	testlog.Start(t)
	if err := (V1Options{}).Validate(); err != nil {
		t.Fatalf("empty options should validate: %v", err)
	}
	bad := RenamingType("CAMEL_CASE")
	err := (V1Options{RenamingType: &bad}).Validate()
	if !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
}
