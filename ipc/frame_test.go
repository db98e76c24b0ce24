package ipc

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestFrameDecoder_InvokeRoundTrip(t *testing.T) {
	invoke := NewInvokeFrame("panel-1", "onClick", "$state.set('x', 1);", []any{1, "a"},
		map[string]any{"x": 0}, []string{"state:write:x"}, 2000)

	frame, err := EncodeInvokeFrame(invoke)
	if err != nil {
		t.Fatalf("EncodeInvokeFrame failed: %v", err)
	}

	decoder := NewFrameDecoder(bytes.NewReader(frame))
	payload, err := decoder.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	decoded, err := DecodeInvokeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeInvokeFrame failed: %v", err)
	}
	if decoded.PanelID != "panel-1" || decoded.HandlerName != "onClick" {
		t.Errorf("unexpected decoded frame: %+v", decoded)
	}
	if decoded.TimeoutMs != 2000 {
		t.Errorf("TimeoutMs = %d, want 2000", decoded.TimeoutMs)
	}
}

func TestFrameDecoder_ResultRoundTrip(t *testing.T) {
	result := &ResultFrame{
		Status:         "ok",
		ReturnValue:    42,
		StateMutations: []StateMutationWire{{Op: "set", Key: "count", Value: 1}},
		Events:         []EmittedEventWire{{Name: "clicked", Payload: map[string]any{"ok": true}}},
	}

	frame, err := EncodeResultFrame(result)
	if err != nil {
		t.Fatalf("EncodeResultFrame failed: %v", err)
	}

	decoder := NewFrameDecoder(bytes.NewReader(frame))
	payload, err := decoder.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	decoded, err := DecodeResultFrame(payload)
	if err != nil {
		t.Fatalf("DecodeResultFrame failed: %v", err)
	}
	if decoded.Status != "ok" {
		t.Errorf("Status = %q, want ok", decoded.Status)
	}
	if len(decoded.StateMutations) != 1 || decoded.StateMutations[0].Key != "count" {
		t.Errorf("unexpected StateMutations: %+v", decoded.StateMutations)
	}
}

func TestFrameDecoder_SuspendedResultRoundTrip(t *testing.T) {
	result := &ResultFrame{
		Status: "suspended",
		Suspension: &SuspensionWire{
			SuspensionID: "susp-1", Extension: "http", Method: "fetch", Params: []any{"https://example.com"},
		},
	}
	frame, err := EncodeResultFrame(result)
	if err != nil {
		t.Fatalf("EncodeResultFrame failed: %v", err)
	}
	payload, err := NewFrameDecoder(bytes.NewReader(frame)).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	decoded, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	resultFrame, ok := decoded.(*ResultFrame)
	if !ok {
		t.Fatalf("expected *ResultFrame, got %T", decoded)
	}
	if resultFrame.Status != "suspended" || resultFrame.Suspension == nil || resultFrame.Suspension.Method != "fetch" {
		t.Errorf("unexpected suspended result frame: %+v", resultFrame)
	}
}

func TestFrameDecoder_ResumeRoundTrip(t *testing.T) {
	resume := NewResumeFrame("susp-1", true, "resolved-value", "")
	frame, err := EncodeResumeFrame(resume)
	if err != nil {
		t.Fatalf("EncodeResumeFrame failed: %v", err)
	}
	payload, err := NewFrameDecoder(bytes.NewReader(frame)).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	decoded, err := DecodeResumeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeResumeFrame failed: %v", err)
	}
	if !decoded.Success || decoded.SuspensionID != "susp-1" {
		t.Errorf("unexpected resume frame: %+v", decoded)
	}
}

func TestFrameDecoder_EOF(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader(nil))
	_, err := decoder.ReadFrame()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFrameDecoder_PartialLengthPrefix(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x00}))
	_, err := decoder.ReadFrame()
	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got %v", err)
	}
}

func TestFrameDecoder_PartialPayload(t *testing.T) {
	buf := make([]byte, LengthPrefixSize)
	binary.BigEndian.PutUint32(buf, 100)
	decoder := NewFrameDecoder(bytes.NewReader(buf)) // declares 100 bytes, provides 0
	_, err := decoder.ReadFrame()
	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got %v", err)
	}
}

func TestFrameDecoder_TooLarge(t *testing.T) {
	buf := make([]byte, LengthPrefixSize)
	binary.BigEndian.PutUint32(buf, MaxPayloadSize+1)
	decoder := NewFrameDecoder(bytes.NewReader(buf))
	_, err := decoder.ReadFrame()
	var frameErr *FrameError
	if err == nil {
		t.Fatal("expected error")
	}
	if fe, ok := err.(*FrameError); ok {
		frameErr = fe
	}
	if frameErr == nil || frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("expected FrameErrorTooLarge, got %v", err)
	}
}

func TestDecodeFrame_UnknownType(t *testing.T) {
	payload, err := marshalMsgpack(map[string]any{"type": "bogus"})
	if err != nil {
		t.Fatalf("marshalMsgpack failed: %v", err)
	}
	_, err = DecodeFrame(payload)
	if err == nil {
		t.Fatal("expected error for unknown frame type")
	}
}
