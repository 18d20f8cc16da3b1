package hardware

import (
	"errors"
	"testing"

	"github.com/danmuck/strokectl/internal/testutil/testlog"
)

func TestEncodeHandshakeAndInventory(t *testing.T) {
	testlog.Start(t)
	payload, err := Encode(RequestServerInfo{ID: HandshakeID, ClientName: DefaultClientName, MessageVersion: DefaultMessageVersion})
	if err != nil {
		t.Fatalf("encode handshake: %v", err)
	}
	want := `[{"RequestServerInfo":{"Id":1,"ClientName":"WebToyClient","MessageVersion":3}}]`
	if string(payload) != want {
		t.Fatalf("unexpected handshake: %s", payload)
	}

	payload, err = Encode(RequestDeviceList{ID: 2})
	if err != nil {
		t.Fatalf("encode inventory: %v", err)
	}
	if string(payload) != `[{"RequestDeviceList":{"Id":2}}]` {
		t.Fatalf("unexpected inventory request: %s", payload)
	}

	if _, err := Encode(struct{}{}); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("expected ErrUnknownRequest, got=%v", err)
	}
}

func TestCommandEncode(t *testing.T) {
	testlog.Start(t)
	payload, err := MoveTo(7, 1, 0.25, 50).Encode()
	if err != nil {
		t.Fatalf("encode move: %v", err)
	}
	want := `[{"LinearCmd":{"Id":7,"DeviceIndex":1,"Vectors":[{"Index":0,"Duration":50,"Position":0.25}]}}]`
	if string(payload) != want {
		t.Fatalf("unexpected move: %s", payload)
	}

	payload, err = Stop(6, 1).Encode()
	if err != nil {
		t.Fatalf("encode stop: %v", err)
	}
	if string(payload) != `[{"StopDeviceCmd":{"Id":6,"DeviceIndex":1}}]` {
		t.Fatalf("unexpected stop: %s", payload)
	}

	if _, err := MoveTo(HandshakeID, 0, 0.5, 50).Encode(); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("handshake id must be rejected, got=%v", err)
	}
	if _, err := MoveTo(3, 0, 1.5, 50).Encode(); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("out of range position must be rejected, got=%v", err)
	}
}

func TestIDSequenceStartsAfterHandshake(t *testing.T) {
	testlog.Start(t)
	seq := NewIDSequence()
	if seq.Peek() != 2 {
		t.Fatalf("unexpected first id: %d", seq.Peek())
	}
	prev := uint32(HandshakeID)
	for i := 0; i < 100; i++ {
		id := seq.Next()
		if id <= prev {
			t.Fatalf("id %d not greater than %d", id, prev)
		}
		prev = id
	}
}

func TestDecodeResponses(t *testing.T) {
	testlog.Start(t)
	frame := []byte(`[
		{"ServerInfo":{"Id":1,"ServerName":"Intiface","MessageVersion":3,"MaxPingTime":0}},
		{"DeviceList":{"Id":2,"Devices":[
			{"DeviceName":"Vibe","DeviceIndex":0,"DeviceMessages":{"ScalarCmd":[{}],"StopDeviceCmd":{}}},
			{"DeviceName":"Stroker","DeviceIndex":1,"DeviceMessages":{"LinearCmd":[{"StepCount":100}],"StopDeviceCmd":{}}}
		]}},
		{"Ok":{"Id":5}},
		{"Error":{"Id":6,"ErrorCode":3,"ErrorMessage":"device busy"}},
		{"DeviceRemoved":{"Id":0,"DeviceIndex":1}},
		{"ScanningFinished":{"Id":0}},
		{"Whatever":{}}
	]`)
	resps, err := DecodeResponses(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resps) != 7 {
		t.Fatalf("unexpected response count: %d", len(resps))
	}
	if resps[0].Kind != RespServerInfo || resps[0].ServerInfo.ServerName != "Intiface" {
		t.Fatalf("unexpected server info: %+v", resps[0])
	}
	devices := resps[1].Devices()
	if len(devices) != 2 || devices[0].Can(CapabilityLinear) || !devices[1].Can(CapabilityLinear) {
		t.Fatalf("unexpected devices: %+v", devices)
	}
	if resps[2].Kind != RespOk || resps[2].Ok.ID != 5 {
		t.Fatalf("unexpected ok: %+v", resps[2])
	}
	if resps[3].Kind != RespError || resps[3].Error.ErrorCode != 3 {
		t.Fatalf("unexpected error: %+v", resps[3])
	}
	if resps[4].Kind != RespDeviceRemoved || resps[4].DeviceRemoved.DeviceIndex != 1 {
		t.Fatalf("unexpected removal: %+v", resps[4])
	}
	if resps[5].Kind != RespScanningFinished || resps[6].Kind != RespUnknown {
		t.Fatalf("unexpected tail kinds: %s %s", resps[5].Kind, resps[6].Kind)
	}
}

func TestLegacyCapabilityList(t *testing.T) {
	testlog.Start(t)
	resps, err := DecodeResponses([]byte(`[{"DeviceAdded":{"DeviceName":"Old","DeviceIndex":4,"DeviceMessages":["LinearCmd","StopDeviceCmd"]}}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	dev := resps[0].Devices()[0]
	if dev.Index != 4 || !dev.Can(CapabilityLinear) {
		t.Fatalf("unexpected device: %+v", dev)
	}
	if names := dev.CapabilityNames(); len(names) != 2 || names[0] != "LinearCmd" {
		t.Fatalf("unexpected capability names: %v", names)
	}
}

func TestDecodeResponsesMalformed(t *testing.T) {
	testlog.Start(t)
	if _, err := DecodeResponses([]byte(`{"Ok":{"Id":1}}`)); !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got=%v", err)
	}
	resps, err := DecodeResponses([]byte(`[{"Ok":{"Id":1},"Error":{}}]`))
	if !errors.Is(err, ErrMalformedMessage) || len(resps) != 0 {
		t.Fatalf("expected ErrMalformedMessage and nothing kept, got=%v %v", resps, err)
	}
}

func TestDecodeResponsesSkipsMalformedItems(t *testing.T) {
	testlog.Start(t)
	frame := []byte(`[{"Ok":{"Id":"seven"}},{"Ok":{"Id":4}},{"Ok":{},"Error":{}},{"DeviceRemoved":{"DeviceIndex":1}}]`)
	resps, err := DecodeResponses(frame)
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage for the skipped items, got=%v", err)
	}
	if len(resps) != 2 {
		t.Fatalf("expected two kept responses, got=%d", len(resps))
	}
	if resps[0].Kind != RespOk || resps[0].Ok.ID != 4 {
		t.Fatalf("unexpected first response %+v", resps[0])
	}
	if resps[1].Kind != RespDeviceRemoved || resps[1].DeviceRemoved.DeviceIndex != 1 {
		t.Fatalf("unexpected second response %+v", resps[1])
	}
}
