package bridge

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/danmuck/strokectl/internal/protocol/hardware"
	"github.com/danmuck/strokectl/internal/protocol/session"
	"github.com/danmuck/strokectl/internal/testutil/testlog"
)

const inventoryLinearSecond = `[{"DeviceList":{"Id":2,"Devices":[
	{"DeviceName":"Vibe","DeviceIndex":0,"DeviceMessages":{"ScalarCmd":[{}]}},
	{"DeviceName":"Stroker","DeviceIndex":1,"DeviceMessages":{"LinearCmd":[{}],"StopDeviceCmd":{}}}
]}}]`

func onlyTarget(t *testing.T, effects []Effect, target Target) []string {
	t.Helper()
	var out []string
	for _, e := range effects {
		if e.Target == target {
			out = append(out, string(e.Payload))
		}
	}
	return out
}

// readyCore runs the handshake and inventory against inventory and returns
// the core with its device selected.
func readyCore(t *testing.T, policy SelectionPolicy, inventory string) *Core {
	t.Helper()
	cfg := DefaultCoreConfig()
	cfg.Policy = policy
	c := NewCore(cfg)
	c.RelayOpened()
	c.HardwareOpened()
	c.HandleHardware([]byte(`[{"ServerInfo":{"Id":1,"ServerName":"test","MessageVersion":3}}]`))
	c.HandleHardware([]byte(inventory))
	return c
}

func commandID(t *testing.T, payload string) uint32 {
	t.Helper()
	var items []map[string]map[string]any
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		t.Fatalf("unmarshal %s: %v", payload, err)
	}
	for _, body := range items[0] {
		return uint32(body["Id"].(float64))
	}
	t.Fatalf("no command in %s", payload)
	return 0
}

func TestHandshakeUsesReservedIDThenInventory(t *testing.T) {
	testlog.Start(t)
	c := NewCore(DefaultCoreConfig())
	hs := onlyTarget(t, c.HardwareOpened(), ToHardware)
	if len(hs) != 1 || hs[0] != `[{"RequestServerInfo":{"Id":1,"ClientName":"WebToyClient","MessageVersion":3}}]` {
		t.Fatalf("unexpected handshake: %v", hs)
	}
	if c.Snapshot().Status != StatusHandshaking {
		t.Fatalf("unexpected status: %s", c.Snapshot().Status)
	}

	inv := onlyTarget(t, c.HandleHardware([]byte(`[{"ServerInfo":{"Id":1,"ServerName":"x","MessageVersion":3}}]`)), ToHardware)
	if len(inv) != 1 || inv[0] != `[{"RequestDeviceList":{"Id":2}}]` {
		t.Fatalf("unexpected inventory request: %v", inv)
	}
	if c.Snapshot().Status != StatusScanning {
		t.Fatalf("unexpected status: %s", c.Snapshot().Status)
	}

	// an Ok for the outstanding inventory request is not reported
	if got := c.HandleHardware([]byte(`[{"Ok":{"Id":2}}]`)); len(got) != 0 {
		t.Fatalf("internal ok leaked: %v", got)
	}
}

func TestForwardedOksReusingSettledInternalIDsAreReported(t *testing.T) {
	testlog.Start(t)
	c := readyCore(t, PolicyLinearOrFirst, inventoryLinearSecond)
	frame := `{"commands":["[{\"StopDeviceCmd\":{\"Id\":2,\"DeviceIndex\":1}}]","[{\"LinearCmd\":{\"Id\":3,\"DeviceIndex\":1,\"Vectors\":[{\"Index\":0,\"Duration\":50,\"Position\":0.5}]}}]"]}`
	if hw := onlyTarget(t, c.HandleRelay([]byte(frame)), ToHardware); len(hw) != 2 {
		t.Fatalf("expected both commands forwarded, got=%v", hw)
	}
	for _, id := range []string{"2", "3"} {
		got := onlyTarget(t, c.HandleHardware([]byte(`[{"Ok":{"Id":`+id+`}}]`)), ToRelay)
		if len(got) != 1 || got[0] != `{"type":"command_ok","id":`+id+`}` {
			t.Fatalf("ok %s got=%v", id, got)
		}
	}
}

func TestSelectionPrefersLinear(t *testing.T) {
	testlog.Start(t)
	c := NewCore(DefaultCoreConfig())
	c.HardwareOpened()
	c.HandleHardware([]byte(`[{"ServerInfo":{"Id":1}}]`))
	relayOut := onlyTarget(t, c.HandleHardware([]byte(inventoryLinearSecond)), ToRelay)
	if len(relayOut) != 1 || relayOut[0] != `{"type":"setDeviceIndex","index":1}` {
		t.Fatalf("unexpected relay announce: %v", relayOut)
	}
	snap := c.Snapshot()
	if snap.Device == nil || snap.Device.Index != 1 || snap.Status != StatusDeviceSelected {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSelectionIsNotReevaluated(t *testing.T) {
	testlog.Start(t)
	c := readyCore(t, PolicyLinearOrFirst, `[{"DeviceList":{"Id":2,"Devices":[{"DeviceName":"Vibe","DeviceIndex":0,"DeviceMessages":{}}]}}]`)
	if c.Snapshot().Device.Index != 0 {
		t.Fatalf("fallback should select index 0")
	}
	got := c.HandleHardware([]byte(`[{"DeviceAdded":{"DeviceName":"Stroker","DeviceIndex":5,"DeviceMessages":{"LinearCmd":[{}]}}}]`))
	if len(got) != 0 || c.Snapshot().Device.Index != 0 {
		t.Fatalf("selection changed while a device was selected: %v", got)
	}
}

func TestLinearOnlyWaitsForLinearDevice(t *testing.T) {
	testlog.Start(t)
	c := readyCore(t, PolicyLinearOnly, `[{"DeviceList":{"Id":2,"Devices":[{"DeviceName":"Vibe","DeviceIndex":0,"DeviceMessages":{}}]}}]`)
	snap := c.Snapshot()
	if snap.Device != nil || snap.Status != StatusWaitingDevice {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	out := onlyTarget(t, c.HandleHardware([]byte(`[{"DeviceAdded":{"DeviceName":"Stroker","DeviceIndex":3,"DeviceMessages":{"LinearCmd":[{}]}}}]`)), ToRelay)
	if len(out) != 1 || out[0] != `{"type":"setDeviceIndex","index":3}` {
		t.Fatalf("unexpected announce: %v", out)
	}
}

func TestDeviceRemovedClearsSelectionOnce(t *testing.T) {
	testlog.Start(t)
	c := readyCore(t, PolicyLinearOrFirst, inventoryLinearSecond)

	if got := c.HandleHardware([]byte(`[{"DeviceRemoved":{"DeviceIndex":0}}]`)); len(got) != 0 {
		t.Fatalf("removal of unselected device produced effects: %v", got)
	}
	out := onlyTarget(t, c.HandleHardware([]byte(`[{"DeviceRemoved":{"DeviceIndex":1}}]`)), ToRelay)
	if len(out) != 1 || out[0] != `{"type":"setDeviceIndex","index":null}` {
		t.Fatalf("unexpected removal announce: %v", out)
	}
	if again := c.HandleHardware([]byte(`[{"DeviceRemoved":{"DeviceIndex":1}}]`)); len(again) != 0 {
		t.Fatalf("second removal produced effects: %v", again)
	}
	snap := c.Snapshot()
	if snap.Device != nil || snap.Status != StatusNoTarget {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// commands are dropped until a new device is selected
	if got := c.HandleRelay([]byte(`{"commands":["[{\"StopDeviceCmd\":{\"Id\":9,\"DeviceIndex\":1}}]"]}`)); len(got) != 0 {
		t.Fatalf("command forwarded without selection: %v", got)
	}
	out = onlyTarget(t, c.HandleHardware([]byte(`[{"DeviceAdded":{"DeviceName":"New","DeviceIndex":7,"DeviceMessages":{"LinearCmd":[{}]}}}]`)), ToRelay)
	if len(out) != 1 || out[0] != `{"type":"setDeviceIndex","index":7}` {
		t.Fatalf("unexpected reselect announce: %v", out)
	}
}

func TestRelayCommandsForwardedVerbatim(t *testing.T) {
	testlog.Start(t)
	c := readyCore(t, PolicyLinearOrFirst, inventoryLinearSecond)
	stop := `[{"StopDeviceCmd":{"Id":40,"DeviceIndex":1}}]`
	move := `[{"LinearCmd":{"Id":41,"DeviceIndex":1,"Vectors":[{"Index":0,"Duration":50,"Position":0.3}]}}]`
	pair, _ := json.Marshal(map[string][]string{"commands": {stop, move}})

	hw := onlyTarget(t, c.HandleRelay(pair), ToHardware)
	if len(hw) != 2 || hw[0] != stop || hw[1] != move {
		t.Fatalf("unexpected forwarded commands: %v", hw)
	}
	if c.Snapshot().DeviceReady {
		t.Fatalf("device should be busy after forwarding")
	}

	ack := onlyTarget(t, c.HandleHardware([]byte(`[{"Ok":{"Id":41}}]`)), ToRelay)
	if len(ack) != 1 || ack[0] != `{"type":"command_ok","id":41}` {
		t.Fatalf("unexpected ack: %v", ack)
	}
	if !c.Snapshot().DeviceReady {
		t.Fatalf("device should be ready after ack")
	}

	opaque := `[{"LinearCmd":{"Id":42,"DeviceIndex":1,"Vectors":[{"Index":0,"Duration":50,"Position":0.9}]}}]`
	hw = onlyTarget(t, c.HandleRelay([]byte(opaque)), ToHardware)
	if len(hw) != 1 || hw[0] != opaque {
		t.Fatalf("opaque command not relayed verbatim: %v", hw)
	}
}

func TestMalformedHardwareItemDoesNotDropFrame(t *testing.T) {
	testlog.Start(t)
	c := readyCore(t, PolicyLinearOrFirst, inventoryLinearSecond)
	move := `[{"LinearCmd":{"Id":50,"DeviceIndex":1,"Vectors":[{"Index":0,"Duration":50,"Position":0.3}]}}]`
	onlyTarget(t, c.HandleRelay([]byte(move)), ToHardware)

	ack := onlyTarget(t, c.HandleHardware([]byte(`[{"Ok":{"Id":"x"}},{"Ok":{"Id":50}}]`)), ToRelay)
	if len(ack) != 1 || ack[0] != `{"type":"command_ok","id":50}` {
		t.Fatalf("valid ok lost with its frame: %v", ack)
	}
}

func TestHeartbeatsAndStatusProduceNoEffects(t *testing.T) {
	testlog.Start(t)
	c := readyCore(t, PolicyLinearOrFirst, inventoryLinearSecond)
	for _, p := range []string{`{"commands":[]}`, `{"type":"ping"}`, `[{"type":"status","state":"ready"}]`, `not json`, `{"type":"bogus"}`} {
		if got := c.HandleRelay([]byte(p)); len(got) != 0 {
			t.Fatalf("payload %s produced effects: %v", p, got)
		}
	}
	if c.Snapshot().SessionState != session.StateDeviceReady {
		t.Fatalf("status push not tracked: %s", c.Snapshot().SessionState)
	}
}

func TestBridgeIssuedIDsStrictlyIncrease(t *testing.T) {
	testlog.Start(t)
	c := readyCore(t, PolicyLinearOrFirst, inventoryLinearSecond)
	last := uint32(2) // inventory request
	for i := 0; i < 20; i++ {
		var payloads []string
		if i%3 == 0 {
			payloads = onlyTarget(t, c.HandleRelay([]byte(`{"type":"stop"}`)), ToHardware)
		} else {
			payloads = onlyTarget(t, c.HandleRelay([]byte(`{"type":"control","position":0.5,"speed":0.4,"sampleIntervalMs":50}`)), ToHardware)
		}
		if len(payloads) != 1 {
			t.Fatalf("iteration %d: unexpected payloads %v", i, payloads)
		}
		id := commandID(t, payloads[0])
		if id <= last {
			t.Fatalf("id %d not greater than %d", id, last)
		}
		last = id
	}
	// a re-handshake keeps the sequence moving forward
	c.HardwareClosed()
	c.HardwareOpened()
	inv := onlyTarget(t, c.HandleHardware([]byte(`[{"ServerInfo":{"Id":1}}]`)), ToHardware)
	if id := commandID(t, inv[0]); id <= last {
		t.Fatalf("inventory id %d reused after reconnect (last %d)", id, last)
	}
}

func TestControlTranslation(t *testing.T) {
	testlog.Start(t)
	c := readyCore(t, PolicyLinearOrFirst, inventoryLinearSecond)
	first := onlyTarget(t, c.HandleRelay([]byte(`{"type":"control","position":0.2,"speed":0.5,"sampleIntervalMs":50}`)), ToHardware)
	if !strings.Contains(first[0], `"Duration":20,"Position":0.2`) {
		t.Fatalf("first control should use minimum duration: %s", first[0])
	}
	final := onlyTarget(t, c.HandleRelay([]byte(`{"type":"control","position":1.4,"speed":0.1,"sampleIntervalMs":50,"isFinal":true}`)), ToHardware)
	if !strings.Contains(final[0], `"Duration":150,"Position":1`) {
		t.Fatalf("final control should clamp and use final duration: %s", final[0])
	}
	if !strings.Contains(final[0], `"DeviceIndex":1`) {
		t.Fatalf("control must target the selected device: %s", final[0])
	}
}

func TestHardwareErrorKeepsSelection(t *testing.T) {
	testlog.Start(t)
	c := readyCore(t, PolicyLinearOrFirst, inventoryLinearSecond)
	if got := c.HandleHardware([]byte(`[{"Error":{"Id":12,"ErrorCode":4,"ErrorMessage":"device busy"}}]`)); len(got) != 0 {
		t.Fatalf("error produced effects: %v", got)
	}
	if c.Snapshot().Device == nil {
		t.Fatalf("selection cleared by hardware error")
	}
}

func TestRelayReconnectReannouncesSelection(t *testing.T) {
	testlog.Start(t)
	c := readyCore(t, PolicyLinearOrFirst, inventoryLinearSecond)
	c.HandleRelay([]byte(`{"type":"status","state":"device_ready"}`))
	c.RelayClosed()
	out := onlyTarget(t, c.RelayOpened(), ToRelay)
	if len(out) != 1 || out[0] != `{"type":"setDeviceIndex","index":1}` {
		t.Fatalf("unexpected re-announce: %v", out)
	}
	if c.Snapshot().SessionState != session.StateWaitingPeer {
		t.Fatalf("session state not reset on reconnect: %s", c.Snapshot().SessionState)
	}
}

func TestHardwareLossClearsSelectionAndShutdownStops(t *testing.T) {
	testlog.Start(t)
	c := readyCore(t, PolicyLinearOrFirst, inventoryLinearSecond)
	stop := onlyTarget(t, c.Shutdown(), ToHardware)
	if len(stop) != 1 || !strings.Contains(stop[0], `"StopDeviceCmd"`) {
		t.Fatalf("unexpected shutdown effects: %v", stop)
	}

	out := onlyTarget(t, c.HardwareClosed(), ToRelay)
	if len(out) != 1 || out[0] != `{"type":"setDeviceIndex","index":null}` {
		t.Fatalf("unexpected loss announce: %v", out)
	}
	if c.Snapshot().Status != StatusHardwareDisconnected {
		t.Fatalf("unexpected status: %s", c.Snapshot().Status)
	}
	if got := c.Shutdown(); len(got) != 0 {
		t.Fatalf("shutdown without device produced effects: %v", got)
	}
	if c.Snapshot().NextID <= hardware.HandshakeID {
		t.Fatalf("unexpected next id: %d", c.Snapshot().NextID)
	}
}
