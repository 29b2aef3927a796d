package connector

import (
	"testing"
	"time"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

func TestNewConnectorStartsAvailable(t *testing.T) {
	c := NewConnector(1)
	status, errCode := c.Status()
	if status != types.StatusAvailable || errCode != types.NoError {
		t.Fatalf("got (%s, %s), want (%s, %s)", status, errCode, types.StatusAvailable, types.NoError)
	}
	if !c.IsAvailable() {
		t.Error("expected a fresh connector to be available")
	}
}

func TestPlugInPlugOutCycle(t *testing.T) {
	c := NewConnector(1)
	if !c.PlugIn() {
		t.Fatal("PlugIn should succeed from Available")
	}
	if status, _ := c.Status(); status != types.StatusPreparing {
		t.Fatalf("status = %s, want %s", status, types.StatusPreparing)
	}
	if c.PlugIn() {
		t.Error("PlugIn should not succeed twice in a row")
	}
	if !c.PlugOut() {
		t.Fatal("PlugOut should succeed with no active transaction")
	}
	if status, _ := c.Status(); status != types.StatusAvailable {
		t.Fatalf("status = %s, want %s", status, types.StatusAvailable)
	}
}

func TestPlugOutWithActiveTransactionGoesToFinishing(t *testing.T) {
	c := NewConnector(1)
	c.PlugIn()
	c.StartTransaction("ABC", time.Now())
	if !c.PlugOut() {
		t.Fatal("PlugOut should transition a charging connector")
	}
	if status, _ := c.Status(); status != types.StatusFinishing {
		t.Fatalf("status = %s, want %s", status, types.StatusFinishing)
	}
}

func TestStartStopTransactionLifecycle(t *testing.T) {
	c := NewConnector(1)
	c.PlugIn()

	start := time.Now()
	if !c.StartTransaction("ABC", start) {
		t.Fatal("StartTransaction should succeed")
	}
	if status, _ := c.Status(); status != types.StatusCharging {
		t.Fatalf("status = %s, want %s", status, types.StatusCharging)
	}
	if _, ok := c.TransactionId(); ok {
		t.Error("transaction id should be unknown until AssignTransactionId")
	}

	c.AssignTransactionId(42)
	if txId, ok := c.TransactionId(); !ok || txId != 42 {
		t.Fatalf("TransactionId() = (%d, %v), want (42, true)", txId, ok)
	}
	if got := c.TransactionStart(); !got.Equal(start) {
		t.Errorf("TransactionStart() = %v, want %v", got, start)
	}

	txId, idTag, ok := c.StopTransaction()
	if !ok || txId != 42 || idTag != "ABC" {
		t.Fatalf("StopTransaction() = (%d, %s, %v), want (42, ABC, true)", txId, idTag, ok)
	}
	if status, _ := c.Status(); status != types.StatusFinishing {
		t.Fatalf("status = %s, want %s", status, types.StatusFinishing)
	}
	if _, ok := c.TransactionId(); ok {
		t.Error("transaction id should be cleared after StopTransaction")
	}
}

func TestStopTransactionWithNoneRunning(t *testing.T) {
	c := NewConnector(1)
	if _, _, ok := c.StopTransaction(); ok {
		t.Error("StopTransaction should report false with no running transaction")
	}
}

func TestSuspendAndResume(t *testing.T) {
	c := NewConnector(1)
	c.PlugIn()
	c.StartTransaction("ABC", time.Now())

	if !c.SuspendEV() {
		t.Fatal("SuspendEV should succeed while Charging")
	}
	if status, _ := c.Status(); status != types.StatusSuspendedEV {
		t.Fatalf("status = %s, want %s", status, types.StatusSuspendedEV)
	}
	if !c.ResumeCharging() {
		t.Fatal("ResumeCharging should succeed from SuspendedEV")
	}
	if status, _ := c.Status(); status != types.StatusCharging {
		t.Fatalf("status = %s, want %s", status, types.StatusCharging)
	}
}

func TestFaultAndClearFault(t *testing.T) {
	c := NewConnector(1)
	c.PlugIn()
	c.StartTransaction("ABC", time.Now())

	if !c.Fault("OtherError") {
		t.Fatal("Fault should transition from any state")
	}
	if status, errCode := c.Status(); status != types.StatusFaulted || errCode != "OtherError" {
		t.Fatalf("got (%s, %s), want (%s, OtherError)", status, errCode, types.StatusFaulted)
	}
	if !c.ClearFault() {
		t.Fatal("ClearFault should succeed from Faulted")
	}
	if status, _ := c.Status(); status != types.StatusAvailable {
		t.Fatalf("status = %s, want %s", status, types.StatusAvailable)
	}
}

func TestReserveAndExpire(t *testing.T) {
	c := NewConnector(1)
	if !c.Reserve(7) {
		t.Fatal("Reserve should succeed from Available")
	}
	if status, _ := c.Status(); status != types.StatusReserved {
		t.Fatalf("status = %s, want %s", status, types.StatusReserved)
	}
	if c.PlugIn() {
		t.Error("PlugIn should not succeed on a reserved connector")
	}
	if !c.ReservationExpire() {
		t.Fatal("ReservationExpire should succeed from Reserved")
	}
	if status, _ := c.Status(); status != types.StatusAvailable {
		t.Fatalf("status = %s, want %s", status, types.StatusAvailable)
	}
}

func TestSetAvailabilityDefersWhileCharging(t *testing.T) {
	c := NewConnector(1)
	c.PlugIn()
	c.StartTransaction("ABC", time.Now())

	scheduled := c.SetAvailability(false)
	if !scheduled {
		t.Fatal("SetAvailability(false) should defer while a transaction is running")
	}
	if status, _ := c.Status(); status == types.StatusUnavailable {
		t.Error("connector should not go Unavailable immediately with a running transaction")
	}
	if c.IsAvailable() {
		t.Error("IsAvailable should reflect the deferred Inoperative request")
	}
}

func TestSetAvailabilityImmediateWhenIdle(t *testing.T) {
	c := NewConnector(1)
	if scheduled := c.SetAvailability(false); scheduled {
		t.Fatal("SetAvailability(false) should not defer on an idle connector")
	}
	if status, _ := c.Status(); status != types.StatusUnavailable {
		t.Fatalf("status = %s, want %s", status, types.StatusUnavailable)
	}
	if c.SetAvailability(true) {
		t.Fatal("SetAvailability(true) never defers")
	}
	if status, _ := c.Status(); status != types.StatusAvailable {
		t.Fatalf("status = %s, want %s", status, types.StatusAvailable)
	}
}
