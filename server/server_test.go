package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/Algernon72/PDF2PACS/client"
	"github.com/Algernon72/PDF2PACS/dicom"
	"github.com/Algernon72/PDF2PACS/dimse"
	dcmerr "github.com/Algernon72/PDF2PACS/errors"
	"github.com/Algernon72/PDF2PACS/types"
	"github.com/Algernon72/PDF2PACS/uid"
)

type capturedInstance struct {
	sopClassUID    string
	sopInstanceUID string
	transferSyntax string
	dataset        []byte
}

type captureStore struct {
	mu        sync.Mutex
	status    uint16
	instances []capturedInstance
}

func (c *captureStore) store(sopClassUID, sopInstanceUID, transferSyntaxUID string, dataset []byte) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances = append(c.instances, capturedInstance{
		sopClassUID:    sopClassUID,
		sopInstanceUID: sopInstanceUID,
		transferSyntax: transferSyntaxUID,
		dataset:        append([]byte(nil), dataset...),
	})
	return c.status
}

func (c *captureStore) received() []capturedInstance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capturedInstance(nil), c.instances...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startSCP runs a storage SCP on a loopback port and returns its address.
func startSCP(t *testing.T, store *captureStore) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	srv := New("TEST_SCP", store.store,
		WithLogger(quietLogger()),
		WithReadTimeout(2*time.Second),
		WithWriteTimeout(2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return listener.Addr().String()
}

func clientConfig(called string) client.Config {
	return client.Config{
		CallingAETitle: "TEST_SCU",
		CalledAETitle:  called,
		ReadTimeout:    2 * time.Second,
		WriteTimeout:   2 * time.Second,
		ConnectTimeout: 2 * time.Second,
		Logger:         quietLogger(),
	}
}

func buildObject(t *testing.T, seed string) *dicom.EncapsulatedObject {
	t.Helper()
	r := dicom.NewResolver(dicom.Defaults{}, uid.NewDeterministicGenerator(seed))
	meta, err := r.Resolve(dicom.Input{PatientName: "Rossi Mario", PatientID: "PID001"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	obj, err := dicom.EncapsulatePDF([]byte("%PDF-1.4\nserver test\n%%EOF"), meta)
	if err != nil {
		t.Fatalf("EncapsulatePDF failed: %v", err)
	}
	return obj
}

func TestStoreRoundTrip(t *testing.T) {
	store := &captureStore{status: dimse.StatusSuccess}
	addr := startSCP(t, store)

	assoc, err := client.Connect(addr, clientConfig("TEST_SCP"))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer assoc.Close()

	obj := buildObject(t, t.Name())
	resp, err := assoc.SendCStore(obj)
	if err != nil {
		t.Fatalf("SendCStore failed: %v", err)
	}
	if !dimse.IsSuccess(resp.Status) {
		t.Fatalf("status: got 0x%04x", resp.Status)
	}
	assoc.Close()

	received := store.received()
	if len(received) != 1 {
		t.Fatalf("expected 1 stored instance, got %d", len(received))
	}
	got := received[0]
	if got.sopClassUID != types.EncapsulatedPDFStorage {
		t.Errorf("SOP class: got %q", got.sopClassUID)
	}
	if got.sopInstanceUID != obj.SOPInstanceUID() {
		t.Errorf("SOP instance: got %q", got.sopInstanceUID)
	}
	if got.transferSyntax != types.ExplicitVRLittleEndian {
		t.Errorf("transfer syntax: got %q", got.transferSyntax)
	}

	parsed, err := dicom.ParseDatasetWithTransferSyntax(got.dataset, got.transferSyntax)
	if err != nil {
		t.Fatalf("failed to parse received dataset: %v", err)
	}
	if name := parsed.GetString(dicom.TagPatientName); name != "Rossi^Mario" {
		t.Errorf("patient name: got %q", name)
	}
	if doc := parsed.GetBytes(dicom.TagEncapsulatedDocument); len(doc) == 0 {
		t.Error("encapsulated document missing from received dataset")
	}
}

func TestStoreReturnsHandlerStatus(t *testing.T) {
	store := &captureStore{status: dimse.StatusOutOfResources}
	addr := startSCP(t, store)

	assoc, err := client.Connect(addr, clientConfig("TEST_SCP"))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer assoc.Close()

	resp, err := assoc.SendCStore(buildObject(t, t.Name()))
	if err != nil {
		t.Fatalf("SendCStore failed: %v", err)
	}
	if resp.Status != dimse.StatusOutOfResources {
		t.Errorf("status: got 0x%04x", resp.Status)
	}
	if !dimse.IsFailure(resp.Status) {
		t.Error("expected a failure status")
	}
}

func TestEcho(t *testing.T) {
	store := &captureStore{status: dimse.StatusSuccess}
	addr := startSCP(t, store)

	cfg := clientConfig("TEST_SCP")
	cfg.ProposeVerification = true
	assoc, err := client.Connect(addr, cfg)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer assoc.Close()

	if err := assoc.SendCEcho(); err != nil {
		t.Fatalf("SendCEcho failed: %v", err)
	}
}

func TestRejectsUnknownCalledAE(t *testing.T) {
	store := &captureStore{status: dimse.StatusSuccess}
	addr := startSCP(t, store)

	_, err := client.Connect(addr, clientConfig("WRONG_AE"))
	if !errors.Is(err, dcmerr.ErrAssociationRejected) {
		t.Fatalf("expected ErrAssociationRejected, got %v", err)
	}

	var assocErr *dcmerr.AssociationError
	if !errors.As(err, &assocErr) {
		t.Fatal("expected *AssociationError")
	}
	if assocErr.Reason != dcmerr.RejectReasonCalledAENotRecog {
		t.Errorf("reason: got %d", assocErr.Reason)
	}
}

func TestMultipleStoresOnOneAssociation(t *testing.T) {
	store := &captureStore{status: dimse.StatusSuccess}
	addr := startSCP(t, store)

	assoc, err := client.Connect(addr, clientConfig("TEST_SCP"))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer assoc.Close()

	r := dicom.NewResolver(dicom.Defaults{}, uid.NewDeterministicGenerator(t.Name()))
	for i := 0; i < 3; i++ {
		meta, err := r.Resolve(dicom.Input{PatientName: "Rossi Mario", PatientID: "PID001"})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		obj, err := dicom.EncapsulatePDF([]byte("%PDF-1.4\nbatch\n%%EOF\n"), meta)
		if err != nil {
			t.Fatalf("EncapsulatePDF failed: %v", err)
		}
		resp, err := assoc.SendCStore(obj)
		if err != nil {
			t.Fatalf("SendCStore %d failed: %v", i, err)
		}
		if !dimse.IsSuccess(resp.Status) {
			t.Fatalf("store %d status: 0x%04x", i, resp.Status)
		}
	}
	assoc.Close()

	if got := len(store.received()); got != 3 {
		t.Errorf("expected 3 stored instances, got %d", got)
	}
}

func TestNoGoroutineGrowthAcrossAssociations(t *testing.T) {
	store := &captureStore{status: dimse.StatusSuccess}
	addr := startSCP(t, store)

	// Warm up one association so lazily started runtime goroutines do
	// not count against the baseline.
	assoc, err := client.Connect(addr, clientConfig("TEST_SCP"))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	assoc.Close()

	before := runtime.NumGoroutine()

	const cycles = 30
	for i := 0; i < cycles; i++ {
		assoc, err := client.Connect(addr, clientConfig("TEST_SCP"))
		if err != nil {
			t.Fatalf("Connect %d failed: %v", i, err)
		}
		assoc.Close()
	}

	// Connection handlers unwind asynchronously after the release.
	var after int
	deadline := time.Now().Add(2 * time.Second)
	for {
		after = runtime.NumGoroutine()
		if after <= before+2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if after > before+2 {
		t.Fatalf("goroutines grew from %d to %d over %d associations", before, after, cycles)
	}
}
