package trap

import (
	"os"
	"strconv"
	"testing"

	"github.com/pkg/errors"
)

func TestHandleOneDispatchesToRegisteredHandler(t *testing.T) {
	r := NewInterruptReceiver()
	r.sidecarPath = r.sidecarPath + "-test-" + strconv.Itoa(os.Getpid())
	defer os.Remove(r.sidecarPath)

	if err := os.WriteFile(r.sidecarPath, []byte("3,7\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var gotDevice, gotInterrupt uint32
	called := make(chan struct{})
	r.RegisterHandler(3, func(deviceID, interruptID uint32) {
		gotDevice, gotInterrupt = deviceID, interruptID
		close(called)
	})

	if err := r.handleOne(); err != nil {
		t.Fatalf("handleOne: %v", err)
	}
	<-called

	if gotDevice != 3 || gotInterrupt != 7 {
		t.Fatalf("handler args: got (%d, %d), want (3, 7)", gotDevice, gotInterrupt)
	}
	if _, err := os.Stat(r.sidecarPath); !os.IsNotExist(err) {
		t.Fatal("handleOne: expected the side-channel file to be removed")
	}
}

func TestHandleOneIgnoresUnregisteredDevice(t *testing.T) {
	r := NewInterruptReceiver()
	r.sidecarPath = r.sidecarPath + "-test-" + strconv.Itoa(os.Getpid())
	defer os.Remove(r.sidecarPath)

	os.WriteFile(r.sidecarPath, []byte("99,1\n"), 0o600)

	if err := r.handleOne(); !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("handleOne: got %v, want ErrUnknownDevice", err)
	}
}

func TestHandleOneFailsOnMissingFile(t *testing.T) {
	r := NewInterruptReceiver()
	r.sidecarPath = r.sidecarPath + "-missing-" + strconv.Itoa(os.Getpid())

	if err := r.handleOne(); err == nil {
		t.Fatal("handleOne: expected an error when the side-channel file does not exist")
	}
}
