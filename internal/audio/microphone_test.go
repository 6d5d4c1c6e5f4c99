package audio

import "testing"

func TestMatchDevice(t *testing.T) {
	names := []string{"MacBook Pro Microphone", "USB Audio Device", "AirPods Pro"}

	if got := matchDevice(names, "airpods"); got != 2 {
		t.Errorf("matchDevice(airpods) = %d, want 2", got)
	}
	if got := matchDevice(names, " usb "); got != 1 {
		t.Errorf("matchDevice(usb) = %d, want 1", got)
	}
	if got := matchDevice(names, "Webcam"); got != -1 {
		t.Errorf("matchDevice(Webcam) = %d, want -1", got)
	}
}
