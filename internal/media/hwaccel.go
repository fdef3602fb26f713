package media

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// HWAccelMode describes the hardware acceleration flags selected for the
// host. Empty fields mean software encoding.
type HWAccelMode struct {
	HWAccel    string // value for the -hwaccel input flag
	VideoCodec string // matching encoder, e.g. h264_nvenc
}

// Software reports whether the mode falls back to software encoding.
func (m HWAccelMode) Software() bool {
	return m.HWAccel == ""
}

// HWAccelDetector probes the host once and caches the selected mode.
type HWAccelDetector struct {
	goos        string
	probeNVIDIA func(ctx context.Context) bool

	mu       sync.Mutex
	detected bool
	mode     HWAccelMode
}

// NewHWAccelDetector creates a detector for the current platform.
func NewHWAccelDetector() *HWAccelDetector {
	return &HWAccelDetector{
		goos:        runtime.GOOS,
		probeNVIDIA: probeNVIDIASMI,
	}
}

// Detect returns the hardware acceleration mode for the host. When enabled
// is false the software mode is returned without probing.
func (d *HWAccelDetector) Detect(ctx context.Context, enabled bool) HWAccelMode {
	if !enabled {
		return HWAccelMode{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.detected {
		return d.mode
	}

	d.mode = d.selectMode(ctx)
	d.detected = true
	return d.mode
}

func (d *HWAccelDetector) selectMode(ctx context.Context) HWAccelMode {
	switch d.goos {
	case "darwin":
		return HWAccelMode{HWAccel: "videotoolbox", VideoCodec: "h264_videotoolbox"}
	case "windows":
		// NVIDIA first, Intel QuickSync as the secondary hardware path
		if d.probeNVIDIA(ctx) {
			return HWAccelMode{HWAccel: "cuda", VideoCodec: "h264_nvenc"}
		}
		return HWAccelMode{HWAccel: "qsv", VideoCodec: "h264_qsv"}
	case "linux":
		return HWAccelMode{HWAccel: "vaapi", VideoCodec: "h264_vaapi"}
	}
	return HWAccelMode{}
}

// probeNVIDIASMI checks for an NVIDIA GPU via nvidia-smi.
func probeNVIDIASMI(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "nvidia-smi")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return false
	}

	return strings.Contains(stdout.String(), "NVIDIA-SMI")
}
