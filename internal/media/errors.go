package media

import "fmt"

// ProbeError indicates the prober could not parse a media file. Probe
// failures are not retried; a corrupt or unsupported container stays corrupt.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe failed for %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// TranscoderError indicates a transcoder subprocess failure. Stderr is kept
// so callers can classify recoverable failures (the burn-in path retry keys
// off it).
type TranscoderError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *TranscoderError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("transcoder %s failed: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("transcoder %s failed: %v", e.Op, e.Err)
}

func (e *TranscoderError) Unwrap() error {
	return e.Err
}
