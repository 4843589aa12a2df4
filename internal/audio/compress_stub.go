//go:build !opus

package audio

// Compress returns buf as WAV in builds without libopus.
func Compress(buf Buffer) ([]byte, string, error) {
	return ToContainer(buf), FormatWAV, nil
}

// CompressionAvailable reports whether Compress produces Ogg Opus.
func CompressionAvailable() bool { return false }
