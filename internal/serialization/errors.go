package serialization

import "errors"

var (
	// ErrInvalidMagic marks a file that is not a checkpoint.
	ErrInvalidMagic = errors.New("serialization: invalid magic bytes")
	// ErrUnsupportedVersion marks a checkpoint from an unknown format
	// revision.
	ErrUnsupportedVersion = errors.New("serialization: unsupported format version")
	// ErrChecksumMismatch marks payload corruption.
	ErrChecksumMismatch = errors.New("serialization: checksum mismatch")
	// ErrTruncated marks a file shorter than its own metadata claims.
	ErrTruncated = errors.New("serialization: truncated file")
	// ErrInvalidHeader marks unparseable or inconsistent header JSON.
	ErrInvalidHeader = errors.New("serialization: invalid header")
	// ErrInvalidTensorMeta marks tensor metadata whose offsets, sizes or
	// shapes do not line up with the data section.
	ErrInvalidTensorMeta = errors.New("serialization: invalid tensor metadata")
)
