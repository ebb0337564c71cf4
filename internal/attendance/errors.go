package attendance

import "errors"

// Check-in and enrollment error taxonomy. Handlers branch on these with
// errors.Is; anything else is a storage failure and surfaces as 500.
var (
	// ErrInvalidEmbedding means the embedding has the wrong dimension or
	// contains non-finite values. Rejected at enrollment, never at match time.
	ErrInvalidEmbedding = errors.New("invalid embedding")
	// ErrNoFaceDetected means the capture contained no embeddings.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrAmbiguousCapture means the capture contained more than one embedding;
	// check-in requires exactly one person in frame.
	ErrAmbiguousCapture = errors.New("multiple faces detected")
	// ErrNotRecognized means no enrolled identity matched within the threshold.
	ErrNotRecognized = errors.New("face not recognized")
	// ErrStorageConflict means a concurrent scan for the same identity won the
	// conditional write twice in a row; the caller should resubmit.
	ErrStorageConflict = errors.New("storage conflict")
)
