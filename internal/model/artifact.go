package model

// UploadRequest is an untrusted artifact submitted for scanning. It is consumed
// once by the orchestrator and never persisted.
type UploadRequest struct {
	Filename string
	Content  []byte
	// Size is the size declared by the caller, e.g. a multipart header.
	Size int64
}

// EffectiveSize is the larger of the declared size and the actual content length,
// so an understated declaration cannot slip past the size policy.
func (r UploadRequest) EffectiveSize() int64 {
	return max(r.Size, int64(len(r.Content)))
}
