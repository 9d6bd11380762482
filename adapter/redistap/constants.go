package redistap

// Field constants (avoid typos/allocs)
const (
	fieldHub        = "hub"
	fieldThread     = "thread"
	fieldClient     = "client"
	fieldType       = "type"
	fieldAuthor     = "author"
	fieldAudience   = "audience"
	fieldCodec      = "codec"
	fieldPayload    = "payload"    // raw []byte, no base64
	fieldObservedAt = "observedAt" // int64 ns
)
