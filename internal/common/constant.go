package common

// SessionIDBytes is the number of random bytes behind a capture session id.
// The hex encoding is twice as long.
const SessionIDBytes = 16

// SessionIDLength is the length of a hex encoded capture session id.
const SessionIDLength = SessionIDBytes * 2

// ContentTypeHeader is set on direct-to-storage uploads and must match the
// content type the upload intent was issued for.
const ContentTypeHeader = "Content-Type"

// IfNoneMatchHeader makes a storage PUT conditional on the key being absent,
// so a replayed presigned URL cannot overwrite an accepted object.
const IfNoneMatchHeader = "If-None-Match"
