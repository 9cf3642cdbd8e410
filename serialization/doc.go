// Package serialization turns commands into wire bodies and back.
//
// Two pieces live here. The TypeRegistry maps string type tags to command
// factories; it is closed, meaning only tags registered at startup can ever
// be constructed, and an unknown tag on an incoming message is an error
// rather than a class-loading attempt. The Codec frames commands in JSON
// envelopes and transparently zstd-compresses bodies that cross a size
// threshold.
package serialization
