// Package stream holds the capability interfaces (ByteStream, ByteStream2,
// Yield) and the shared sentinel-error taxonomy that every producer,
// decoder, and wrapper package in this module is built against. See
// bytestream.go, yield.go and errors.go for the contracts themselves.
package stream
