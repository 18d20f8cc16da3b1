// Package hardware encodes and decodes the subset of the local
// hardware-control protocol the bridge speaks: handshake, device inventory,
// linear motion, stop, and the Ok/Error responses.
//
// Every request is sent as a single-element JSON array of {"Name": body};
// a response frame may carry several messages.
package hardware
