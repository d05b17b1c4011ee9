// Package status mirrors the last status pushed by each receiver.
//
// A ReceiverStatus is replaced wholesale on every push; readers always get
// a complete, private copy. Each receiver has at most one Writer at a time
// (its connection supervisor), obtained through Mirror.Claim.
package status
