// Package wire implements the self-describing tagged value encoding shared
// by every carrier.
//
// Each binary value starts with a 4-byte little-endian tag word naming its
// kind. Lists carry an explicit element count; lists whose elements share
// one kind are written as a typed list with the element tag folded into the
// list tag and the elements packed without tags. The same values have a
// printable text form for debugging, and a Reader detects which form a
// stream carries from the first tag word it sees.
//
// A Reader is sticky: the first failure (a short read, an unknown or
// mismatched tag, a bad length) is remembered and returned by every later
// call, and the connection that owns it is expected to be torn down.
package wire
