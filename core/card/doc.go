// Package card
// Author: momentics <momentics@gmail.com>
//
// Implements the typed value and fixed-width card encoding of the status registry.
//
// A card is one (key, value) record packed into CardSize bytes so that the
// registry region has deterministic, alignment-friendly offsets:
//   - 16-byte NUL padded key
//   - 1-byte type tag and 1-byte text length
//   - 72-byte payload (little-endian numbers or padded text)
//
// Byte order is fixed little-endian for every attached process.
package card
