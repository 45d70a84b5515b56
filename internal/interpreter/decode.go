package interpreter

import "encoding/binary"

// payload readers. p is the instruction's payload, i.e. the bytes after
// the 2-byte opcode, sized per the opcode's scheme (opcode.go).

func pU16(p []byte, at int) uint16 { return binary.LittleEndian.Uint16(p[at:]) }
func pU32(p []byte, at int) uint32 { return binary.LittleEndian.Uint32(p[at:]) }

// schemeB: u16 at offset 0.
func decodeB(p []byte) uint16 { return pU16(p, 0) }

// schemeC: u16 pad at 0, u32 at 2.
func decodeC(p []byte) uint32 { return pU32(p, 2) }

// schemeD: u16 at 0, u32 at 2.
func decodeD(p []byte) (uint16, uint32) { return pU16(p, 0), pU32(p, 2) }

// schemeE: u16, u16, u16 at 0, 2, 4.
func decodeE(p []byte) (uint16, uint16, uint16) { return pU16(p, 0), pU16(p, 2), pU16(p, 4) }

// schemeF: u16 pad at 0, u32 at 2, u32 at 6.
func decodeF(p []byte) (uint32, uint32) { return pU32(p, 2), pU32(p, 6) }

// schemeG: u16 pad at 0, u32 at 2, u32 at 6, u32 at 10.
func decodeG(p []byte) (uint32, uint32, uint32) { return pU32(p, 2), pU32(p, 6), pU32(p, 10) }
