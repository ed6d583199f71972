package heap

import "bytes"

// Wasm binary format constants used by the memory-only module.
const (
	sectionMemory byte = 5
	sectionExport byte = 7
	externMemory  byte = 0x02
	limitsMinMax  byte = 0x01
)

var (
	wasmMagic   = []byte{0x00, 0x61, 0x73, 0x6d}
	wasmVersion = []byte{0x01, 0x00, 0x00, 0x00}
)

// memoryName is the export name of the heap memory.
const memoryName = "memory"

// encodeMemoryModule builds a module equivalent to
//
//	(module (memory (export "memory") min max))
func encodeMemoryModule(minPages, maxPages uint32) []byte {
	var mem bytes.Buffer
	writeLEB128u(&mem, 1)
	mem.WriteByte(limitsMinMax)
	writeLEB128u(&mem, minPages)
	writeLEB128u(&mem, maxPages)

	var exp bytes.Buffer
	writeLEB128u(&exp, 1)
	writeName(&exp, memoryName)
	exp.WriteByte(externMemory)
	writeLEB128u(&exp, 0)

	var out bytes.Buffer
	out.Write(wasmMagic)
	out.Write(wasmVersion)
	writeSection(&out, sectionMemory, mem.Bytes())
	writeSection(&out, sectionExport, exp.Bytes())
	return out.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	writeLEB128u(w, uint32(len(data)))
	w.Write(data)
}

func writeName(w *bytes.Buffer, name string) {
	writeLEB128u(w, uint32(len(name)))
	w.WriteString(name)
}

// writeLEB128u writes an unsigned LEB128 value
func writeLEB128u(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			return
		}
	}
}
