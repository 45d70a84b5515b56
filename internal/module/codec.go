package module

import (
	"encoding/binary"
	"fmt"

	"github.com/ancvm/ancvm/api"
)

// Load parses a complete module image (spec.md §6) into a Module. It does
// not copy section payloads that can be referenced in place (spec.md
// §4.4: "it does not copy payloads"); Code and the read-only/read-write
// data pools alias the input slice b.
func Load(b []byte, name string, sourceType api.ProgramSourceType) (*Module, error) {
	hdr, err := ReadHeader(b)
	if err != nil {
		return nil, err
	}
	table, err := readSectionTable(b[headerSize:])
	if err != nil {
		return nil, err
	}

	m := &Module{
		Name:               name,
		Runtime:            sourceType,
		EntryFunctionIndex: int(hdr.EntryFunctionIndex),
		FormatMajor:        hdr.Major,
		FormatMinor:        hdr.Minor,
	}

	if sec, ok := table.section(SectionType); ok {
		m.Types, err = decodeTypes(sec)
		if err != nil {
			return nil, err
		}
	}
	if sec, ok := table.section(SectionLocalVariableList); ok {
		m.LocalVariableLists, err = decodeLocalVariableLists(sec)
		if err != nil {
			return nil, err
		}
	}
	if sec, ok := table.section(SectionCode); ok {
		m.Code = sec
	}
	if sec, ok := table.section(SectionFunction); ok {
		m.Functions, err = decodeFunctions(sec)
		if err != nil {
			return nil, err
		}
	}
	for _, kind := range [3]api.DataSectionKind{api.DataSectionReadOnly, api.DataSectionReadWrite, api.DataSectionUninitialized} {
		id := dataSectionID(kind)
		sec, ok := table.section(id)
		if !ok {
			continue
		}
		ds, err := decodeDataSection(sec, kind)
		if err != nil {
			return nil, err
		}
		m.DataSections[kind] = ds
	}
	if sec, ok := table.section(SectionImportFunction); ok {
		m.ImportedFunctions, err = decodeImportedFunctions(sec)
		if err != nil {
			return nil, err
		}
	}
	if sec, ok := table.section(SectionImportData); ok {
		m.ImportedData, err = decodeImportedData(sec)
		if err != nil {
			return nil, err
		}
	}
	if sec, ok := table.section(SectionExternalLibrary); ok {
		m.ExternalLibraries, err = decodeExternalLibraries(sec)
		if err != nil {
			return nil, err
		}
	}
	if sec, ok := table.section(SectionExternalFunction); ok {
		m.ExternalFunctions, err = decodeExternalFunctions(sec)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func dataSectionID(kind api.DataSectionKind) SectionID {
	switch kind {
	case api.DataSectionReadOnly:
		return SectionDataReadOnly
	case api.DataSectionReadWrite:
		return SectionDataReadWrite
	default:
		return SectionDataUninitialized
	}
}

// Save re-encodes m into a module image byte-identical to what Load would
// accept back (spec.md §8 "Image save(load(image)) is bit-identical").
func Save(m *Module) []byte {
	var sections []sectionWrite
	if len(m.Types) > 0 {
		sections = append(sections, sectionWrite{SectionType, encodeTypes(m.Types)})
	}
	if len(m.LocalVariableLists) > 0 {
		sections = append(sections, sectionWrite{SectionLocalVariableList, encodeLocalVariableLists(m.LocalVariableLists)})
	}
	if len(m.Code) > 0 {
		sections = append(sections, sectionWrite{SectionCode, m.Code})
	}
	if len(m.Functions) > 0 {
		sections = append(sections, sectionWrite{SectionFunction, encodeFunctions(m.Functions)})
	}
	for _, kind := range [3]api.DataSectionKind{api.DataSectionReadOnly, api.DataSectionReadWrite, api.DataSectionUninitialized} {
		if ds := m.DataSections[kind]; ds != nil {
			sections = append(sections, sectionWrite{dataSectionID(kind), encodeDataSection(ds)})
		}
	}
	if len(m.ImportedFunctions) > 0 {
		sections = append(sections, sectionWrite{SectionImportFunction, encodeImportedFunctions(m.ImportedFunctions)})
	}
	if len(m.ImportedData) > 0 {
		sections = append(sections, sectionWrite{SectionImportData, encodeImportedData(m.ImportedData)})
	}
	if len(m.ExternalLibraries) > 0 {
		sections = append(sections, sectionWrite{SectionExternalLibrary, encodeExternalLibraries(m.ExternalLibraries)})
	}
	if len(m.ExternalFunctions) > 0 {
		sections = append(sections, sectionWrite{SectionExternalFunction, encodeExternalFunctions(m.ExternalFunctions)})
	}

	body := writeSectionTable(sections)
	out := make([]byte, headerSize+len(body))
	hdr := Header{Magic: ImageMagic, Minor: ImageFormatMinorVersion, Major: ImageFormatMajorVersion, EntryFunctionIndex: int32(m.EntryFunctionIndex)}
	hdr.write(out[:headerSize])
	copy(out[headerSize:], body)
	return out
}

// --- type section: table+data, record = 4x u32 (paramsOff,paramsLen,resultsOff,resultsLen) into a byte pool ---

const typeRecordSize = 16

func decodeTypes(sec []byte) ([]*FunctionType, error) {
	count, records, err := readRecordArea(sec)
	if err != nil {
		return nil, err
	}
	need := int(count) * typeRecordSize
	if len(records) < need {
		return nil, fmt.Errorf("module: type section truncated")
	}
	pool := records[align4(need):]
	types := make([]*FunctionType, count)
	for i := 0; i < int(count); i++ {
		r := records[i*typeRecordSize:]
		pOff := binary.LittleEndian.Uint32(r[0:4])
		pLen := binary.LittleEndian.Uint32(r[4:8])
		rOff := binary.LittleEndian.Uint32(r[8:12])
		rLen := binary.LittleEndian.Uint32(r[12:16])
		if uint64(pOff)+uint64(pLen) > uint64(len(pool)) || uint64(rOff)+uint64(rLen) > uint64(len(pool)) {
			return nil, fmt.Errorf("module: type %d out of range", i)
		}
		types[i] = &FunctionType{
			Params:  append([]byte(nil), pool[pOff:pOff+pLen]...),
			Results: append([]byte(nil), pool[rOff:rOff+rLen]...),
		}
	}
	return types, nil
}

func encodeTypes(types []*FunctionType) []byte {
	records := make([]byte, len(types)*typeRecordSize)
	var pool []byte
	for i, t := range types {
		pOff := uint32(len(pool))
		pool = append(pool, t.Params...)
		rOff := uint32(len(pool))
		pool = append(pool, t.Results...)
		r := records[i*typeRecordSize:]
		binary.LittleEndian.PutUint32(r[0:4], pOff)
		binary.LittleEndian.PutUint32(r[4:8], uint32(len(t.Params)))
		binary.LittleEndian.PutUint32(r[8:12], rOff)
		binary.LittleEndian.PutUint32(r[12:16], uint32(len(t.Results)))
	}
	out := writeRecordAreaHeader(uint32(len(types)))
	out = append(out, records...)
	out = append(out, make([]byte, align4(len(records))-len(records))...)
	out = append(out, pool...)
	return out
}

// --- local-variable-list section: table+data, record = argCount u32, itemsOff u32, itemsCount u32;
// pool item = type u8 + 3 pad, lengthBytes u32, alignment u32 (12 bytes) ---

const localListRecordSize = 12
const localItemSize = 12

func decodeLocalVariableLists(sec []byte) ([]*LocalVariableList, error) {
	count, records, err := readRecordArea(sec)
	if err != nil {
		return nil, err
	}
	need := int(count) * localListRecordSize
	if len(records) < need {
		return nil, fmt.Errorf("module: local-variable-list section truncated")
	}
	pool := records[align4(need):]
	lists := make([]*LocalVariableList, count)
	for i := 0; i < int(count); i++ {
		r := records[i*localListRecordSize:]
		argCount := binary.LittleEndian.Uint32(r[0:4])
		itemsOff := binary.LittleEndian.Uint32(r[4:8])
		itemsCount := binary.LittleEndian.Uint32(r[8:12])
		items := make([]LocalVariableItem, itemsCount)
		for j := 0; j < int(itemsCount); j++ {
			off := int(itemsOff) + j*localItemSize
			if off+localItemSize > len(pool) {
				return nil, fmt.Errorf("module: local-variable-list %d item %d out of range", i, j)
			}
			ir := pool[off:]
			items[j] = LocalVariableItem{
				Type:        ir[0],
				LengthBytes: binary.LittleEndian.Uint32(ir[4:8]),
				Alignment:   binary.LittleEndian.Uint32(ir[8:12]),
			}
		}
		lists[i] = NewLocalVariableList(items, int(argCount))
	}
	return lists, nil
}

func encodeLocalVariableLists(lists []*LocalVariableList) []byte {
	records := make([]byte, len(lists)*localListRecordSize)
	var pool []byte
	for i, l := range lists {
		itemsOff := uint32(len(pool))
		for _, it := range l.Items {
			ir := make([]byte, localItemSize)
			ir[0] = it.Type
			binary.LittleEndian.PutUint32(ir[4:8], it.LengthBytes)
			binary.LittleEndian.PutUint32(ir[8:12], it.Alignment)
			pool = append(pool, ir...)
		}
		argCount := argItemCount(l)
		r := records[i*localListRecordSize:]
		binary.LittleEndian.PutUint32(r[0:4], uint32(argCount))
		binary.LittleEndian.PutUint32(r[4:8], itemsOff)
		binary.LittleEndian.PutUint32(r[8:12], uint32(len(l.Items)))
	}
	out := writeRecordAreaHeader(uint32(len(lists)))
	out = append(out, records...)
	out = append(out, make([]byte, align4(len(records))-len(records))...)
	out = append(out, pool...)
	return out
}

// argItemCount recovers how many leading items make up the declared
// ArgumentBytes prefix, so a round trip reproduces the original argCount.
func argItemCount(l *LocalVariableList) int {
	var sum uint32
	for i, it := range l.Items {
		if sum >= l.ArgumentBytes {
			return i
		}
		sum = it.Offset + it.LengthBytes
	}
	return len(l.Items)
}

// --- function section: table-only, record = typeIndex,localListIndex,codeOffset,codeLength (u32 x4) ---

const functionRecordSize = 16

func decodeFunctions(sec []byte) ([]*FunctionEntry, error) {
	count, records, err := readRecordArea(sec)
	if err != nil {
		return nil, err
	}
	need := int(count) * functionRecordSize
	if len(records) < need {
		return nil, fmt.Errorf("module: function section truncated")
	}
	fns := make([]*FunctionEntry, count)
	for i := 0; i < int(count); i++ {
		r := records[i*functionRecordSize:]
		fns[i] = &FunctionEntry{
			TypeIndex:      binary.LittleEndian.Uint32(r[0:4]),
			LocalListIndex: binary.LittleEndian.Uint32(r[4:8]),
			CodeOffset:     binary.LittleEndian.Uint32(r[8:12]),
			CodeLength:     binary.LittleEndian.Uint32(r[12:16]),
		}
	}
	return fns, nil
}

func encodeFunctions(fns []*FunctionEntry) []byte {
	records := make([]byte, len(fns)*functionRecordSize)
	for i, f := range fns {
		r := records[i*functionRecordSize:]
		binary.LittleEndian.PutUint32(r[0:4], f.TypeIndex)
		binary.LittleEndian.PutUint32(r[4:8], f.LocalListIndex)
		binary.LittleEndian.PutUint32(r[8:12], f.CodeOffset)
		binary.LittleEndian.PutUint32(r[12:16], f.CodeLength)
	}
	out := writeRecordAreaHeader(uint32(len(fns)))
	return append(out, records...)
}

// --- data sections: table+data, record = offset,length,alignment (u32 x3); pool = raw object bytes ---

const dataObjectRecordSize = 12

func decodeDataSection(sec []byte, kind api.DataSectionKind) (*DataSection, error) {
	count, records, err := readRecordArea(sec)
	if err != nil {
		return nil, err
	}
	need := int(count) * dataObjectRecordSize
	if len(records) < need {
		return nil, fmt.Errorf("module: data section truncated")
	}
	pool := records[align4(need):]
	objects := make([]DataObject, count)
	var poolSize uint32
	for i := 0; i < int(count); i++ {
		r := records[i*dataObjectRecordSize:]
		objects[i] = DataObject{
			Offset:    binary.LittleEndian.Uint32(r[0:4]),
			Length:    binary.LittleEndian.Uint32(r[4:8]),
			Alignment: binary.LittleEndian.Uint32(r[8:12]),
		}
		if end := objects[i].Offset + objects[i].Length; end > poolSize {
			poolSize = end
		}
	}
	ds := &DataSection{Kind: kind, Objects: objects}
	if kind == api.DataSectionUninitialized {
		ds.Pool = make([]byte, poolSize) // zeroed at load, not read from the image
	} else {
		if uint32(len(pool)) < poolSize {
			return nil, fmt.Errorf("module: data section pool truncated")
		}
		ds.Pool = pool[:poolSize]
	}
	return ds, nil
}

func encodeDataSection(ds *DataSection) []byte {
	records := make([]byte, len(ds.Objects)*dataObjectRecordSize)
	for i, o := range ds.Objects {
		r := records[i*dataObjectRecordSize:]
		binary.LittleEndian.PutUint32(r[0:4], o.Offset)
		binary.LittleEndian.PutUint32(r[4:8], o.Length)
		binary.LittleEndian.PutUint32(r[8:12], o.Alignment)
	}
	out := writeRecordAreaHeader(uint32(len(ds.Objects)))
	out = append(out, records...)
	out = append(out, make([]byte, align4(len(records))-len(records))...)
	if ds.Kind != api.DataSectionUninitialized {
		out = append(out, ds.Pool...)
	}
	return out
}

// --- import-function / import-data / external-library / external-function sections:
// table+data, with a shared UTF-8 string pool per section. ---

const importFunctionRecordSize = 20

func decodeImportedFunctions(sec []byte) ([]*ImportedFunction, error) {
	count, records, err := readRecordArea(sec)
	if err != nil {
		return nil, err
	}
	need := int(count) * importFunctionRecordSize
	pool := records[align4(need):]
	out := make([]*ImportedFunction, count)
	for i := 0; i < int(count); i++ {
		r := records[i*importFunctionRecordSize:]
		modName, err := readString(pool, r[0:8])
		if err != nil {
			return nil, err
		}
		fnName, err := readString(pool, r[8:16])
		if err != nil {
			return nil, err
		}
		out[i] = &ImportedFunction{ModuleName: modName, FunctionName: fnName, TypeIndex: binary.LittleEndian.Uint32(r[16:20])}
	}
	return out, nil
}

func encodeImportedFunctions(fns []*ImportedFunction) []byte {
	records := make([]byte, len(fns)*importFunctionRecordSize)
	var pool []byte
	for i, f := range fns {
		r := records[i*importFunctionRecordSize:]
		pool = writeString(pool, r[0:8], f.ModuleName)
		pool = writeString(pool, r[8:16], f.FunctionName)
		binary.LittleEndian.PutUint32(r[16:20], f.TypeIndex)
	}
	out := writeRecordAreaHeader(uint32(len(fns)))
	out = append(out, records...)
	out = append(out, make([]byte, align4(len(records))-len(records))...)
	return append(out, pool...)
}

const importDataRecordSize = 20

func decodeImportedData(sec []byte) ([]*ImportedData, error) {
	count, records, err := readRecordArea(sec)
	if err != nil {
		return nil, err
	}
	need := int(count) * importDataRecordSize
	pool := records[align4(need):]
	out := make([]*ImportedData, count)
	for i := 0; i < int(count); i++ {
		r := records[i*importDataRecordSize:]
		modName, err := readString(pool, r[0:8])
		if err != nil {
			return nil, err
		}
		dataName, err := readString(pool, r[8:16])
		if err != nil {
			return nil, err
		}
		out[i] = &ImportedData{ModuleName: modName, DataName: dataName, Kind: api.DataSectionKind(r[16])}
	}
	return out, nil
}

func encodeImportedData(ds []*ImportedData) []byte {
	records := make([]byte, len(ds)*importDataRecordSize)
	var pool []byte
	for i, d := range ds {
		r := records[i*importDataRecordSize:]
		pool = writeString(pool, r[0:8], d.ModuleName)
		pool = writeString(pool, r[8:16], d.DataName)
		r[16] = byte(d.Kind)
	}
	out := writeRecordAreaHeader(uint32(len(ds)))
	out = append(out, records...)
	out = append(out, make([]byte, align4(len(records))-len(records))...)
	return append(out, pool...)
}

const externalLibraryRecordSize = 12

func decodeExternalLibraries(sec []byte) ([]*ExternalLibraryRef, error) {
	count, records, err := readRecordArea(sec)
	if err != nil {
		return nil, err
	}
	need := int(count) * externalLibraryRecordSize
	pool := records[align4(need):]
	out := make([]*ExternalLibraryRef, count)
	for i := 0; i < int(count); i++ {
		r := records[i*externalLibraryRecordSize:]
		value, err := readString(pool, r[4:12])
		if err != nil {
			return nil, err
		}
		out[i] = &ExternalLibraryRef{Kind: ExternalLibraryKind(r[0]), Value: value}
	}
	return out, nil
}

func encodeExternalLibraries(libs []*ExternalLibraryRef) []byte {
	records := make([]byte, len(libs)*externalLibraryRecordSize)
	var pool []byte
	for i, l := range libs {
		r := records[i*externalLibraryRecordSize:]
		r[0] = byte(l.Kind)
		pool = writeString(pool, r[4:12], l.Value)
	}
	out := writeRecordAreaHeader(uint32(len(libs)))
	out = append(out, records...)
	out = append(out, make([]byte, align4(len(records))-len(records))...)
	return append(out, pool...)
}

const externalFunctionRecordSize = 16

func decodeExternalFunctions(sec []byte) ([]*ExternalFunctionRef, error) {
	count, records, err := readRecordArea(sec)
	if err != nil {
		return nil, err
	}
	need := int(count) * externalFunctionRecordSize
	pool := records[align4(need):]
	out := make([]*ExternalFunctionRef, count)
	for i := 0; i < int(count); i++ {
		r := records[i*externalFunctionRecordSize:]
		symbol, err := readString(pool, r[4:12])
		if err != nil {
			return nil, err
		}
		out[i] = &ExternalFunctionRef{
			LibraryIndex: binary.LittleEndian.Uint32(r[0:4]),
			Symbol:       symbol,
			TypeIndex:    binary.LittleEndian.Uint32(r[12:16]),
		}
	}
	return out, nil
}

func encodeExternalFunctions(fns []*ExternalFunctionRef) []byte {
	records := make([]byte, len(fns)*externalFunctionRecordSize)
	var pool []byte
	for i, f := range fns {
		r := records[i*externalFunctionRecordSize:]
		binary.LittleEndian.PutUint32(r[0:4], f.LibraryIndex)
		pool = writeString(pool, r[4:12], f.Symbol)
		binary.LittleEndian.PutUint32(r[12:16], f.TypeIndex)
	}
	out := writeRecordAreaHeader(uint32(len(fns)))
	out = append(out, records...)
	out = append(out, make([]byte, align4(len(records))-len(records))...)
	return append(out, pool...)
}

// readString decodes a UTF-8 string referenced by an {offset u32, length
// u32} pair at field (spec.md §4.4 "String fields are UTF-8 and are
// referenced by byte offset and length into the section's data area").
func readString(pool []byte, field []byte) (string, error) {
	off := binary.LittleEndian.Uint32(field[0:4])
	length := binary.LittleEndian.Uint32(field[4:8])
	if uint64(off)+uint64(length) > uint64(len(pool)) {
		return "", fmt.Errorf("module: string field out of range")
	}
	return string(pool[off : off+length]), nil
}

func writeString(pool []byte, field []byte, s string) []byte {
	binary.LittleEndian.PutUint32(field[0:4], uint32(len(pool)))
	binary.LittleEndian.PutUint32(field[4:8], uint32(len(s)))
	return append(pool, s...)
}
