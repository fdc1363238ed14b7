package train

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/ajroetker/go-highway/hwy"
	"github.com/pkg/errors"

	"github.com/LaiYongqiang/mindspore/amp"
)

// Checkpoint file layout: a fixed 64-byte header followed by one
// 64-byte metadata record plus 64-byte-aligned weight data per parameter.
//
//	[header (64B)]
//	[meta_0 (64B)] [data_0 (64B aligned)]
//	[meta_1 (64B)] [data_1 (64B aligned)]
//	...
//
// The alignment keeps the data sections memory-map friendly. All integers
// are little-endian.
const (
	checkpointMagic   uint32 = 0x4D535054 // "MSPT"
	checkpointVersion uint32 = 1

	// checkpointAlignment is the byte alignment for every section.
	checkpointAlignment uint64 = 64

	// entrySentinel validates each metadata record on load.
	entrySentinel uint32 = 0x57454947 // "WEIG"

	// maxParamName is the space reserved for a parameter name in the
	// fixed-size metadata record.
	maxParamName = 40
)

// WeightDType selects the on-disk precision of checkpointed weights.
type WeightDType uint32

const (
	// WeightFloat32 stores the master weights at full precision.
	WeightFloat32 WeightDType = 1

	// WeightFloat16 demotes weights to half precision on save. Loading
	// promotes them back to float32; values outside the float16 range
	// round-trip as Inf.
	WeightFloat16 WeightDType = 2
)

type checkpointHeader struct {
	Magic    uint32
	Version  uint32
	Count    uint32
	Reserved [52]byte
}

type entryMeta struct {
	Sentinel uint32
	DType    uint32
	Elems    uint64
	Name     [maxParamName]byte
	Reserved [8]byte
}

// SaveCheckpoint writes the master weights of params to path. Gradients
// and optimizer state are not persisted.
func SaveCheckpoint(path string, params []*Param, dtype WeightDType) error {
	if dtype != WeightFloat32 && dtype != WeightFloat16 {
		return errors.Errorf("unknown weight dtype %d", dtype)
	}
	for _, p := range params {
		if len(p.Name) > maxParamName-1 {
			return errors.Errorf("parameter name %q exceeds %d bytes", p.Name, maxParamName-1)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create checkpoint file")
	}

	header := checkpointHeader{
		Magic:   checkpointMagic,
		Version: checkpointVersion,
		Count:   uint32(len(params)),
	}
	if err := writeStructAt(f, 0, &header); err != nil {
		f.Close()
		return errors.Wrap(err, "write header")
	}

	offset := checkpointAlignment
	for _, p := range params {
		meta := entryMeta{
			Sentinel: entrySentinel,
			DType:    uint32(dtype),
			Elems:    uint64(len(p.Data)),
		}
		copy(meta.Name[:], p.Name)

		metaOffset := offset
		dataOffset := alignTo(metaOffset+checkpointAlignment, checkpointAlignment)

		if err := writeStructAt(f, int64(metaOffset), &meta); err != nil {
			f.Close()
			return errors.Wrapf(err, "write metadata for %q at offset %d", p.Name, metaOffset)
		}

		data := encodeWeights(p.Data, dtype)
		if _, err := f.WriteAt(data, int64(dataOffset)); err != nil {
			f.Close()
			return errors.Wrapf(err, "write data for %q at offset %d", p.Name, dataOffset)
		}

		offset = alignTo(dataOffset+uint64(len(data)), checkpointAlignment)
	}

	return f.Close()
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint. Float16
// entries are promoted back to float32. The returned parameters carry
// zeroed gradient buffers.
func LoadCheckpoint(path string) ([]*Param, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open checkpoint file")
	}
	defer f.Close()

	var header checkpointHeader
	if err := readStructAt(f, 0, &header); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if header.Magic != checkpointMagic {
		return nil, errors.Errorf("bad magic 0x%08X, not a checkpoint file", header.Magic)
	}
	if header.Version != checkpointVersion {
		return nil, errors.Errorf("unsupported checkpoint version %d", header.Version)
	}

	params := make([]*Param, 0, header.Count)
	offset := checkpointAlignment
	for i := uint32(0); i < header.Count; i++ {
		var meta entryMeta
		if err := readStructAt(f, int64(offset), &meta); err != nil {
			return nil, errors.Wrapf(err, "read metadata %d at offset %d", i, offset)
		}
		if meta.Sentinel != entrySentinel {
			return nil, errors.Errorf("corrupt metadata %d at offset %d: bad sentinel 0x%08X", i, offset, meta.Sentinel)
		}

		dtype := WeightDType(meta.DType)
		size, err := weightSize(meta.Elems, dtype)
		if err != nil {
			return nil, errors.Wrapf(err, "metadata %d", i)
		}

		dataOffset := alignTo(offset+checkpointAlignment, checkpointAlignment)
		raw := make([]byte, size)
		if _, err := f.ReadAt(raw, int64(dataOffset)); err != nil {
			return nil, errors.Wrapf(err, "read data %d at offset %d", i, dataOffset)
		}

		name := meta.Name[:]
		for j, b := range name {
			if b == 0 {
				name = name[:j]
				break
			}
		}

		p := NewParam(string(name), int(meta.Elems))
		decodeWeights(p.Data, raw, dtype)
		params = append(params, p)

		offset = alignTo(dataOffset+size, checkpointAlignment)
	}

	return params, nil
}

func encodeWeights(data []float32, dtype WeightDType) []byte {
	switch dtype {
	case WeightFloat16:
		half := make([]hwy.Float16, len(data))
		amp.DemoteFloat16(half, data)
		out := make([]byte, 2*len(half))
		for i, h := range half {
			binary.LittleEndian.PutUint16(out[2*i:], h.Bits())
		}
		return out
	default:
		out := make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
		return out
	}
}

func decodeWeights(dst []float32, raw []byte, dtype WeightDType) {
	switch dtype {
	case WeightFloat16:
		half := make([]hwy.Float16, len(dst))
		for i := range half {
			half[i] = hwy.Float16FromBits(binary.LittleEndian.Uint16(raw[2*i:]))
		}
		amp.PromoteFloat16(dst, half)
	default:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	}
}

func weightSize(elems uint64, dtype WeightDType) (uint64, error) {
	switch dtype {
	case WeightFloat32:
		return 4 * elems, nil
	case WeightFloat16:
		return 2 * elems, nil
	default:
		return 0, errors.Errorf("unknown weight dtype %d", dtype)
	}
}

func writeStructAt(f *os.File, offset int64, data interface{}) error {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	return binary.Write(f, binary.LittleEndian, data)
}

func readStructAt(f *os.File, offset int64, data interface{}) error {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	return binary.Read(f, binary.LittleEndian, data)
}

// alignTo returns the smallest multiple of alignment >= offset.
func alignTo(offset, alignment uint64) uint64 {
	remainder := offset % alignment
	if remainder == 0 {
		return offset
	}
	return offset + (alignment - remainder)
}
