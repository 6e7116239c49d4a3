package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeOccupancy packs a flat occupancy mask (x-fastest, then y, then z)
// into base64(varint pairs). The pairs are (value, run_len) repeated. Room
// layouts are mostly empty space, so runs compress the mask well.
func EncodeOccupancy(mask []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(mask) {
		v := mask[i]
		run := 1
		for j := i + 1; j < len(mask) && mask[j] == v && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(v))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeOccupancy reverses EncodeOccupancy.
func DecodeOccupancy(s string) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("occupancy base64: %w", err)
	}

	var out []uint16
	buf := bytes.NewReader(raw)
	for buf.Len() > 0 {
		v, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("occupancy value varint: %w", err)
		}
		if v > 0xFFFF {
			return nil, fmt.Errorf("occupancy value %d out of range", v)
		}
		run, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("occupancy run varint: %w", err)
		}
		if run == 0 || run > 1<<31 {
			return nil, fmt.Errorf("occupancy run %d out of range", run)
		}
		for i := uint64(0); i < run; i++ {
			out = append(out, uint16(v))
		}
	}
	return out, nil
}
