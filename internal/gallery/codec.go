package gallery

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/your-org/attendance/internal/models"
)

func encodeEmbedding(e models.Embedding) []byte {
	buf := make([]byte, 4*len(e))
	for i, v := range e {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) (models.Embedding, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding payload length %d is not a multiple of 4", len(buf))
	}
	out := make(models.Embedding, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}
