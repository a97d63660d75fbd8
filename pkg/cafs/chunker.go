package cafs

// ChunkSize is the fixed size of every stored chunk
const ChunkSize = 512

// Block is the padded payload of a chunk
type Block [ChunkSize]byte

// Chunk is a fixed-size block of a file, with its content key and its position in the file.
//
// Chunks are immutable once created and hold no reference to the files they belong to.
type Chunk struct {
	Key   Key
	Data  Block
	Index int
}

// Split cuts a buffer into chunks of ChunkSize bytes.
//
// The last chunk is padded with zeroes when the buffer length is not a multiple of ChunkSize.
// An empty buffer yields no chunk.
func Split(data []byte) []Chunk {
	chunks := make([]Chunk, 0, ChunkCount(uint64(len(data))))
	for idx, offset := 0, 0; offset < len(data); idx, offset = idx+1, offset+ChunkSize {
		end := offset + ChunkSize
		if end > len(data) {
			end = len(data)
		}

		c := Chunk{Index: idx}
		copy(c.Data[:], data[offset:end])
		c.Key = HashBlock(&c.Data)
		chunks = append(chunks, c)
	}
	return chunks
}

// Keys returns the keys of a chunk sequence, in sequence order
func Keys(chunks []Chunk) []Key {
	keys := make([]Key, len(chunks))
	for i := range chunks {
		keys[i] = chunks[i].Key
	}
	return keys
}

// ChunkCount is the number of chunks covering a file of the given size
func ChunkCount(size uint64) int {
	return int((size + ChunkSize - 1) / ChunkSize)
}

// LiveLen is the number of bytes of the chunk at index which belong to a file of the given size.
//
// It is ChunkSize for all chunks but the last one, which is clipped to the remaining bytes.
func LiveLen(size uint64, index int) int {
	offset := uint64(index) * ChunkSize
	if offset >= size {
		return 0
	}
	if remaining := size - offset; remaining < ChunkSize {
		return int(remaining)
	}
	return ChunkSize
}
