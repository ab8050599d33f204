package blobstore

// ChunkSize is the default multipart part size.
const ChunkSize int64 = 8 << 20

// Chunk is one part of a multipart upload. PartNumber is 1-indexed.
type Chunk struct {
	Index      int
	PartNumber int32
	Offset     int64
	Length     int64
}

// PlanChunks splits size bytes into ceil(size/chunkSize) parts; every part but
// the last is exactly chunkSize long. A size of 0 (or a non-positive
// chunkSize) yields no parts.
func PlanChunks(size, chunkSize int64) []Chunk {
	if size <= 0 || chunkSize <= 0 {
		return nil
	}

	count := (size + chunkSize - 1) / chunkSize
	chunks := make([]Chunk, 0, count)
	for i := int64(0); i < count; i++ {
		offset := i * chunkSize
		chunks = append(chunks, Chunk{
			Index:      int(i),
			PartNumber: int32(i + 1),
			Offset:     offset,
			Length:     min(chunkSize, size-offset),
		})
	}
	return chunks
}
