package vectorstore

// Record is one persisted vector with its attached metadata.
//
// For the restaurant corpus the ID is "{restaurantID}_chunk_{n}" and the
// metadata carries the full denormalized restaurant record plus the chunk
// content and position, so every record is self-describing at query time.
type Record struct {
	// ID is the unique record identifier.
	ID string

	// Vector is the embedding for the record's content.
	Vector []float32

	// Metadata holds arbitrary key-value payload stored with the vector.
	Metadata map[string]any
}

// Match is one similarity search hit.
type Match struct {
	// ID is the record identifier.
	ID string

	// Score is the cosine similarity to the query vector
	// (higher = more relevant).
	Score float32

	// Metadata is the payload stored with the record.
	Metadata map[string]any
}
