// Package dataset defines the records a dtool dataset is made of and the
// helpers that name them: admin metadata, manifest, overlays, item
// properties, item identifiers and dataset URIs.
//
// The records are plain values serialised as JSON by the codec. The package
// performs no I/O.
package dataset

// AdminMetadata is the minimal record whose presence makes a remote root a
// dataset. dtool writes at least "uuid", "name", "type", "creator_username"
// and "created_at"; the broker itself only relies on "uuid".
type AdminMetadata map[string]any

// UUID returns the "uuid" entry, or "" if it is missing or not a string.
func (m AdminMetadata) UUID() string {
	uuid, _ := m["uuid"].(string)
	return uuid
}

// Name returns the "name" entry, or "" if it is missing or not a string.
func (m AdminMetadata) Name() string {
	name, _ := m["name"].(string)
	return name
}

// Overlay is a named auxiliary key-value record, conventionally keyed by item
// identifier.
type Overlay map[string]any

// ItemProperties describes one item. It is computed on demand from the
// remote object and aggregated into the manifest at freeze time.
type ItemProperties struct {
	// RelPath is the item's handle: the producer-supplied relative path.
	RelPath string `json:"relpath"`

	// SizeInBytes is the payload size.
	SizeInBytes int64 `json:"size_in_bytes"`

	// Hash is the content digest reported by the remote store.
	Hash string `json:"hash"`

	// UTCTimestamp is the modification time as seconds since the Unix epoch.
	UTCTimestamp int64 `json:"utc_timestamp"`
}

// Manifest is the frozen aggregate of all item properties.
type Manifest struct {
	DtoolcoreVersion string                    `json:"dtoolcore_version"`
	HashFunction     string                    `json:"hash_function"`
	Items            map[string]ItemProperties `json:"items"`
}

// HashFunctionMD5 is the hash_function value written by dtool for md5 digests.
const HashFunctionMD5 = "md5sum_hexdigest"
