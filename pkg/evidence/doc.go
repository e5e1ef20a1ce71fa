// Package evidence stores the raw bytes of uploaded evidence files.
//
// Two backends implement ObjectStore: a local filesystem tree for
// single-node deployments and an S3-compatible backend (AWS or MinIO)
// for everything else. Both compute the SHA-256 checksum of the stored
// bytes on upload so the case layer can record it alongside the file
// metadata.
package evidence
