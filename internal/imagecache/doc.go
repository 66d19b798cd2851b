// Package imagecache resolves remote image URLs to local blobs.
//
// A Manager sits between image consumers and two collaborators: the blob
// store in package cache and a key/value settings store. On the first
// Resolve of a URL the image is downloaded under a key derived from the URL
// and its size is added to an in-memory running total. When the total
// exceeds MaxSizeBytes the oldest blobs (by file modification time, which a
// hit refreshes) are deleted until the remainder is at or below
// MaxSizeBytes*TrimTargetFraction, after which the total is recomputed from
// disk.
//
// Every failure in the resolve path degrades to returning the original URL.
// Concurrent misses for the same key share a single download.
package imagecache
