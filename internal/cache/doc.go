// Package cache defines the on-disk blob store behind the image cache. Each
// cached image is a single file named after its derived key directly under
// StoragePath. The store exposes download/stat/list/touch/delete primitives
// with safe write semantics (temp file + rename) and surfaces file info
// (size, modtime) so the image cache manager can do size accounting and
// oldest-first eviction without duplicating filesystem logic.
package cache
