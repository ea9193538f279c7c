// Package cache keeps synthesized speech on disk, zstd-compressed and
// keyed by language and text, so repeated announcements skip synthesis.
// Remote cheer audio is never cached.
package cache
