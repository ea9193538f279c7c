// Package queue holds the playback ordering structure: a high-priority
// deque served before a regular deque, FIFO within each.
package queue
