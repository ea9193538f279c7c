// Package backend talks to the cheer REST API: it submits internal and peer
// events as multipart forms.
package backend
