// Package session tracks the running session and holds locally generated
// announcements until the server has assigned the session an id.
package session
