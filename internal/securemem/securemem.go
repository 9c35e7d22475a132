// Package securemem keeps provider credentials in memguard-locked buffers so
// API keys never sit in ordinary heap memory longer than a single request.
package securemem

import (
	"crypto/subtle"

	"github.com/awnumar/memguard"
)

// String is an API key or token held in an encrypted, locked buffer.
type String struct {
	buf *memguard.LockedBuffer
}

// NewString moves plaintext into secure memory.
func NewString(plaintext string) *String {
	if plaintext == "" {
		return &String{}
	}
	return &String{buf: memguard.NewBufferFromBytes([]byte(plaintext))}
}

func (s *String) alive() bool {
	return s != nil && s.buf != nil && s.buf.IsAlive()
}

// Reveal returns a plaintext copy for handing to an SDK constructor.
func (s *String) Reveal() string {
	if !s.alive() {
		return ""
	}
	return string(s.buf.Bytes())
}

func (s *String) IsEmpty() bool {
	return !s.alive() || s.buf.Size() == 0
}

// Equal compares in constant time.
func (s *String) Equal(other string) bool {
	if !s.alive() {
		return other == ""
	}
	return subtle.ConstantTimeCompare(s.buf.Bytes(), []byte(other)) == 1
}

// String never prints the secret, so a stray %v in a log line is harmless.
func (s *String) String() string {
	if s.IsEmpty() {
		return "<empty>"
	}
	return "<redacted>"
}

// Destroy wipes the buffer. The String reads as empty afterwards.
func (s *String) Destroy() {
	if s.alive() {
		s.buf.Destroy()
	}
	if s != nil {
		s.buf = nil
	}
}

// Init installs memguard's interrupt handler so buffers are wiped on Ctrl-C.
func Init() {
	memguard.CatchInterrupt()
}

// Purge wipes every locked buffer. Call before process exit.
func Purge() {
	memguard.Purge()
}
