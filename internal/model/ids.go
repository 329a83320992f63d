// Package model holds the shared data types of the OTP cluster: the
// distributed object, its (parentId, zoneId) location, client interest
// state, and the persisted account record (spec.md §3).
package model

import (
	"crypto/md5"
	"encoding/binary"

	"github.com/google/uuid"
)

// DoID is a globally unique distributed-object identifier shared by
// ephemeral and persistent objects alike.
type DoID uint32

// Channel is a 64-bit logical address on the Message Director.
type Channel uint64

// Reserved service channels (spec.md §3).
const (
	ChannelDBServer    Channel = 4003
	ChannelStateServer Channel = 20100000
	ChannelChatRewrite Channel = 4681
)

// puppetChannelOffset is added to a doId to form its "puppet" channel.
const puppetChannelOffset Channel = 1 << 32

// ObjectChannel returns the object's own channel (its bare doId).
func ObjectChannel(id DoID) Channel { return Channel(id) }

// PuppetChannel returns id's puppet channel (doId + 2^32).
func PuppetChannel(id DoID) Channel { return Channel(id) + puppetChannelOffset }

// FirstPersistentDoID is the first id handed out to a persistent
// object by a backend's id allocator (spec.md §3).
const FirstPersistentDoID DoID = 10_000_000

// NewUUID mints the 128-bit identifier assigned at persistent-object
// birth: md5(className + doId + creation timestamp), with the digest's
// version/variant nibbles overwritten so it reads as a version-4 UUID
// (spec.md §3). This intentionally does not go through uuid.NewMD5,
// which produces an RFC4122 version-3 (name-based-MD5) UUID — the
// source reinterprets the raw digest bytes as v4 instead of following
// the v3 algorithm.
func NewUUID(className string, doID DoID, createdUnixSeconds int64) uuid.UUID {
	var buf []byte
	buf = append(buf, []byte(className)...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(doID))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(createdUnixSeconds))
	sum := md5.Sum(buf)

	var id uuid.UUID
	copy(id[:], sum[:])
	id[6] = (id[6] & 0x0f) | 0x40 // version 4
	id[8] = (id[8] & 0x3f) | 0x80 // RFC4122 variant
	return id
}
