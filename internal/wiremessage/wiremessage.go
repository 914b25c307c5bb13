// Package wiremessage builds the legacy opcode frames (OP_INSERT,
// OP_UPDATE, OP_DELETE, and the OP_QUERY used to carry getLastError) bit
// exactly as described by the MongoDB wire protocol. It is grounded on the
// header encode/decode symmetry in mongodb/mongo-tools's mongoproto
// package, adapted here for writing outbound frames rather than parsing
// captured traffic.
package wiremessage

import (
	"encoding/binary"
	"fmt"
)

// OpCode identifies the kind of wire operation a message carries.
type OpCode int32

// Legacy opcodes, matching the values fixed by the wire protocol.
const (
	OpReply       OpCode = 1
	OpUpdate      OpCode = 2001
	OpInsert      OpCode = 2002
	OpQuery       OpCode = 2004
	OpGetMore     OpCode = 2005
	OpDelete      OpCode = 2006
	OpKillCursors OpCode = 2007
)

// Insert flags.
const (
	InsertContinueOnError int32 = 1 << 0
)

// Update flags.
const (
	UpdateUpsert int32 = 1 << 0
	UpdateMulti  int32 = 1 << 1
)

// Delete flags.
const (
	DeleteSingleRemove int32 = 1 << 0
)

// Query flags; only SlaveOk is relevant to getLastError round trips issued
// against secondaries in this core.
const (
	QuerySlaveOk int32 = 1 << 2
)

// headerLen is the fixed size, in bytes, of a wire protocol message header.
const headerLen = 16

// MaxNamespaceLen bounds "<db>.<collection>" per the wire protocol.
const MaxNamespaceLen = 255

func putHeader(buf []byte, messageLength, requestID, responseTo int32, opCode OpCode) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(messageLength))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(requestID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(responseTo))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(opCode))
}

func putCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

func checkNamespace(ns string) error {
	if len(ns) == 0 || len(ns) > MaxNamespaceLen {
		return fmt.Errorf("wiremessage: namespace %q exceeds protocol maximum length %d", ns, MaxNamespaceLen)
	}
	return nil
}

// EncodeInsert builds a single OP_INSERT frame carrying one or more already
// BSON-encoded documents, per the wire protocol:
// header, int32 flags, cstring full-namespace, concatenated BSON documents.
func EncodeInsert(requestID int32, ns string, flags int32, docs [][]byte) ([]byte, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("wiremessage: OP_INSERT requires at least one document")
	}

	size := headerLen + 4 + len(ns) + 1
	for _, d := range docs {
		size += len(d)
	}

	buf := make([]byte, headerLen, size)
	putHeader(buf, int32(size), requestID, 0, OpInsert)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(flags))
	buf = putCString(buf, ns)
	for _, d := range docs {
		buf = append(buf, d...)
	}
	return buf, nil
}

// EncodeUpdate builds a single OP_UPDATE frame:
// header, int32 zero, cstring ns, int32 flags, BSON selector, BSON update.
func EncodeUpdate(requestID int32, ns string, flags int32, selector, update []byte) ([]byte, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}

	size := headerLen + 4 + len(ns) + 1 + 4 + len(selector) + len(update)
	buf := make([]byte, headerLen, size)
	putHeader(buf, int32(size), requestID, 0, OpUpdate)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = putCString(buf, ns)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(flags))
	buf = append(buf, selector...)
	buf = append(buf, update...)
	return buf, nil
}

// EncodeDelete builds a single OP_DELETE frame:
// header, int32 zero, cstring ns, int32 flags, BSON selector.
func EncodeDelete(requestID int32, ns string, flags int32, selector []byte) ([]byte, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}

	size := headerLen + 4 + len(ns) + 1 + 4 + len(selector)
	buf := make([]byte, headerLen, size)
	putHeader(buf, int32(size), requestID, 0, OpDelete)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = putCString(buf, ns)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(flags))
	buf = append(buf, selector...)
	return buf, nil
}

// EncodeQuery builds a single OP_QUERY frame against the given full
// namespace (typically "<db>.$cmd"), used to carry a getLastError command.
func EncodeQuery(requestID int32, fullCollectionName string, flags int32, numberToSkip, numberToReturn int32, query []byte) ([]byte, error) {
	if err := checkNamespace(fullCollectionName); err != nil {
		return nil, err
	}

	size := headerLen + 4 + len(fullCollectionName) + 1 + 4 + 4 + len(query)
	buf := make([]byte, headerLen, size)
	putHeader(buf, int32(size), requestID, 0, OpQuery)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(flags))
	buf = putCString(buf, fullCollectionName)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(numberToSkip))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(numberToReturn))
	buf = append(buf, query...)
	return buf, nil
}
