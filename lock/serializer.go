package lock

import (
	"encoding/json"

	"github.com/arrowquorum/quorumlock/types"
)

// Serializer encodes and decodes the request/response payloads a resource's
// state machine reads off a types.Command, and the snapshots it produces.
type Serializer interface {
	EncodeLockRequest(req types.LockRequest) ([]byte, error)
	DecodeLockRequest(data []byte) (types.LockRequest, error)

	EncodeUnlockRequest(req types.UnlockRequest) ([]byte, error)
	DecodeUnlockRequest(data []byte) (types.UnlockRequest, error)

	EncodeIsLockedRequest(req types.IsLockedRequest) ([]byte, error)
	DecodeIsLockedRequest(data []byte) (types.IsLockedRequest, error)

	EncodeSnapshot(snapshot types.AtomicLockSnapshot) ([]byte, error)
	DecodeSnapshot(data []byte) (types.AtomicLockSnapshot, error)
}

// JSONSerializer implements Serializer using encoding/json.
type JSONSerializer struct{}

func (JSONSerializer) EncodeLockRequest(req types.LockRequest) ([]byte, error) {
	return json.Marshal(req)
}

func (JSONSerializer) DecodeLockRequest(data []byte) (types.LockRequest, error) {
	var req types.LockRequest
	err := json.Unmarshal(data, &req)
	return req, err
}

func (JSONSerializer) EncodeUnlockRequest(req types.UnlockRequest) ([]byte, error) {
	return json.Marshal(req)
}

func (JSONSerializer) DecodeUnlockRequest(data []byte) (types.UnlockRequest, error) {
	var req types.UnlockRequest
	err := json.Unmarshal(data, &req)
	return req, err
}

func (JSONSerializer) EncodeIsLockedRequest(req types.IsLockedRequest) ([]byte, error) {
	return json.Marshal(req)
}

func (JSONSerializer) DecodeIsLockedRequest(data []byte) (types.IsLockedRequest, error) {
	var req types.IsLockedRequest
	err := json.Unmarshal(data, &req)
	return req, err
}

func (JSONSerializer) EncodeSnapshot(snapshot types.AtomicLockSnapshot) ([]byte, error) {
	return json.Marshal(snapshot)
}

func (JSONSerializer) DecodeSnapshot(data []byte) (types.AtomicLockSnapshot, error) {
	var snapshot types.AtomicLockSnapshot
	err := json.Unmarshal(data, &snapshot)
	return snapshot, err
}
