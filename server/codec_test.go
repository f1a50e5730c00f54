package server

import (
	"testing"

	"github.com/arrowquorum/quorumlock/testutil"
	"github.com/arrowquorum/quorumlock/types"
)

func TestJSONCodec_RoundTrip(t *testing.T) {
	codec := jsonCodec{}
	want := LockCallRequest{
		Session:  "s1",
		Resource: "alpha",
		Request:  types.LockRequest{ID: 7, Timeout: 1000},
	}

	data, err := codec.Marshal(&want)
	testutil.RequireNoError(t, err)

	var got LockCallRequest
	testutil.RequireNoError(t, codec.Unmarshal(data, &got))
	testutil.AssertEqual(t, want, got)
}

func TestJSONCodec_Name(t *testing.T) {
	testutil.AssertEqual(t, "json", jsonCodec{}.Name())
}
