package errors

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestNewC(t *testing.T) {
	err := NewC("group g/readers not found", codes.NotFound)
	assert.Equal(t, "group g/readers not found", err.Error())
	assert.Equal(t, codes.NotFound, err.Code())
	assert.Equal(t, http.StatusNotFound, err.HTTPStatusCode())
	assert.NotEmpty(t, err.StackFrames())
}

func TestCodef(t *testing.T) {
	err := Codef(codes.PermissionDenied, "client %s may not read %s", "u/bob", "/r/user/alice/42")
	assert.Equal(t, "client u/bob may not read /r/user/alice/42", err.Error())
	assert.Equal(t, codes.PermissionDenied, err.Code())
	assert.Equal(t, http.StatusForbidden, err.HTTPStatusCode())
}

func TestWrap_existingError(t *testing.T) {
	orig := NewC("record not found", codes.NotFound)
	wrapped := Wrap(orig, 0)
	// Wrapping an *Error returns it unchanged, code included.
	assert.Same(t, orig, wrapped)
	assert.Equal(t, codes.NotFound, wrapped.Code())
}

func TestWrap_plainError(t *testing.T) {
	wrapped := Wrap(io.EOF, 0)
	assert.Equal(t, codes.Unknown, wrapped.Code())
	assert.ErrorIs(t, wrapped, io.EOF)
}

func TestWrapPrefix(t *testing.T) {
	err := WrapPrefix(io.EOF, "reading acl edges", 0)
	assert.Equal(t, "reading acl edges: EOF", err.Error())
}

func TestPublicMessage(t *testing.T) {
	err := NewC("object d/42 missing owner edge", codes.Internal).
		WithPublicMessage("an internal error occurred")
	assert.Equal(t, "an internal error occurred", err.PublicMessage())
	assert.Equal(t, "object d/42 missing owner edge", err.Error())
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatusCode())
}

func TestCode_helpers(t *testing.T) {
	assert.Equal(t, codes.OK, Code(nil))
	assert.Equal(t, codes.Unknown, Code(fmt.Errorf("plain")))
	assert.Equal(t, codes.InvalidArgument, Code(NewC("bad id", codes.InvalidArgument)))

	assert.Equal(t, http.StatusOK, HTTPStatusCode(nil))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusCode(fmt.Errorf("plain")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatusCode(NewC("bad id", codes.InvalidArgument)))
}

func TestHTTPStatusCode_override(t *testing.T) {
	err := NewC("denied", codes.PermissionDenied).WithHTTPStatusCode(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatusCode())
}

func TestGRPCStatus(t *testing.T) {
	err := NewC("denied", codes.PermissionDenied).WithPublicMessage("access denied")
	st := err.GRPCStatus()
	assert.Equal(t, codes.PermissionDenied, st.Code())
	assert.Equal(t, "access denied", st.Message())
}
