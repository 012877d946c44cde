// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remotememory

import (
	"errors"
	"runtime"
	"syscall"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/jvmentry/libpf"
)

func TestSelfRead(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process_vm_readv is linux only")
	}
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	dataPtr := libpf.Address(unsafe.Pointer(&data[0]))
	str := []byte("this is a string\x00")
	strPtr := libpf.Address(unsafe.Pointer(&str[0]))

	rm := Self()
	require.True(t, rm.Valid())

	foo := make([]byte, len(data))
	err := rm.Read(dataPtr, foo)
	if errors.Is(err, syscall.ENOSYS) || errors.Is(err, syscall.EPERM) {
		t.Skipf("skipping due to error: %v", err)
	}
	require.NoError(t, err)
	assert.Equal(t, data, foo)
	assert.Equal(t, uint32(0x04030201), rm.Uint32(dataPtr))
	assert.Equal(t, libpf.Address(0x0807060504030201), rm.Ptr(dataPtr))
	assert.Equal(t, "this is a string", rm.String(strPtr))

	// Unmapped memory reports an error rather than faulting.
	_, err = rm.Uint32Checked(0x10)
	require.Error(t, err)
	assert.Zero(t, rm.Uint32(0x10))
	runtime.KeepAlive(data)
	runtime.KeepAlive(str)
}
