package exitcodes

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// TestGetInnerErrorAndExitCode verifies exit codes are recovered from errors, including wrapped ones.
func TestGetInnerErrorAndExitCode(t *testing.T) {
	err, exitCode := GetInnerErrorAndExitCode(nil)
	assert.NoError(t, err)
	assert.Equal(t, ExitCodeSuccess, exitCode)

	plain := errors.New("plain")
	err, exitCode = GetInnerErrorAndExitCode(plain)
	assert.Equal(t, plain, err)
	assert.Equal(t, ExitCodeGeneralError, exitCode)
	assert.False(t, IsHandled(exitCode))

	inner := errors.New("remote unavailable")
	withCode := NewErrorWithExitCode(inner, ExitCodeRemoteError)
	assert.Equal(t, "remote unavailable", withCode.Error())
	assert.ErrorIs(t, withCode, inner)

	err, exitCode = GetInnerErrorAndExitCode(errors.Wrap(withCode, "fetch"))
	assert.Equal(t, inner, err)
	assert.Equal(t, ExitCodeRemoteError, exitCode)
	assert.True(t, IsHandled(exitCode))

	assert.Equal(t, "", NewErrorWithExitCode(nil, ExitCodeHandledError).Error())
}
