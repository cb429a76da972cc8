//go:build !unix

package speech

import (
	"errors"
	"os"
)

var errPauseUnsupported = errors.New("pause is not supported on this platform")

func suspendProcess(*os.Process) error { return errPauseUnsupported }

func continueProcess(*os.Process) error { return errPauseUnsupported }
