package transcoder

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/videoflix/streamcore/pkg/models"
)

// stderr fragments that indicate a failure worth retrying: the encoder ran
// out of a machine resource or timed out on I/O, not that the input is bad.
var transientPatterns = []string{
	"cannot allocate memory",
	"resource temporarily unavailable",
	"too many open files",
	"connection timed out",
	"i/o timeout",
	"operation timed out",
}

// stderr fragments that are unambiguously fatal. Checked before the
// transient patterns so a corrupt source never loops through retries.
var fatalPatterns = []string{
	"invalid data found when processing input",
	"no such file or directory",
	"no space left on device",
	"moov atom not found",
	"invalid argument",
}

// classifyEncodeFailure maps an encoder exit into the transient/fatal
// taxonomy the retry policy runs on.
func classifyEncodeFailure(err error, stderr string) error {
	reason := firstLine(stderr)
	if reason == "" {
		reason = err.Error()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.NewTransientEncodeError("encoder interrupted", err)
	}

	lower := strings.ToLower(stderr)
	for _, p := range fatalPatterns {
		if strings.Contains(lower, p) {
			return models.NewEncodeError(reason, err)
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return models.NewTransientEncodeError(reason, err)
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A signal kill (OOM killer, external SIGKILL) is worth retrying;
		// a plain non-zero exit with no recognized pattern is not.
		if exitErr.ExitCode() == -1 || exitErr.ExitCode() > 128 {
			return models.NewTransientEncodeError(reason, err)
		}
		return models.NewEncodeError(reason, err)
	}

	// Encoder binary missing or not executable: fatal, retrying on the same
	// host cannot help.
	return models.NewEncodeError(reason, err)
}
