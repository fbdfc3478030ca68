package sshutil

import (
	stderrors "errors"
	"strings"

	"github.com/orion-fleet/orion/internal/errors"
)

// Classify maps a raw transport failure onto the error codes callers branch
// on. Matching is on the lowercased message and runs in a fixed order, so an
// "authentication timed out" failure is AUTH, not TIMEOUT. Errors that are
// already structured pass through unchanged.
func Classify(err error) *errors.Error {
	if err == nil {
		return nil
	}

	var structured *errors.Error
	if stderrors.As(err, &structured) {
		return structured
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "auth", "permission denied", "unable to authenticate", "no supported methods"):
		return errors.WrapWithCode(err, errors.ErrAuth,
			"Authentication Failed",
			"Check the username and password, or that the key is authorized on the device")

	case containsAny(msg, "timeout", "timed out"):
		return errors.WrapWithCode(err, errors.ErrTimeout,
			"Connection Timed Out",
			"The device might be offline or blocked by a firewall")

	case containsAny(msg, "unable to open", "unreachable", "connection refused", "no route to host", "host is down"):
		return errors.WrapWithCode(err, errors.ErrUnreachable,
			"host unreachable or port closed",
			suggestionForDialError(err))
	}

	// Uncategorized: keep the transport's own words.
	return errors.New(errors.ErrSSH, err.Error(), "")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func suggestionForDialError(err error) string {
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH running on the device? Try: ssh <user>@<host>"
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the device. Check it is on the same network."
	}
	return "Make sure the device is powered on and reachable: ping <host>"
}
