package location

import "errors"

var (
	// ErrPermissionDenied means the app lacks location permission. Never
	// retried by the engine; the user has to grant access.
	ErrPermissionDenied = errors.New("location permission denied: allow location access for this app in system settings")

	// ErrServicesDisabled means device location services are switched off.
	ErrServicesDisabled = errors.New("location services are disabled: turn on device location and try again")

	// ErrUnavailable means every accuracy tier timed out. Terminal for the
	// call; retrying is the caller's decision.
	ErrUnavailable = errors.New("unable to determine location: check that location services are on, move away from obstructed areas, or restart the device")
)
