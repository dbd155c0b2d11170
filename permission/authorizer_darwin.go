//go:build darwin

package permission

/*
#cgo CFLAGS: -x objective-c -fobjc-arc -mmacosx-version-min=11.0
#cgo LDFLAGS: -framework AVFoundation -framework UserNotifications -framework Foundation

extern int microphoneStatus(void);
extern void requestMicrophone(void);
extern int notificationStatus(void);
extern void requestNotification(void);
*/
import "C"

import "sync"

// Pending completions keyed by kind. The Cache guarantees at most one
// outstanding request per kind, so one slot each is enough.
var (
	pendingMu sync.Mutex
	pending   = make(map[Kind]func(bool))
)

//export goPermissionResult
func goPermissionResult(kind C.int, granted C.int) {
	k := Kind(kind)

	pendingMu.Lock()
	done := pending[k]
	delete(pending, k)
	pendingMu.Unlock()

	if done != nil {
		go done(granted != 0)
	}
}

type systemAuthorizer struct{}

// NewSystemAuthorizer returns the macOS authorizer backed by AVFoundation and
// UserNotifications.
func NewSystemAuthorizer() Authorizer {
	return systemAuthorizer{}
}

func (systemAuthorizer) Status(kind Kind) Status {
	switch kind {
	case Microphone:
		return Status(C.microphoneStatus())
	case Notification:
		return Status(C.notificationStatus())
	default:
		return NotDetermined
	}
}

func (systemAuthorizer) Request(kind Kind, done func(bool)) {
	pendingMu.Lock()
	pending[kind] = done
	pendingMu.Unlock()

	switch kind {
	case Microphone:
		C.requestMicrophone()
	case Notification:
		C.requestNotification()
	default:
		goPermissionResult(C.int(kind), 0)
	}
}
