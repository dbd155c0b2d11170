package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"
)

// Desktop sends notifications through the platform notification service.
type Desktop struct {
	icon string
}

// NewDesktop returns a Desktop sender. icon may be empty.
func NewDesktop(icon string) *Desktop {
	return &Desktop{icon: icon}
}

func (d *Desktop) Send(title, message string) error {
	if err := beeep.Notify(title, message, d.icon); err != nil {
		return fmt.Errorf("beeep notify: %w", err)
	}
	return nil
}
