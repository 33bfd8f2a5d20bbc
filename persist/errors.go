package persist

import (
	"fmt"

	"github.com/breez/breez-sdk-liquid-core/errs"
)

func wrapPersistErr(action string, err error) error {
	return fmt.Errorf("%w: %s: %s", errs.ErrPersist, action, err)
}
