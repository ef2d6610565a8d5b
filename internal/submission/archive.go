package submission

import (
	"context"
	"errors"
	"fmt"
)

// Archivers fans a result out to every archiver in order. All archivers run
// even when an earlier one fails; the errors are joined.
type Archivers []Archiver

func (a Archivers) Archive(ctx context.Context, result Result) error {
	var errs []error
	for i, archiver := range a {
		if archiver == nil {
			continue
		}
		if err := archiver.Archive(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("archiver %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
