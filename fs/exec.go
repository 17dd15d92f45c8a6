package fs

import (
	"context"

	"github.com/evanphx/kernelino/kernel"
	"github.com/pkg/errors"
)

// Executor runs (or, for now, inspects) a file image inside a child process.
type Executor interface {
	Exec(ctx context.Context, p *kernel.Process, info FileInfo, image []byte) error
}

// ExecuteFile loads the file at p and hands it to ex in a new child of the
// VFS's process. It returns once the child has started.
func (v *VFS) ExecuteFile(ctx context.Context, p string, ex Executor) (*kernel.Process, error) {
	v.mu.Lock()

	f, err := v.lookupFile(p)
	if err != nil {
		v.mu.Unlock()
		return nil, errors.Wrap(err, "exec")
	}

	info := f.info()

	image, err := v.content(f)

	v.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return v.proc.ExecuteChild(ctx, info.Name, func(ctx context.Context, child *kernel.Process) error {
		return ex.Exec(ctx, child, info, image)
	})
}
