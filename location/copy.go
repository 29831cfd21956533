package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/concurrency"
)

type copyJob struct {
	src string
	dst string
}

// walk lists every file under srcPath, creating the matching directories under dstPath.
func walk(ctx context.Context, src Backend, srcPath string, dst Backend, dstPath string) ([]copyJob, error) {
	entry, err := src.Stat(ctx, srcPath)
	if err != nil {
		return nil, err
	}
	if !entry.IsDir {
		return []copyJob{{src: srcPath, dst: dstPath}}, nil
	}
	if err := dst.MkdirAll(ctx, dstPath); err != nil {
		return nil, err
	}
	entries, err := src.List(ctx, srcPath)
	if err != nil {
		return nil, err
	}
	jobs := []copyJob{}
	for _, entry := range entries {
		srcChild := path.Join(srcPath, entry.Name)
		dstChild := path.Join(dstPath, entry.Name)
		if !entry.IsDir {
			jobs = append(jobs, copyJob{src: srcChild, dst: dstChild})
			continue
		}
		childJobs, err := walk(ctx, src, srcChild, dst, dstChild)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, childJobs...)
	}
	return jobs, nil
}

func copyFile(ctx context.Context, src Backend, srcPath string, dst Backend, dstPath string) (err error) {
	readCloser, err := src.Open(ctx, srcPath)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, readCloser.Close()) }()

	writeCloser, err := dst.Create(ctx, dstPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(writeCloser, readCloser); err != nil {
		return errors.Join(
			fmt.Errorf("failed to copy %s to %s: %w", srcPath, dstPath, err),
			writeCloser.Close(),
		)
	}
	return writeCloser.Close()
}

// CopyEntryTo copies name, a file or directory tree within the Location, as destName
// within dest. Files are copied concurrently, up to the limit set at the context by
// concurrency.WithConcurrencyLimit. All failures are returned joined.
func (l *Location) CopyEntryTo(ctx context.Context, name string, dest *Location, destName string) error {
	ctx, logger := log.MustWithGroupAttrs(ctx, "📂 Location", "from", l.String(), "to", dest.String())
	logger.Debug("Copy", "name", name, "dest_name", destName)

	src, err := l.Backend(ctx)
	if err != nil {
		return err
	}
	dst, err := dest.Backend(ctx)
	if err != nil {
		return err
	}
	if err := dest.Mkdir(ctx); err != nil {
		return err
	}

	jobs, err := walk(ctx, src, l.Join(name), dst, dest.Join(destName))
	if err != nil {
		return err
	}

	group := concurrency.NewConcurrencyGroup(ctx)
	for _, job := range jobs {
		group.Run(func(ctx context.Context) error {
			return copyFile(ctx, src, job.src, dst, job.dst)
		})
	}
	return group.WaitErr()
}

// CopyTo copies the given entries, or all entries when none is given, into a new Location
// at (system, path, options). An empty path uses DefaultPath.
func (l *Location) CopyTo(
	ctx context.Context, system, p string, options Options, names ...string,
) (*Location, error) {
	dest := New(system, p, options)

	if len(names) == 0 {
		entries, err := l.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			names = append(names, entry.Name)
		}
		if len(names) == 0 {
			if err := dest.Mkdir(ctx); err != nil {
				return nil, errors.Join(err, dest.Close(ctx))
			}
		}
	}

	var errs []error
	for _, name := range names {
		errs = append(errs, l.CopyEntryTo(ctx, name, dest, name))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, errors.Join(err, dest.Close(ctx))
	}
	return dest, nil
}
