//go:build !unix

package ingest

import (
	"errors"

	"github.com/go-git/go-billy/v5"
)

func mapFile(billy.File, int64) ([]byte, func() error, error) {
	return nil, nil, errors.ErrUnsupported
}
