package file

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"proxygen/internal/apperr"
	"proxygen/internal/collectors"
	"proxygen/internal/logger"
)

// Collector reads a subscription saved on disk. The optional "userinfo"
// param stands in for the header a remote server would have sent.
type Collector struct{}

func (c *Collector) Collect(ctx context.Context, config map[string]interface{}) (*collectors.Subscription, error) {
	path := collectors.String(config, "path")
	if path == "" {
		path = collectors.String(config, "url")
	}
	if path == "" {
		return nil, apperr.New(apperr.KindInvalid, "missing 'path' in collector config")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Log.Debugf("Reading subscription file: %s", path)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.Newf(apperr.KindNotFound, "subscription file '%s' not found", path)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindIO, "failed to read subscription file")
	}

	return &collectors.Subscription{
		Body:     data,
		UserInfo: collectors.String(config, "userinfo"),
	}, nil
}

func init() {
	collectors.Register("file", func() collectors.Collector {
		return &Collector{}
	})
}
